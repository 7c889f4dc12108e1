package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
	"golang.org/x/time/rate"
)

type contextKey int

const identityContextKey contextKey = 0

func identityToContext(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(auth.Identity)
	return id, ok
}

// errorBody is the stable JSON error envelope. Internal error text never
// reaches the caller; kind+message are the whole contract.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeMappedError translates the error taxonomy into HTTP statuses and
// stable kinds. Both upstream failure modes collapse into one generic
// "agent unavailable" condition at this boundary.
func writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", "access denied")
	case errors.Is(err, agent.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "invalid_arguments", "message must not be empty")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
	case errors.Is(err, provider.ErrUpstreamUnavailable), errors.Is(err, provider.ErrUpstreamProtocol):
		writeError(w, http.StatusBadGateway, "agent_unavailable", "the assistant is temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// authMiddleware validates bearer tokens for everything except the public
// routes and stores the identity on the request context.
func authMiddleware(svc *auth.Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r) {
			next.ServeHTTP(w, r)
			return
		}
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
			return
		}
		id, err := svc.ValidateToken(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(identityToContext(r.Context(), id)))
	})
}

func isPublicRoute(r *http.Request) bool {
	path := r.URL.Path
	switch {
	case path == "/health" && r.Method == http.MethodGet:
		return true
	case path == "/api/auth/register" && r.Method == http.MethodPost:
		return true
	case path == "/api/auth/login" && r.Method == http.MethodPost:
		return true
	case r.Method == http.MethodOptions:
		return true
	}
	return false
}

// extractBearerToken pulls the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// chatLimiter keeps one token bucket per authenticated identity.
// Process-wide state, initialized once at startup; the orchestrator never
// consults it.
type chatLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newChatLimiter(perMinute int) *chatLimiter {
	return &chatLimiter{perMin: perMinute, limiters: make(map[string]*rate.Limiter)}
}

func (c *chatLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.perMin)), c.perMin)
		c.limiters[key] = l
	}
	return l.Allow()
}

// corsMiddleware answers preflights and marks allowed origins.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowedSet[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := allowedSet[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logMiddleware emits one structured line per request.
func logMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
