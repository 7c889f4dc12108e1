// Package httpapi wires the task, auth, and chat routes onto a stdlib mux
// with JWT auth, per-identity rate limiting, CORS, and request logging.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/store"
)

type Server struct {
	store        *store.Store
	auth         *auth.Service
	orchestrator *agent.Orchestrator
	limiter      *chatLimiter
	log          *slog.Logger
	origins      []string
}

type Options struct {
	ChatRatePerMinute int
	AllowedOrigins    []string
	Logger            *slog.Logger
}

func New(st *store.Store, authSvc *auth.Service, orc *agent.Orchestrator, opts Options) *Server {
	if opts.ChatRatePerMinute <= 0 {
		opts.ChatRatePerMinute = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		store:        st,
		auth:         authSvc,
		orchestrator: orc,
		limiter:      newChatLimiter(opts.ChatRatePerMinute),
		log:          opts.Logger,
		origins:      opts.AllowedOrigins,
	}
}

// Handler builds the full middleware chain around the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/profile", s.handleProfile)

	mux.HandleFunc("GET /api/{user_id}/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/{user_id}/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/{user_id}/tasks/{task_id}", s.handleGetTask)
	mux.HandleFunc("PUT /api/{user_id}/tasks/{task_id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/{user_id}/tasks/{task_id}", s.handleDeleteTask)
	mux.HandleFunc("PATCH /api/{user_id}/tasks/{task_id}/complete", s.handleToggleComplete)

	mux.HandleFunc("POST /api/{user_id}/chat", s.handleChat)

	var h http.Handler = mux
	h = authMiddleware(s.auth, h)
	h = corsMiddleware(s.origins, h)
	h = logMiddleware(s.log, h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "taskpilot"})
}

// callerForPath returns the authenticated identity if it matches the
// path-addressed user id; otherwise it writes the error and reports false.
// A mismatch is a permission failure, not a lookup failure.
func (s *Server) callerForPath(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return auth.Identity{}, false
	}
	pathID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "invalid user id")
		return auth.Identity{}, false
	}
	if pathID != id.UserID {
		writeError(w, http.StatusForbidden, "permission_denied", "cannot access another user's data")
		return auth.Identity{}, false
	}
	return id, true
}
