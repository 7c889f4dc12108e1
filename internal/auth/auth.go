// Package auth provides user registration, login, and JWT validation for
// the HTTP layer. It is a collaborator of the agent core: the orchestrator
// only ever sees the already-authenticated owner id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// Service issues and validates HS256 tokens backed by the user store.
type Service struct {
	store  *store.Store
	secret []byte
	expiry time.Duration
}

// NewService fails on an empty signing secret so a misconfigured server
// cannot start issuing forgeable tokens.
func NewService(st *store.Store, secret string, expiry time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Service{store: st, secret: []byte(secret), expiry: expiry}, nil
}

// Register creates a user with a bcrypt-hashed password and returns the user
// plus a fresh token. Duplicate emails surface store.ErrConflict.
func (s *Service) Register(ctx context.Context, email, password, name string) (store.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return store.User{}, "", err
	}
	token, err := s.issueToken(u)
	if err != nil {
		return store.User{}, "", err
	}
	return u, token, nil
}

// Login verifies the password and returns the user plus a fresh token.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, string, error) {
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, "", ErrInvalidCredentials
		}
		return store.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return store.User{}, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(u)
	if err != nil {
		return store.User{}, "", err
	}
	return u, token, nil
}

func (s *Service) issueToken(u store.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   u.ID.String(),
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token and returns the identity
// it carries.
func (s *Service) ValidateToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	uid, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	return Identity{UserID: uid, Email: email}, nil
}
