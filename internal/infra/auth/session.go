package auth

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the bearer token used against the chat API. Clearing it is
// how an auth failure signs the user out.
type Session struct {
	mu        sync.RWMutex
	token     string
	signedOut []func(ctx context.Context, err error)
	logger    *slog.Logger
}

func NewSession(token string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{token: token, logger: logger}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// OnSignedOut registers fn to run after HandleAuthError cleared the token,
// e.g. to route the user to sign-in.
func (s *Session) OnSignedOut(fn func(ctx context.Context, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedOut = append(s.signedOut, fn)
}

// HandleAuthError clears the stored token and notifies listeners.
func (s *Session) HandleAuthError(ctx context.Context, err error) {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	hooks := slices.Clone(s.signedOut)
	s.mu.Unlock()

	if hadToken {
		s.logger.Warn("credentials cleared", "error", err)
	}
	for _, fn := range hooks {
		fn(ctx, err)
	}
}

// Expired reports whether the token is a JWT whose exp claim is before now.
// Opaque tokens never count as expired; the server decides for them.
func (s *Session) Expired(now time.Time) bool {
	return TokenExpired(s.Token(), now)
}

func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
