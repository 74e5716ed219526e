package ocrapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MeKo-Tech/ocrparse/internal/metrics"
)

// TokenPersister stores tokens after every login or refresh so other
// parses pick them up.
type TokenPersister interface {
	PersistTokens(ctx context.Context, tokens TokenPair) error
}

// PersisterFunc adapts a function to TokenPersister.
type PersisterFunc func(ctx context.Context, tokens TokenPair) error

// PersistTokens implements TokenPersister.
func (f PersisterFunc) PersistTokens(ctx context.Context, tokens TokenPair) error {
	return f(ctx, tokens)
}

// SessionConfig holds everything a session is created from.
type SessionConfig struct {
	Credentials     Credentials
	Tokens          TokenPair
	FieldExtraction bool
	FormCodes       []FormCode
	Persister       TokenPersister
	Logger          *slog.Logger
}

// Session carries the tokens of one parse. Refreshes are serialised so a
// session never runs two refresh attempts at the same time.
type Session struct {
	client *Client
	creds  Credentials

	mu     sync.Mutex
	tokens TokenPair

	fieldExtraction bool
	formCodes       []FormCode
	persister       TokenPersister
	logger          *slog.Logger
	now             func() time.Time
}

// NewSession binds a session to a client.
func NewSession(client *Client, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = client.logger
	}
	return &Session{
		client:          client,
		creds:           cfg.Credentials,
		tokens:          cfg.Tokens,
		fieldExtraction: cfg.FieldExtraction,
		formCodes:       append([]FormCode(nil), cfg.FormCodes...),
		persister:       cfg.Persister,
		logger:          logger,
		now:             time.Now,
	}
}

// AccessToken returns the current access token.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Access
}

// Tokens returns a copy of the current token pair.
func (s *Session) Tokens() TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// FieldExtraction reports whether field resolution is enabled.
func (s *Session) FieldExtraction() bool { return s.fieldExtraction }

// FormCodes returns the configured candidates in declared order.
func (s *Session) FormCodes() []FormCode { return s.formCodes }

// Process runs the upload and recognition pipeline with the session's client.
func (s *Session) Process(ctx context.Context, path, filename string, pageCount int) (*Artifacts, error) {
	return s.client.Process(ctx, s, path, filename, pageCount)
}

// EnsureToken logs in when there is no access token or it has expired.
func (s *Session) EnsureToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.Access != "" && !tokenExpired(s.tokens.Access, s.now()) {
		return nil
	}
	return s.loginLocked(ctx)
}

// Refresh replaces the access token. stale is the token the failed call
// used; when another caller already replaced it nothing is done.
func (s *Session) Refresh(ctx context.Context, stale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stale != "" && s.tokens.Access != "" && s.tokens.Access != stale {
		return nil
	}

	if s.tokens.Refresh == "" {
		return s.loginLocked(ctx)
	}

	tp, err := s.client.RefreshToken(ctx, s.tokens.Refresh)
	switch {
	case errors.Is(err, ErrRejected):
		s.logger.Info("Refresh token rejected, logging in again")
		return s.loginLocked(ctx)
	case err != nil:
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return &AuthError{Op: "refresh", Err: err}
	}

	metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
	s.tokens = tp
	return s.persistLocked(ctx)
}

func (s *Session) loginLocked(ctx context.Context) error {
	tp, err := s.client.Login(ctx, s.creds)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return err
	}
	metrics.TokenRefreshes.WithLabelValues("relogin").Inc()
	s.tokens = tp
	return s.persistLocked(ctx)
}

func (s *Session) persistLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.PersistTokens(ctx, s.tokens); err != nil {
		// The new pair is still usable for this parse.
		s.logger.Warn("Failed to persist OCR tokens", slog.String("error", err.Error()))
	}
	return nil
}

// tokenExpired reports whether a JWT access token carries an exp claim in
// the past. Opaque tokens are never considered expired.
func tokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
