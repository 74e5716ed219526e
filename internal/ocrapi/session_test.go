package ocrapi

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

type memPersister struct {
	mu    sync.Mutex
	saved []TokenPair
}

func (m *memPersister) PersistTokens(_ context.Context, tp TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, tp)
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, tokenExpired(signedToken(t, now.Add(-time.Minute)), now))
	assert.False(t, tokenExpired(signedToken(t, now.Add(time.Hour)), now))
	assert.False(t, tokenExpired("opaque-token", now), "opaque tokens are trusted until rejected")
}

func TestSession_EnsureToken(t *testing.T) {
	creds := Credentials{Username: "ocr", Password: "secret"}

	t.Run("logs in without token and persists", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		p := &memPersister{}
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{Credentials: creds, Persister: p})

		require.NoError(t, s.EnsureToken(context.Background()))
		assert.Equal(t, "access-token", s.AccessToken())
		assert.Equal(t, 1, srv.Calls(testutil.PathLogin))
		require.Len(t, p.saved, 1)
		assert.Equal(t, TokenPair{Access: "access-token", Refresh: "refresh-token"}, p.saved[0])
	})

	t.Run("keeps a valid token", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		valid := signedToken(t, time.Now().Add(time.Hour))
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{
			Credentials: creds,
			Tokens:      TokenPair{Access: valid, Refresh: "r"},
		})

		require.NoError(t, s.EnsureToken(context.Background()))
		assert.Equal(t, valid, s.AccessToken())
		assert.Zero(t, srv.TotalCalls())
	})

	t.Run("logs in again when expired", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{
			Credentials: creds,
			Tokens:      TokenPair{Access: signedToken(t, time.Now().Add(-time.Hour)), Refresh: "r"},
		})

		require.NoError(t, s.EnsureToken(context.Background()))
		assert.Equal(t, "access-token", s.AccessToken())
		assert.Equal(t, 1, srv.Calls(testutil.PathLogin))
	})
}

func TestSession_Refresh(t *testing.T) {
	creds := Credentials{Username: "ocr", Password: "secret"}

	t.Run("refresh succeeds", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		srv.IssueAccess = "fresh"
		p := &memPersister{}
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{
			Credentials: creds,
			Tokens:      TokenPair{Access: "stale", Refresh: "r"},
			Persister:   p,
		})

		require.NoError(t, s.Refresh(context.Background(), "stale"))
		assert.Equal(t, "fresh", s.AccessToken())
		assert.Equal(t, 1, srv.Calls(testutil.PathRefresh))
		assert.Zero(t, srv.Calls(testutil.PathLogin))
		assert.Len(t, p.saved, 1)
	})

	t.Run("rejected refresh falls back to login", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		srv.RefreshStatus = http.StatusUnauthorized
		srv.IssueAccess = "relogged"
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{
			Credentials: creds,
			Tokens:      TokenPair{Access: "stale", Refresh: "expired"},
		})

		require.NoError(t, s.Refresh(context.Background(), "stale"))
		assert.Equal(t, "relogged", s.AccessToken())
		assert.Equal(t, 1, srv.Calls(testutil.PathLogin))
	})

	t.Run("concurrent refreshes collapse", func(t *testing.T) {
		srv := testutil.NewFakeOCRServer(t)
		srv.IssueAccess = "fresh"
		s := NewSession(newFakeClient(t, srv, &sleepRecorder{}), SessionConfig{
			Credentials: creds,
			Tokens:      TokenPair{Access: "stale", Refresh: "r"},
		})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Refresh(context.Background(), "stale"))
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, srv.Calls(testutil.PathRefresh))
		assert.Equal(t, "fresh", s.AccessToken())
	})
}
