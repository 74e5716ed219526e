package config

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

func TestFileStore_PersistInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(DefaultConfig(), "")

	persister := TokenPersister(store)
	require.NoError(t, persister.PersistTokens(ctx, ocrapi.TokenPair{Access: "a1", Refresh: "r1"}))

	s, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ocrapi.TokenPair{Access: "a1", Refresh: "r1"}, s.API.Tokens)
}

func TestFileStore_PersistMergesIntoFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ocrparse.yaml")
	original := `log_level: debug
ocr:
  mode: force
  user_args:
    form_code:
      - invoice
api:
  username: alice
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	store := NewFileStore(*cfg, path)

	require.NoError(t, store.Persist(ctx, TokenArgs(ocrapi.TokenPair{Access: "a2", Refresh: "r2"})))

	reloaded, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, debugLevel, reloaded.LogLevel, "unrelated keys are kept")
	assert.Equal(t, string(ModeForce), reloaded.OCR.Mode)
	assert.Equal(t, "alice", reloaded.API.Username)

	s := reloaded.Settings()
	assert.Equal(t, "a2", s.API.Tokens.Access)
	assert.Equal(t, "r2", s.API.Tokens.Refresh)
	assert.Equal(t, []ocrapi.FormCode{{Name: "invoice"}}, s.API.FormCodes, "existing user args survive")
}

func TestFileStore_PersistCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	store := NewFileStore(DefaultConfig(), path)

	require.NoError(t, store.Persist(context.Background(), map[string]any{"k": "v"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "user_args")
	assert.Contains(t, string(data), "k: v")
}

func TestOpenPostgresStore_RejectsTableName(t *testing.T) {
	_, err := OpenPostgresStore(context.Background(), "postgres://unused", "config; DROP TABLE x", DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestSettingsRow_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Username = "alice"

	row := settingsRow{
		ID:             1,
		Mode:           sql.NullString{String: "redo", Valid: true},
		Pages:          sql.NullInt64{Int64: 2, Valid: true},
		ImageDPI:       sql.NullInt64{Int64: 150, Valid: true},
		UnpaperClean:   sql.NullString{String: "clean-final", Valid: true},
		Deskew:         sql.NullBool{Bool: false, Valid: true},
		MaxImagePixels: sql.NullFloat64{Float64: 2e6, Valid: true},
		UserArgs:       []byte(`{"access_token_ocr":"db-access","form_code":[{"name":"invoice"}]}`),
	}
	require.NoError(t, row.apply(&cfg))

	s := cfg.Settings()
	assert.Equal(t, ModeRedo, s.Mode)
	assert.Equal(t, 2, s.Pages)
	assert.Equal(t, 150, s.ImageDPI)
	assert.Equal(t, CleanFinal, s.Clean)
	assert.False(t, s.Deskew)
	assert.Equal(t, int64(2_000_000), s.MaxImagePixels)
	assert.Equal(t, "eng", s.Language, "NULL columns keep the file value")
	assert.Equal(t, "alice", s.API.Credentials.Username)
	assert.Equal(t, "db-access", s.API.Tokens.Access)
	assert.Equal(t, []ocrapi.FormCode{{Name: "invoice"}}, s.API.FormCodes)

	bad := settingsRow{ID: 3, UserArgs: []byte("{not json")}
	assert.Error(t, bad.apply(&cfg))
}
