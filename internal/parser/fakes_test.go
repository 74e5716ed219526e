package parser

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/recognition"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// memoryStore is a Store holding fixed settings.
type memoryStore struct {
	mu        sync.Mutex
	settings  config.ParseSettings
	persisted []map[string]any
}

func newMemoryStore(mutate func(*config.Config)) *memoryStore {
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return &memoryStore{settings: cfg.Settings()}
}

func (s *memoryStore) Settings(context.Context) (config.ParseSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone(), nil
}

func (s *memoryStore) Persist(_ context.Context, args map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, maps.Clone(args))
	return nil
}

// engineStep scripts one engine run.
type engineStep struct {
	err error
	// sidecar is written to the sidecar path when one is requested.
	sidecar string
	// archiveText makes the archive a real text PDF; otherwise it has no text.
	archiveText string
	arts        *ocrapi.Artifacts
}

// scriptedEngine plays back steps in order and records every call.
type scriptedEngine struct {
	t     *testing.T
	mu    sync.Mutex
	steps []engineStep
	calls []recognition.Params
	// threadLimit is the OMP_THREAD_LIMIT seen during each call.
	threadLimit []string
}

func newScriptedEngine(t *testing.T, steps ...engineStep) *scriptedEngine {
	return &scriptedEngine{t: t, steps: steps}
}

func (e *scriptedEngine) Run(_ context.Context, p recognition.Params) (*ocrapi.Artifacts, error) {
	e.mu.Lock()
	e.calls = append(e.calls, p)
	e.threadLimit = append(e.threadLimit, os.Getenv(recognition.ThreadLimitEnv))
	i := len(e.calls) - 1
	e.mu.Unlock()

	step := engineStep{sidecar: "recognized text"}
	if i < len(e.steps) {
		step = e.steps[i]
	}
	if step.err != nil {
		return nil, step.err
	}

	dir, name := filepath.Dir(p.OutputPath), filepath.Base(p.OutputPath)
	if step.archiveText != "" {
		testutil.WriteTextPDF(e.t, dir, name, step.archiveText)
	} else {
		testutil.WriteScannedPDF(e.t, dir, name, 1)
	}
	if p.SidecarPath != "" {
		require.NoError(e.t, os.WriteFile(p.SidecarPath, []byte(step.sidecar), 0o600))
	}

	arts := step.arts
	if arts == nil {
		arts = &ocrapi.Artifacts{FileID: "42", RequestID: "req-1"}
	}
	return arts, nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func newTestParser(t *testing.T, store config.Store, engine recognition.Engine) (*Parser, Options) {
	t.Helper()
	opts := Options{
		ArchiveDir: filepath.Join(t.TempDir(), "archive"),
		WorkDir:    t.TempDir(),
	}
	return New(Deps{Store: store, Engine: engine}, opts), opts
}

// requireEmptyDir fails when dir still holds anything.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "working directories must be removed")
}
