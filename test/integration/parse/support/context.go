package support

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
	"github.com/MeKo-Tech/ocrparse/internal/recognition"
	"github.com/MeKo-Tech/ocrparse/internal/render"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	T       *testing.T
	TempDir string

	// Inputs
	Config       config.Config
	Server       *testutil.FakeOCRServer
	DocumentPath string
	MimeType     string

	// Results
	Outcome      *parser.Outcome
	FieldOutcome *parser.FieldOutcome
	LastError    error
	Store        *config.FileStore
	Engine       *RecordingEngine
}

// NewTestContext creates a scenario context with default configuration.
func NewTestContext(t *testing.T) (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "ocrparse-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.Parser.ArchiveDir = filepath.Join(tempDir, "archive")
	cfg.Parser.WorkDir = filepath.Join(tempDir, "work")
	cfg.API.Username = "ocr"
	cfg.API.Password = "secret"

	return &TestContext{T: t, TempDir: tempDir, Config: cfg}, nil
}

// Cleanup removes everything the scenario created.
func (testCtx *TestContext) Cleanup() error {
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// RecordingEngine remembers the parameters of every run it forwards.
type RecordingEngine struct {
	Inner recognition.Engine

	mu    sync.Mutex
	Calls []recognition.Params
}

// Run implements recognition.Engine.
func (e *RecordingEngine) Run(ctx context.Context, p recognition.Params) (*ocrapi.Artifacts, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, p)
	e.mu.Unlock()
	return e.Inner.Run(ctx, p)
}

func (testCtx *TestContext) newParser() *parser.Parser {
	srv := testCtx.ensureServer()
	testCtx.Config.API.Endpoints = ocrapi.Endpoints{
		Login:       srv.Endpoint(testutil.PathLogin),
		Refresh:     srv.Endpoint(testutil.PathRefresh),
		Upload:      srv.Endpoint(testutil.PathUpload),
		OCRByFileID: srv.Endpoint(testutil.PathOCR),
		Field:       srv.Endpoint(testutil.PathField),
	}

	testCtx.Config.API.Retry.UploadTimeout = 5 * time.Second
	client := ocrapi.NewClient(testCtx.Config.API.Endpoints,
		ocrapi.WithPolicies(testCtx.Config.API.Retry),
		ocrapi.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testCtx.Store = config.NewFileStore(testCtx.Config, "")
	testCtx.Engine = &RecordingEngine{
		Inner: recognition.NewRemoteEngine(render.NewRenderer(nil, logger), logger),
	}

	return parser.New(parser.Deps{
		Store:  testCtx.Store,
		Engine: testCtx.Engine,
		Client: client,
	}, parser.Options{
		ArchiveDir: testCtx.Config.Parser.ArchiveDir,
		WorkDir:    testCtx.Config.Parser.WorkDir,
		Logger:     logger,
	})
}

func (testCtx *TestContext) ensureServer() *testutil.FakeOCRServer {
	if testCtx.Server == nil {
		testCtx.Server = testutil.NewFakeOCRServer(testCtx.T)
	}
	return testCtx.Server
}
