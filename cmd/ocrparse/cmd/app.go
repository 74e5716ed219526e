package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/extract"
	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
	"github.com/MeKo-Tech/ocrparse/internal/recognition"
	"github.com/MeKo-Tech/ocrparse/internal/render"
)

// newStore opens the configuration store selected by cfg. The returned
// function releases it.
func newStore(ctx context.Context, cfg *config.Config) (config.Store, func(), error) {
	switch cfg.Store.Kind {
	case config.StorePostgres:
		s, err := config.OpenPostgresStore(ctx, cfg.Store.DSN, cfg.Store.Table, *cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return config.NewFileStore(*cfg, GetConfigLoader().GetConfigFileUsed()), func() {}, nil
	}
}

// newEngine builds the recognition engine named by cfg.Parser.Engine.
func newEngine(cfg *config.Config, logger *slog.Logger) (recognition.Engine, error) {
	rasterizer := render.FitzRasterizer{}
	renderer := render.NewRenderer(rasterizer, logger)

	switch cfg.Parser.Engine {
	case config.EngineTesseract:
		engine, err := recognition.NewTesseractEngine(renderer, rasterizer, logger)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case config.EngineRemote, "":
		return recognition.NewRemoteEngine(renderer, logger), nil
	default:
		return nil, fmt.Errorf("unknown recognition engine: %s", cfg.Parser.Engine)
	}
}

// newParser wires a parser from cfg.
func newParser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*parser.Parser, func(), error) {
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	client := ocrapi.NewClient(cfg.API.Endpoints,
		ocrapi.WithPolicies(cfg.API.Retry),
		ocrapi.WithLogger(logger))

	engine, err := newEngine(cfg, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	p := parser.New(parser.Deps{
		Store:     store,
		Engine:    engine,
		Extractor: extract.New(pdf.NewLayoutSource(cfg.Parser.PdftotextPath, logger), logger),
		Client:    client,
	}, parser.Options{
		ArchiveDir:     cfg.Parser.ArchiveDir,
		WorkDir:        cfg.Parser.WorkDir,
		MinTextLength:  cfg.Parser.MinTextLength,
		KeepWorkingDir: cfg.Parser.KeepWorkingDir,
		Logger:         logger,
	})
	return p, closeStore, nil
}

// buildRequest turns a file argument into a parse request, detecting the
// MIME type when none is given.
func buildRequest(path, mimeType, fileName string) (parser.Request, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return parser.Request{}, fmt.Errorf("invalid path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return parser.Request{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return parser.Request{}, fmt.Errorf("%s is a directory", path)
	}

	if mimeType == "" {
		if mimeType, err = detectMimeType(abs); err != nil {
			return parser.Request{}, err
		}
	}
	if fileName == "" {
		fileName = filepath.Base(abs)
	}
	return parser.Request{DocumentPath: abs, MimeType: mimeType, FileName: fileName}, nil
}

var errUnsupportedType = errors.New("unsupported document type")

// detectMimeType sniffs the content first and falls back to the extension.
func detectMimeType(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path given on the command line
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	detected, _, _ := strings.Cut(http.DetectContentType(head[:n]), ";")
	if detected == "application/pdf" || parser.IsImage(detected) {
		return detected, nil
	}

	byExt, _, _ := strings.Cut(mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), ";")
	if byExt == "application/pdf" || parser.IsImage(byExt) {
		return byExt, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", errUnsupportedType, filepath.Base(path), detected)
}
