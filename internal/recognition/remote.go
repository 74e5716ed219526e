package recognition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
	"github.com/MeKo-Tech/ocrparse/internal/render"
)

// ErrNoSession is returned when a remote run is started without a session.
var ErrNoSession = errors.New("remote recognition requires an API session")

// RemoteEngine sends documents to the remote OCR service and renders the
// archive from its layout result. The service is reached through the
// session of each run, so every parse uses the endpoints of its own
// settings snapshot.
type RemoteEngine struct {
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewRemoteEngine creates a remote engine.
func NewRemoteEngine(renderer *render.Renderer, logger *slog.Logger) *RemoteEngine {
	if renderer == nil {
		renderer = render.NewRenderer(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteEngine{renderer: renderer, logger: logger}
}

// Run implements Engine.
func (e *RemoteEngine) Run(ctx context.Context, p Params) (*ocrapi.Artifacts, error) {
	if p.Session == nil {
		return nil, ErrNoSession
	}
	if err := preflight(p); err != nil {
		return nil, err
	}

	pageCount := 1
	if !p.IsImage {
		pageCount = pdf.PageCountOrOne(p.InputPath)
	}

	arts, err := p.Session.Process(ctx, p.InputPath, p.FileName, pageCount)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &InputFileError{Path: p.InputPath, Err: err}
	}
	if arts.Result.Empty() {
		e.logger.Warn("Remote OCR returned no result", slog.String("input", p.InputPath))
	}

	err = e.renderer.Render(ctx, render.Request{
		InputPath:   p.InputPath,
		IsImage:     p.IsImage,
		OutputPath:  p.OutputPath,
		SidecarPath: p.SidecarPath,
		Result:      arts.Result,
	})
	if err != nil {
		return nil, err
	}
	return arts, nil
}

// preflight rejects encrypted and unreadable inputs before any work is done.
func preflight(p Params) error {
	if p.IsImage {
		if _, err := imaging.Open(p.InputPath); err != nil {
			return &InputFileError{Path: p.InputPath, Err: err}
		}
		return nil
	}

	encrypted, err := pdf.IsEncrypted(p.InputPath)
	if err != nil {
		return &InputFileError{Path: p.InputPath, Err: err}
	}
	if encrypted {
		return &EncryptedInputError{Path: p.InputPath}
	}
	return nil
}
