package ocrapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// withRefresh runs fn with the current access token. On ErrRejected the
// session is refreshed and fn runs exactly once more.
func withRefresh[T any](ctx context.Context, s *Session, fn func(access string) (T, error)) (T, error) {
	token := s.AccessToken()
	out, err := fn(token)
	if !errors.Is(err, ErrRejected) {
		return out, err
	}
	if rerr := s.Refresh(ctx, token); rerr != nil {
		var zero T
		return zero, rerr
	}
	return fn(s.AccessToken())
}

// Process uploads a document, waits for its OCR result and, when enabled,
// resolves the matching form template. Network and token failures are
// logged and absorbed: the returned artifacts are then empty and the error
// is nil. Only an unreadable input file or a cancelled context is returned.
func (c *Client) Process(ctx context.Context, s *Session, path, filename string, pageCount int) (*Artifacts, error) {
	arts := &Artifacts{}
	logger := s.logger.With(slog.String("file", filepath.Base(path)))

	data, err := os.ReadFile(path)
	if err != nil {
		return arts, fmt.Errorf("failed to read document: %w", err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}

	if err := s.EnsureToken(ctx); err != nil {
		return c.absorb(ctx, logger, arts, "login", err)
	}

	up, err := withRefresh(ctx, s, func(access string) (UploadedFile, error) {
		return c.UploadFile(ctx, access, filename, data)
	})
	if err != nil {
		return c.absorb(ctx, logger, arts, "upload", err)
	}
	arts.FileID = up.FileID

	poll, err := withRefresh(ctx, s, func(access string) (*PollResponse, error) {
		return c.PollOCRResult(ctx, access, up.FileID, pageCount)
	})
	if err != nil {
		return c.absorb(ctx, logger, arts, "poll", err)
	}
	arts.Result = poll.Response
	arts.RequestID = poll.RequestID.String()

	if !s.FieldExtraction() || c.endpoints.Field == "" || len(s.FormCodes()) == 0 {
		return arts, nil
	}

	fields, formCode, err := c.resolveWithRefresh(ctx, s, arts.RequestID)
	if err != nil {
		return c.absorb(ctx, logger, arts, "field", err)
	}
	arts.Fields = fields
	arts.FormCode = formCode
	return arts, nil
}

// resolveWithRefresh restarts the candidate list once after a rejection.
// A second rejection leaves the document without a form code.
func (c *Client) resolveWithRefresh(ctx context.Context, s *Session, requestID string) ([]byte, string, error) {
	token := s.AccessToken()
	fields, formCode, err := c.ResolveFormCode(ctx, token, requestID, s.FormCodes())
	if !errors.Is(err, ErrRejected) {
		return fields, formCode, err
	}

	if err := s.Refresh(ctx, token); err != nil {
		return nil, "", err
	}
	fields, formCode, err = c.ResolveFormCode(ctx, s.AccessToken(), requestID, s.FormCodes())
	if errors.Is(err, ErrRejected) {
		s.logger.Warn("Field extraction rejected after refresh, no form code")
		return nil, "", nil
	}
	return fields, formCode, err
}

// absorb logs a stage failure and hands back what was collected so far.
func (c *Client) absorb(ctx context.Context, logger *slog.Logger, arts *Artifacts, stage string, err error) (*Artifacts, error) {
	if ctx.Err() != nil {
		return arts, ctx.Err()
	}
	logger.Error("OCR API stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()))
	return arts, nil
}
