// Package parser turns a PDF or image into text and an archive PDF,
// deciding per document whether recognition is needed and recovering from
// failed recognition runs.
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/extract"
	"github.com/MeKo-Tech/ocrparse/internal/metrics"
	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/recognition"
)

// DefaultMinTextLength is the number of characters above which the
// original document's own text counts as usable.
const DefaultMinTextLength = 50

// Request names the document to parse.
type Request struct {
	DocumentPath string `json:"document_path"`
	MimeType     string `json:"mime_type"`
	FileName     string `json:"file_name,omitempty"`
}

// Extraction is what the remote service returned besides the layout.
type Extraction struct {
	Fields    json.RawMessage `json:"data_ocr_fields,omitempty"`
	FormCode  string          `json:"form_code"`
	FileID    string          `json:"file_id"`
	RequestID string          `json:"request_id"`
}

// Outcome is the result of Parse.
type Outcome struct {
	Text        string `json:"text"`
	ArchivePath string `json:"archive_path,omitempty"`
	Extraction
}

// FieldOutcome is the result of ParseFields.
type FieldOutcome struct {
	ArchivePath string `json:"archive_path,omitempty"`
	Extraction
}

func (e *Extraction) set(arts *ocrapi.Artifacts) {
	if arts == nil {
		return
	}
	e.Fields = arts.Fields
	e.FormCode = arts.FormCode
	e.FileID = arts.FileID
	e.RequestID = arts.RequestID
}

// Deps are the collaborators of a Parser.
type Deps struct {
	Store     config.Store
	Engine    recognition.Engine
	Extractor *extract.Extractor
	// Client is used to open an API session per parse; nil for engines
	// that do not talk to the remote service.
	Client *ocrapi.Client
}

// Options tune where a Parser keeps its files.
type Options struct {
	ArchiveDir     string
	WorkDir        string
	MinTextLength  int
	KeepWorkingDir bool
	Logger         *slog.Logger
}

// Parser runs parses. It is safe for concurrent use; every parse works in
// its own directory.
type Parser struct {
	store     config.Store
	engine    recognition.Engine
	extractor *extract.Extractor
	client    *ocrapi.Client
	opts      Options
	logger    *slog.Logger
}

// New creates a parser.
func New(deps Deps, opts Options) *Parser {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = DefaultMinTextLength
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = filepath.Join(os.TempDir(), "ocrparse-archive")
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.New(nil, opts.Logger)
	}
	return &Parser{
		store:     deps.Store,
		engine:    deps.Engine,
		extractor: extractor,
		client:    deps.Client,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// parseRun is the state of one Parse or ParseFields call.
type parseRun struct {
	id       string
	req      Request
	settings config.ParseSettings
	dir      string
	logger   *slog.Logger
	session  *ocrapi.Session
	image    *ImageInfo
	retained string
}

func (r *parseRun) path(name string) string { return filepath.Join(r.dir, name) }

func (r *parseRun) kind() string {
	if IsImage(r.req.MimeType) {
		return "image"
	}
	return "pdf"
}

func (p *Parser) begin(ctx context.Context, req Request) (*parseRun, error) {
	settings, err := p.store.Settings(ctx)
	if err != nil {
		return nil, newParseError(fmt.Errorf("failed to load settings: %w", err))
	}

	id := uuid.NewString()
	r := &parseRun{
		id:       id,
		req:      req,
		settings: settings,
		dir:      filepath.Join(p.opts.WorkDir, "ocrparse-"+id),
		logger: p.logger.With(
			slog.String("parse_id", id),
			slog.String("document", filepath.Base(req.DocumentPath))),
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return nil, newParseError(fmt.Errorf("failed to create working directory: %w", err))
	}

	if p.client != nil {
		client := p.client.WithEndpoints(settings.API.Endpoints, settings.API.Policies)
		r.session = ocrapi.NewSession(client, ocrapi.SessionConfig{
			Credentials:     settings.API.Credentials,
			Tokens:          settings.API.Tokens,
			FieldExtraction: settings.API.EnableFieldExtraction,
			FormCodes:       settings.API.FormCodes,
			Persister:       config.TokenPersister(p.store),
			Logger:          r.logger,
		})
	}
	if IsImage(req.MimeType) {
		info := PrepareImage(req.DocumentPath, r.dir, r.logger)
		r.image = &info
	}
	return r, nil
}

func (p *Parser) finish(r *parseRun) {
	if p.opts.KeepWorkingDir {
		r.logger.Debug("Keeping working directory", slog.String("dir", r.dir))
		return
	}
	if err := os.RemoveAll(r.dir); err != nil {
		r.logger.Warn("Failed to remove working directory", slog.String("dir", r.dir), slog.String("error", err.Error()))
	}
}

// recognize runs the engine once with parameters built for the given
// output paths.
func (p *Parser) recognize(ctx context.Context, r *parseRun, archive, sidecar string, safeFallback bool) (*ocrapi.Artifacts, recognition.Params, error) {
	params, err := BuildParams(Inputs{
		Document: r.req.DocumentPath,
		MimeType: r.req.MimeType,
		FileName: r.req.FileName,
		Archive:  archive,
		Sidecar:  sidecar,
		Image:    r.image,
	}, r.settings, safeFallback, r.logger)
	if err != nil {
		return nil, params, err
	}
	params.Session = r.session

	r.logger.Debug("Running recognition",
		slog.Bool("safe_fallback", safeFallback),
		slog.Bool("force_ocr", params.ForceOCR),
		slog.String("pages", params.Pages),
		slog.Int("image_dpi", params.ImageDPI))

	var arts *ocrapi.Artifacts
	err = recognition.WithThreadLimit(func() error {
		var runErr error
		arts, runErr = p.engine.Run(ctx, params)
		return runErr
	})
	return arts, params, err
}

// Parse extracts the text of a document, running recognition when the
// document's own text is not enough.
func (p *Parser) Parse(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	r, err := p.begin(ctx, req)
	if err != nil {
		metrics.Parses.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer p.finish(r)

	out, status, err := p.parse(ctx, r)
	if err != nil {
		metrics.ObserveOutcome(r.kind(), "failed", started)
		r.logger.Error("Parse failed", slog.String("error", err.Error()))
		return nil, err
	}
	metrics.ObserveParse(r.kind(), status, started, utf8.RuneCountInString(out.Text))
	return out, nil
}

func (p *Parser) parse(ctx context.Context, r *parseRun) (*Outcome, string, error) {
	out := &Outcome{}
	status := "text"

	var original string
	originalHasText := false
	if r.req.MimeType == mimePDF {
		original, _ = p.extractor.ExtractText(ctx, "", r.req.DocumentPath, r.settings.Mode)
		originalHasText = utf8.RuneCountInString(original) > p.opts.MinTextLength
	}

	if r.settings.SkipArchiveForText() && originalHasText {
		r.logger.Debug("Document has text, skipping recognition entirely")
		out.Text = original
		return out, "skipped", nil
	}

	archive, sidecar := r.path("archive.pdf"), r.path("sidecar.txt")
	arts, params, err := p.recognize(ctx, r, archive, sidecar, false)
	if err == nil {
		out.set(arts)
		if r.settings.SkipArchiveFile != config.SkipArchiveAlways {
			r.retained = archive
		}
		text, ok := p.extractor.ExtractText(ctx, params.SidecarPath, archive, r.settings.Mode)
		if ok {
			out.Text = text
		} else {
			err = ErrNoUsableText
		}
	}

	var encrypted *recognition.EncryptedInputError
	var inputErr *recognition.InputFileError
	switch {
	case err == nil:
	case errors.As(err, &encrypted):
		r.logger.Warn("This file is encrypted, OCR is impossible. Using any text present in the original file.")
		status = "encrypted"
		if originalHasText {
			out.Text = original
		}
	case errors.Is(err, ErrNoUsableText) || errors.As(err, &inputErr):
		arts, text, ferr := p.fallback(ctx, r, err)
		if ferr != nil {
			return nil, "", ferr
		}
		out.set(arts)
		out.Text = text
	default:
		return nil, "", newParseError(err)
	}

	if out.Text == "" {
		if originalHasText {
			out.Text = original
		} else {
			r.logger.Warn("No text was found in the document, the content will be empty")
			status = "empty"
		}
	}

	if out.ArchivePath, err = p.keepArchive(r); err != nil {
		return nil, "", newParseError(err)
	}
	return out, status, nil
}

// fallback runs recognition once more with full OCR forced, writing into
// separate files so the first run's output stays intact.
func (p *Parser) fallback(ctx context.Context, r *parseRun, cause error) (*ocrapi.Artifacts, string, error) {
	reason := "input_file"
	if errors.Is(cause, ErrNoUsableText) {
		reason = "no_text"
	}
	metrics.Fallbacks.WithLabelValues(reason).Inc()
	r.logger.Warn("Encountered an error while running OCR. Attempting force OCR to get the text.",
		slog.String("error", cause.Error()))

	archive, sidecar := r.path("archive-fallback.pdf"), r.path("sidecar-fallback.txt")
	arts, params, err := p.recognize(ctx, r, archive, sidecar, true)
	if err != nil {
		return nil, "", newParseError(err)
	}
	text, _ := p.extractor.ExtractText(ctx, params.SidecarPath, archive, r.settings.Mode)
	return arts, text, nil
}

// ParseFields runs recognition for its field extraction only. Failures are
// handled like in Parse: an unreadable input gets one forced retry into the
// fallback files and an encrypted input yields an empty outcome.
func (p *Parser) ParseFields(ctx context.Context, req Request) (*FieldOutcome, error) {
	started := time.Now()
	r, err := p.begin(ctx, req)
	if err != nil {
		metrics.Parses.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer p.finish(r)

	out, status, err := p.parseFields(ctx, r)
	if err != nil {
		metrics.ObserveOutcome(r.kind(), "failed", started)
		r.logger.Error("Field parse failed", slog.String("error", err.Error()))
		return nil, err
	}
	metrics.ObserveOutcome(r.kind(), status, started)
	return out, nil
}

func (p *Parser) parseFields(ctx context.Context, r *parseRun) (*FieldOutcome, string, error) {
	out := &FieldOutcome{}
	status := "fields"

	archive, sidecar := r.path("archive.pdf"), r.path("sidecar.txt")
	arts, _, err := p.recognize(ctx, r, archive, sidecar, false)

	var encrypted *recognition.EncryptedInputError
	var inputErr *recognition.InputFileError
	switch {
	case err == nil:
		out.set(arts)
		if r.settings.SkipArchiveFile != config.SkipArchiveAlways {
			r.retained = archive
		}
	case errors.As(err, &encrypted):
		r.logger.Warn("This file is encrypted, OCR is impossible. No fields extracted.")
		status = "encrypted"
	case errors.As(err, &inputErr):
		arts, _, ferr := p.fallback(ctx, r, err)
		if ferr != nil {
			return nil, "", ferr
		}
		out.set(arts)
	default:
		return nil, "", newParseError(err)
	}

	if out.ArchivePath, err = p.keepArchive(r); err != nil {
		return nil, "", newParseError(err)
	}
	return out, status, nil
}

// keepArchive moves the retained archive out of the working directory.
func (p *Parser) keepArchive(r *parseRun) (string, error) {
	if r.retained == "" {
		return "", nil
	}
	if err := os.MkdirAll(p.opts.ArchiveDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	dest := filepath.Join(p.opts.ArchiveDir, r.id+".pdf")
	if err := moveFile(r.retained, dest); err != nil {
		return "", fmt.Errorf("failed to keep archive: %w", err)
	}
	return dest, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) //nolint:gosec // G304: src is inside the working directory
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // G304: dst is inside the archive directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
