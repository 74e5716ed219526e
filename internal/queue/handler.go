package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/MeKo-Tech/ocrparse/internal/metrics"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
)

// DocumentParser is the part of the parser the worker needs.
type DocumentParser interface {
	Parse(ctx context.Context, req parser.Request) (*parser.Outcome, error)
	ParseFields(ctx context.Context, req parser.Request) (*parser.FieldOutcome, error)
}

// Result is what a finished task stores as its asynq result.
type Result struct {
	Text        string `json:"text,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	parser.Extraction
}

// Handler runs parse tasks.
type Handler struct {
	parser DocumentParser
	logger *slog.Logger
}

// NewHandler creates a handler running tasks through p.
func NewHandler(p DocumentParser, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{parser: p, logger: logger}
}

// Mux returns a serve mux routing both task types to h.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeParse, h.HandleParse)
	mux.HandleFunc(TypeParseFields, h.HandleParseFields)
	return mux
}

// HandleParse runs a full parse.
func (h *Handler) HandleParse(ctx context.Context, task *asynq.Task) error {
	return h.handle(ctx, task, func(req parser.Request) (*Result, error) {
		out, err := h.parser.Parse(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Text: out.Text, ArchivePath: out.ArchivePath, Extraction: out.Extraction}, nil
	})
}

// HandleParseFields runs a field-only parse.
func (h *Handler) HandleParseFields(ctx context.Context, task *asynq.Task) error {
	return h.handle(ctx, task, func(req parser.Request) (*Result, error) {
		out, err := h.parser.ParseFields(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{ArchivePath: out.ArchivePath, Extraction: out.Extraction}, nil
	})
}

func (h *Handler) handle(ctx context.Context, task *asynq.Task, run func(parser.Request) (*Result, error)) error {
	started := time.Now()
	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	logger := h.logger.With(slog.String("task", task.Type()))
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}

	req, err := decodeRequest(task)
	if err != nil {
		logger.Error("Rejecting task", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	logger = logger.With(slog.String("document", req.DocumentPath))

	res, err := run(req)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			// The same input fails the same way on every attempt.
			logger.Error("Parse failed", slog.String("class", pe.Class), slog.String("error", pe.Message))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		logger.Warn("Parse failed, task will be retried", slog.String("error", err.Error()))
		return err
	}

	if err := writeResult(task, res); err != nil {
		return err
	}
	logger.Info("Task completed",
		slog.Duration("duration", time.Since(started)),
		slog.Int("text_length", len(res.Text)),
		slog.String("form_code", res.FormCode))
	return nil
}

func writeResult(task *asynq.Task, res *Result) error {
	w := task.ResultWriter()
	if w == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to store task result: %w", err)
	}
	return nil
}
