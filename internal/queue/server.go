package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
)

func redisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
}

// Server consumes parse tasks from redis.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
	cfg    config.QueueConfig
}

// NewServer creates a worker server for cfg that runs tasks with h.
func NewServer(cfg config.QueueConfig, h *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Name:  10,
			"default": 1,
		},
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("Task processing error",
				slog.String("type", task.Type()),
				slog.String("payload", string(task.Payload())),
				slog.String("error", err.Error()))
		}),
		Logger:          slogLogger{logger.With(slog.String("component", "asynq"))},
		ShutdownTimeout: 30 * time.Second,
	})
	return &Server{srv: srv, mux: h.Mux(), logger: logger, cfg: cfg}
}

// Run processes tasks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error {
	s.logger.Info("Starting queue worker",
		slog.String("redis", s.cfg.RedisAddr),
		slog.String("queue", s.cfg.Name),
		slog.Int("concurrency", s.cfg.Concurrency))
	if err := s.srv.Run(s.mux); err != nil {
		return fmt.Errorf("queue worker stopped: %w", err)
	}
	return nil
}

// Shutdown stops the worker, waiting for running tasks.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// retryDelay backs off 5s, 10s, 20s and so on, capped at one minute.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 4 {
		return time.Minute
	}
	return min(time.Duration(5*(1<<n))*time.Second, time.Minute)
}

// Client enqueues parse tasks.
type Client struct {
	client *asynq.Client
	cfg    config.QueueConfig
}

// NewClient creates an enqueue client for cfg.
func NewClient(cfg config.QueueConfig) *Client {
	return &Client{client: asynq.NewClient(redisOpt(cfg)), cfg: cfg}
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueParse submits a full parse of req.
func (c *Client) EnqueueParse(ctx context.Context, req parser.Request) (*asynq.TaskInfo, error) {
	task, err := NewParseTask(req, c.options()...)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task)
}

// EnqueueParseFields submits a field-only parse of req.
func (c *Client) EnqueueParseFields(ctx context.Context, req parser.Request) (*asynq.TaskInfo, error) {
	task, err := NewParseFieldsTask(req, c.options()...)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return info, nil
}

// options are the per-task settings taken from the queue configuration.
func (c *Client) options() []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(c.cfg.Name),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Retention(24 * time.Hour),
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(c.cfg.Timeout))
	}
	return opts
}

// slogLogger adapts slog to asynq.Logger.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(args ...any) { s.l.Debug(fmt.Sprint(args...)) }
func (s slogLogger) Info(args ...any)  { s.l.Info(fmt.Sprint(args...)) }
func (s slogLogger) Warn(args ...any)  { s.l.Warn(fmt.Sprint(args...)) }
func (s slogLogger) Error(args ...any) { s.l.Error(fmt.Sprint(args...)) }
func (s slogLogger) Fatal(args ...any) {
	s.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
