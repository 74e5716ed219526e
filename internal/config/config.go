package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// Store kinds.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Engine names.
const (
	EngineRemote    = "remote"
	EngineTesseract = "tesseract"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		OCR: OCRConfig{
			Mode:                    string(ModeSkip),
			SkipArchiveFile:         string(SkipArchiveNever),
			Clean:                   string(CleanClean),
			OutputType:              "pdfa",
			ColorConversionStrategy: "RGB",
			Language:                "eng",
			ImageDPI:                0,
			MaxImagePixels:          -1,
			Pages:                   0,
			Deskew:                  true,
			Rotate:                  true,
			RotateThreshold:         12.0,
			ThreadsPerWorker:        1,
		},
		API: APIConfig{
			EnableFieldExtraction: false,
			Retry:                 ocrapi.DefaultPolicies(),
		},
		Parser: ParserConfig{
			ArchiveDir:    "archive",
			Engine:        EngineRemote,
			PdftotextPath: "pdftotext",
			MinTextLength: 50,
		},
		Store: StoreConfig{
			Kind:  StoreFile,
			Table: "paperless_applicationconfiguration",
		},
		Queue: QueueConfig{
			RedisAddr:   "localhost:6379",
			Name:        "ocrparse",
			Concurrency: 2,
			MaxRetry:    3,
			Timeout:     10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := validateEnum("ocr.mode", c.OCR.Mode, validModes); err != nil {
		return err
	}
	if err := validateEnum("ocr.skip_archive_file", c.OCR.SkipArchiveFile, validSkipArchive); err != nil {
		return err
	}
	if err := validateEnum("ocr.clean", c.OCR.Clean, validClean); err != nil {
		return err
	}
	if err := validateEnum("ocr.output_type", c.OCR.OutputType, validOutputTypes); err != nil {
		return err
	}

	if c.OCR.ImageDPI < 0 {
		return fmt.Errorf("invalid image dpi: %d (must not be negative)", c.OCR.ImageDPI)
	}
	if c.OCR.Pages < 0 {
		return fmt.Errorf("invalid page limit: %d (must not be negative)", c.OCR.Pages)
	}
	if c.OCR.ThreadsPerWorker <= 0 {
		return fmt.Errorf("invalid threads per worker: %d (must be positive)", c.OCR.ThreadsPerWorker)
	}
	if c.Parser.MinTextLength < 0 {
		return fmt.Errorf("invalid min text length: %d (must not be negative)", c.Parser.MinTextLength)
	}

	if err := validateEnum("parser.engine", c.Parser.Engine, []string{EngineRemote, EngineTesseract}); err != nil {
		return err
	}
	if c.Parser.Engine == EngineRemote {
		if err := c.API.validate(); err != nil {
			return err
		}
	}

	if err := validateEnum("store.kind", c.Store.Kind, []string{StoreFile, StorePostgres}); err != nil {
		return err
	}
	if c.Store.Kind == StorePostgres && c.Store.DSN == "" {
		return errors.New("store.dsn is required for the postgres store")
	}

	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("invalid queue concurrency: %d (must be positive)", c.Queue.Concurrency)
	}
	if c.Queue.MaxRetry < 0 || c.Queue.Timeout < 0 {
		return errors.New("queue max_retry and timeout must not be negative")
	}

	return nil
}

// validate checks the endpoints that are set are absolute URLs. Missing
// endpoints are allowed: the client then fails at call time and the
// parse falls back to whatever text it already has.
func (a APIConfig) validate() error {
	for name, raw := range map[string]string{
		"login":          a.Endpoints.Login,
		"refresh":        a.Endpoints.Refresh,
		"upload":         a.Endpoints.Upload,
		"ocr_by_file_id": a.Endpoints.OCRByFileID,
		"field":          a.Endpoints.Field,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api.endpoints.%s: %q (must be an absolute URL)", name, raw)
		}
	}
	for _, p := range []ocrapi.RetryPolicy{a.Retry.Auth, a.Retry.Poll, a.Retry.Field} {
		if p.MaxRetries < 0 || p.Delay < 0 || p.Timeout < 0 {
			return errors.New("invalid api.retry: values must not be negative")
		}
	}
	return nil
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func validateEnum(key, value string, valid []string) error {
	if !contains(valid, value) {
		return fmt.Errorf("invalid %s: %s (must be one of: %s)", key, value, strings.Join(valid, ", "))
	}
	return nil
}
