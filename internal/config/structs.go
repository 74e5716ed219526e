//nolint:lll
package config

import (
	"time"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// Config represents the complete configuration for the ocrparse application.
// It covers the parse command, the queue worker and the configuration stores
// and supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// OCR settings applied to every parse
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// Remote OCR API
	API APIConfig `mapstructure:"api" yaml:"api" json:"api"`

	// Parse orchestration
	Parser ParserConfig `mapstructure:"parser" yaml:"parser" json:"parser"`

	// Where settings and tokens are read from and persisted to
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Task queue (worker and enqueue commands)
	Queue QueueConfig `mapstructure:"queue" yaml:"queue" json:"queue"`

	// Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// OCRConfig contains the recognition settings of a parse.
type OCRConfig struct {
	Mode                    string         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SkipArchiveFile         string         `mapstructure:"skip_archive_file" yaml:"skip_archive_file" json:"skip_archive_file"`
	Clean                   string         `mapstructure:"clean" yaml:"clean" json:"clean"`
	OutputType              string         `mapstructure:"output_type" yaml:"output_type" json:"output_type"`
	ColorConversionStrategy string         `mapstructure:"color_conversion_strategy" yaml:"color_conversion_strategy" json:"color_conversion_strategy"`
	Language                string         `mapstructure:"language" yaml:"language" json:"language"`
	ImageDPI                int            `mapstructure:"image_dpi" yaml:"image_dpi" json:"image_dpi"`
	MaxImagePixels          int64          `mapstructure:"max_image_pixels" yaml:"max_image_pixels" json:"max_image_pixels"`
	Pages                   int            `mapstructure:"pages" yaml:"pages" json:"pages"`
	Deskew                  bool           `mapstructure:"deskew" yaml:"deskew" json:"deskew"`
	Rotate                  bool           `mapstructure:"rotate" yaml:"rotate" json:"rotate"`
	RotateThreshold         float64        `mapstructure:"rotate_threshold" yaml:"rotate_threshold" json:"rotate_threshold"`
	ThreadsPerWorker        int            `mapstructure:"threads_per_worker" yaml:"threads_per_worker" json:"threads_per_worker"`
	UserArgs                map[string]any `mapstructure:"user_args" yaml:"user_args" json:"user_args"`
}

// APIConfig contains the remote OCR service settings.
type APIConfig struct {
	Endpoints             ocrapi.Endpoints  `mapstructure:"endpoints" yaml:"endpoints" json:"endpoints"`
	Username              string            `mapstructure:"username" yaml:"username" json:"username"`
	Password              string            `mapstructure:"password" yaml:"password" json:"-"`
	AccessToken           string            `mapstructure:"access_token" yaml:"access_token" json:"-"`
	RefreshToken          string            `mapstructure:"refresh_token" yaml:"refresh_token" json:"-"`
	EnableFieldExtraction bool              `mapstructure:"enable_field_extraction" yaml:"enable_field_extraction" json:"enable_field_extraction"`
	FormCodes             []ocrapi.FormCode `mapstructure:"form_codes" yaml:"form_codes" json:"form_codes"`
	Retry                 ocrapi.Policies   `mapstructure:"retry" yaml:"retry" json:"retry"`
}

// ParserConfig contains parse orchestration settings.
type ParserConfig struct {
	ArchiveDir     string `mapstructure:"archive_dir" yaml:"archive_dir" json:"archive_dir"`
	WorkDir        string `mapstructure:"work_dir" yaml:"work_dir" json:"work_dir"`
	Engine         string `mapstructure:"engine" yaml:"engine" json:"engine"`
	PdftotextPath  string `mapstructure:"pdftotext_path" yaml:"pdftotext_path" json:"pdftotext_path"`
	MinTextLength  int    `mapstructure:"min_text_length" yaml:"min_text_length" json:"min_text_length"`
	KeepWorkingDir bool   `mapstructure:"keep_working_dir" yaml:"keep_working_dir" json:"keep_working_dir"`
}

// StoreConfig selects the configuration store.
type StoreConfig struct {
	Kind  string `mapstructure:"kind" yaml:"kind" json:"kind"`
	DSN   string `mapstructure:"dsn" yaml:"dsn" json:"-"`
	Table string `mapstructure:"table" yaml:"table" json:"table"`
}

// QueueConfig contains task queue settings.
type QueueConfig struct {
	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr" json:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db"`
	Name        string `mapstructure:"name" yaml:"name" json:"name"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry" yaml:"max_retry" json:"max_retry"`
	// Timeout bounds one task; 0 leaves the asynq default.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// MetricsConfig contains the metrics listener settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}
