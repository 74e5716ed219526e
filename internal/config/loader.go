package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ocrparse"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "OCRPARSE"

	// DotEnvFile is read into the environment before configuration is loaded.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on its own viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and sets defaults.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation loads configuration like Load but skips validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and env vars only
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// LoadDotEnv reads KEY=value pairs from the given files into the process
// environment. Missing files are ignored and variables that are already
// set are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error reading %s: %w", f, err)
		}
	}
	return nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// Replace dots and dashes with underscores in env var names
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// OCR defaults
	l.v.SetDefault("ocr.mode", defaults.OCR.Mode)
	l.v.SetDefault("ocr.skip_archive_file", defaults.OCR.SkipArchiveFile)
	l.v.SetDefault("ocr.clean", defaults.OCR.Clean)
	l.v.SetDefault("ocr.output_type", defaults.OCR.OutputType)
	l.v.SetDefault("ocr.color_conversion_strategy", defaults.OCR.ColorConversionStrategy)
	l.v.SetDefault("ocr.language", defaults.OCR.Language)
	l.v.SetDefault("ocr.image_dpi", defaults.OCR.ImageDPI)
	l.v.SetDefault("ocr.max_image_pixels", defaults.OCR.MaxImagePixels)
	l.v.SetDefault("ocr.pages", defaults.OCR.Pages)
	l.v.SetDefault("ocr.deskew", defaults.OCR.Deskew)
	l.v.SetDefault("ocr.rotate", defaults.OCR.Rotate)
	l.v.SetDefault("ocr.rotate_threshold", defaults.OCR.RotateThreshold)
	l.v.SetDefault("ocr.threads_per_worker", defaults.OCR.ThreadsPerWorker)

	// API defaults; endpoint keys are registered so env vars can set them
	l.v.SetDefault("api.endpoints.login", "")
	l.v.SetDefault("api.endpoints.refresh", "")
	l.v.SetDefault("api.endpoints.upload", "")
	l.v.SetDefault("api.endpoints.ocr_by_file_id", "")
	l.v.SetDefault("api.endpoints.field", "")
	l.v.SetDefault("api.username", "")
	l.v.SetDefault("api.password", "")
	l.v.SetDefault("api.access_token", "")
	l.v.SetDefault("api.refresh_token", "")
	l.v.SetDefault("api.enable_field_extraction", defaults.API.EnableFieldExtraction)
	l.v.SetDefault("api.retry.auth.max_retries", defaults.API.Retry.Auth.MaxRetries)
	l.v.SetDefault("api.retry.auth.delay", defaults.API.Retry.Auth.Delay)
	l.v.SetDefault("api.retry.auth.timeout", defaults.API.Retry.Auth.Timeout)
	l.v.SetDefault("api.retry.poll.max_retries", defaults.API.Retry.Poll.MaxRetries)
	l.v.SetDefault("api.retry.poll.delay", defaults.API.Retry.Poll.Delay)
	l.v.SetDefault("api.retry.poll.timeout", defaults.API.Retry.Poll.Timeout)
	l.v.SetDefault("api.retry.field.max_retries", defaults.API.Retry.Field.MaxRetries)
	l.v.SetDefault("api.retry.field.delay", defaults.API.Retry.Field.Delay)
	l.v.SetDefault("api.retry.field.timeout", defaults.API.Retry.Field.Timeout)
	l.v.SetDefault("api.retry.poll_delay_per_page", defaults.API.Retry.PollDelayPerPage)
	l.v.SetDefault("api.retry.upload_timeout", defaults.API.Retry.UploadTimeout)

	// Parser defaults
	l.v.SetDefault("parser.archive_dir", defaults.Parser.ArchiveDir)
	l.v.SetDefault("parser.work_dir", defaults.Parser.WorkDir)
	l.v.SetDefault("parser.engine", defaults.Parser.Engine)
	l.v.SetDefault("parser.pdftotext_path", defaults.Parser.PdftotextPath)
	l.v.SetDefault("parser.min_text_length", defaults.Parser.MinTextLength)
	l.v.SetDefault("parser.keep_working_dir", defaults.Parser.KeepWorkingDir)

	// Store defaults
	l.v.SetDefault("store.kind", defaults.Store.Kind)
	l.v.SetDefault("store.dsn", defaults.Store.DSN)
	l.v.SetDefault("store.table", defaults.Store.Table)

	// Queue defaults
	l.v.SetDefault("queue.redis_addr", defaults.Queue.RedisAddr)
	l.v.SetDefault("queue.redis_db", defaults.Queue.RedisDB)
	l.v.SetDefault("queue.name", defaults.Queue.Name)
	l.v.SetDefault("queue.concurrency", defaults.Queue.Concurrency)
	l.v.SetDefault("queue.max_retry", defaults.Queue.MaxRetry)
	l.v.SetDefault("queue.timeout", defaults.Queue.Timeout)

	// Metrics defaults
	l.v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile generates a default configuration file.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, filepath.Join("/etc", ConfigFileName))

	return paths
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo() {
	fmt.Printf("Configuration file used: %s\n", l.GetConfigFileUsed())
	fmt.Printf("Configuration search paths: %v\n", GetConfigSearchPaths())
	fmt.Printf("Environment prefix: %s\n", EnvPrefix)
}
