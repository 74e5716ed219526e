package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.v == nil {
		t.Error("Loader viper instance is nil")
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.OCR.Mode != string(ModeSkip) {
		t.Errorf("Expected default mode 'skip', got %s", cfg.OCR.Mode)
	}
	if cfg.API.Retry.Auth.Delay != 5*time.Second {
		t.Errorf("Expected default auth delay 5s, got %v", cfg.API.Retry.Auth.Delay)
	}
}

// TestLoadWithValidYAMLFile tests loading from a valid YAML file.
func TestLoadWithValidYAMLFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "ocrparse.yaml")

	yamlContent := `
log_level: debug
verbose: true
ocr:
  mode: force
  image_dpi: 300
  language: deu+eng
  user_args:
    continue_on_soft_render_error: true
api:
  endpoints:
    login: https://ocr.example.com/api/token/
    upload: https://ocr.example.com/api/upload/
  username: alice
  enable_field_extraction: true
  form_codes:
    - name: invoice
    - name: receipt
  retry:
    poll:
      max_retries: 8
      delay: 2s
parser:
  archive_dir: /var/lib/ocrparse/archive
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}

	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level '%s', got %s", debugLevel, cfg.LogLevel)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose to be true")
	}
	if cfg.OCR.Mode != string(ModeForce) {
		t.Errorf("Expected mode 'force', got %s", cfg.OCR.Mode)
	}
	if cfg.OCR.ImageDPI != 300 {
		t.Errorf("Expected image dpi 300, got %d", cfg.OCR.ImageDPI)
	}
	if cfg.OCR.UserArgs["continue_on_soft_render_error"] != true {
		t.Errorf("Expected user arg to be loaded, got %v", cfg.OCR.UserArgs)
	}
	if cfg.API.Endpoints.Login != "https://ocr.example.com/api/token/" {
		t.Errorf("Unexpected login endpoint %s", cfg.API.Endpoints.Login)
	}
	if len(cfg.API.FormCodes) != 2 || cfg.API.FormCodes[1].Name != "receipt" {
		t.Errorf("Unexpected form codes %+v", cfg.API.FormCodes)
	}
	if cfg.API.Retry.Poll.MaxRetries != 8 || cfg.API.Retry.Poll.Delay != 2*time.Second {
		t.Errorf("Unexpected poll policy %+v", cfg.API.Retry.Poll)
	}
	if cfg.API.Retry.Field.MaxRetries != 5 {
		t.Errorf("Expected unset field policy to keep its default, got %+v", cfg.API.Retry.Field)
	}
	if cfg.Parser.ArchiveDir != "/var/lib/ocrparse/archive" {
		t.Errorf("Unexpected archive dir %s", cfg.Parser.ArchiveDir)
	}
}

// TestLoadWithInvalidYAMLFile tests loading from an invalid YAML file.
func TestLoadWithInvalidYAMLFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "ocrparse.yaml")

	invalidYAML := `
log_level: debug
  invalid indentation
    more bad indentation
`
	if err := os.WriteFile(configFile, []byte(invalidYAML), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := newTestLoader().LoadWithFile(configFile); err == nil {
		t.Error("LoadWithFile() expected error for invalid YAML")
	}
}

// TestLoadWithNonExistentFile tests loading from a missing file.
func TestLoadWithNonExistentFile(t *testing.T) {
	_, err := newTestLoader().LoadWithFile("/non/existent/ocrparse.yaml")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("LoadWithFile() expected missing file error, got %v", err)
	}
}

// TestLoadWithValidationFailure tests that invalid values are rejected.
func TestLoadWithValidationFailure(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "ocrparse.yaml")
	if err := os.WriteFile(configFile, []byte("ocr:\n  mode: sometimes\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := newTestLoader().LoadWithFile(configFile)
	if err == nil || !strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("LoadWithFile() expected validation error, got %v", err)
	}

	cfg, err := newTestLoader().LoadWithFileWithoutValidation(configFile)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.OCR.Mode != "sometimes" {
		t.Errorf("Expected unvalidated mode, got %s", cfg.OCR.Mode)
	}
}

// TestEnvironmentVariableOverride tests OCRPARSE_ variables override defaults.
func TestEnvironmentVariableOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OCRPARSE_LOG_LEVEL", "debug")
	t.Setenv("OCRPARSE_OCR_MODE", "redo")
	t.Setenv("OCRPARSE_API_ENDPOINTS_UPLOAD", "https://ocr.example.com/upload/")
	t.Setenv("OCRPARSE_QUEUE_CONCURRENCY", "8")

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level 'debug' from env, got %s", cfg.LogLevel)
	}
	if cfg.OCR.Mode != string(ModeRedo) {
		t.Errorf("Expected mode 'redo' from env, got %s", cfg.OCR.Mode)
	}
	if cfg.API.Endpoints.Upload != "https://ocr.example.com/upload/" {
		t.Errorf("Expected upload endpoint from env, got %s", cfg.API.Endpoints.Upload)
	}
	if cfg.Queue.Concurrency != 8 {
		t.Errorf("Expected concurrency 8 from env, got %d", cfg.Queue.Concurrency)
	}
}

// TestLoadDotEnv tests variables from a .env file reach the configuration.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("OCRPARSE_API_USERNAME=bob\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("OCRPARSE_API_USERNAME") })

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.API.Username != "bob" {
		t.Errorf("Expected username from .env, got %q", cfg.API.Username)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv() should ignore missing files, got %v", err)
	}
}

// TestGetSetConfigValues tests getting and setting raw values.
func TestGetSetConfigValues(t *testing.T) {
	loader := newTestLoader()
	loader.Set("test_key", "test_value")

	if loader.Get("test_key") != "test_value" {
		t.Errorf("Get() = %v, want test_value", loader.Get("test_key"))
	}
	if loader.GetViper() == nil {
		t.Error("GetViper() returned nil")
	}
}

// TestGenerateDefaultConfigFile tests writing a default configuration.
func TestGenerateDefaultConfigFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "generated.yaml")

	if err := GenerateDefaultConfigFile(configFile); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("Generated config should load, got %v", err)
	}
	if cfg.OCR.Language != "eng" {
		t.Errorf("Expected default language in generated file, got %s", cfg.OCR.Language)
	}
}

// TestGetConfigSearchPaths tests the search path list.
func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("Expected current directory first, got %s", paths[0])
	}
	if !contains(paths, "/tmp/xdg/ocrparse") {
		t.Errorf("Expected XDG path in %v", paths)
	}
	if paths[len(paths)-1] != "/etc/ocrparse" {
		t.Errorf("Expected /etc/ocrparse last, got %s", paths[len(paths)-1])
	}
}
