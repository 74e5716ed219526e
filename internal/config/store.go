package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// Store is the configuration collaborator of a parse: it hands out a
// settings snapshot and accepts user args to persist, such as refreshed
// tokens.
type Store interface {
	Settings(ctx context.Context) (ParseSettings, error)
	Persist(ctx context.Context, userArgs map[string]any) error
}

// TokenPersister adapts a store so sessions write tokens back into user args.
func TokenPersister(s Store) ocrapi.TokenPersister {
	return ocrapi.PersisterFunc(func(ctx context.Context, tokens ocrapi.TokenPair) error {
		return s.Persist(ctx, TokenArgs(tokens))
	})
}

// FileStore serves settings from a loaded configuration and persists user
// args into the ocr.user_args section of the YAML file the configuration
// was read from. Without a file, persisted args are kept in memory.
type FileStore struct {
	mu   sync.Mutex
	cfg  Config
	path string
}

// NewFileStore creates a store over cfg. path is the configuration file to
// write back to and may be empty.
func NewFileStore(cfg Config, path string) *FileStore {
	cfg.OCR.UserArgs = maps.Clone(cfg.OCR.UserArgs)
	return &FileStore{cfg: cfg, path: path}
}

// Settings implements Store.
func (s *FileStore) Settings(_ context.Context) (ParseSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Settings(), nil
}

// Persist implements Store.
func (s *FileStore) Persist(_ context.Context, userArgs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.OCR.UserArgs == nil {
		s.cfg.OCR.UserArgs = make(map[string]any, len(userArgs))
	}
	maps.Copy(s.cfg.OCR.UserArgs, userArgs)

	if s.path == "" {
		return nil
	}
	return mergeUserArgsFile(s.path, userArgs)
}

// mergeUserArgsFile updates ocr.user_args in a YAML file, leaving every
// other key as written.
func mergeUserArgsFile(path string, userArgs map[string]any) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configuration file in use
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ocr, _ := doc["ocr"].(map[string]any)
	if ocr == nil {
		ocr = map[string]any{}
	}
	args, _ := ocr["user_args"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	maps.Copy(args, userArgs)
	ocr["user_args"] = args
	doc["ocr"] = ocr

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
