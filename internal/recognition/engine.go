// Package recognition runs a recognition engine over one document and
// produces the archive PDF and sidecar text for it.
package recognition

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
)

// Engine recognizes a document described by Params.
type Engine interface {
	Run(ctx context.Context, p Params) (*ocrapi.Artifacts, error)
}

// Params is one recognition call. The flags mirror the settings they were
// built from; engines ignore the ones they have no use for.
type Params struct {
	InputPath   string
	MimeType    string
	IsImage     bool
	FileName    string
	OutputPath  string
	SidecarPath string // empty when Pages limits the range

	Jobs                    int
	Language                string
	OutputType              string
	ColorConversionStrategy string

	ForceOCR bool
	SkipText bool
	RedoOCR  bool

	Clean      bool
	CleanFinal bool
	Deskew     bool

	RotatePages          bool
	RotatePagesThreshold float64

	Pages           string // page range such as "1-3"
	ImageDPI        int
	MaxImageMpixels *float64

	Extra map[string]any

	Session *ocrapi.Session
}

// PageLimit returns the highest page of the configured range, or 0 for all
// pages. An unparsable range also means all pages.
func (p Params) PageLimit() int {
	pages, err := pdf.ParsePageRange(p.Pages)
	if err != nil || len(pages) == 0 {
		return 0
	}
	return slices.Max(pages)
}

// EncryptedInputError reports an input PDF that cannot be read without a password.
type EncryptedInputError struct {
	Path string
}

func (e *EncryptedInputError) Error() string {
	return fmt.Sprintf("input file is encrypted: %s", e.Path)
}

// InputFileError reports an input that could not be read or decoded.
type InputFileError struct {
	Path string
	Err  error
}

func (e *InputFileError) Error() string {
	return fmt.Sprintf("invalid input file %s: %v", e.Path, e.Err)
}

func (e *InputFileError) Unwrap() error { return e.Err }

// ThreadLimitEnv is the variable bounding worker threads per page.
const ThreadLimitEnv = "OMP_THREAD_LIMIT"

var threadLimit struct {
	sync.Mutex
	depth int
	prev  string
	had   bool
}

// WithThreadLimit runs fn with one worker thread per page. The variable is
// process wide: concurrent callers share the setting and the previous value
// is restored when the last of them returns.
func WithThreadLimit(fn func() error) error {
	threadLimit.Lock()
	if threadLimit.depth == 0 {
		threadLimit.prev, threadLimit.had = os.LookupEnv(ThreadLimitEnv)
		_ = os.Setenv(ThreadLimitEnv, "1")
	}
	threadLimit.depth++
	threadLimit.Unlock()

	defer func() {
		threadLimit.Lock()
		defer threadLimit.Unlock()
		threadLimit.depth--
		if threadLimit.depth > 0 {
			return
		}
		if threadLimit.had {
			_ = os.Setenv(ThreadLimitEnv, threadLimit.prev)
		} else {
			_ = os.Unsetenv(ThreadLimitEnv)
		}
	}()

	return fn()
}
