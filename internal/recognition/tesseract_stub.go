//go:build !tesseract

package recognition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/render"
)

// ErrTesseractUnavailable is returned when the binary was built without the
// tesseract tag.
var ErrTesseractUnavailable = errors.New("tesseract engine not available: rebuild with -tags tesseract")

// TesseractEngine is unavailable in this build.
type TesseractEngine struct{}

// NewTesseractEngine always fails in this build.
func NewTesseractEngine(*render.Renderer, render.Rasterizer, *slog.Logger) (*TesseractEngine, error) {
	return nil, ErrTesseractUnavailable
}

// Run implements Engine.
func (*TesseractEngine) Run(context.Context, Params) (*ocrapi.Artifacts, error) {
	return nil, ErrTesseractUnavailable
}
