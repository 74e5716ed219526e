package extract

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
)

// SkippedPageMarker appears in sidecar files when some pages were not
// recognized because they already carried text. Such a sidecar only
// covers part of the document.
const SkippedPageMarker = "[OCR skipped on page"

// Extractor decides which text source of a recognized document is
// authoritative and normalizes it.
type Extractor struct {
	layout pdf.LayoutSource
	logger *slog.Logger
}

// New creates an extractor reading PDF text through layout.
func New(layout pdf.LayoutSource, logger *slog.Logger) *Extractor {
	if layout == nil {
		layout = pdf.VectorText{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{layout: layout, logger: logger}
}

// ExtractText returns the text of a document and whether there was any.
//
// A complete sidecar file wins unless mode is redo, where the sidecar only
// holds the newly recognized text. Otherwise the PDF's text layer is read;
// any failure there yields no text and leaves the decision to the caller.
func (e *Extractor) ExtractText(ctx context.Context, sidecarPath, pdfPath string, mode config.Mode) (string, bool) {
	if sidecarPath != "" && mode != config.ModeRedo && isRegularFile(sidecarPath) {
		text, err := readFileUTF8(sidecarPath)
		if err != nil {
			e.logger.Warn("Failed to read sidecar file", slog.String("path", sidecarPath), slog.String("error", err.Error()))
		} else if !strings.Contains(text, SkippedPageMarker) {
			e.logger.Debug("Using text from sidecar file")
			text = PostProcessText(text)
			return text, text != ""
		} else {
			e.logger.Debug("Incomplete sidecar file: discarding")
		}
	}

	if !isRegularFile(pdfPath) {
		return "", false
	}

	raw, err := e.layout.LayoutText(ctx, pdfPath)
	if err != nil {
		e.logger.Warn("Error while getting text from PDF document",
			slog.String("path", pdfPath), slog.String("error", err.Error()))
		return "", false
	}
	text := PostProcessText(decodeUTF8(raw))
	return text, text != ""
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// readFileUTF8 reads a file as UTF-8, replacing invalid sequences.
func readFileUTF8(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a parse artifact
	if err != nil {
		return "", err
	}
	return decodeUTF8(string(data)), nil
}

func decodeUTF8(s string) string {
	out, err := unicode.UTF8.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	return out
}
