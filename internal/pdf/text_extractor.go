package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/dslipak/pdf"
)

// LayoutSource extracts the text layer of a PDF keeping the page layout.
type LayoutSource interface {
	LayoutText(ctx context.Context, filename string) (string, error)
}

// Pdftotext runs poppler's pdftotext in layout mode.
type Pdftotext struct {
	Binary string
}

// LayoutText implements LayoutSource.
func (p Pdftotext) LayoutText(ctx context.Context, filename string) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-q", "-layout", "-enc", "UTF-8", filename, "-") //nolint:gosec // G204: binary comes from configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// VectorText reads the text layer row by row with a pure Go reader. It is
// used where pdftotext is not installed.
type VectorText struct{}

// LayoutText implements LayoutSource.
func (VectorText) LayoutText(_ context.Context, filename string) (text string, err error) {
	// The reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read PDF %q: %v", filename, r)
		}
	}()

	pdfReader, err := pdf.Open(filename)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}

	var allText strings.Builder
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		if pageNum > 1 {
			allText.WriteString("\f")
		}
		allText.WriteString(pageText(page))
	}
	return allText.String(), nil
}

// pageText prefers row grouping and falls back to plain text.
func pageText(page pdf.Page) string {
	var b strings.Builder
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		for _, row := range rows {
			for i, text := range row.Content {
				if i > 0 {
					b.WriteString(" ")
				}
				b.WriteString(text.S)
			}
			b.WriteString("\n")
		}
		return b.String()
	}

	fonts := make(map[string]*pdf.Font)
	plainText, _ := page.GetPlainText(fonts)
	return plainText
}

// NewLayoutSource returns pdftotext when the binary can be found and the
// pure Go reader otherwise.
func NewLayoutSource(binary string, logger *slog.Logger) LayoutSource {
	if logger == nil {
		logger = slog.Default()
	}
	if binary == "" {
		binary = "pdftotext"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		if !errors.Is(err, exec.ErrNotFound) {
			logger.Debug("pdftotext lookup failed", slog.String("error", err.Error()))
		}
		logger.Debug("pdftotext not available, using built-in text reader")
		return VectorText{}
	}
	return Pdftotext{Binary: path}
}
