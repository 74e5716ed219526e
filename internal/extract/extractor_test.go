package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/pdf"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// fakeLayout returns fixed text and counts calls.
type fakeLayout struct {
	text  string
	err   error
	calls int
}

func (f *fakeLayout) LayoutText(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func writeSidecar(t *testing.T, dir, content string) string {
	t.Helper()
	path, err := testutil.WriteFile(dir, "sidecar.txt", content)
	require.NoError(t, err)
	return path
}

func TestExtractText(t *testing.T) {
	const pdfText = "  text   from\n   the PDF  "

	tests := []struct {
		name        string
		sidecar     *string
		mode        config.Mode
		layoutErr   error
		noPDF       bool
		expected    string
		ok          bool
		layoutCalls int
	}{
		{
			name:     "complete sidecar wins",
			sidecar:  ptr("sidecar  text\n  line two"),
			mode:     config.ModeSkip,
			expected: "sidecar text\nline two",
			ok:       true,
		},
		{
			name:        "sidecar with skipped pages is discarded",
			sidecar:     ptr("page one\n[OCR skipped on page(s) 2-3]"),
			mode:        config.ModeSkip,
			expected:    "text from\nthe PDF",
			ok:          true,
			layoutCalls: 1,
		},
		{
			name:        "redo ignores sidecar",
			sidecar:     ptr("only new text"),
			mode:        config.ModeRedo,
			expected:    "text from\nthe PDF",
			ok:          true,
			layoutCalls: 1,
		},
		{
			name:     "empty sidecar means no text without fallthrough",
			sidecar:  ptr("   \n  "),
			mode:     config.ModeForce,
			expected: "",
			ok:       false,
		},
		{
			name:        "no sidecar reads PDF",
			mode:        config.ModeForce,
			expected:    "text from\nthe PDF",
			ok:          true,
			layoutCalls: 1,
		},
		{
			name:        "layout failure is no text",
			mode:        config.ModeForce,
			layoutErr:   errors.New("encrypted"),
			expected:    "",
			ok:          false,
			layoutCalls: 1,
		},
		{
			name:     "missing PDF is no text",
			mode:     config.ModeForce,
			noPDF:    true,
			expected: "",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			layout := &fakeLayout{text: pdfText, err: tt.layoutErr}
			e := New(layout, nil)

			sidecar := filepath.Join(dir, "absent.txt")
			if tt.sidecar != nil {
				sidecar = writeSidecar(t, dir, *tt.sidecar)
			}
			pdfPath := filepath.Join(dir, "missing.pdf")
			if !tt.noPDF {
				pdfPath = testutil.WriteScannedPDF(t, dir, "archive.pdf", 1)
			}

			text, ok := e.ExtractText(context.Background(), sidecar, pdfPath, tt.mode)
			assert.Equal(t, tt.expected, text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.layoutCalls, layout.calls)
		})
	}
}

func TestExtractText_DirectoryIsNotAPDF(t *testing.T) {
	layout := &fakeLayout{text: "never"}
	text, ok := New(layout, nil).ExtractText(context.Background(), "", t.TempDir(), config.ModeForce)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Zero(t, layout.calls)
}

func TestExtractText_InvalidUTF8Sidecar(t *testing.T) {
	dir := t.TempDir()
	sidecar := writeSidecar(t, dir, "caf\xe9 au lait")

	text, ok := New(&fakeLayout{}, nil).ExtractText(context.Background(), sidecar, "", config.ModeSkip)
	require.True(t, ok)
	assert.Equal(t, "caf\uFFFD au lait", text)
}

func TestExtractText_RealPDF(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteTextPDF(t, dir, "text.pdf", testutil.SampleText)

	text, ok := New(pdf.VectorText{}, nil).ExtractText(context.Background(), "", path, config.ModeSkip)
	require.True(t, ok)
	assert.Contains(t, text, "Quarterly")
	assert.Greater(t, len([]rune(text)), 50)
}

func TestExtractText_SidecarWinsOverPDF(t *testing.T) {
	dir := t.TempDir()
	pdfPath := testutil.WriteScannedPDF(t, dir, "archive.pdf", 1)
	layout := &fakeLayout{text: "text from the PDF layer"}
	e := New(layout, nil)

	properties := gopter.NewProperties(nil)

	properties.Property("sidecar without marker is returned normalized", prop.ForAll(
		func(content string) bool {
			if strings.Contains(content, SkippedPageMarker) {
				return true
			}
			sidecar := writeSidecar(t, dir, content)
			text, ok := e.ExtractText(context.Background(), sidecar, pdfPath, config.ModeForce)
			want := PostProcessText(content)
			return text == want && ok == (want != "") && layout.calls == 0
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func ptr(s string) *string { return &s }
