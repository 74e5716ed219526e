package testutil

import (
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

func newFixturePDF() *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(56, 56, 56)
	doc.SetAutoPageBreak(true, 56)
	return doc
}

// WriteTextPDF writes an A4 PDF with one page per entry in pages carrying
// the entry as real, extractable text.
func WriteTextPDF(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()

	doc := newFixturePDF()
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		doc.MultiCell(0, 16, text, "", "L", false)
	}
	return writeFixturePDF(t, doc, filepath.Join(dir, name))
}

// WriteScannedPDF writes a PDF whose pages only contain drawn shapes, like
// a scan without a text layer.
func WriteScannedPDF(t *testing.T, dir, name string, pageCount int) string {
	t.Helper()

	doc := newFixturePDF()
	doc.SetFillColor(40, 40, 40)
	for i := 0; i < pageCount; i++ {
		doc.AddPage()
		for row := 0; row < 10; row++ {
			doc.Rect(72, 100+float64(row)*30, 300+float64(row%3)*40, 10, "F")
		}
	}
	return writeFixturePDF(t, doc, filepath.Join(dir, name))
}

// WriteEncryptedPDF writes a PDF protected with a user password.
func WriteEncryptedPDF(t *testing.T, dir, name, text string) string {
	t.Helper()

	doc := newFixturePDF()
	doc.SetProtection(fpdf.CnProtectPrint, "user-secret", "owner-secret")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.MultiCell(0, 16, text, "", "L", false)
	return writeFixturePDF(t, doc, filepath.Join(dir, name))
}

func writeFixturePDF(t *testing.T, doc *fpdf.Fpdf, path string) string {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, doc.OutputFileAndClose(path), "Failed to write PDF fixture")
	return path
}
