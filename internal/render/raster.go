package render

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultRasterDPI is used when a page has no OCR dimensions to scale to.
const DefaultRasterDPI = 200.0

// Rasterizer opens documents for page rendering.
type Rasterizer interface {
	Open(path string) (RasterDocument, error)
}

// RasterDocument renders pages of an open document. Pages are zero-based.
type RasterDocument interface {
	NumPage() int
	Image(page int, dpi float64) (image.Image, error)
	Close() error
}

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct{}

// Open implements Rasterizer.
func (FitzRasterizer) Open(path string) (RasterDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q for rendering: %w", path, err)
	}
	return fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d fitzDocument) Image(page int, dpi float64) (image.Image, error) {
	if dpi <= 0 {
		dpi = DefaultRasterDPI
	}
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d fitzDocument) Close() error { return d.doc.Close() }
