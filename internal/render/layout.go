package render

import (
	"math"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// pointsPerPixel converts OCR pixel heights to font points (72 pt per 96 px).
const pointsPerPixel = 72.0 / 96.0

// TextMeasurer returns the drawn width of s at the given font size.
type TextMeasurer interface {
	StringWidth(s string, fontSize float64) float64
}

// MeasureFunc adapts a function to TextMeasurer.
type MeasureFunc func(s string, fontSize float64) float64

// StringWidth implements TextMeasurer.
func (f MeasureFunc) StringWidth(s string, fontSize float64) float64 { return f(s, fontSize) }

// Placement is one word positioned in page space. X and Y are the left end
// of the baseline with the origin at the bottom-left corner of the page.
type Placement struct {
	Text     string
	X        float64
	Y        float64
	FontSize float64
	Width    float64
}

// Center returns the centre of the box the word occupies, bottom-left origin.
func (p Placement) Center() (float64, float64) {
	return p.X + p.Width/2, p.Y + p.FontSize/2
}

// PageGeometry maps OCR pixel space onto a page.
type PageGeometry struct {
	Height float64 // page height in output units
	ScaleX float64 // OCR pixels per output unit, horizontally
	ScaleY float64 // OCR pixels per output unit, vertically
}

// LayoutPage positions every word of an OCR page. Each word is centred
// horizontally on its own box and vertically on its line; the font size
// follows the line height. Words whose font size would be below one point
// are dropped.
func LayoutPage(page ocrapi.Page, geo PageGeometry, m TextMeasurer) []Placement {
	sx, sy := geo.ScaleX, geo.ScaleY
	if sx <= 0 {
		sx = 1
	}
	if sy <= 0 {
		sy = 1
	}

	var out []Placement
	for _, block := range page.Blocks {
		for _, line := range block.Lines {
			y1 := line.BBox.Y1() / sy
			y2 := line.BBox.Y2() / sy
			fontSize := math.Floor((y2 - y1) * pointsPerPixel)
			if fontSize < 1 {
				continue
			}
			yc := y2 - (y2-y1)/2

			for _, word := range line.Words {
				if word.Value == "" {
					continue
				}
				x1 := word.BBox.X1() / sx
				x2 := word.BBox.X2() / sx
				xc := x2 - (x2-x1)/2
				w := m.StringWidth(word.Value, fontSize)

				out = append(out, Placement{
					Text:     word.Value,
					X:        xc - w/2,
					Y:        geo.Height - yc - fontSize/2,
					FontSize: fontSize,
					Width:    w,
				})
			}
		}
	}
	return out
}

// orientPage swaps the page size when the OCR image is portrait but the
// page is landscape.
func orientPage(ocrW, ocrH, pageW, pageH float64) (float64, float64) {
	if ocrW < ocrH && pageH < pageW {
		return pageH, pageW
	}
	return pageW, pageH
}
