package render

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// halfEm approximates a font where every glyph is half the font size wide.
var halfEm = MeasureFunc(func(s string, fontSize float64) float64 {
	return 0.5 * fontSize * float64(len([]rune(s)))
})

func box(x1, y1, x2, y2 float64) ocrapi.BBox {
	return ocrapi.BBox{{x1, y1}, {x2, y2}}
}

func singleLinePage(lineBox ocrapi.BBox, words ...ocrapi.Word) ocrapi.Page {
	return ocrapi.Page{
		Dimensions: []float64{1100, 850},
		Blocks:     []ocrapi.Block{{Lines: []ocrapi.Line{{BBox: lineBox, Words: words}}}},
	}
}

func TestLayoutPage(t *testing.T) {
	tests := []struct {
		name     string
		page     ocrapi.Page
		geo      PageGeometry
		expected []Placement
	}{
		{
			name: "unscaled word",
			page: singleLinePage(box(100, 100, 300, 140),
				ocrapi.Word{Value: "Invoice", BBox: box(100, 100, 240, 140)}),
			geo: PageGeometry{Height: 1100, ScaleX: 1, ScaleY: 1},
			// font size floor(40 * 0.75) = 30, width 0.5*30*7 = 105
			expected: []Placement{{Text: "Invoice", X: 170 - 52.5, Y: 1100 - 120 - 15, FontSize: 30, Width: 105}},
		},
		{
			name: "scaled to page units",
			page: singleLinePage(box(200, 200, 600, 280),
				ocrapi.Word{Value: "ab", BBox: box(200, 200, 400, 280)}),
			geo: PageGeometry{Height: 500, ScaleX: 2, ScaleY: 2},
			// line 100..140 in page units, font floor(40*0.75) = 30, word centre x 150
			expected: []Placement{{Text: "ab", X: 150 - 15, Y: 500 - 120 - 15, FontSize: 30, Width: 30}},
		},
		{
			name: "line below one point is dropped",
			page: singleLinePage(box(0, 0, 100, 1),
				ocrapi.Word{Value: "tiny", BBox: box(0, 0, 100, 1)}),
			geo:      PageGeometry{Height: 100, ScaleX: 1, ScaleY: 1},
			expected: nil,
		},
		{
			name: "empty words are skipped",
			page: singleLinePage(box(0, 0, 100, 20),
				ocrapi.Word{Value: "", BBox: box(0, 0, 50, 20)}),
			geo:      PageGeometry{Height: 100, ScaleX: 1, ScaleY: 1},
			expected: nil,
		},
		{
			name: "zero scale treated as one",
			page: singleLinePage(box(0, 0, 40, 20),
				ocrapi.Word{Value: "x", BBox: box(0, 0, 40, 20)}),
			geo:      PageGeometry{Height: 100},
			expected: []Placement{{Text: "x", X: 20 - 3.75, Y: 100 - 10 - 7.5, FontSize: 15, Width: 7.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LayoutPage(tt.page, tt.geo, halfEm)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.Equal(t, tt.expected[i].Text, got[i].Text)
				assert.InDelta(t, tt.expected[i].X, got[i].X, 1e-9)
				assert.InDelta(t, tt.expected[i].Y, got[i].Y, 1e-9)
				assert.InDelta(t, tt.expected[i].FontSize, got[i].FontSize, 1e-9)
				assert.InDelta(t, tt.expected[i].Width, got[i].Width, 1e-9)
			}
		})
	}
}

func TestLayoutPage_FontSizeFollowsLine(t *testing.T) {
	page := singleLinePage(box(0, 100, 800, 132),
		ocrapi.Word{Value: "short", BBox: box(0, 110, 100, 120)},
		ocrapi.Word{Value: "tall", BBox: box(200, 100, 300, 132)},
	)

	got := LayoutPage(page, PageGeometry{Height: 1100, ScaleX: 1, ScaleY: 1}, halfEm)
	require.Len(t, got, 2)
	assert.InDelta(t, 24.0, got[0].FontSize, 1e-9)
	assert.InDelta(t, got[0].FontSize, got[1].FontSize, 1e-9, "words of one line share the font size")
	assert.InDelta(t, got[0].Y, got[1].Y, 1e-9, "words of one line share the baseline")
}

func TestLayoutPage_CentresWordOnBox(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("word centre maps to (cx, H - cy) in page space", prop.ForAll(
		func(x1, y1, w, h, scale float64, n int) bool {
			const pageH = 3000.0
			text := strings.Repeat("W", n)
			wordBox := box(x1, y1, x1+w, y1+h)
			page := singleLinePage(wordBox, ocrapi.Word{Value: text, BBox: wordBox})

			got := LayoutPage(page, PageGeometry{Height: pageH, ScaleX: scale, ScaleY: scale}, halfEm)
			if len(got) != 1 {
				return false
			}

			cx, cy := got[0].Center()
			wantX := (x1 + w/2) / scale
			wantY := pageH - (y1+h/2)/scale
			return math.Abs(cx-wantX) < 1e-6 && math.Abs(cy-wantY) < 1e-6
		},
		gen.Float64Range(0, 2000),
		gen.Float64Range(0, 3000),
		gen.Float64Range(1, 500),
		gen.Float64Range(12, 200),
		gen.Float64Range(1, 4),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestOrientPage(t *testing.T) {
	tests := []struct {
		name                 string
		ocrW, ocrH           float64
		pageW, pageH         float64
		expectedW, expectedH float64
	}{
		{"portrait on portrait", 850, 1100, 595, 842, 595, 842},
		{"portrait on landscape", 850, 1100, 842, 595, 595, 842},
		{"landscape on landscape", 1100, 850, 842, 595, 842, 595},
		{"landscape on portrait", 1100, 850, 595, 842, 595, 842},
		{"square", 1000, 1000, 842, 595, 842, 595},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := orientPage(tt.ocrW, tt.ocrH, tt.pageW, tt.pageH)
			assert.InDelta(t, tt.expectedW, w, 1e-9)
			assert.InDelta(t, tt.expectedH, h, 1e-9)
		})
	}
}
