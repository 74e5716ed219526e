package recognition

import (
	"image"
	"strings"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// wordBox is one recognized word with its position in the page structure.
type wordBox struct {
	Block, Par, Line int
	Word             string
	Box              image.Rectangle
}

// pageLayout converts word boxes of one page image into an OCR page and its
// plain text. Consecutive boxes sharing block, paragraph and line numbers
// form a line.
func pageLayout(boxes []wordBox, width, height int) (ocrapi.Page, string) {
	page := ocrapi.Page{
		Dimensions: []float64{float64(height), float64(width)},
		Blocks:     []ocrapi.Block{},
	}

	var text strings.Builder
	var line *ocrapi.Line
	var lineBox image.Rectangle
	prevBlock, prevPar, prevLine := -1, -1, -1

	flush := func() {
		if line == nil {
			return
		}
		line.BBox = toBBox(lineBox)
		blk := &page.Blocks[len(page.Blocks)-1]
		blk.Lines = append(blk.Lines, *line)
		line = nil
	}

	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		newBlock := b.Block != prevBlock
		newLine := newBlock || b.Par != prevPar || b.Line != prevLine

		if newLine {
			flush()
			if newBlock {
				page.Blocks = append(page.Blocks, ocrapi.Block{})
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
			} else {
				text.WriteString("\n")
			}
			line = &ocrapi.Line{}
			lineBox = b.Box
		} else {
			text.WriteByte(' ')
			lineBox = lineBox.Union(b.Box)
		}

		line.Words = append(line.Words, ocrapi.Word{Value: word, BBox: toBBox(b.Box)})
		text.WriteString(word)
		prevBlock, prevPar, prevLine = b.Block, b.Par, b.Line
	}
	flush()

	return page, text.String()
}

// joinPages assembles per-page layouts into one document result. Page texts
// are separated by a form feed.
func joinPages(pages []ocrapi.Page, texts []string) *ocrapi.Result {
	return &ocrapi.Result{
		Content: strings.Join(texts, "\n\f"),
		Pages:   pages,
	}
}

func toBBox(r image.Rectangle) ocrapi.BBox {
	return ocrapi.BBox{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	}
}
