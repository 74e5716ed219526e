package testutil

import (
	"encoding/json"
	"strings"
)

// SampleOCRResult is a one-page OCR result with two lines of text.
const SampleOCRResult = `{
  "content": "Invoice 2024-001\nTotal amount due 1,250.00 EUR\nPayable within thirty days of receipt",
  "pages": [
    {
      "dimensions": [1100, 850],
      "blocks": [
        {
          "lines": [
            {
              "bbox": [[100, 100], [400, 140]],
              "words": [
                {"value": "Invoice", "bbox": [[100, 100], [240, 140]]},
                {"value": "2024-001", "bbox": [[260, 100], [400, 140]]}
              ]
            },
            {
              "bbox": [[100, 200], [600, 232]],
              "words": [
                {"value": "Total", "bbox": [[100, 200], [180, 232]]},
                {"value": "1,250.00", "bbox": [[200, 200], [340, 232]]},
                {"value": "EUR", "bbox": [[360, 200], [430, 232]]}
              ]
            }
          ]
        }
      ]
    }
  ]
}`

// SampleText is long enough to count as real document text.
const SampleText = "Quarterly report for the northern region. Revenue grew by twelve percent " +
	"compared to the previous quarter while operating costs stayed flat."

type fixtureWord struct {
	Value string        `json:"value"`
	BBox  [2][2]float64 `json:"bbox"`
}

type fixtureLine struct {
	BBox  [2][2]float64 `json:"bbox"`
	Words []fixtureWord `json:"words"`
}

type fixturePage struct {
	Dimensions []float64 `json:"dimensions"`
	Blocks     []struct {
		Lines []fixtureLine `json:"lines"`
	} `json:"blocks"`
}

// OCRResultJSON builds a result with one page of the given pixel size per
// entry in pages. Each page holds its text as a single line of words laid
// out left to right.
func OCRResultJSON(width, height float64, pages ...string) json.RawMessage {
	out := struct {
		Content string        `json:"content"`
		Pages   []fixturePage `json:"pages"`
	}{Content: strings.Join(pages, "\n\f")}

	for _, text := range pages {
		const top, bottom, charW = 50.0, 80.0, 12.0
		x := 40.0
		line := fixtureLine{}
		for _, w := range strings.Fields(text) {
			x2 := x + charW*float64(len([]rune(w)))
			line.Words = append(line.Words, fixtureWord{Value: w, BBox: [2][2]float64{{x, top}, {x2, bottom}}})
			x = x2 + charW
		}
		line.BBox = [2][2]float64{{40, top}, {x, bottom}}

		page := fixturePage{Dimensions: []float64{height, width}}
		page.Blocks = append(page.Blocks, struct {
			Lines []fixtureLine `json:"lines"`
		}{Lines: []fixtureLine{line}})
		out.Pages = append(out.Pages, page)
	}

	data, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}
	return data
}
