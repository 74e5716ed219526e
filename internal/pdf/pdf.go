package pdf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageSize is the width and height of a page in PDF points.
type PageSize struct {
	Width  float64
	Height float64
}

// PageCount returns the number of pages of a PDF file.
func PageCount(filename string) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %q: %w", filename, err)
	}
	return n, nil
}

// PageCountOrOne returns the page count, falling back to 1 when the file
// cannot be read.
func PageCountOrOne(filename string) int {
	n, err := PageCount(filename)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// PageSizes returns the media box size of every page in order.
func PageSizes(filename string) ([]PageSize, error) {
	dims, err := api.PageDimsFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions of %q: %w", filename, err)
	}
	if len(dims) == 0 {
		return nil, errors.New("document has no pages")
	}
	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	return sizes, nil
}

// FirstPages returns the page range selecting the first n pages.
func FirstPages(n int) string {
	if n <= 0 {
		return ""
	}
	return "1-" + strconv.Itoa(n)
}

// ParsePageRange parses a page range string like "1-5" or "1,3,5".
func ParsePageRange(pageRange string) ([]int, error) {
	if pageRange == "" {
		return nil, nil // Empty means all pages
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start < 1 || start > end {
			return nil, fmt.Errorf("invalid page range %d-%d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
