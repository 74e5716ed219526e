package ocrapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StatusInProgress is the poll status_code the API reports while a job is running.
const StatusInProgress = 1

// Point is an (x, y) pair in source-image pixel units.
type Point [2]float64

// BBox is a box given as its top-left and bottom-right points.
type BBox [2]Point

// X1 returns the left edge.
func (b BBox) X1() float64 { return b[0][0] }

// Y1 returns the top edge.
func (b BBox) Y1() float64 { return b[0][1] }

// X2 returns the right edge.
func (b BBox) X2() float64 { return b[1][0] }

// Y2 returns the bottom edge.
func (b BBox) Y2() float64 { return b[1][1] }

// Word is a single recognized token with its own box.
type Word struct {
	Value string `json:"value"`
	BBox  BBox   `json:"bbox"`
}

// Line groups words sharing a baseline.
type Line struct {
	BBox  BBox   `json:"bbox"`
	Words []Word `json:"words"`
}

// Block groups lines.
type Block struct {
	Lines []Line `json:"lines"`
}

// Page is one OCR page. Dimensions is [height, width] in pixels; a page
// without dimensions or blocks carries no usable text.
type Page struct {
	Dimensions []float64 `json:"dimensions,omitempty"`
	Blocks     []Block   `json:"blocks,omitempty"`
}

// HasLayout reports whether the page has positive dimensions and blocks.
func (p Page) HasLayout() bool {
	return p.Height() > 0 && p.Width() > 0 && p.Blocks != nil
}

// Height returns the OCR image height, or 0 when unknown.
func (p Page) Height() float64 {
	if len(p.Dimensions) < 2 {
		return 0
	}
	return p.Dimensions[0]
}

// Width returns the OCR image width, or 0 when unknown.
func (p Page) Width() float64 {
	if len(p.Dimensions) < 2 {
		return 0
	}
	return p.Dimensions[1]
}

// Result is the structured OCR response for a whole document.
type Result struct {
	Content string `json:"content"`
	Pages   []Page `json:"pages"`
}

// Empty reports whether the result carries no data at all.
func (r *Result) Empty() bool {
	return r == nil || (r.Content == "" && len(r.Pages) == 0)
}

// TokenPair is the access/refresh pair issued by login and refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Credentials are the username/password used for login.
type Credentials struct {
	Username string
	Password string
}

// FormCode is a field-extraction template candidate.
type FormCode struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
}

// UploadedFile identifies an uploaded document on the remote side.
type UploadedFile struct {
	FileID string
}

// PollResponse is the body returned by the OCR-by-file-id endpoint.
type PollResponse struct {
	StatusCode int     `json:"status_code"`
	RequestID  FlexID  `json:"request_id"`
	Response   *Result `json:"response"`
}

// Artifacts is everything one pass against the remote service produced.
type Artifacts struct {
	Result    *Result
	Fields    json.RawMessage
	FormCode  string
	FileID    string
	RequestID string
}

// FlexID accepts identifiers the API sends as either JSON numbers or strings.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier is neither string nor number: %s", string(data))
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexID(n.String())
	return nil
}

// String returns the identifier as text.
func (id FlexID) String() string { return string(id) }
