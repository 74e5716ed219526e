package extract

import (
	"regexp"
	"strings"
)

var (
	sameLineSpace       = regexp.MustCompile(`[^\S\r\n]+`)
	spaceAfterBreak     = regexp.MustCompile(`([\r\n]+)[^\S\r\n]+`)
	trailingSameLineEnd = regexp.MustCompile(`[^\S\r\n]+$`)
)

// PostProcessText normalizes recognized text: runs of same-line whitespace
// become one space, indentation after line breaks and trailing whitespace
// are dropped, and NUL bytes become spaces. An empty result means no text.
// NUL bytes are replaced before the whitespace passes.
func PostProcessText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\x00", " ")
	text = sameLineSpace.ReplaceAllString(text, " ")
	text = spaceAfterBreak.ReplaceAllString(text, "$1")
	text = trailingSameLineEnd.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
