package extract

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestPostProcessText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"only whitespace", " \t\n\r\n ", ""},
		{"collapses same-line runs", "a  \t b", "a b"},
		{"keeps line breaks", "a\n\nb", "a\n\nb"},
		{"drops indentation", "first\n    second\r\n\tthird", "first\nsecond\r\nthird"},
		{"drops trailing spaces", "text   ", "text"},
		{"trims outer whitespace", "\n\n  text \n", "text"},
		{"replaces NUL", "a\x00b", "a b"},
		{"NUL at the edges", "\x00a\x00", "a"},
		{"form feed is same-line space", "page1\fpage2", "page1 page2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PostProcessText(tt.input))
		})
	}
}

// genWhitespaceText builds strings from an alphabet rich in the characters
// the normalization touches.
func genWhitespaceText() gopter.Gen {
	alphabet := []string{"a", "Z", "é", " ", "  ", "\t", "\n", "\r", "\r\n", "\f", "\v", "\x00", " ", " "}
	return gen.SliceOf(gen.IntRange(0, len(alphabet)-1)).Map(func(idx []int) string {
		var b strings.Builder
		for _, i := range idx {
			b.WriteString(alphabet[i])
		}
		return b.String()
	})
}

func TestPostProcessText_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("f(f(x)) == f(x) on whitespace-heavy text", prop.ForAll(
		func(s string) bool {
			once := PostProcessText(s)
			return PostProcessText(once) == once
		},
		genWhitespaceText(),
	))

	properties.Property("f(f(x)) == f(x) on arbitrary text", prop.ForAll(
		func(s string) bool {
			once := PostProcessText(s)
			return PostProcessText(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("output never contains NUL", prop.ForAll(
		func(s string) bool {
			return !strings.ContainsRune(PostProcessText(s), 0)
		},
		genWhitespaceText(),
	))

	properties.TestingRun(t)
}
