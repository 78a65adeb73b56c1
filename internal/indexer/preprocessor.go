package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted document text before splitting: control characters other than
// newline and tab are dropped, trailing spaces are trimmed from each line and the whole is trimmed.
// Line structure is kept because the chunker splits on it.
func Preprocess(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
