// Package indexer turns PDF directories and web pages into corpus chunks.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/grain/internal/models"
)

// DefaultSeparators are tried in order; the empty separator splits between characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text recursively on separators into chunks of at most chunkSize characters,
// with up to chunkOverlap characters carried over between neighbours.
// A single piece longer than chunkSize is only emitted as-is once no finer separator is left.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in characters).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
}

// Split splits text into trimmed, non-empty pieces.
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

// Chunk splits text into Chunks attributed to source, numbered from 0.
func (c *Chunker) Chunk(source string, t models.SourceType, text string) []models.Chunk {
	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			Text: p,
			Metadata: models.ChunkMetadata{
				Source:  source,
				ChunkID: i,
				Type:    t,
			},
		}
	}
	return chunks
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, s := range splitKeepingSeparator(text, separator) {
		if runeLen(s) < c.chunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			out = append(out, s)
		} else {
			out = append(out, c.split(s, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs consecutive pieces into chunks, keeping a tail of the previous chunk
// no longer than the overlap as the head of the next.
func (c *Chunker) merge(pieces []string) []string {
	var out, current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > c.chunkOverlap || (total+n > c.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeepingSeparator splits text on sep, attaching each separator to the start of the piece
// that follows it. Empty pieces are dropped. An empty sep splits into characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
