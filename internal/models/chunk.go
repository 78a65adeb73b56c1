// Package models defines core data structures for chunks, queries, and answers.
package models

import (
	"fmt"
	"strings"
)

// SourceType identifies where a chunk's text came from.
type SourceType string

const (
	// SourceTypePDF marks text extracted from a PDF document.
	SourceTypePDF SourceType = "pdf"
	// SourceTypeWeb marks text scraped from a web page.
	SourceTypeWeb SourceType = "web"
)

// ParseSourceType converts s (case-insensitive) to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown source type: %q (supported: pdf, web)", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	return t == SourceTypePDF || t == SourceTypeWeb
}

// ChunkMetadata is the provenance of a chunk.
// RelevanceScore is attached per query and is never persisted.
type ChunkMetadata struct {
	Source         string     `json:"source"`
	ChunkID        int        `json:"chunk_id"`
	Type           SourceType `json:"type"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
}

// Chunk is a bounded span of source text plus its provenance, the unit of retrieval.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// WithRelevance returns a copy of c with its relevance score set to score.
// The receiver is left untouched so stored chunks stay immutable.
func (c Chunk) WithRelevance(score float64) Chunk {
	s := score
	c.Metadata.RelevanceScore = &s
	return c
}

// WithoutRelevance returns a copy of c with no relevance score attached.
func (c Chunk) WithoutRelevance() Chunk {
	c.Metadata.RelevanceScore = nil
	return c
}

// Relevance returns the attached relevance score, or 0 when none is set.
func (c Chunk) Relevance() float64 {
	if c.Metadata.RelevanceScore == nil {
		return 0
	}
	return *c.Metadata.RelevanceScore
}

// ScoredChunk is a raw search candidate: a chunk and its cosine similarity to the query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// FilterByType returns the chunks of type t, keeping their order.
func FilterByType(chunks []Chunk, t SourceType) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Metadata.Type == t {
			out = append(out, c)
		}
	}
	return out
}
