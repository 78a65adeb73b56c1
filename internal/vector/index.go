// Package vector provides exact inner-product vector indexes.
package vector

import "context"

// VectorIndex stores one vector per chunk and answers k-nearest-neighbor queries by inner product.
// Vectors are addressed by insertion position; the index is append-only so positions never shift.
type VectorIndex interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single search hit. Position is the insertion index of the matched vector.
type VectorResult struct {
	Position int
	Score    float64 // inner product; cosine similarity for unit vectors
}
