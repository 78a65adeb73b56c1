// Package embedding provides text embedding via ONNX, OpenAI-compatible and Gemini APIs, with caching.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/grain/pkg/utils"
)

// ErrEmbedding wraps any failure of the underlying embedding model.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Identifier is implemented by embedders that can name the model they run.
type Identifier interface {
	Identity() string
}

// Identity names the model behind e, such as "openai:text-embedding-3-small".
// Embedders that do not implement Identifier are named by their Go type.
func Identity(e Embedder) string {
	if id, ok := e.(Identifier); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T", e)
}

// Encode embeds texts with e and returns one vector per text, in input order.
// When normalize is true every vector is scaled to unit L2 norm, so inner product equals cosine similarity.
// Returned vectors are fresh copies and safe to modify. Errors wrap ErrEmbedding.
func Encode(ctx context.Context, e Embedder, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	dims := e.Dimensions()
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrEmbedding, i, len(v), dims)
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		if normalize {
			utils.NormalizeL2(vec)
		}
		out[i] = vec
	}
	return out, nil
}

// embedEach calls embed for each text in order. Used by embedders without a native batch call.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
