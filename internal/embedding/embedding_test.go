package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reached it and can be told to fail.
type countingEmbedder struct {
	dims  int
	calls int
	texts int
	err   error
	raw   [][]float32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	if c.raw != nil {
		return c.raw, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, c.dims)
		v[i%c.dims] = 3
		out[i] = v
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dims }
func (c *countingEmbedder) Close() error    { return nil }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEncode_Normalizes(t *testing.T) {
	e := &countingEmbedder{dims: 4}
	vecs, err := Encode(context.Background(), e, []string{"a", "b"}, true)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}

	raw, err := Encode(context.Background(), e, []string{"a"}, false)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, norm(raw[0]), 1e-6)
}

func TestEncode_Empty(t *testing.T) {
	e := &countingEmbedder{dims: 4}
	vecs, err := Encode(context.Background(), e, nil, true)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, e.calls)
}

func TestEncode_WrapsErrors(t *testing.T) {
	upstream := errors.New("model offline")
	_, err := Encode(context.Background(), &countingEmbedder{dims: 4, err: upstream}, []string{"a"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, upstream)
}

func TestEncode_RejectsBadShapes(t *testing.T) {
	wrongCount := &countingEmbedder{dims: 2, raw: [][]float32{{1, 0}}}
	_, err := Encode(context.Background(), wrongCount, []string{"a", "b"}, true)
	assert.ErrorIs(t, err, ErrEmbedding)

	wrongDims := &countingEmbedder{dims: 2, raw: [][]float32{{1, 0, 0}}}
	_, err = Encode(context.Background(), wrongDims, []string{"a"}, true)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, _ := e.Embed(context.Background(), "library hours")
	b, _ := e.Embed(context.Background(), "library hours")
	c, _ := e.Embed(context.Background(), "exam schedule")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
	assert.Equal(t, 16, e.Dimensions())
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	e := NewCachedEmbedder(inner, 10, time.Minute)
	ctx := context.Background()

	_, err := e.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.texts)

	out, err := e.EmbedBatch(ctx, []string{"a", "c", "b"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 3, inner.texts, "only c should reach the wrapped embedder")
	assert.Equal(t, 2, inner.calls)
	for _, v := range out {
		assert.Len(t, v, 4)
	}
}

func TestCachedEmbedder_ReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	e := NewCachedEmbedder(inner, 10, time.Minute)
	ctx := context.Background()

	v1, _ := e.Embed(ctx, "x")
	v1[0] = 99
	v2, _ := e.Embed(ctx, "x")
	assert.NotEqual(t, float32(99), v2[0])
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	e := NewCachedEmbedder(inner, 2, time.Minute).(*CachedEmbedder)
	ctx := context.Background()
	_, _ = e.Embed(ctx, "a")
	_, _ = e.Embed(ctx, "b")
	_, _ = e.Embed(ctx, "c")
	assert.Equal(t, 2, e.Len())
	_, _ = e.Embed(ctx, "a")
	assert.Equal(t, 4, inner.calls, "a should have been evicted")
}

func TestNewCachedEmbedder_Disabled(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	assert.Same(t, Embedder(inner), NewCachedEmbedder(inner, 0, time.Minute))
	assert.Same(t, Embedder(inner), NewCachedEmbedder(inner, 10, 0))
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4, CacheTTL: time.Minute}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimensions())
	assert.IsType(t, &CachedEmbedder{}, e)

	// onnx with a missing model falls back to mock embeddings
	e, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "onnx", ModelPath: "/nonexistent/model.onnx", Dimensions: 8, MaxTokens: 16}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockEmbedder{}, e)

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "gemini", Dimensions: 8}, nil)
	assert.Error(t, err, "gemini requires an api key")

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "word2vec", Dimensions: 8}, nil)
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	openai, err := NewOpenAIEmbedder("key", "", "text-embedding-3-small", 8, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		e    Embedder
		want string
	}{
		{"mock", NewMockEmbedder(8), "mock"},
		{"cached mock", NewCachedEmbedder(NewMockEmbedder(8), 16, time.Minute), "mock"},
		{"openai", openai, "openai:text-embedding-3-small"},
		{"no identifier", &countingEmbedder{dims: 2}, "*embedding.countingEmbedder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identity(tt.e))
		})
	}
}
