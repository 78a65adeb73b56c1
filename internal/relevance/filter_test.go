package relevance

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/grain/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(scores ...float64) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(scores))
	for i, s := range scores {
		out[i] = models.ScoredChunk{
			Chunk: models.Chunk{
				Text:     fmt.Sprintf("chunk-%d", i),
				Metadata: models.ChunkMetadata{Source: "handbook.pdf", ChunkID: i, Type: models.SourceTypePDF},
			},
			Score: s,
		}
	}
	return out
}

func TestFilter_KeepsAboveThreshold(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	res := f.Apply(scored(0.9, 0.5, 0.1))
	require.Len(t, res.Chunks, 1)
	assert.False(t, res.Fallback)
	assert.Equal(t, "chunk-0", res.Chunks[0].Text)
	assert.InDelta(t, 0.9, res.Chunks[0].Relevance(), 1e-9)
}

func TestFilter_FallbackToBest(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	res := f.Apply(scored(0.40, 0.30))
	require.Len(t, res.Chunks, 1)
	assert.True(t, res.Fallback)
	assert.Equal(t, "chunk-0", res.Chunks[0].Text)
	assert.InDelta(t, 0.40, res.Chunks[0].Relevance(), 1e-9)

	res = f.Apply(scored(0.1, 0.3, 0.2))
	assert.Equal(t, "chunk-1", res.Chunks[0].Text)
}

func TestFilter_FallbackTieTakesFirst(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	got := f.Filter(scored(0.2, 0.5, 0.5))
	require.Len(t, got, 1)
	assert.Equal(t, "chunk-1", got[0].Text)
}

func TestFilter_ThresholdIsInclusive(t *testing.T) {
	f := NewFilter(0.65)
	got := f.Filter(scored(0.65, 0.6499))
	require.Len(t, got, 1)
	assert.Equal(t, "chunk-0", got[0].Text)
}

func TestFilter_PreservesOrder(t *testing.T) {
	f := NewFilter(0.5)
	got := f.Filter(scored(0.95, 0.7, 0.4, 0.6))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"chunk-0", "chunk-1", "chunk-3"}, []string{got[0].Text, got[1].Text, got[2].Text})
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Relevance(), 0.5)
	}
}

func TestFilter_EmptyInEmptyOut(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	got := f.Filter(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, f.Apply([]models.ScoredChunk{}).Fallback)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	in := scored(0.9)
	_ = f.Filter(in)
	assert.Nil(t, in[0].Chunk.Metadata.RelevanceScore)
}

func TestFilter_SetThreshold(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	require.NoError(t, f.SetThreshold(0.3))
	assert.InDelta(t, 0.3, f.Threshold(), 1e-9)
	assert.Len(t, f.Filter(scored(0.9, 0.5, 0.1)), 2)

	assert.Error(t, f.SetThreshold(1.5))
	assert.InDelta(t, 0.3, f.Threshold(), 1e-9)
}

func TestFilter_ConcurrentUse(t *testing.T) {
	f := NewFilter(DefaultThreshold)
	in := scored(0.9, 0.5, 0.1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = f.SetThreshold(0.4)
				return
			}
			assert.NotEmpty(t, f.Filter(in))
		}(i)
	}
	wg.Wait()
}

func BenchmarkFilter_Apply(b *testing.B) {
	f := NewFilter(DefaultThreshold)
	scored := make([]models.ScoredChunk, 100)
	for i := range scored {
		scored[i] = models.ScoredChunk{Chunk: models.Chunk{Text: "t"}, Score: 1 - float64(i)/100}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Apply(scored)
	}
}
