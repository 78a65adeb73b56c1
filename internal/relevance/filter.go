// Package relevance decides which retrieved chunks are relevant enough to ground an answer.
package relevance

import (
	"fmt"
	"sync"

	"github.com/hyperjump/grain/internal/models"
)

// DefaultThreshold is the minimum cosine similarity a chunk needs to count as relevant.
const DefaultThreshold = 0.65

// Filter keeps candidates whose score clears a threshold. When none do, it falls back to the single
// best candidate so a non-empty candidate set never yields an empty context.
type Filter struct {
	mu        sync.RWMutex
	threshold float64
}

// NewFilter returns a filter with the given threshold.
func NewFilter(threshold float64) *Filter {
	return &Filter{threshold: threshold}
}

// Threshold returns the current threshold.
func (f *Filter) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold changes the threshold for subsequent calls. Values outside [-1, 1] are rejected.
func (f *Filter) SetThreshold(v float64) error {
	if v < -1 || v > 1 {
		return fmt.Errorf("threshold %v out of range [-1, 1]", v)
	}
	f.mu.Lock()
	f.threshold = v
	f.mu.Unlock()
	return nil
}

// Result is the outcome of filtering one candidate set.
type Result struct {
	Chunks []models.Chunk
	// Fallback is true when nothing cleared the threshold and only the best candidate was kept.
	Fallback bool
}

// Filter returns the candidates with score >= threshold, in input order, each carrying its score.
func (f *Filter) Filter(scored []models.ScoredChunk) []models.Chunk {
	return f.Apply(scored).Chunks
}

// Apply is Filter with the fallback flag reported.
func (f *Filter) Apply(scored []models.ScoredChunk) Result {
	if len(scored) == 0 {
		return Result{Chunks: []models.Chunk{}}
	}
	threshold := f.Threshold()
	kept := make([]models.Chunk, 0, len(scored))
	for _, s := range scored {
		if s.Score >= threshold {
			kept = append(kept, s.Chunk.WithRelevance(s.Score))
		}
	}
	if len(kept) > 0 {
		return Result{Chunks: kept}
	}
	best := 0
	for i := 1; i < len(scored); i++ {
		if scored[i].Score > scored[best].Score {
			best = i
		}
	}
	return Result{
		Chunks:   []models.Chunk{scored[best].Chunk.WithRelevance(scored[best].Score)},
		Fallback: true,
	}
}
