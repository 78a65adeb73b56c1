package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/grain/internal/config"
	"go.uber.org/zap"
)

// NewEmbedder builds the embedder selected by cfg.Provider and wraps it with the LRU cache.
// An ONNX embedder that cannot start (no CGO, missing model) falls back to MockEmbedder with a warning,
// so snapshot commands still run; remote providers fail hard.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Embedder
	switch cfg.Provider {
	case "onnx", "":
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using mock embeddings",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			e = NewMockEmbedder(cfg.Dimensions)
		} else {
			e = onnx
		}
	case "openai":
		oe, err := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		e = oe
	case "gemini":
		ge, err := NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = ge
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, openai, gemini, mock)", cfg.Provider)
	}
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", e.Dimensions()))
	return NewCachedEmbedder(e, cfg.CacheSize, cfg.CacheTTL), nil
}
