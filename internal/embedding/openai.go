package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint (OpenAI, Ollama, SiliconFlow, ...).
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIEmbedder creates an embedder for model. An empty baseURL uses the OpenAI API.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions, batchSize int) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, errors.New("openai embedder: model is required")
	}
	if dimensions <= 0 {
		return nil, errors.New("openai embedder: dimensions must be positive")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		req := openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create embeddings failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedding response has %d items for %d inputs", len(resp.Data), end-start)
		}
		batch := make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(batch) {
				return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
			}
			batch[data.Index] = data.Embedding
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Dimensions returns the vector dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Identity returns "openai:" followed by the model name.
func (e *OpenAIEmbedder) Identity() string {
	return "openai:" + e.model
}

// Close is a no-op; the HTTP client needs no cleanup.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
