//go:build cgo
// +build cgo

// Package embedding provides ONNX-based embedding (requires CGO and onnxruntime library).
package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hyperjump/grain/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a BERT-style sentence encoder (BGE by default) through ONNX Runtime.
// The sentence embedding is the [CLS] token of last_hidden_state, L2-normalized.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
// When vocabPath is readable a WordPiece tokenizer is used, otherwise SimpleTokenizer.
func NewONNXEmbedder(modelPath, vocabPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	var tokenizer Tokenizer = &SimpleTokenizer{}
	if vocabPath != "" {
		if wp, err := LoadWordPieceTokenizer(vocabPath); err == nil {
			tokenizer = wp
		}
	}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)

	shape := ort.NewShape(1, int64(maxTokens))
	var created []ort.ArbitraryTensor
	newInput := func(name string, data []int64) (*ort.Tensor[int64], error) {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroyTensors(created...)
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		created = append(created, t)
		return t, nil
	}
	inputIDsTensor, err := newInput("input_ids", inputIDs)
	if err != nil {
		return nil, err
	}
	attentionMaskTensor, err := newInput("attention_mask", attentionMask)
	if err != nil {
		return nil, err
	}
	tokenTypeIDsTensor, err := newInput("token_type_ids", tokenTypeIDs)
	if err != nil {
		return nil, err
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions)))
	if err != nil {
		destroyTensors(created...)
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		created,
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		destroyTensors(append(created, outputTensor)...)
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:             session,
		model:               filepath.Base(filepath.Dir(modelPath)),
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

func destroyTensors(ts ...ort.ArbitraryTensor) {
	for _, t := range ts {
		_ = t.Destroy()
	}
}

// Embed returns the normalized [CLS] embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)

	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// last_hidden_state is [1, seq, hidden]; the first hidden vector is [CLS].
	outputData := e.outputTensor.GetData()
	embedding := make([]float32, e.dimensions)
	copy(embedding, outputData[:e.dimensions])

	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Identity names the model by its directory, e.g. "onnx:bge-base-en-v1.5".
func (e *ONNXEmbedder) Identity() string {
	return "onnx:" + e.model
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	destroyTensors(e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor, e.outputTensor)
	return err
}
