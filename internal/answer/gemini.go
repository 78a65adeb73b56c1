package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/metrics"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultBackoff = time.Second

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

// GeminiGenerator generates text with the Gemini API, retrying transient failures with backoff.
type GeminiGenerator struct {
	client     *genai.Client
	model      string
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// GeminiOption configures a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithGeminiLogger sets a logger for retries.
func WithGeminiLogger(l *zap.Logger) GeminiOption {
	return func(g *GeminiGenerator) { g.logger = l }
}

// WithGeminiMetrics counts generation calls by status.
func WithGeminiMetrics(m *metrics.Metrics) GeminiOption {
	return func(g *GeminiGenerator) { g.metrics = m }
}

// NewGeminiGenerator creates a generator for cfg.Model. cfg.APIKey is required.
func NewGeminiGenerator(ctx context.Context, cfg config.GenerationConfig, opts ...GeminiOption) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is not set", ErrGeneratorUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g := &GeminiGenerator{
		client:     client,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    defaultBackoff,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate sends prompt to the model and returns the response text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	gc := &genai.GenerateContentConfig{
		SafetySettings:  safetySettings,
		MaxOutputTokens: opts.MaxOutputTokens,
	}
	if opts.Temperature > 0 {
		gc.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.TopP > 0 {
		gc.TopP = genai.Ptr(opts.TopP)
	}
	if opts.TopK > 0 {
		gc.TopK = genai.Ptr(opts.TopK)
	}
	if opts.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}

	text, err := retry(ctx, g.maxRetries+1, g.backoff, func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), gc)
		if err != nil {
			return "", wrapAPIError(err)
		}
		return strings.TrimSpace(resp.Text()), nil
	}, func(attempt int, err error) {
		g.metrics.ObserveGeneration("retry")
		g.logger.Warn("generation failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		g.metrics.ObserveGeneration("error")
		return "", fmt.Errorf("generate content: %w", err)
	}
	g.metrics.ObserveGeneration("ok")
	return text, nil
}

// apiError exposes the status code of a genai.APIError to IsTransient.
type apiError struct {
	genai.APIError
}

func (e apiError) StatusCode() int { return e.Code }
func (e apiError) Unwrap() error   { return e.APIError }

func wrapAPIError(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return apiError{ae}
	}
	return err
}
