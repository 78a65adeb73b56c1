// Package answer turns retrieved chunks into a grounded answer: session memory, small talk,
// the usable-context check, prompt assembly and calls to a text generator.
package answer

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/hyperjump/grain/internal/config"
)

// ErrGeneratorUnavailable is returned when no generator is configured.
var ErrGeneratorUnavailable = errors.New("answer generation is not configured")

// Options are the sampling parameters of one generation call.
type Options struct {
	System          string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// OptionsFromConfig returns the configured sampling parameters.
func OptionsFromConfig(cfg config.GenerationConfig) Options {
	return Options{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// StatusError is an upstream error carrying an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// IsTransient reports whether err is worth retrying: rate limiting, server-side failures and
// network errors. Cancellation and deadline errors are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se StatusError
	if errors.As(err, &se) {
		code := se.StatusCode()
		return code == 429 || code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retry calls fn until it succeeds, fails with a non-transient error, or attempts run out.
// The wait doubles after each failure, starting at backoff.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() (string, error), onRetry func(attempt int, err error)) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			t := time.NewTimer(backoff << (attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return "", err
		}
	}
	return "", lastErr
}
