// Package llmport abstracts text generation behind a single Generate
// operation with timeout, bounded retry, and a fallback-response
// policy. The default backend is a local inference service; an
// OpenAI-compatible remote backend and a schema-constrained analyzer
// are provided alongside.
package llmport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrModelMissing is a non-retryable misconfiguration: the configured
// model name does not exist at the inference endpoint (HTTP 404).
var ErrModelMissing = errors.New("llmport: model missing")

// ErrTransport wraps a transport-level failure (connection refused,
// I/O timeout) after retries have been exhausted and no fallback was
// configured.
var ErrTransport = errors.New("llmport: transport failure")

// Options carries backend-specific generation knobs (temperature,
// max tokens, etc.) passed through verbatim.
type Options map[string]any

// Response is a text completion plus provenance.
type Response struct {
	Text            string
	Model           string
	PromptEvalCount int
	EvalCount       int
	Elapsed         time.Duration
	// Degraded is true when this Response is the configured fallback
	// string returned after retries were exhausted, not a real
	// completion. The caller must still treat the turn as completed.
	Degraded bool
}

// Port is the capability the Dialog Engine depends on for both the
// analysis call and the tutor-response call. Implementations must be
// safe for concurrent use: it is process-wide, not per-session.
type Port interface {
	Generate(ctx context.Context, prompt, system string, options Options) (Response, error)
}

// Config controls the retry/fallback decorator.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	EnableFallback bool
	FallbackText   string
}

// DefaultConfig returns the standard policy: 30s timeout, 2 retries,
// fallback enabled.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		EnableFallback: true,
		FallbackText:   "I'm having trouble generating a response right now. Let's keep going with what you have so far.",
	}
}

// IsRetryable reports whether an error from a Port.Generate call
// warrants another attempt. Context cancellation/deadline and
// ErrModelMissing are never retried; anything else (transport-level
// failure) is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrModelMissing) {
		return false
	}
	return true
}

// RetryingPort decorates a Port with the timeout/retry/fallback
// policy. A cancelled context aborts the pending generation and is
// treated as a transport failure, so it counts toward the fallback
// path rather than propagating the raw cancellation to the caller.
type RetryingPort struct {
	inner Port
	cfg   Config
}

// NewRetryingPort wraps inner with cfg's policy.
func NewRetryingPort(inner Port, cfg Config) *RetryingPort {
	return &RetryingPort{inner: inner, cfg: cfg}
}

func (p *RetryingPort) Generate(ctx context.Context, prompt, system string, options Options) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var lastErr error
	attempts := p.cfg.MaxRetries + 1
attemptLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := p.inner.Generate(ctx, prompt, system, options)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, ErrModelMissing) {
			return Response{}, fmt.Errorf("llmport: %w", err)
		}

		lastErr = err
		if !IsRetryable(err) {
			break
		}
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attemptLoop
			case <-time.After(backoff(attempt)):
			}
		}
	}

	if p.cfg.EnableFallback {
		return Response{Text: p.cfg.FallbackText, Degraded: true}, nil
	}
	return Response{}, fmt.Errorf("llmport: %w: %w", ErrTransport, lastErr)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt+1) * 200 * time.Millisecond
	if d > 2*time.Second {
		return 2 * time.Second
	}
	return d
}
