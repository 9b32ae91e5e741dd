package llmport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// OllamaConfig configures the default backend: a local HTTP inference
// service accepting {model, prompt, system, options, stream} and
// returning {response, model, done, prompt_eval_count, eval_count}.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

type ollamaRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Options Options `json:"options,omitempty"`
	Stream  bool    `json:"stream"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// OllamaPort is the default LLM Port backend.
type OllamaPort struct {
	httpClient *http.Client
	cfg        OllamaConfig
}

// NewOllamaPort constructs a backend targeting cfg.BaseURL.
func NewOllamaPort(cfg OllamaConfig) *OllamaPort {
	return &OllamaPort{
		httpClient: &http.Client{},
		cfg:        cfg,
	}
}

func (p *OllamaPort) Generate(ctx context.Context, prompt, system string, options Options) (Response, error) {
	start := time.Now()

	body, err := json.Marshal(ollamaRequest{
		Model:   p.cfg.Model,
		Prompt:  prompt,
		System:  system,
		Options: options,
		Stream:  false,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llmport: marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llmport: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("llmport: ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Response{}, fmt.Errorf("%w: model %q", ErrModelMissing, p.cfg.Model)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, fmt.Errorf("llmport: ollama returned %d: %s", resp.StatusCode, payload)
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("llmport: decode ollama response: %w", err)
	}

	elapsed := time.Since(start)
	slog.DebugContext(ctx, "llmport generation completed",
		"model", parsed.Model, "elapsed_ms", elapsed.Milliseconds(),
		"prompt_eval_count", parsed.PromptEvalCount, "eval_count", parsed.EvalCount)

	return Response{
		Text:            parsed.Response,
		Model:           parsed.Model,
		PromptEvalCount: parsed.PromptEvalCount,
		EvalCount:       parsed.EvalCount,
		Elapsed:         elapsed,
	}, nil
}
