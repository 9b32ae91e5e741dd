package llmport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the alternate, remote-hosted LLM Port
// backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIPort adapts openai-go's chat completions API to the Port
// contract.
type OpenAIPort struct {
	client openai.Client
	model  string
}

// NewOpenAIPort constructs a backend targeting OpenAI (or an
// OpenAI-compatible endpoint when BaseURL is set).
func NewOpenAIPort(cfg OpenAIConfig) *OpenAIPort {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	return &OpenAIPort{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAIPort) Generate(ctx context.Context, prompt, system string, options Options) (Response, error) {
	start := time.Now()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = openai.Float(temp)
	}
	if maxTokens, ok := options["max_tokens"].(int); ok {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Response{}, fmt.Errorf("%w: model %q", ErrModelMissing, p.model)
		}
		return Response{}, fmt.Errorf("llmport: openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("llmport: openai completion: empty choices")
	}

	elapsed := time.Since(start)
	usage := completion.Usage
	slog.DebugContext(ctx, "llmport openai generation completed",
		"model", completion.Model, "elapsed_ms", elapsed.Milliseconds(),
		"prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)

	return Response{
		Text:            completion.Choices[0].Message.Content,
		Model:           completion.Model,
		PromptEvalCount: int(usage.PromptTokens),
		EvalCount:       int(usage.CompletionTokens),
		Elapsed:         elapsed,
	}, nil
}

