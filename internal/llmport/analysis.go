package llmport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// analysisResultSchema is the JSON Schema for domain.AnalysisResult,
// reflected once and reused for every structured analysis call.
var analysisResultSchema = reflectSchema[domain.AnalysisResult]()

func reflectSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// StructuredAnalyzer performs the per-turn analysis call through a
// chat backend honoring strict JSON-schema response formatting, so the
// model can never return anything but a well-shaped AnalysisResult.
// The Dialog Engine falls back to parsing a plain Port.Generate
// response when no StructuredAnalyzer is configured (the default
// Ollama backend has no schema-enforcement mode).
type StructuredAnalyzer struct {
	client openai.Client
	model  string
}

// NewStructuredAnalyzer builds an analyzer against OpenAI or an
// OpenAI-compatible endpoint when cfg.BaseURL is set.
func NewStructuredAnalyzer(cfg OpenAIConfig) (*StructuredAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmport: analyzer API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &StructuredAnalyzer{client: openai.NewClient(opts...), model: model}, nil
}

// Analyze runs one schema-constrained analysis call and unmarshals the
// response into an AnalysisResult. A schema violation or transport
// error is returned to the caller, which treats it the same as a
// free-text parse failure: synthesize domain.ConservativeResult and
// continue listening.
func (a *StructuredAnalyzer) Analyze(ctx context.Context, systemPrompt, userPrompt string) (domain.AnalysisResult, error) {
	start := time.Now()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens:   openai.Int(1000),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "analysis_result",
					Description: openai.String("Judgment of one student reasoning turn"),
					Schema:      analysisResultSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("llmport: structured analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("llmport: structured analysis: empty choices")
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("llmport: structured analysis: unmarshal: %w", err)
	}

	slog.DebugContext(ctx, "structured analysis completed",
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return result, nil
}
