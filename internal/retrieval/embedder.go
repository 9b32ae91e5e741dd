package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedderConfig configures the default Embedder implementation.
type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIEmbedder is the default concrete Embedder consumed by
// QdrantPort: the same openai-go client wiring as the chat backends,
// scoped to the embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder builds an OpenAIEmbedder. An empty Model defaults
// to "text-embedding-3-small".
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("retrieval: embedder API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Embed satisfies the Embedder interface QdrantPort depends on.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w: embed: %w", ErrUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("retrieval: %w: embed: empty response", ErrUnavailable)
	}

	embedding := resp.Data[0].Embedding
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(v)
	}
	return out, nil
}
