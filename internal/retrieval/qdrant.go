package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// Embedder turns text into a dense vector. The qdrant-backed Port owns
// this step entirely; callers of Port never see embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantConfig configures the default vector-similarity backend.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorSize     uint64
}

// QdrantPort is the default Retrieval Port backend: vector similarity
// search over a single collection holding the typed corpus, with
// category/question/knowledge-node filters pushed down as Qdrant
// payload filters where possible and refined client-side for the
// knowledge-node any-of match.
type QdrantPort struct {
	client   *qdrant.Client
	embedder Embedder
	cfg      QdrantConfig
}

// NewQdrantPort dials the collection and ensures it exists.
func NewQdrantPort(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantPort, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: dial qdrant: %w", err)
	}

	p := &QdrantPort{client: client, embedder: embedder, cfg: cfg}
	if err := p.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *QdrantPort) ensureCollection(ctx context.Context) error {
	exists, err := p.client.CollectionExists(ctx, p.cfg.CollectionName)
	if err != nil {
		return fmt.Errorf("retrieval: %w: check collection: %w", ErrUnavailable, err)
	}
	if exists {
		return nil
	}
	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: p.cfg.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     p.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("retrieval: %w: create collection: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *QdrantPort) Retrieve(ctx context.Context, queryText string, filter Filter) (Result, error) {
	vector, err := p.embedder.Embed(ctx, queryText)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: %w: embed query: %w", ErrUnavailable, err)
	}

	limit := uint64(filter.MaxResults)
	if limit == 0 {
		limit = 20
	}

	points, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: p.cfg.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantPayloadFilter(filter),
		Limit:          qdrant.PtrOf(limit * 4), // over-fetch; knowledge-node any-of is refined client-side
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: %w: query: %w", ErrUnavailable, err)
	}

	docs := make([]domain.RetrievedDocument, 0, len(points))
	for _, sp := range points {
		docs = append(docs, documentFromScoredPoint(sp))
	}
	return applyFilterAndSort(docs, filter), nil
}

func (p *QdrantPort) Index(ctx context.Context, doc domain.RetrievedDocument) error {
	return p.IndexBatch(ctx, []domain.RetrievedDocument{doc})
}

func (p *QdrantPort) IndexBatch(ctx context.Context, docs []domain.RetrievedDocument) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		// The port owns id assignment for caller-constructed documents
		// just as it owns embedding generation: a blank id gets a
		// fresh UUID rather than failing NewIDUUID on "".
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		vector, err := p.embedder.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("retrieval: %w: embed document %s: %w", ErrUnavailable, d.ID, err)
		}
		payload := map[string]any{
			"content":  d.Content,
			"category": string(d.Category),
		}
		for k, v := range d.Metadata {
			payload[k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(d.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.cfg.CollectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("retrieval: %w: upsert: %w", ErrUnavailable, err)
	}
	return nil
}

func qdrantPayloadFilter(filter Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if filter.Category != "" {
		must = append(must, qdrant.NewMatch("category", string(filter.Category)))
	}
	if filter.QuestionID != "" {
		must = append(must, qdrant.NewMatch("question_id", filter.QuestionID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func documentFromScoredPoint(sp *qdrant.ScoredPoint) domain.RetrievedDocument {
	payload := sp.GetPayload()
	meta := make(map[string]string, len(payload))
	var content, category string
	for k, v := range payload {
		s := v.GetStringValue()
		switch k {
		case "content":
			content = s
		case "category":
			category = s
		default:
			meta[k] = s
		}
	}
	return domain.RetrievedDocument{
		ID:         sp.GetId().GetUuid(),
		Content:    content,
		Category:   domain.DocumentCategory(category),
		Similarity: float64(sp.GetScore()),
		Metadata:   meta,
	}
}
