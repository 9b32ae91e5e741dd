package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// TypesenseConfig configures the keyword/filter index used alongside
// Qdrant's similarity ranking.
type TypesenseConfig struct {
	Nodes          []string
	APIKey         string
	CollectionName string
}

// TypesensePort is a keyword/filter retrieval backend. It never ranks
// by embedding similarity; Similarity on returned documents is the
// normalized Typesense text-match score, useful only for the hybrid
// merge in HybridPort, not as an independent similarity signal.
type TypesensePort struct {
	client *typesense.Client
	cfg    TypesenseConfig
}

// NewTypesensePort dials Typesense and ensures the collection schema
// exists.
func NewTypesensePort(ctx context.Context, cfg TypesenseConfig) (*TypesensePort, error) {
	client := typesense.NewClient(
		typesense.WithNodes(cfg.Nodes),
		typesense.WithAPIKey(cfg.APIKey),
	)

	p := &TypesensePort{client: client, cfg: cfg}
	if err := p.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *TypesensePort) ensureCollection(ctx context.Context) error {
	_, err := p.client.Collection(p.cfg.CollectionName).Retrieve(ctx)
	if err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: p.cfg.CollectionName,
		Fields: []api.Field{
			{Name: "content", Type: "string"},
			{Name: "category", Type: "string", Facet: pointer.True()},
			{Name: "question_id", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "knowledge_nodes", Type: "string[]", Facet: pointer.True(), Optional: pointer.True()},
		},
	}
	if _, err := p.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("retrieval: %w: create typesense collection: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *TypesensePort) Retrieve(ctx context.Context, queryText string, filter Filter) (Result, error) {
	perPage := filter.MaxResults * 4
	if perPage <= 0 {
		perPage = 40
	}

	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(queryText),
		QueryBy: pointer.String("content"),
		PerPage: pointer.Int(perPage),
	}
	if filterBy := typesenseFilterClause(filter); filterBy != "" {
		searchParams.FilterBy = pointer.String(filterBy)
	}

	result, err := p.client.Collection(p.cfg.CollectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: %w: typesense search: %w", ErrUnavailable, err)
	}

	var docs []domain.RetrievedDocument
	if result.Hits != nil {
		maxScore := 1.0
		for _, hit := range *result.Hits {
			if hit.TextMatch != nil && float64(*hit.TextMatch) > maxScore {
				maxScore = float64(*hit.TextMatch)
			}
		}
		for _, hit := range *result.Hits {
			doc, ok := documentFromTypesenseHit(hit, maxScore)
			if ok {
				docs = append(docs, doc)
			}
		}
	}
	return applyFilterAndSort(docs, filter), nil
}

func (p *TypesensePort) Index(ctx context.Context, doc domain.RetrievedDocument) error {
	return p.IndexBatch(ctx, []domain.RetrievedDocument{doc})
}

func (p *TypesensePort) IndexBatch(ctx context.Context, docs []domain.RetrievedDocument) error {
	for _, d := range docs {
		body := map[string]any{
			"id":              d.ID,
			"content":         d.Content,
			"category":        string(d.Category),
			"question_id":     d.Metadata["question_id"],
			"knowledge_nodes": strings.Split(d.Metadata["knowledge_nodes"], ","),
		}
		if _, err := p.client.Collection(p.cfg.CollectionName).Documents().Upsert(ctx, body, nil); err != nil {
			return fmt.Errorf("retrieval: %w: typesense upsert %s: %w", ErrUnavailable, d.ID, err)
		}
	}
	return nil
}

func typesenseFilterClause(filter Filter) string {
	var parts []string
	if filter.Category != "" {
		parts = append(parts, fmt.Sprintf("category:=%s", string(filter.Category)))
	}
	if filter.QuestionID != "" {
		parts = append(parts, fmt.Sprintf("question_id:=%s", filter.QuestionID))
	}
	if len(filter.KnowledgeNodes) > 0 {
		parts = append(parts, fmt.Sprintf("knowledge_nodes:=[%s]", strings.Join(filter.KnowledgeNodes, ",")))
	}
	return strings.Join(parts, " && ")
}

func documentFromTypesenseHit(hit api.SearchResultHit, maxScore float64) (domain.RetrievedDocument, bool) {
	if hit.Document == nil {
		return domain.RetrievedDocument{}, false
	}
	doc := *hit.Document

	id, _ := doc["id"].(string)
	content, _ := doc["content"].(string)
	category, _ := doc["category"].(string)
	questionID, _ := doc["question_id"].(string)

	score := 0.0
	if hit.TextMatch != nil {
		score = float64(*hit.TextMatch) / maxScore
	}

	meta := map[string]string{"question_id": questionID}
	if nodes, ok := doc["knowledge_nodes"].([]any); ok {
		strs := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if s, ok := n.(string); ok {
				strs = append(strs, s)
			}
		}
		meta["knowledge_nodes"] = strings.Join(strs, ",")
	}

	return domain.RetrievedDocument{
		ID:         id,
		Content:    content,
		Category:   domain.DocumentCategory(category),
		Similarity: score,
		Metadata:   meta,
	}, true
}
