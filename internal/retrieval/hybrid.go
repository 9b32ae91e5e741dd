package retrieval

import (
	"context"
	"fmt"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// HybridPort merges a vector-similarity backend and a keyword/filter
// backend into one ranked result: keyword hits that the vector backend
// missed are added to the vector hits (deduplicated by ID, the vector
// copy wins), then the combined list is re-filtered, sorted by
// descending Similarity and truncated exactly as a single-backend Port
// would, so keyword hits rank by their normalized text-match score
// alongside the vector hits.
type HybridPort struct {
	Vector  Port
	Keyword Port
}

// NewHybridPort wires a vector backend and a keyword backend together.
// Either may be nil, in which case the other is used alone.
func NewHybridPort(vector, keyword Port) *HybridPort {
	return &HybridPort{Vector: vector, Keyword: keyword}
}

func (h *HybridPort) Retrieve(ctx context.Context, queryText string, filter Filter) (Result, error) {
	// Over-fetch from each backend before the final truncation so the
	// merge has enough candidates to re-rank from.
	wide := filter
	wide.MaxResults = 0

	var vectorDocs, keywordDocs []domain.RetrievedDocument
	var vectorErr, keywordErr error

	if h.Vector != nil {
		res, err := h.Vector.Retrieve(ctx, queryText, wide)
		vectorDocs, vectorErr = res.Documents, err
	}
	if h.Keyword != nil {
		res, err := h.Keyword.Retrieve(ctx, queryText, wide)
		keywordDocs, keywordErr = res.Documents, err
	}

	if vectorErr != nil && keywordErr != nil {
		return Result{}, fmt.Errorf("retrieval: %w: both backends failed: vector=%v keyword=%v", ErrUnavailable, vectorErr, keywordErr)
	}

	seen := make(map[string]struct{}, len(vectorDocs))
	merged := make([]domain.RetrievedDocument, 0, len(vectorDocs)+len(keywordDocs))
	for _, d := range vectorDocs {
		seen[d.ID] = struct{}{}
		merged = append(merged, d)
	}
	for _, d := range keywordDocs {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		merged = append(merged, d)
	}

	return applyFilterAndSort(merged, filter), nil
}

func (h *HybridPort) Index(ctx context.Context, doc domain.RetrievedDocument) error {
	return h.IndexBatch(ctx, []domain.RetrievedDocument{doc})
}

func (h *HybridPort) IndexBatch(ctx context.Context, docs []domain.RetrievedDocument) error {
	var errs []error
	if h.Vector != nil {
		if err := h.Vector.IndexBatch(ctx, docs); err != nil {
			errs = append(errs, fmt.Errorf("vector backend: %w", err))
		}
	}
	if h.Keyword != nil {
		if err := h.Keyword.IndexBatch(ctx, docs); err != nil {
			errs = append(errs, fmt.Errorf("keyword backend: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("retrieval: %w: index batch: %v", ErrUnavailable, errs)
	}
	return nil
}
