// Package retrieval abstracts similarity retrieval over a typed
// corpus (questions, solutions, misconceptions, concepts, hints). The
// Port owns embedding generation; callers never construct embeddings
// themselves.
package retrieval

import (
	"context"
	"errors"
	"sort"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// ErrUnavailable is returned when the embedding step or the backing
// index is unreachable. The dialog engine treats this as an empty
// result set rather than aborting the turn.
var ErrUnavailable = errors.New("retrieval: backend unavailable")

// Filter narrows a Retrieve call. Category, QuestionID and
// KnowledgeNodes are all optional; zero values mean "no filter on
// this dimension".
type Filter struct {
	Category       domain.DocumentCategory
	QuestionID     string
	KnowledgeNodes []string
	ExcludeIDs     []string
	MaxResults     int
	MinSimilarity  float64
}

// Result carries both the (possibly truncated) document slice and the
// total number of documents that matched before truncation.
type Result struct {
	Documents []domain.RetrievedDocument
	Total     int
}

// Port is the capability the Dialog Engine depends on. Implementations
// must be safe for concurrent use: it is process-wide, not per-session.
type Port interface {
	// Retrieve returns documents ranked by descending similarity to
	// queryText, filtered by Filter, truncated to Filter.MaxResults,
	// excluding any document below Filter.MinSimilarity.
	Retrieve(ctx context.Context, queryText string, filter Filter) (Result, error)

	// Index upserts a single document, computing its embedding
	// internally.
	Index(ctx context.Context, doc domain.RetrievedDocument) error

	// IndexBatch upserts many documents in one call.
	IndexBatch(ctx context.Context, docs []domain.RetrievedDocument) error
}

func applyFilterAndSort(docs []domain.RetrievedDocument, filter Filter) Result {
	excluded := make(map[string]struct{}, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	knowledgeSet := make(map[string]struct{}, len(filter.KnowledgeNodes))
	for _, n := range filter.KnowledgeNodes {
		knowledgeSet[n] = struct{}{}
	}

	var matched []domain.RetrievedDocument
	for _, d := range docs {
		if _, skip := excluded[d.ID]; skip {
			continue
		}
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		if filter.QuestionID != "" && d.Metadata["question_id"] != filter.QuestionID {
			continue
		}
		if len(knowledgeSet) > 0 && !anyKnowledgeNodeMatches(d, knowledgeSet) {
			continue
		}
		if d.Similarity < filter.MinSimilarity {
			continue
		}
		matched = append(matched, d)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Similarity > matched[j].Similarity
	})

	total := len(matched)
	max := filter.MaxResults
	if max > 0 && len(matched) > max {
		matched = matched[:max]
	}
	return Result{Documents: matched, Total: total}
}

func anyKnowledgeNodeMatches(d domain.RetrievedDocument, set map[string]struct{}) bool {
	nodes, ok := d.Metadata["knowledge_nodes"]
	if !ok {
		return false
	}
	for _, n := range splitCSV(nodes) {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// RetrieveSimilarQuestions returns up to count documents of category
// question sharing at least one knowledge node with the referenced
// question, excluding the referenced question itself.
func RetrieveSimilarQuestions(ctx context.Context, port Port, questionText, questionID string, knowledgeNodes []string, count int) ([]domain.RetrievedDocument, error) {
	res, err := port.Retrieve(ctx, questionText, Filter{
		Category:       domain.CategoryQuestion,
		KnowledgeNodes: knowledgeNodes,
		ExcludeIDs:     []string{questionID},
		MaxResults:     count,
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// RetrieveMisconceptions filters by category misconception, optionally
// narrowed to a specific question.
func RetrieveMisconceptions(ctx context.Context, port Port, query, questionID string, max int) ([]domain.RetrievedDocument, error) {
	res, err := port.Retrieve(ctx, query, Filter{
		Category:   domain.CategoryMisconception,
		QuestionID: questionID,
		MaxResults: max,
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// RetrieveSolutions filters by category solution, optionally narrowed
// to a specific question.
func RetrieveSolutions(ctx context.Context, port Port, query, questionID string, max int) ([]domain.RetrievedDocument, error) {
	res, err := port.Retrieve(ctx, query, Filter{
		Category:   domain.CategorySolution,
		QuestionID: questionID,
		MaxResults: max,
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}
