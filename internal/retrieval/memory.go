package retrieval

import (
	"context"
	"strings"
	"sync"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// MemoryPort is an in-memory fake of Port for tests and local
// development. Its similarity function is a deterministic Jaccard
// token overlap rather than a real embedding, which keeps test
// expectations reproducible without a vector store dependency.
type MemoryPort struct {
	mu   sync.RWMutex
	docs []domain.RetrievedDocument
}

// NewMemoryPort constructs an empty fake, optionally pre-seeded.
func NewMemoryPort(seed ...domain.RetrievedDocument) *MemoryPort {
	return &MemoryPort{docs: append([]domain.RetrievedDocument{}, seed...)}
}

func (m *MemoryPort) Retrieve(_ context.Context, queryText string, filter Filter) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := tokenize(queryText)
	scored := make([]domain.RetrievedDocument, 0, len(m.docs))
	for _, d := range m.docs {
		copyDoc := d
		copyDoc.Similarity = jaccard(query, tokenize(d.Content))
		scored = append(scored, copyDoc)
	}
	return applyFilterAndSort(scored, filter), nil
}

func (m *MemoryPort) Index(_ context.Context, doc domain.RetrievedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func (m *MemoryPort) IndexBatch(_ context.Context, docs []domain.RetrievedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, docs...)
	return nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
