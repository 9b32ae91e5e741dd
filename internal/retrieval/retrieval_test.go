package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/retrieval"
)

func TestRetrieveSortsDescendingAndTruncates(t *testing.T) {
	port := retrieval.NewMemoryPort(
		domain.RetrievedDocument{ID: "1", Content: "solving linear equations with x"},
		domain.RetrievedDocument{ID: "2", Content: "linear equations x solve"},
		domain.RetrievedDocument{ID: "3", Content: "completely unrelated text about birds"},
	)

	res, err := port.Retrieve(context.Background(), "solve linear equations x", retrieval.Filter{
		MaxResults:    2,
		MinSimilarity: 0,
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.GreaterOrEqual(t, res.Documents[0].Similarity, res.Documents[1].Similarity)
}

func TestRetrieveExcludesBelowMinSimilarity(t *testing.T) {
	port := retrieval.NewMemoryPort(
		domain.RetrievedDocument{ID: "1", Content: "solving linear equations with x"},
		domain.RetrievedDocument{ID: "2", Content: "completely unrelated text about birds"},
	)

	res, err := port.Retrieve(context.Background(), "solve linear equations x", retrieval.Filter{
		MaxResults:    5,
		MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	for _, d := range res.Documents {
		assert.GreaterOrEqual(t, d.Similarity, 0.3)
	}
}

func TestRetrieveFiltersByCategoryAndQuestionID(t *testing.T) {
	port := retrieval.NewMemoryPort(
		domain.RetrievedDocument{ID: "1", Content: "linear eq solution", Category: domain.CategorySolution, Metadata: map[string]string{"question_id": "q1"}},
		domain.RetrievedDocument{ID: "2", Content: "linear eq solution", Category: domain.CategorySolution, Metadata: map[string]string{"question_id": "q2"}},
		domain.RetrievedDocument{ID: "3", Content: "linear eq misconception", Category: domain.CategoryMisconception, Metadata: map[string]string{"question_id": "q1"}},
	)

	res, err := port.Retrieve(context.Background(), "linear eq", retrieval.Filter{
		Category:   domain.CategorySolution,
		QuestionID: "q1",
		MaxResults: 5,
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "1", res.Documents[0].ID)
}

func TestRetrieveSimilarQuestionsExcludesSelf(t *testing.T) {
	port := retrieval.NewMemoryPort(
		domain.RetrievedDocument{ID: "self", Content: "solve 3x+5=20", Category: domain.CategoryQuestion, Metadata: map[string]string{"knowledge_nodes": "linear_eq"}},
		domain.RetrievedDocument{ID: "other", Content: "solve 2x+4=10", Category: domain.CategoryQuestion, Metadata: map[string]string{"knowledge_nodes": "linear_eq"}},
	)

	docs, err := retrieval.RetrieveSimilarQuestions(context.Background(), port, "solve 3x+5=20", "self", []string{"linear_eq"}, 5)
	require.NoError(t, err)
	for _, d := range docs {
		assert.NotEqual(t, "self", d.ID)
	}
}

func TestHybridPortDedupesAcrossBackends(t *testing.T) {
	vector := retrieval.NewMemoryPort(domain.RetrievedDocument{ID: "shared", Content: "linear equations", Similarity: 0.9})
	keyword := retrieval.NewMemoryPort(
		domain.RetrievedDocument{ID: "shared", Content: "linear equations"},
		domain.RetrievedDocument{ID: "only-keyword", Content: "linear equations keyword only"},
	)
	hybrid := retrieval.NewHybridPort(vector, keyword)

	res, err := hybrid.Retrieve(context.Background(), "linear equations", retrieval.Filter{MaxResults: 10})
	require.NoError(t, err)

	ids := make(map[string]int)
	for _, d := range res.Documents {
		ids[d.ID]++
	}
	assert.Equal(t, 1, ids["shared"])
	assert.Equal(t, 1, ids["only-keyword"])
}
