package hint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/hint"
)

func TestHintLadderSaturatesAtLevel3(t *testing.T) {
	c := hint.New(1, nil, nil)
	c.StartSession("linear_eq")

	var levels []domain.HintLevel
	for i := 0; i < 4; i++ {
		lvl, err := c.RequestHint(context.Background(), "linear_eq")
		require.NoError(t, err)
		levels = append(levels, lvl)
	}

	assert.Equal(t, []domain.HintLevel{
		domain.HintLevel1, domain.HintLevel2, domain.HintLevel3, domain.HintLevel3,
	}, levels)
	assert.Equal(t, 4, c.HintCount())
}

func TestDependencyScoreMatchesScenario4(t *testing.T) {
	c := hint.New(1, nil, nil)
	c.StartSession("linear_eq")
	for i := 0; i < 4; i++ {
		_, err := c.RequestHint(context.Background(), "linear_eq")
		require.NoError(t, err)
	}

	// weights used: 0.2 + 0.5 + 1.0 + 1.0 = 2.7 over 4 turns
	score := c.DependencyScore(4)
	assert.InDelta(t, 0.325, score, 1e-9)
}

func TestDependencyScoreFullIndependenceWhenNoHints(t *testing.T) {
	c := hint.New(1, nil, nil)
	assert.Equal(t, 1.0, c.DependencyScore(10))
	assert.Equal(t, 1.0, c.DependencyScore(0))
}

func TestResetForConceptRestartsLadderKeepsHistory(t *testing.T) {
	c := hint.New(1, nil, nil)
	c.StartSession("A")
	_, _ = c.RequestHint(context.Background(), "A")
	_, _ = c.RequestHint(context.Background(), "A")
	assert.Equal(t, domain.HintLevel3, c.CurrentLevel())

	c.ResetForConcept("B")
	assert.Equal(t, domain.HintLevel1, c.CurrentLevel())
	assert.Equal(t, 2, c.HintCount())
}

type fakeStore struct {
	recorded []domain.HintRecord
}

func (f *fakeStore) AppendHint(_ context.Context, rec domain.HintRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func TestRequestHintWritesThroughToStore(t *testing.T) {
	store := &fakeStore{}
	c := hint.New(42, nil, store)
	c.StartSession("A")
	_, err := c.RequestHint(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, store.recorded, 1)
	assert.Equal(t, int64(42), store.recorded[0].SessionID)
}
