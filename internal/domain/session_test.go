package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/fsm"
)

func TestAppendTurnIncrementsStrictly(t *testing.T) {
	s := domain.New(1, "student-1", "q-1", "Solve 3x+5=20", "x=5", []string{"linear_eq"})
	s.State = fsm.StateListening

	t1, err := s.AppendTurn(domain.SpeakerStudent, "3x equals 15", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, t1.Number)

	t2, err := s.AppendTurn(domain.SpeakerTutor, "good, keep going", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, t2.Number)
}

func TestAppendTurnRejectedAfterTerminal(t *testing.T) {
	s := domain.New(2, "student-1", "q-1", "q", "sol", nil)
	s.State = fsm.StateIdle
	s.End()

	_, err := s.AppendTurn(domain.SpeakerStudent, "too late", nil)
	assert.True(t, errors.Is(err, domain.ErrSessionTerminal))
}

func TestCoverageRatioEmptyRequiredIsOne(t *testing.T) {
	s := domain.New(3, "student-1", "q-1", "q", "sol", nil)
	assert.Equal(t, 1.0, s.CoverageRatio())
}

func TestCoverageRatioPartial(t *testing.T) {
	s := domain.New(4, "student-1", "q-1", "q", "sol", []string{"A", "B"})
	s.MergeCoveredConcepts([]string{"A"})
	assert.Equal(t, 0.5, s.CoverageRatio())
}

func TestCoveredConceptsMonotonic(t *testing.T) {
	s := domain.New(5, "student-1", "q-1", "q", "sol", []string{"A", "B"})
	s.MergeCoveredConcepts([]string{"A"})
	s.MergeCoveredConcepts([]string{"B", "A"})
	assert.ElementsMatch(t, []string{"A", "B"}, s.CoveredConcepts())
}
