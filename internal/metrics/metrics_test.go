package metrics_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/common/id"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/hint"
	"github.com/edwarddev/tutorcore/internal/metrics"
)

// TestMain initializes the report-id generator that Compute draws from.
func TestMain(m *testing.M) {
	if err := id.Init(1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newSessionWithTurns(t *testing.T, required []string) *domain.Session {
	t.Helper()
	sess := domain.New(1, "student-1", "q-1", "2x=4", "x=2", required)
	sess.StartedAt = time.Now().Add(-2 * time.Minute)
	return sess
}

func TestComputeZeroDurationReportsZeroWPM(t *testing.T) {
	sess := domain.New(1, "s", "q", "", "", nil)
	sess.StartedAt = time.Now()

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.Equal(t, 0.0, report.WordsPerMinute)
}

func TestComputeWPMFromAudioWordCounts(t *testing.T) {
	sess := newSessionWithTurns(t, nil)
	_, err := sess.AppendTurn(domain.SpeakerStudent, "x equals two", &domain.AudioFeatures{
		WordCount:      60,
		SpokenDuration: time.Minute,
	})
	require.NoError(t, err)

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.InDelta(t, 30.0, report.WordsPerMinute, 0.5) // 60 words over ~2 minutes elapsed
}

func TestComputePauseRatioClampedToOne(t *testing.T) {
	sess := newSessionWithTurns(t, nil)
	sess.StartedAt = time.Now().Add(-1 * time.Second)
	_, err := sess.AppendTurn(domain.SpeakerStudent, "...", &domain.AudioFeatures{
		TotalPauseDuration: 10 * time.Second,
	})
	require.NoError(t, err)

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.Equal(t, 1.0, report.PauseRatio)
}

func TestComputeHintDependencyNoHintsIsFullIndependence(t *testing.T) {
	sess := newSessionWithTurns(t, nil)
	_, err := sess.AppendTurn(domain.SpeakerStudent, "x=2", nil)
	require.NoError(t, err)

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.Equal(t, 1.0, report.HintDependency)
}

func TestComputeHintDependencyWeightedByLevel(t *testing.T) {
	sess := newSessionWithTurns(t, nil)
	for i := 0; i < 5; i++ {
		_, err := sess.AppendTurn(domain.SpeakerStudent, "turn", nil)
		require.NoError(t, err)
	}
	sess.AppendHint(domain.HintLevel1, "linear-equations")
	sess.AppendHint(domain.HintLevel2, "linear-equations")

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	// 1 - (0.2+0.5)/5 = 0.86
	assert.InDelta(t, 0.86, report.HintDependency, 1e-9)
}

func TestComputeConceptCoverageEmptyRequiredIsFull(t *testing.T) {
	sess := newSessionWithTurns(t, nil)
	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.Equal(t, 1.0, report.ConceptCoverage)
}

func TestComputeConceptCoveragePartial(t *testing.T) {
	sess := newSessionWithTurns(t, []string{"isolate-variable", "simplify"})
	sess.MergeCoveredConcepts([]string{"isolate-variable"})

	agg := metrics.New(hint.DefaultWeights())
	report := agg.Compute(sess, 0)

	assert.Equal(t, 0.5, report.ConceptCoverage)
}

func TestComputeIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	sess := newSessionWithTurns(t, []string{"isolate-variable"})
	sess.MergeCoveredConcepts([]string{"isolate-variable"})
	sess.AppendHint(domain.HintLevel1, "isolate-variable")

	agg := metrics.New(hint.DefaultWeights())
	first := agg.Compute(sess, 12.5)
	second := agg.Compute(sess, 12.5)

	assert.Equal(t, first.PauseRatio, second.PauseRatio)
	assert.Equal(t, first.HintDependency, second.HintDependency)
	assert.Equal(t, first.ConceptCoverage, second.ConceptCoverage)
	assert.Equal(t, 12.5, first.FocusDurationSecs)
}
