// Package metrics computes the per-session learning telemetry: given a
// terminated Session, it derives a MetricsReport from words per
// minute, pause ratio, hint dependency and concept coverage, and
// mirrors the same numbers as OTel gauges so a dashboard sees what
// gets persisted. The hint-dependency weights are the table the
// Aggregator was built with; boosts the dialog engine applies to a
// session's Hint Controller for concepts with unmet prerequisites do
// not reach the report.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/edwarddev/tutorcore/common/id"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/hint"
)

const meterName = "tutorcore.metrics"

// Aggregator computes and records MetricsReports.
type Aggregator struct {
	weights hint.Weights

	wpmGauge        metric.Float64Gauge
	pauseGauge      metric.Float64Gauge
	dependencyGauge metric.Float64Gauge
	coverageGauge   metric.Float64Gauge
}

// New builds an Aggregator. weights should be the same table the
// session's Hint Controller was configured with; pass
// hint.DefaultWeights() when unset.
func New(weights hint.Weights) *Aggregator {
	meter := otel.Meter(meterName)

	wpmGauge, _ := meter.Float64Gauge("tutor.session.words_per_minute")
	pauseGauge, _ := meter.Float64Gauge("tutor.session.pause_ratio")
	dependencyGauge, _ := meter.Float64Gauge("tutor.session.hint_dependency")
	coverageGauge, _ := meter.Float64Gauge("tutor.session.concept_coverage")

	return &Aggregator{
		weights:         weights,
		wpmGauge:        wpmGauge,
		pauseGauge:      pauseGauge,
		dependencyGauge: dependencyGauge,
		coverageGauge:   coverageGauge,
	}
}

// Compute derives a MetricsReport from a session's recorded turns and
// hint log. focusDurationSecs is supplied externally (e.g. an
// attention monitor upstream of the core); it defaults to 0 when the
// caller has nothing to report. All numeric fields are deterministic
// functions of the session state, so recomputation yields the same
// report (modulo its fresh id and timestamp).
func (a *Aggregator) Compute(sess *domain.Session, focusDurationSecs float64) domain.MetricsReport {
	return domain.MetricsReport{
		ID:                id.New(),
		SessionID:         sess.ID,
		WordsPerMinute:    wordsPerMinute(sess),
		PauseRatio:        pauseRatio(sess),
		HintDependency:    hintDependency(sess, a.weights),
		ConceptCoverage:   sess.CoverageRatio(),
		FocusDurationSecs: focusDurationSecs,
		ComputedAt:        time.Now(),
	}
}

// Record emits the report's numbers as OTel gauges, tagged with the
// session and student so a dashboard can slice by either.
func (a *Aggregator) Record(ctx context.Context, sess *domain.Session, report domain.MetricsReport) {
	attrs := metric.WithAttributes(
		attribute.Int64("session_id", sess.ID),
		attribute.String("student_id", sess.StudentID),
	)
	a.wpmGauge.Record(ctx, report.WordsPerMinute, attrs)
	a.pauseGauge.Record(ctx, report.PauseRatio, attrs)
	a.dependencyGauge.Record(ctx, report.HintDependency, attrs)
	a.coverageGauge.Record(ctx, report.ConceptCoverage, attrs)
}

// wordsPerMinute sums word counts across every student turn with
// audio features and divides by the session's elapsed minutes. Per
// spec, undefined (duration_minutes <= 0) reports 0 rather than
// dividing.
func wordsPerMinute(sess *domain.Session) float64 {
	durationMinutes := sess.Duration().Minutes()
	if durationMinutes <= 0 {
		return 0
	}

	words := 0
	for _, t := range sess.Turns {
		if t.Speaker != domain.SpeakerStudent || t.Audio == nil {
			continue
		}
		words += t.Audio.WordCount
	}
	return float64(words) / durationMinutes
}

// pauseRatio sums total pause duration across student turns and
// divides by the session's elapsed seconds, clamped to [0,1].
func pauseRatio(sess *domain.Session) float64 {
	totalSeconds := sess.Duration().Seconds()
	if totalSeconds <= 0 {
		return 0
	}

	var pauseSeconds float64
	for _, t := range sess.Turns {
		if t.Speaker != domain.SpeakerStudent || t.Audio == nil {
			continue
		}
		pauseSeconds += t.Audio.TotalPauseDuration.Seconds()
	}

	rate := pauseSeconds / totalSeconds
	return clamp(rate, 0, 1)
}

// hintDependency is 1 - Σ(weight)/total_turns, clamped to [0,1], where
// total_turns counts student turns only: the denominator measures how
// many attempts the student made, not how chatty the tutor was. No
// student turns or no hints both mean no measurable dependency (1.0,
// full independence).
func hintDependency(sess *domain.Session, weights hint.Weights) float64 {
	totalTurns := 0
	for _, t := range sess.Turns {
		if t.Speaker == domain.SpeakerStudent {
			totalTurns++
		}
	}
	if totalTurns == 0 || len(sess.Hints) == 0 {
		return 1.0
	}

	var weighted float64
	for _, h := range sess.Hints {
		w, ok := weights[h.Level]
		if !ok {
			w = 1.0
		}
		weighted += w
	}

	dependency := 1 - (weighted / float64(totalTurns))
	return clamp(dependency, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (a *Aggregator) String() string {
	return fmt.Sprintf("Aggregator{weights=%v}", a.weights)
}
