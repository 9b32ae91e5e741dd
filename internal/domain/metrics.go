package domain

import "time"

// MetricsReport is the one-per-terminated-session telemetry summary.
// All five numeric fields are bounded and derive deterministically
// from the session's recorded turns and hint log; recomputation from
// the same inputs must be idempotent.
type MetricsReport struct {
	ID                int64
	SessionID         int64
	WordsPerMinute    float64
	PauseRatio        float64
	HintDependency    float64
	ConceptCoverage   float64
	FocusDurationSecs float64
	ComputedAt        time.Time
}
