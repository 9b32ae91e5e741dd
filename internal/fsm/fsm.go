// Package fsm implements the dialog state controller: a fixed,
// priority-ordered transition table applied to typed events. The
// controller holds no session data beyond its own current state and
// transition history; it is constructed once per tutoring session.
package fsm

import (
	"slices"
	"sync"
	"time"
)

// State is one of the seven dialog postures the engine can occupy.
type State string

const (
	StateIdle          State = "IDLE"
	StateListening     State = "LISTENING"
	StateAnalyzing     State = "ANALYZING"
	StateProbing       State = "PROBING"
	StateHinting       State = "HINTING"
	StateRepair        State = "REPAIR"
	StateConsolidating State = "CONSOLIDATING"
)

// Event is one of the closed set of triggers the controller accepts.
type Event string

const (
	EventSessionStart    Event = "SESSION_START"
	EventSessionEnd      Event = "SESSION_END"
	EventStudentInput    Event = "STUDENT_INPUT"
	EventSilenceDetected Event = "SILENCE_DETECTED"
	EventHintRequest     Event = "HINT_REQUEST"
	EventAnalysisResult  Event = "ANALYSIS_RESULT"

	// EventHintResolved carries the exact same transition target as
	// EventAnalysisResult for the PROBING/HINTING/REPAIR -> LISTENING
	// row, but marks the audit record as synthetic: no LLM analysis
	// actually produced it. See the hint-request and silence flows in
	// package dialog.
	EventHintResolved Event = "HINT_RESOLVED"
)

// AnalysisOutcome carries the fields of an ANALYSIS_RESULT event that
// the transition table's conditions inspect. Coverage is the ratio
// already computed by the caller (the FSM does not know about
// required/covered concept sets).
type AnalysisOutcome struct {
	LogicComplete bool
	LogicGap      bool
	LogicError    bool
	Coverage      float64
}

// EventInput bundles the payload for whichever event is being applied.
// Only the fields relevant to the event in question are consulted.
type EventInput struct {
	SilenceDuration time.Duration
	Outcome         AnalysisOutcome
}

// TransitionRecord is one accepted transition in the audit trail.
type TransitionRecord struct {
	From         State
	To           State
	TriggerEvent Event
	Timestamp    time.Time
}

// Config holds the two thresholds the table's conditions test against.
type Config struct {
	// SilenceThreshold is the minimum silence duration, while LISTENING,
	// that triggers a move to HINTING. Default 5s.
	SilenceThreshold time.Duration
	// CoverageThreshold is the minimum coverage ratio, in (0,1], that
	// triggers CONSOLIDATING when no error or gap is present. Default 0.9.
	CoverageThreshold float64
}

// DefaultConfig returns the standard thresholds: 5s silence, 0.9
// coverage.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:  5 * time.Second,
		CoverageThreshold: 0.9,
	}
}

type condition func(in EventInput) bool

type rule struct {
	froms     []State // nil/empty means any state ("*")
	event     Event
	condition condition // nil means unconditional
	to        State
}

func matchesState(froms []State, s State) bool {
	if len(froms) == 0 {
		return true
	}
	return slices.Contains(froms, s)
}

// Controller is a per-session finite state machine. It is not safe for
// concurrent Apply calls from multiple goroutines against the same
// session turn, but the dialog engine already serializes per-session
// access, so the internal mutex here only guards State()/History()
// readers racing an in-flight Apply.
type Controller struct {
	mu      sync.Mutex
	state   State
	cfg     Config
	history []TransitionRecord
	table   []rule
}

// New constructs a controller in IDLE with the given configuration.
func New(cfg Config) *Controller {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultConfig().SilenceThreshold
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = DefaultConfig().CoverageThreshold
	}
	c := &Controller{state: StateIdle, cfg: cfg}
	c.table = c.buildTransitions()
	return c
}

func (c *Controller) buildTransitions() []rule {
	resolved := func(in EventInput) bool { return true }
	return []rule{
		{froms: []State{StateIdle}, event: EventSessionStart, to: StateListening},
		{event: EventSessionEnd, to: StateIdle}, // wildcard: any state

		{froms: []State{StateListening}, event: EventStudentInput, to: StateAnalyzing},
		{froms: []State{StateListening}, event: EventSilenceDetected, to: StateHinting,
			condition: func(in EventInput) bool { return in.SilenceDuration >= c.cfg.SilenceThreshold }},
		{froms: []State{StateListening}, event: EventHintRequest, to: StateHinting},

		{froms: []State{StateAnalyzing}, event: EventHintRequest, to: StateHinting},
		{froms: []State{StateAnalyzing}, event: EventAnalysisResult, to: StateRepair,
			condition: func(in EventInput) bool { return in.Outcome.LogicError }},
		{froms: []State{StateAnalyzing}, event: EventAnalysisResult, to: StateProbing,
			condition: func(in EventInput) bool { return in.Outcome.LogicGap && !in.Outcome.LogicError }},
		{froms: []State{StateAnalyzing}, event: EventAnalysisResult, to: StateConsolidating,
			condition: func(in EventInput) bool {
				return in.Outcome.Coverage >= c.cfg.CoverageThreshold && !in.Outcome.LogicError && !in.Outcome.LogicGap
			}},
		{froms: []State{StateAnalyzing}, event: EventAnalysisResult, to: StateListening, condition: resolved},

		{froms: []State{StateProbing, StateHinting, StateRepair}, event: EventAnalysisResult, to: StateListening},
		{froms: []State{StateProbing, StateHinting, StateRepair}, event: EventHintResolved, to: StateListening},

		{froms: []State{StateConsolidating}, event: EventAnalysisResult, to: StateIdle},
	}
}

// Apply evaluates the transition table against the current state and
// the given event/payload, first matching rule wins. Unmatched
// event/state pairs are no-ops: the state is unchanged and no audit
// record is appended. Apply never fails.
func (c *Controller) Apply(event Event, input EventInput) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.state
	for _, r := range c.table {
		if r.event != event {
			continue
		}
		if !matchesState(r.froms, from) {
			continue
		}
		if r.condition != nil && !r.condition(input) {
			continue
		}
		c.state = r.to
		c.history = append(c.history, TransitionRecord{
			From:         from,
			To:           r.to,
			TriggerEvent: event,
			Timestamp:    time.Now(),
		})
		return c.state
	}
	return from
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the accepted-transition audit trail.
func (c *Controller) History() []TransitionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransitionRecord, len(c.history))
	copy(out, c.history)
	return out
}
