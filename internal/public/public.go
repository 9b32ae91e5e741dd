// Package public implements the boundary façade: a thin adapter
// exposing seven verbs (start, input, silence, end, get_state,
// list_active, cleanup) over the Dialog Engine and Session Store. It
// carries no business logic of its own beyond translating between
// wire-shaped request/response DTOs and the internal packages.
package public

import (
	"context"
	"time"

	"github.com/edwarddev/tutorcore/internal/dialog"
	"github.com/edwarddev/tutorcore/internal/domain"
)

// AudioFeatures is the optional prosody payload an upstream speech
// recognizer attaches to a student turn.
type AudioFeatures struct {
	DurationSeconds    float64
	WordCount          int
	PauseCount         int
	TotalPauseDuration float64
}

func (a *AudioFeatures) toDomain() *domain.AudioFeatures {
	if a == nil {
		return nil
	}
	return &domain.AudioFeatures{
		SpokenDuration:     time.Duration(a.DurationSeconds * float64(time.Second)),
		WordCount:          a.WordCount,
		PauseCount:         a.PauseCount,
		TotalPauseDuration: time.Duration(a.TotalPauseDuration * float64(time.Second)),
	}
}

// StartRequest is the "start" verb's input.
type StartRequest struct {
	QuestionID       string
	StudentID        string
	QuestionText     string
	StandardSolution string
	RequiredConcepts []string
}

// StartResult is the "start" verb's output.
type StartResult struct {
	SessionID      int64
	FSMState       string
	InitialMessage string
}

// InputRequest is the "input" verb's input.
type InputRequest struct {
	SessionID     int64
	Text          string
	AudioFeatures *AudioFeatures
}

// TutorResponse is the wire shape of one tutor reply. HintLevel is
// set only when ResponseType is "hint".
type TutorResponse struct {
	Text              string
	ResponseType      string
	HintLevel         *int
	RelatedConcepts   []string
	SuggestedNextStep string
	FSMState          string
	Degraded          bool
}

// SilenceRequest is the "silence" verb's input.
type SilenceRequest struct {
	SessionID       int64
	DurationSeconds float64
}

// HintUsage is one entry of SessionSummary.HintsUsed.
type HintUsage struct {
	Level     int
	Concept   string
	Timestamp time.Time
}

// SessionSummary is the "end" verb's output.
type SessionSummary struct {
	SessionID       int64
	DurationSeconds float64
	ConceptsCovered []string
	ConceptCoverage float64
	HintsUsed       []HintUsage
	TotalTurns      int
	FinalState      string
}

// SessionState is the read-only "get_state" verb's output.
type SessionState struct {
	SessionID        int64
	StudentID        string
	QuestionID       string
	FSMState         string
	RequiredConcepts []string
	CoveredConcepts  []string
	CoverageRatio    float64
	TurnCount        int
	Active           bool
}

// Sessions is the subset of *session.Store the facade depends on for
// read-side verbs; kept as an interface so tests can substitute a
// fake without constructing a full Store.
type Sessions interface {
	LoadSession(sessionID int64) (*domain.Session, error)
	ListActive() []*domain.Session
	Cleanup() int
}

// Facade is the constructed public surface.
type Facade struct {
	engine   *dialog.Engine
	sessions Sessions
}

// New constructs a Facade over an already-wired Dialog Engine and
// Session Store.
func New(engine *dialog.Engine, sessions Sessions) *Facade {
	return &Facade{engine: engine, sessions: sessions}
}

// Start begins a new tutoring session.
func (f *Facade) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	sess, resp, err := f.engine.StartSession(ctx, req.QuestionID, req.StudentID, req.QuestionText, req.StandardSolution, req.RequiredConcepts)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{
		SessionID:      sess.ID,
		FSMState:       string(resp.FSMState),
		InitialMessage: resp.Text,
	}, nil
}

// Input submits one student turn. It never returns an error for an
// unknown or already-ended session; those surface as a benign
// TutorResponse. The sole error return is a missing-model
// misconfiguration of the LLM endpoint.
func (f *Facade) Input(ctx context.Context, req InputRequest) (TutorResponse, error) {
	resp, err := f.engine.ProcessStudentInput(ctx, dialog.StudentInput{
		SessionID: req.SessionID,
		Text:      req.Text,
		Audio:     req.AudioFeatures.toDomain(),
	})
	if err != nil {
		return TutorResponse{}, err
	}
	return toWireResponse(resp), nil
}

// Silence reports an elapsed period of student inactivity. Returns
// nil when the silence produced no state change.
func (f *Facade) Silence(ctx context.Context, req SilenceRequest) (*TutorResponse, error) {
	duration := time.Duration(req.DurationSeconds * float64(time.Second))
	resp, err := f.engine.HandleSilence(ctx, req.SessionID, duration)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	wire := toWireResponse(*resp)
	return &wire, nil
}

// End terminates a session and returns its summary.
func (f *Facade) End(ctx context.Context, sessionID int64) (SessionSummary, error) {
	summary, err := f.engine.EndSession(ctx, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}

	hints := make([]HintUsage, 0, len(summary.HintsUsed))
	for _, h := range summary.HintsUsed {
		hints = append(hints, HintUsage{Level: int(h.Level), Concept: h.Concept, Timestamp: h.Timestamp})
	}

	return SessionSummary{
		SessionID:       summary.SessionID,
		DurationSeconds: summary.DurationSeconds,
		ConceptsCovered: summary.ConceptsCovered,
		ConceptCoverage: summary.ConceptCoverage,
		HintsUsed:       hints,
		TotalTurns:      summary.TotalTurns,
		FinalState:      string(summary.FinalState),
	}, nil
}

// GetState returns a read-only snapshot of an active session.
func (f *Facade) GetState(sessionID int64) (SessionState, error) {
	sess, err := f.sessions.LoadSession(sessionID)
	if err != nil {
		return SessionState{}, err
	}
	return SessionState{
		SessionID:        sess.ID,
		StudentID:        sess.StudentID,
		QuestionID:       sess.QuestionID,
		FSMState:         string(sess.State),
		RequiredConcepts: sess.RequiredConcepts,
		CoveredConcepts:  sess.CoveredConcepts(),
		CoverageRatio:    sess.CoverageRatio(),
		TurnCount:        len(sess.Turns),
		Active:           !sess.IsTerminal(),
	}, nil
}

// ListActive returns every session currently held in memory.
func (f *Facade) ListActive() []SessionState {
	active := f.sessions.ListActive()
	out := make([]SessionState, 0, len(active))
	for _, sess := range active {
		out = append(out, SessionState{
			SessionID:        sess.ID,
			StudentID:        sess.StudentID,
			QuestionID:       sess.QuestionID,
			FSMState:         string(sess.State),
			RequiredConcepts: sess.RequiredConcepts,
			CoveredConcepts:  sess.CoveredConcepts(),
			CoverageRatio:    sess.CoverageRatio(),
			TurnCount:        len(sess.Turns),
			Active:           !sess.IsTerminal(),
		})
	}
	return out
}

// Cleanup evicts terminal sessions from the in-memory store, returning
// the number evicted.
func (f *Facade) Cleanup() int {
	return f.sessions.Cleanup()
}

func toWireResponse(resp dialog.TutorResponse) TutorResponse {
	var level *int
	if resp.HintLevel != nil {
		v := int(*resp.HintLevel)
		level = &v
	}
	return TutorResponse{
		Text:              resp.Text,
		ResponseType:      string(resp.ResponseType),
		HintLevel:         level,
		RelatedConcepts:   resp.RelatedConcepts,
		SuggestedNextStep: resp.SuggestedNextStep,
		FSMState:          string(resp.FSMState),
		Degraded:          resp.Degraded,
	}
}
