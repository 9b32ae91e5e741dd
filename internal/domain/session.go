package domain

import (
	"fmt"
	"time"

	"github.com/edwarddev/tutorcore/internal/fsm"
)

// Speaker distinguishes the two sides of a Turn.
type Speaker string

const (
	SpeakerStudent Speaker = "student"
	SpeakerTutor   Speaker = "tutor"
)

// AudioFeatures are the optional prosody signals attached to a student
// turn. When absent, metrics derived from it fall back to neutral
// values (see package metrics).
type AudioFeatures struct {
	SpokenDuration     time.Duration
	WordCount          int
	PauseCount         int
	TotalPauseDuration time.Duration
}

// Turn is one ordered entry in a session's conversation log.
type Turn struct {
	Number    int
	Speaker   Speaker
	Content   string
	State     fsm.State
	Timestamp time.Time
	Audio     *AudioFeatures
}

// HintLevel is the Hint Controller's Level 1/2/3 ladder rung.
type HintLevel int

const (
	HintLevel1 HintLevel = 1
	HintLevel2 HintLevel = 2
	HintLevel3 HintLevel = 3
)

// HintRecord is one entry in a session's hint log.
type HintRecord struct {
	SessionID int64
	Level     HintLevel
	Concept   string
	Timestamp time.Time
}

// Session is the arena owner for a student's attempt at a single
// question: it exclusively owns its Turn and HintRecord sequences, and
// no child entity points back at it.
type Session struct {
	ID               int64
	StudentID        string
	QuestionID       string
	QuestionText     string
	StandardSolution string
	RequiredConcepts []string

	coveredConcepts map[string]struct{}

	StartedAt time.Time
	EndedAt   *time.Time
	State     fsm.State

	Turns []Turn
	Hints []HintRecord
}

// New constructs a fresh, active session. RequiredConcepts is frozen
// at construction: the slice is copied so later mutation by the
// caller cannot leak into the session.
func New(id int64, studentID, questionID, questionText, standardSolution string, requiredConcepts []string) *Session {
	frozen := make([]string, len(requiredConcepts))
	copy(frozen, requiredConcepts)
	return &Session{
		ID:               id,
		StudentID:        studentID,
		QuestionID:       questionID,
		QuestionText:     questionText,
		StandardSolution: standardSolution,
		RequiredConcepts: frozen,
		coveredConcepts:  make(map[string]struct{}),
		StartedAt:        time.Now(),
		State:            fsm.StateIdle,
	}
}

// IsTerminal reports whether the session has ended and its FSM has
// returned to IDLE. A terminal session accepts no further turns.
func (s *Session) IsTerminal() bool {
	return s.EndedAt != nil && s.State == fsm.StateIdle
}

// AppendTurn records a new turn at the session's current state,
// enforcing the strictly-increasing turn-number invariant and
// rejecting writes against a terminal session.
func (s *Session) AppendTurn(speaker Speaker, content string, audio *AudioFeatures) (Turn, error) {
	if s.IsTerminal() {
		return Turn{}, ErrSessionTerminal
	}
	turn := Turn{
		Number:    len(s.Turns) + 1,
		Speaker:   speaker,
		Content:   content,
		State:     s.State,
		Timestamp: time.Now(),
		Audio:     audio,
	}
	s.Turns = append(s.Turns, turn)
	return turn, nil
}

// AppendHint records a hint usage in the session's hint log.
func (s *Session) AppendHint(level HintLevel, concept string) HintRecord {
	rec := HintRecord{
		SessionID: s.ID,
		Level:     level,
		Concept:   concept,
		Timestamp: time.Now(),
	}
	s.Hints = append(s.Hints, rec)
	return rec
}

// MergeCoveredConcepts grows the session's covered-concept set
// monotonically; it never shrinks.
func (s *Session) MergeCoveredConcepts(concepts []string) {
	for _, c := range concepts {
		if c == "" {
			continue
		}
		s.coveredConcepts[c] = struct{}{}
	}
}

// CoveredConcepts returns the covered-concept set as a sorted-free
// slice snapshot (order is insertion-map order, i.e. unspecified;
// callers that need determinism should sort).
func (s *Session) CoveredConcepts() []string {
	out := make([]string, 0, len(s.coveredConcepts))
	for c := range s.coveredConcepts {
		out = append(out, c)
	}
	return out
}

// CoverageRatio is |covered ∩ required| / |required|, or 1.0 when
// required is empty. The dialog engine applies an additional guard
// before letting an empty-required session consolidate; that policy
// lives there, not here.
func (s *Session) CoverageRatio() float64 {
	if len(s.RequiredConcepts) == 0 {
		return 1.0
	}
	matched := 0
	for _, req := range s.RequiredConcepts {
		if _, ok := s.coveredConcepts[req]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(s.RequiredConcepts))
}

// End marks the session terminal. Callers must still drive the FSM to
// IDLE themselves; End only stamps the end time.
func (s *Session) End() {
	if s.EndedAt != nil {
		return
	}
	now := time.Now()
	s.EndedAt = &now
}

// Duration returns the session's elapsed wall time; for an active
// session this is measured against now.
func (s *Session) Duration() time.Duration {
	end := time.Now()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(s.StartedAt)
}

func (s *Session) String() string {
	return fmt.Sprintf("Session{id=%d student=%s question=%s state=%s turns=%d}",
		s.ID, s.StudentID, s.QuestionID, s.State, len(s.Turns))
}
