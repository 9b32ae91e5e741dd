// Package session implements the Session Store: an in-process map from
// session id to *domain.Session guarded by one lock per session plus a
// short-lived lock for map mutation, with write-through to durable
// storage on session create, turn append, hint append, finalize and
// metrics write. Reads for observability are served from memory.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/edwarddev/tutorcore/internal/domain"
)

var ErrNotFound = errors.New("session: not found")

// Persister is the durable write-through target. A Store works with
// any implementation, including a no-op for tests.
type Persister interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	AppendTurn(ctx context.Context, sessionID int64, turn domain.Turn) error
	AppendHint(ctx context.Context, rec domain.HintRecord) error
	FinalizeSession(ctx context.Context, s *domain.Session) error
	WriteMetricsReport(ctx context.Context, report domain.MetricsReport) error
}

type entry struct {
	mu      sync.Mutex
	session *domain.Session
}

// Store holds active sessions in memory and mirrors mutations to a
// Persister. The map itself is guarded by mapMu; each session's
// content is guarded by its own entry.mu, so turns on session A never
// block turns on session B.
type Store struct {
	persist Persister

	mapMu sync.Mutex
	byID  map[int64]*entry
}

func New(persist Persister) *Store {
	return &Store{
		persist: persist,
		byID:    make(map[int64]*entry),
	}
}

// Lock acquires the per-session lock and returns the session along
// with an unlock function the caller must defer. Returns ErrNotFound
// if the session is not (or no longer) active in memory.
func (s *Store) Lock(sessionID int64) (*domain.Session, func(), error) {
	s.mapMu.Lock()
	e, ok := s.byID[sessionID]
	s.mapMu.Unlock()
	if !ok {
		return nil, func() {}, ErrNotFound
	}
	e.mu.Lock()
	return e.session, e.mu.Unlock, nil
}

// CreateSession registers a new session in memory and writes its
// initial row through to durable storage. A persistence failure is
// returned to the caller but does not prevent the session from
// becoming active: in-memory state stays authoritative.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mapMu.Lock()
	s.byID[sess.ID] = &entry{session: sess}
	s.mapMu.Unlock()

	if err := s.persist.CreateSession(ctx, sess); err != nil {
		return err
	}
	return nil
}

// AppendTurn records a turn on an already-locked session and mirrors
// it to durable storage. Callers hold the session lock acquired via
// Lock for the duration of the pipeline step that calls this.
func (s *Store) AppendTurn(ctx context.Context, sess *domain.Session, turn domain.Turn) error {
	return s.persist.AppendTurn(ctx, sess.ID, turn)
}

// AppendHint mirrors a hint usage to durable storage.
func (s *Store) AppendHint(ctx context.Context, rec domain.HintRecord) error {
	return s.persist.AppendHint(ctx, rec)
}

// FinalizeSession writes the terminal session row (end time, final
// state, coverage) through to durable storage. The session stays in
// the in-memory map for subsequent get_state reads; Cleanup evicts it.
func (s *Store) FinalizeSession(ctx context.Context, sess *domain.Session) error {
	return s.persist.FinalizeSession(ctx, sess)
}

// WriteMetricsReport persists a computed MetricsReport once.
func (s *Store) WriteMetricsReport(ctx context.Context, report domain.MetricsReport) error {
	return s.persist.WriteMetricsReport(ctx, report)
}

// LoadSession returns a read-only snapshot of the in-memory session
// for get_session_state and conversation-history reads. The returned
// pointer aliases live state; callers must not mutate it.
func (s *Store) LoadSession(sessionID int64) (*domain.Session, error) {
	s.mapMu.Lock()
	e, ok := s.byID[sessionID]
	s.mapMu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// ListConversation returns the turn log for a session.
func (s *Store) ListConversation(sessionID int64) ([]domain.Turn, error) {
	sess, err := s.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Turn, len(sess.Turns))
	copy(out, sess.Turns)
	return out, nil
}

// ListStudentSessions returns every in-memory session belonging to a
// student, newest first is not guaranteed (map iteration order).
func (s *Store) ListStudentSessions(studentID string) []*domain.Session {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	var out []*domain.Session
	for _, e := range s.byID {
		e.mu.Lock()
		if e.session.StudentID == studentID {
			out = append(out, e.session)
		}
		e.mu.Unlock()
	}
	return out
}

// ListActive returns every session currently held in memory.
func (s *Store) ListActive() []*domain.Session {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	out := make([]*domain.Session, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e.session)
	}
	return out
}

// Cleanup evicts terminal sessions from the in-memory map. It does not
// touch durable storage, which already holds the terminal row written
// by FinalizeSession.
func (s *Store) Cleanup() int {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	evicted := 0
	for id, e := range s.byID {
		e.mu.Lock()
		terminal := e.session.IsTerminal()
		e.mu.Unlock()
		if terminal {
			delete(s.byID, id)
			evicted++
		}
	}
	return evicted
}
