package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/fsm"
)

// PostgresPersister is the durable write-through backend: hand-written
// SQL over core/db.DB's pgxpool.Pool, one typed accessor per write
// point.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

func NewPostgresPersister(pool *pgxpool.Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

func (p *PostgresPersister) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, student_id, question_id, question_text, standard_solution, required_concepts, started_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.StudentID, s.QuestionID, s.QuestionText, s.StandardSolution, s.RequiredConcepts, s.StartedAt, string(s.State))
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (p *PostgresPersister) AppendTurn(ctx context.Context, sessionID int64, turn domain.Turn) error {
	var audioDuration, pauseDuration *int64
	var wordCount, pauseCount *int
	if turn.Audio != nil {
		d := turn.Audio.SpokenDuration.Milliseconds()
		pd := turn.Audio.TotalPauseDuration.Milliseconds()
		audioDuration = &d
		pauseDuration = &pd
		wordCount = &turn.Audio.WordCount
		pauseCount = &turn.Audio.PauseCount
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO conversation_turns
			(session_id, turn_number, speaker, content, state, occurred_at,
			 audio_duration_ms, audio_word_count, audio_pause_count, audio_pause_duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sessionID, turn.Number, string(turn.Speaker), turn.Content, string(turn.State), turn.Timestamp,
		audioDuration, wordCount, pauseCount, pauseDuration)
	if err != nil {
		return fmt.Errorf("session: append turn: %w", err)
	}
	return nil
}

func (p *PostgresPersister) AppendHint(ctx context.Context, rec domain.HintRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO hint_records (session_id, level, concept, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		rec.SessionID, int(rec.Level), rec.Concept, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("session: append hint: %w", err)
	}
	return nil
}

func (p *PostgresPersister) FinalizeSession(ctx context.Context, s *domain.Session) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE sessions
		SET ended_at = $2, state = $3, covered_concepts = $4, coverage_ratio = $5
		WHERE id = $1`,
		s.ID, s.EndedAt, string(s.State), s.CoveredConcepts(), s.CoverageRatio())
	if err != nil {
		return fmt.Errorf("session: finalize: %w", err)
	}
	return nil
}

func (p *PostgresPersister) WriteMetricsReport(ctx context.Context, report domain.MetricsReport) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO metrics_reports
			(id, session_id, words_per_minute, pause_ratio, hint_dependency, concept_coverage, focus_duration_secs, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			words_per_minute = EXCLUDED.words_per_minute,
			pause_ratio = EXCLUDED.pause_ratio,
			hint_dependency = EXCLUDED.hint_dependency,
			concept_coverage = EXCLUDED.concept_coverage,
			focus_duration_secs = EXCLUDED.focus_duration_secs,
			computed_at = EXCLUDED.computed_at`,
		report.ID, report.SessionID, report.WordsPerMinute, report.PauseRatio,
		report.HintDependency, report.ConceptCoverage, report.FocusDurationSecs, report.ComputedAt)
	if err != nil {
		return fmt.Errorf("session: write metrics report: %w", err)
	}
	return nil
}

// LoadSession rehydrates a session row plus its turns and hints from
// durable storage. Nothing in this module calls it; the in-memory map
// is not repopulated on process restart.
func (p *PostgresPersister) LoadSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT student_id, question_id, question_text, standard_solution, required_concepts,
		       started_at, ended_at, state, covered_concepts
		FROM sessions WHERE id = $1`, id)

	var (
		studentID, questionID, questionText, standardSolution string
		requiredConcepts, coveredConcepts                     []string
		startedAt                                              time.Time
		endedAt                                                *time.Time
		state                                                  string
	)
	if err := row.Scan(&studentID, &questionID, &questionText, &standardSolution,
		&requiredConcepts, &startedAt, &endedAt, &state, &coveredConcepts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	sess := domain.New(id, studentID, questionID, questionText, standardSolution, requiredConcepts)
	sess.MergeCoveredConcepts(coveredConcepts)
	sess.StartedAt = startedAt
	sess.EndedAt = endedAt
	sess.State = fsm.State(state)

	turns, err := p.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns

	hints, err := p.loadHints(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Hints = hints

	return sess, nil
}

func (p *PostgresPersister) loadTurns(ctx context.Context, sessionID int64) ([]domain.Turn, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT turn_number, speaker, content, state, occurred_at
		FROM conversation_turns WHERE session_id = $1 ORDER BY turn_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: list conversation: %w", err)
	}
	defer rows.Close()

	var out []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var speaker, state string
		if err := rows.Scan(&t.Number, &speaker, &t.Content, &state, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("session: scan turn: %w", err)
		}
		t.Speaker = domain.Speaker(speaker)
		t.State = fsm.State(state)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresPersister) loadHints(ctx context.Context, sessionID int64) ([]domain.HintRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT level, concept, occurred_at
		FROM hint_records WHERE session_id = $1 ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: list hints: %w", err)
	}
	defer rows.Close()

	var out []domain.HintRecord
	for rows.Next() {
		var rec domain.HintRecord
		var level int
		rec.SessionID = sessionID
		if err := rows.Scan(&level, &rec.Concept, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("session: scan hint: %w", err)
		}
		rec.Level = domain.HintLevel(level)
		out = append(out, rec)
	}
	return out, rows.Err()
}
