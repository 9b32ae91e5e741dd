// Package hint implements the per-session, per-concept hint ladder:
// a monotonic Level 1 -> 2 -> 3 progression with weighted dependency
// accounting.
package hint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edwarddev/tutorcore/internal/domain"
)

// Weights maps a hint level to the weight it contributes to the
// hint-dependency score.
type Weights map[domain.HintLevel]float64

// DefaultWeights returns {1: 0.2, 2: 0.5, 3: 1.0}.
func DefaultWeights() Weights {
	return Weights{
		domain.HintLevel1: 0.2,
		domain.HintLevel2: 0.5,
		domain.HintLevel3: 1.0,
	}
}

// Store is the write-through persistence collaborator. A Controller
// constructed with a nil Store keeps hints in memory only.
type Store interface {
	AppendHint(ctx context.Context, rec domain.HintRecord) error
}

// Controller is a per-session hint ladder. It holds no cross-session
// state, mirroring the FSM Controller's per-session lifetime.
type Controller struct {
	mu        sync.Mutex
	sessionID int64
	level     domain.HintLevel
	concept   string
	weights   Weights
	history   []domain.HintRecord
	store     Store
}

// New constructs a Controller for one session, starting the ladder at
// Level 1. A nil weights map uses DefaultWeights; a nil store disables
// write-through persistence.
func New(sessionID int64, weights Weights, store Store) *Controller {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Controller{
		sessionID: sessionID,
		level:     domain.HintLevel1,
		weights:   weights,
		store:     store,
	}
}

// StartSession resets the current level to 1 for the given concept
// without clearing the session's hint history.
func (c *Controller) StartSession(concept string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = domain.HintLevel1
	c.concept = concept
}

// ResetForConcept restarts the ladder at Level 1 for a new concept,
// again without clearing history.
func (c *Controller) ResetForConcept(concept string) {
	c.StartSession(concept)
}

// SetWeights replaces the per-level weight table used by
// DependencyScore. Used by the dialog engine to boost weights when the
// knowledge graph reports unmet prerequisites for the current concept
// (see package knowledge).
func (c *Controller) SetWeights(w Weights) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights = w
}

// CurrentLevel returns the level the next RequestHint call would
// return, without consuming it.
func (c *Controller) CurrentLevel() domain.HintLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Concept returns the concept the ladder is currently tracking.
func (c *Controller) Concept() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.concept
}

// RequestHint returns the current level, appends a HintRecord (write-
// through to Store if configured), then advances the level toward 3,
// saturating. The concept argument overrides the controller's current
// concept when non-empty.
func (c *Controller) RequestHint(ctx context.Context, concept string) (domain.HintLevel, error) {
	c.mu.Lock()
	if concept != "" {
		c.concept = concept
	}
	returned := c.level
	rec := domain.HintRecord{SessionID: c.sessionID, Level: returned, Concept: c.concept}
	// Timestamp stamped here, under the lock, so history order matches
	// request order exactly.
	rec.Timestamp = time.Now()
	c.history = append(c.history, rec)
	if c.level < domain.HintLevel3 {
		c.level++
	}
	store := c.store
	c.mu.Unlock()

	if store != nil {
		if err := store.AppendHint(ctx, rec); err != nil {
			return returned, fmt.Errorf("persist hint usage: %w", err)
		}
	}
	return returned, nil
}

// HintHistory returns a copy of the session's hint log.
func (c *Controller) HintHistory() []domain.HintRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.HintRecord, len(c.history))
	copy(out, c.history)
	return out
}

// HintCount returns the total number of hints issued this session.
func (c *Controller) HintCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// HintsByLevel returns a histogram of hint usage by level.
func (c *Controller) HintsByLevel() map[domain.HintLevel]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.HintLevel]int)
	for _, h := range c.history {
		out[h.Level]++
	}
	return out
}

// DependencyScore computes clamp(1 - sum(weight of each hint used) /
// total_turns, 0, 1). If total_turns is 0 or no hints were used, the
// score is 1.0 (full independence).
func (c *Controller) DependencyScore(totalTurns int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dependencyScore(c.weights, c.history, totalTurns)
}

func dependencyScore(weights Weights, history []domain.HintRecord, totalTurns int) float64 {
	if totalTurns <= 0 || len(history) == 0 {
		return 1.0
	}
	var sum float64
	for _, h := range history {
		sum += weights[h.Level]
	}
	score := 1 - sum/float64(totalTurns)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
