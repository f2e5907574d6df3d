// Package alert implements the per-entity threshold alert state machine:
// tracking below-threshold episodes, two-stage escalation with elapsed-time
// gates, recovery detection, and reconstruction of in-memory state from the
// durable alert records on boot.
package alert

import (
	"sync"
	"time"

	"github.com/vesaa/queuewatch/internal/models"
)

// State is the in-memory alert progress for one entity. It is a derived cache
// of the open AlertRecord — on any mismatch the record wins; the cache exists
// so entities without an open alert cost no database read per cycle.
type State struct {
	FirstCrossing  time.Time
	FirstNotified  bool
	SecondNotified bool

	// RecordID is the open AlertRecord row backing this state. Zero when the
	// record write failed and the state is memory-only until repair.
	RecordID uint
}

// Tracker holds alert state keyed by entity name. Entity lifetime is
// process-long with explicit delete on recovery, so a plain locked map is
// sufficient.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Get returns the state for an entity and whether one exists.
func (t *Tracker) Get(name string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[name]
	return st, ok
}

// Set stores the state for an entity.
func (t *Tracker) Set(name string, st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[name] = st
}

// Delete removes an entity's state (recovery).
func (t *Tracker) Delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, name)
}

// Len returns the number of entities currently tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Snapshot returns a copy of all states for the dashboard API.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]State, len(t.states))
	for name, st := range t.states {
		out[name] = st
	}
	return out
}

// Restore rebuilds the tracker from persisted open alert records, replacing
// any existing state. Flags are taken from the rows verbatim so a restart
// reproduces the exact escalation progress that was last made durable.
func (t *Tracker) Restore(open []models.AlertRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]State, len(open))
	for _, rec := range open {
		t.states[rec.EntityName] = State{
			FirstCrossing:  rec.StartTime,
			FirstNotified:  rec.FirstNotified,
			SecondNotified: rec.SecondNotified,
			RecordID:       rec.ID,
		}
	}
}
