package audit

import (
	"sync"
	"time"
)

// DefaultTrailCap bounds the number of retained events per trail.
const DefaultTrailCap = 100

// Event is one immutable entry in a security audit trail.
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	CredentialID string    `json:"credential_id,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Trail is a capped, append-only ring of security events. Once the cap is
// reached the oldest entries are pruned.
type Trail struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewTrail constructs a trail. A non-positive cap falls back to DefaultTrailCap.
func NewTrail(cap int) *Trail {
	if cap <= 0 {
		cap = DefaultTrailCap
	}
	return &Trail{cap: cap}
}

// Append records an event, pruning the oldest entry past the cap.
func (t *Trail) Append(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	if len(t.events) > t.cap {
		t.events = t.events[len(t.events)-t.cap:]
	}
}

// Events returns a copy of the retained events, oldest first.
func (t *Trail) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len reports the number of retained events.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
