package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rightshub.io/internal/audit"
	"rightshub.io/internal/ids"
)

// DefaultRotationGrace is the overlap window during which a rotating
// credential and its replacement are both valid.
const DefaultRotationGrace = 24 * time.Hour

// LifecycleManager owns the credential state machine:
//
//	active    → suspended | revoked | rotating | expired
//	suspended → active | revoked
//	rotating  → revoked (grace elapse or confirmed replacement)
//	revoked, expired: terminal
//
// Transitions are applied as a single atomic state-field update by the store;
// the guard list makes a lost race against a terminal transition harmless.
// Every transition appends an immutable event to a capped trail.
type LifecycleManager struct {
	store Store
	trail *audit.Trail
	now   func() time.Time
}

// NewLifecycleManager constructs a manager with a fresh audit trail.
func NewLifecycleManager(store Store) *LifecycleManager {
	return &LifecycleManager{
		store: store,
		trail: audit.NewTrail(audit.DefaultTrailCap),
		now:   time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (m *LifecycleManager) WithClock(fn func() time.Time) *LifecycleManager {
	if fn != nil {
		m.now = fn
	}
	return m
}

// Trail returns the retained transition events, oldest first.
func (m *LifecycleManager) Trail() []audit.Event {
	return m.trail.Events()
}

// Suspend moves an active credential to suspended. Reversible.
func (m *LifecycleManager) Suspend(ctx context.Context, id, reason string) (*Credential, error) {
	cred, err := m.transition(ctx, id, []State{StateActive}, StateChange{To: StateSuspended, Reason: reason})
	if err != nil {
		return nil, err
	}
	m.record(ctx, "credential.suspended", cred, reason)
	return cred, nil
}

// Reactivate moves a suspended credential back to active, unless its expiry
// has already passed, in which case it lands in expired instead.
func (m *LifecycleManager) Reactivate(ctx context.Context, id string) (*Credential, error) {
	current, err := m.store.Credentials().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State != StateSuspended {
		return nil, fmt.Errorf("%w: reactivate from %s", ErrInvalidTransition, current.State)
	}
	to := StateActive
	if current.ExpiresAt != nil && m.now().After(*current.ExpiresAt) {
		to = StateExpired
	}
	cred, err := m.transition(ctx, id, []State{StateSuspended}, StateChange{To: to})
	if err != nil {
		return nil, err
	}
	event := "credential.reactivated"
	if to == StateExpired {
		event = "credential.expired"
	}
	m.record(ctx, event, cred, "")
	return cred, nil
}

// Revoke moves any non-terminal credential to revoked. Irreversible.
func (m *LifecycleManager) Revoke(ctx context.Context, id, reason string) (*Credential, error) {
	cred, err := m.transition(ctx, id,
		[]State{StateActive, StateSuspended, StateRotating},
		StateChange{To: StateRevoked, Reason: reason})
	if err != nil {
		return nil, err
	}
	m.record(ctx, "credential.revoked", cred, reason)
	return cred, nil
}

// StartRotation moves an active credential to rotating and stamps the grace
// deadline. The credential stays usable until the deadline or until the
// replacement is confirmed.
func (m *LifecycleManager) StartRotation(ctx context.Context, id string, grace time.Duration) (*Credential, error) {
	if grace <= 0 {
		grace = DefaultRotationGrace
	}
	deadline := m.now().Add(grace)
	cred, err := m.transition(ctx, id, []State{StateActive},
		StateChange{To: StateRotating, RotationDeadline: &deadline})
	if err != nil {
		return nil, err
	}
	m.record(ctx, "credential.rotation_started", cred, "")
	return cred, nil
}

// CompleteRotation retires a rotating credential, recording a forward pointer
// to its replacement for audit chaining.
func (m *LifecycleManager) CompleteRotation(ctx context.Context, id, newID string) (*Credential, error) {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return nil, fmt.Errorf("%w: replacement credential id is required", ErrInvalidInput)
	}
	cred, err := m.transition(ctx, id, []State{StateRotating},
		StateChange{To: StateRevoked, Reason: "rotation completed", RotatedToID: newID})
	if err != nil {
		return nil, err
	}
	m.record(ctx, "credential.rotated", cred, "replaced by "+newID)
	return cred, nil
}

// SweepExpired marks every non-terminal credential past its expiry. Invoked
// periodically; validation also applies expiry lazily, so the sweep is a
// backstop rather than a correctness requirement.
func (m *LifecycleManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.Credentials().MarkExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		_ = audit.LogEvent(ctx, "credential.expired_sweep", map[string]any{"count": n})
	}
	return n, nil
}

func (m *LifecycleManager) transition(ctx context.Context, id string, from []State, change StateChange) (*Credential, error) {
	cred, err := m.store.Credentials().Transition(ctx, id, from, change)
	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, change.To)
	}
	return cred, err
}

func (m *LifecycleManager) record(ctx context.Context, event string, cred *Credential, reason string) {
	actor := audit.ActorFromContext(ctx)
	m.trail.Append(audit.Event{
		ID:           ids.New(),
		Type:         event,
		CredentialID: cred.ID,
		Actor:        actor,
		Reason:       reason,
		OccurredAt:   m.now().UTC(),
	})
	fields := map[string]any{
		"credential_id": cred.ID,
		"kind":          cred.Kind,
		"state":         cred.State,
	}
	if cred.TenantID != "" {
		fields["tenant_id"] = cred.TenantID
	}
	if reason != "" {
		fields["reason"] = reason
	}
	_ = audit.LogEvent(ctx, event, fields)
}
