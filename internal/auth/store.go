package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the identity core.
// Implementations must guarantee that RecordUsage and Transition are atomic
// at the storage layer; no caller performs read-modify-write on counters or
// lifecycle state.
type Store interface {
	Credentials() CredentialStore
	Identities() IdentityStore
	Roles() RoleStore
}

// StateChange describes one lifecycle transition applied as a single atomic
// state-field update.
type StateChange struct {
	To               State
	Reason           string
	RotationDeadline *time.Time
	RotatedToID      string
}

// CredentialStore manages stored programmatic credentials.
type CredentialStore interface {
	Insert(ctx context.Context, cred *Credential) error
	FindByID(ctx context.Context, id string) (*Credential, error)
	// FindByDigest is the hot authentication path. Returns ErrNotFound when
	// no credential matches; any other error means the store is unreachable
	// and authentication fails closed.
	FindByDigest(ctx context.Context, digest string) (*Credential, error)
	// Transition applies change only while the current state is one of
	// from, in a single statement. Returns ErrConflict when the guard does
	// not hold, so a terminal state can never be overwritten.
	Transition(ctx context.Context, id string, from []State, change StateChange) (*Credential, error)
	// RecordUsage bumps the usage counter and last-used metadata atomically.
	RecordUsage(ctx context.Context, id string, origin Origin, at time.Time) error
	// MarkExpired sweeps every non-terminal credential past its expiry.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	ListByIdentity(ctx context.Context, identityID string) ([]Credential, error)
}

// IdentityStore manages principals. The identity/role graph is administered
// elsewhere; this core reads it and maintains only login-failure bookkeeping.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	// RecordLoginSuccess resets the failure counter and clears any lock.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	// RecordLoginFailure bumps the failure counter and, at the threshold,
	// stamps a lock expiry. Applied as one atomic statement.
	RecordLoginFailure(ctx context.Context, id string, lockAfter int, lockFor time.Duration, at time.Time) error
}

// RoleStore reads the role/permission graph.
type RoleStore interface {
	// AssignmentsFor returns the active role assignments of an identity
	// within one tenant.
	AssignmentsFor(ctx context.Context, identityID, tenantID string) ([]RoleAssignment, error)
	RoleByID(ctx context.Context, roleID string) (*Role, error)
}
