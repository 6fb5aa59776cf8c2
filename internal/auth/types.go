package auth

import "time"

// Scheme identifies the credential family an inbound bearer token belongs to.
type Scheme string

const (
	SchemeSession  Scheme = "session"
	SchemeService  Scheme = "service"
	SchemePersonal Scheme = "personal"
	SchemeUnknown  Scheme = "unknown"
)

// State is the lifecycle state of a stored credential.
type State string

const (
	StateActive    State = "active"
	StateSuspended State = "suspended"
	StateRevoked   State = "revoked"
	StateRotating  State = "rotating"
	StateExpired   State = "expired"
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == StateRevoked || s == StateExpired
}

// CredentialKind distinguishes the two persisted credential families.
// Session tokens are stateless and never stored.
type CredentialKind string

const (
	KindServiceKey  CredentialKind = "service_key"
	KindPersonalKey CredentialKind = "personal_key"
)

// Credential is a stored long-lived credential. The plaintext secret is
// returned exactly once at issuance; only its digest is persisted.
type Credential struct {
	ID         string
	Kind       CredentialKind
	IdentityID string
	TenantID   string
	Name       string
	Digest     string
	Suffix     string
	State      State
	ExpiresAt  *time.Time

	// Scopes restricts the credential below its owner's grant. Empty means
	// the owner's configured permissions apply.
	Scopes []string
	// InheritOwnerPerms defers personal-key scope to the owner's resolved
	// role permissions instead of the explicit scope list.
	InheritOwnerPerms bool

	RotationDeadline *time.Time
	RotatedToID      string
	RevokedReason    string

	TotalRequests     int64
	LastUsedAt        *time.Time
	LastUsedOrigin    string
	LastUsedUserAgent string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsableAt reports whether the credential may authenticate at the given
// instant, applying lazy expiry and the rotation grace window.
func (c *Credential) UsableAt(now time.Time) (bool, FailureReason) {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false, FailureExpired
	}
	switch c.State {
	case StateActive:
		return true, ""
	case StateRotating:
		if c.RotationDeadline != nil && now.After(*c.RotationDeadline) {
			return false, FailureInactive
		}
		return true, ""
	case StateExpired:
		return false, FailureExpired
	default:
		return false, FailureInactive
	}
}

// DisplayHint is the only representation of the secret ever echoed back.
func (c *Credential) DisplayHint() string {
	prefix := PrefixPersonalKey
	if c.Kind == KindServiceKey {
		prefix = PrefixServiceKey
	}
	return prefix + "_…" + c.Suffix
}

// IdentityKind separates human principals from service principals.
type IdentityKind string

const (
	IdentityUser    IdentityKind = "user"
	IdentityService IdentityKind = "service"
)

const (
	IdentityStatusActive   = "active"
	IdentityStatusDisabled = "disabled"
)

// Identity is a principal: a human user or a service account.
type Identity struct {
	ID           string
	Kind         IdentityKind
	Email        string
	PasswordHash string
	Status       string

	FailedLogins int
	LockedUntil  *time.Time

	// Scopes are the configured permissions of a service principal; unused
	// for human users, whose permissions come from role assignments.
	Scopes []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the identity is under a failed-login lockout.
func (i *Identity) Locked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// CanAuthenticate reports whether the identity may authenticate at all.
// A disabled or locked identity pre-empts any otherwise valid credential.
func (i *Identity) CanAuthenticate(now time.Time) bool {
	return i.Status == IdentityStatusActive && !i.Locked(now)
}

// Role is a named permission bundle, optionally inheriting from one parent.
type Role struct {
	ID          string
	TenantID    string
	Name        string
	ParentID    string
	ScopeTag    string // self, tenant or global
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	RoleScopeSelf   = "self"
	RoleScopeTenant = "tenant"
	RoleScopeGlobal = "global"
)

const AssignmentStatusActive = "active"

// RoleAssignment binds an identity to a role within one tenant, with optional
// direct grants and denials. A denial always overrides a grant.
type RoleAssignment struct {
	IdentityID    string
	RoleID        string
	TenantID      string
	Status        string
	DirectGrants  []string
	DirectDenials []string
	CreatedAt     time.Time
}

// Origin carries client metadata recorded on programmatic credential use.
type Origin struct {
	IP        string
	UserAgent string
}

// Result is the authoritative outcome of one authentication call, shared by
// all three scheme validators.
type Result struct {
	OK           bool
	Scheme       Scheme
	IdentityID   string
	TenantID     string
	CredentialID string
	Permissions  *ResolvedSet
	Failure      FailureReason
}
