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

// IssueRequest describes a new programmatic credential.
type IssueRequest struct {
	Kind       CredentialKind
	IdentityID string
	TenantID   string
	Name       string
	ExpiresAt  *time.Time
	Scopes     []string
	// InheritOwnerPerms applies to personal keys only: when set, the key
	// tracks the owner's resolved permissions instead of an explicit scope.
	InheritOwnerPerms bool
}

// Issue mints a credential and returns the plaintext exactly once. Only the
// digest and display suffix are persisted.
func (m *LifecycleManager) Issue(ctx context.Context, req IssueRequest) (string, *Credential, error) {
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	if req.IdentityID == "" {
		return "", nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	var prefix string
	switch req.Kind {
	case KindServiceKey:
		prefix = PrefixServiceKey
	case KindPersonalKey:
		prefix = PrefixPersonalKey
	default:
		return "", nil, fmt.Errorf("%w: unsupported credential kind %q", ErrInvalidInput, req.Kind)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(m.now()) {
		return "", nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	owner, err := m.store.Identities().FindByID(ctx, req.IdentityID)
	if err != nil {
		return "", nil, err
	}
	if owner.Status != IdentityStatusActive {
		return "", nil, fmt.Errorf("%w: identity %s is not active", ErrInvalidInput, owner.ID)
	}

	raw, digest, err := GenerateSecret(prefix)
	if err != nil {
		return "", nil, fmt.Errorf("generate credential: %w", err)
	}
	now := m.now().UTC()
	cred := &Credential{
		ID:                ids.New(),
		Kind:              req.Kind,
		IdentityID:        owner.ID,
		TenantID:          strings.TrimSpace(req.TenantID),
		Name:              strings.TrimSpace(req.Name),
		Digest:            digest,
		Suffix:            Suffix(raw),
		State:             StateActive,
		ExpiresAt:         req.ExpiresAt,
		Scopes:            dedupeScopes(req.Scopes),
		InheritOwnerPerms: req.Kind == KindPersonalKey && req.InheritOwnerPerms,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.Credentials().Insert(ctx, cred); err != nil {
		return "", nil, err
	}
	m.record(ctx, "credential.issued", cred, "")
	return raw, cred, nil
}

// Rotate issues a replacement for an active credential and starts the grace
// window on the old one. Both stay valid until the caller confirms the
// replacement with ConfirmRotation or the grace period elapses.
func (m *LifecycleManager) Rotate(ctx context.Context, id string, grace time.Duration) (string, *Credential, error) {
	old, err := m.store.Credentials().FindByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	raw, replacement, err := m.Issue(ctx, IssueRequest{
		Kind:              old.Kind,
		IdentityID:        old.IdentityID,
		TenantID:          old.TenantID,
		Name:              old.Name,
		ExpiresAt:         old.ExpiresAt,
		Scopes:            old.Scopes,
		InheritOwnerPerms: old.InheritOwnerPerms,
	})
	if err != nil {
		return "", nil, err
	}
	if _, err := m.StartRotation(ctx, old.ID, grace); err != nil {
		// Roll the replacement back so a failed rotation leaves no orphan.
		_, _ = m.transition(ctx, replacement.ID, []State{StateActive},
			StateChange{To: StateRevoked, Reason: "rotation aborted"})
		return "", nil, err
	}
	return raw, replacement, nil
}

// ConfirmRotation retires the old credential once the caller has switched to
// the replacement.
func (m *LifecycleManager) ConfirmRotation(ctx context.Context, oldID, newID string) error {
	_, err := m.CompleteRotation(ctx, oldID, newID)
	return err
}

func dedupeScopes(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

const (
	lockoutThreshold = 5
	lockoutDuration  = 30 * time.Minute
)

// Login authenticates an email/password pair and mints a session token.
// Failed attempts are counted; the account locks for thirty minutes after
// five consecutive failures. All credential failures collapse into
// ErrUnauthorized so callers cannot enumerate accounts.
func (a *Authenticator) Login(ctx context.Context, email, password, tenantID string, ttl time.Duration) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", time.Time{}, ErrUnauthorized
	}
	identity, err := a.store.Identities().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return "", time.Time{}, ErrUnauthorized
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !identity.CanAuthenticate(a.now()) {
		_ = audit.LogEvent(ctx, "authentication.failed", map[string]any{
			"scheme": SchemeSession,
			"reason": FailureOwnerDisabled,
		})
		return "", time.Time{}, ErrUnauthorized
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		_ = a.store.Identities().RecordLoginFailure(ctx, identity.ID, lockoutThreshold, lockoutDuration, a.now())
		_ = audit.LogEvent(ctx, "authentication.failed", map[string]any{
			"scheme": SchemeSession,
			"reason": "password_mismatch",
		})
		return "", time.Time{}, ErrUnauthorized
	}
	if err := a.store.Identities().RecordLoginSuccess(ctx, identity.ID, a.now()); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	token, expiresAt, err := a.sessions.Mint(identity, tenantID, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	_ = audit.LogEvent(ctx, "auth.session.issued", map[string]any{
		"identity_id": identity.ID,
		"tenant_id":   tenantID,
		"expires_at":  expiresAt.Format(time.RFC3339),
	})
	return token, expiresAt, nil
}
