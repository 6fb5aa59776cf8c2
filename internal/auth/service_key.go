package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ServiceKeyValidator verifies long-lived programmatic service credentials.
type ServiceKeyValidator struct {
	store Store
	now   func() time.Time
}

// lookupByDigest is the shared hot path for opaque credentials: digest the
// raw secret, fetch, and gate on lifecycle state. A credential found past its
// expiry is lazily transitioned to expired; the periodic sweep covers the
// rest.
func lookupByDigest(ctx context.Context, store Store, raw string, now time.Time) (*Credential, FailureReason, error) {
	cred, err := store.Credentials().FindByDigest(ctx, Digest(raw))
	if errors.Is(err, ErrNotFound) {
		return nil, FailureNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	usable, reason := cred.UsableAt(now)
	if !usable {
		if reason == FailureExpired && !cred.State.Terminal() {
			_, _ = store.Credentials().Transition(ctx, cred.ID,
				[]State{StateActive, StateSuspended, StateRotating},
				StateChange{To: StateExpired, Reason: "expiry elapsed"})
		}
		return nil, reason, nil
	}
	return cred, "", nil
}

// Validate checks a service key and returns the owning service principal's
// effective scopes. Usage counters and origin are recorded atomically at the
// storage layer.
func (v *ServiceKeyValidator) Validate(ctx context.Context, raw, tenantHint string, origin Origin) (Result, error) {
	res := Result{Scheme: SchemeService}

	cred, reason, err := lookupByDigest(ctx, v.store, raw, v.now())
	if err != nil {
		return res, err
	}
	if reason != "" {
		res.Failure = reason
		return res, nil
	}
	if cred.Kind != KindServiceKey {
		res.Failure = FailureNotFound
		return res, nil
	}

	owner, err := v.store.Identities().FindByID(ctx, cred.IdentityID)
	if errors.Is(err, ErrNotFound) {
		res.Failure = FailureOwnerDisabled
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !owner.CanAuthenticate(v.now()) {
		res.Failure = FailureOwnerDisabled
		return res, nil
	}

	tenantID := cred.TenantID
	if tenantHint != "" {
		if tenantID == "" {
			tenantID = tenantHint
		} else if tenantID != tenantHint {
			res.Failure = FailureTenantRevoked
			return res, nil
		}
	}

	// Token-level scopes override the service principal's configured set.
	scopes := cred.Scopes
	if len(scopes) == 0 {
		scopes = owner.Scopes
	}

	// Best effort: a failed usage bump never blocks an otherwise valid call.
	_ = v.store.Credentials().RecordUsage(ctx, cred.ID, origin, v.now())

	res.OK = true
	res.IdentityID = owner.ID
	res.TenantID = tenantID
	res.CredentialID = cred.ID
	res.Permissions = NewResolvedSet(scopes)
	return res, nil
}
