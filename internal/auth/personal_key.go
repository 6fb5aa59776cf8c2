package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PersonalKeyValidator verifies user-issued personal credentials. A personal
// key acts on behalf of its owner: it either inherits the owner's resolved
// permissions or intersects its explicit scope list with them; it can
// restrict the owner's grant but never exceed it.
type PersonalKeyValidator struct {
	store    Store
	resolver *Resolver
	now      func() time.Time
}

func (v *PersonalKeyValidator) Validate(ctx context.Context, raw, tenantHint string, origin Origin) (Result, error) {
	res := Result{Scheme: SchemePersonal}

	cred, reason, err := lookupByDigest(ctx, v.store, raw, v.now())
	if err != nil {
		return res, err
	}
	if reason != "" {
		res.Failure = reason
		return res, nil
	}
	if cred.Kind != KindPersonalKey {
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
	if tenantID != "" {
		assignments, err := v.store.Roles().AssignmentsFor(ctx, owner.ID, tenantID)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		active := false
		for _, a := range assignments {
			if a.Status == AssignmentStatusActive {
				active = true
				break
			}
		}
		if !active {
			res.Failure = FailureTenantRevoked
			return res, nil
		}
	}

	var credScope []string
	if !cred.InheritOwnerPerms {
		// Explicit scope list is authoritative and intersects with the
		// owner's grant; an empty list grants nothing.
		credScope = cred.Scopes
		if credScope == nil {
			credScope = []string{}
		}
	}
	perms, err := v.resolver.Resolve(ctx, owner.ID, tenantID, credScope)
	if err != nil {
		if errors.Is(err, ErrRoleDepthExceeded) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_ = v.store.Credentials().RecordUsage(ctx, cred.ID, origin, v.now())

	res.OK = true
	res.IdentityID = owner.ID
	res.TenantID = tenantID
	res.CredentialID = cred.ID
	res.Permissions = perms
	return res, nil
}
