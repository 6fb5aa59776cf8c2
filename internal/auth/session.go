package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultSessionTTL = 30 * time.Minute

// SessionClaims are the JWT claims carried by short-lived session tokens.
type SessionClaims struct {
	TenantID  string `json:"tenant_id,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidator verifies structured session tokens and re-checks the
// referenced identity against the store: a signature that still verifies is
// not enough once the subject has been disabled or lost tenant access.
type SessionValidator struct {
	secret   []byte
	issuer   string
	store    Store
	resolver *Resolver
	now      func() time.Time
}

// Mint signs a session token for the identity using HS256.
func (v *SessionValidator) Mint(identity *Identity, tenantID string, ttl time.Duration) (string, time.Time, error) {
	if identity == nil || strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if len(v.secret) == 0 {
		return "", time.Time{}, errors.New("auth: session secret is not configured")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := v.now().UTC()
	exp := now.Add(ttl)
	claims := SessionClaims{
		TenantID:  tenantID,
		SessionID: uuid.NewString(),
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies signature and claims, then re-checks identity status and
// tenant membership. Disable pre-empts token expiry: a disabled subject fails
// with owner_disabled even while the token itself is still within lifetime.
func (v *SessionValidator) Validate(ctx context.Context, raw, tenantHint string) (Result, error) {
	res := Result{Scheme: SchemeSession}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			res.Failure = FailureExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			res.Failure = FailureSignatureInvalid
		default:
			res.Failure = FailureMalformed
		}
		return res, nil
	}
	if !parsed.Valid {
		res.Failure = FailureSignatureInvalid
		return res, nil
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		res.Failure = FailureMalformed
		return res, nil
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		res.Failure = FailureMalformed
		return res, nil
	}

	identity, err := v.store.Identities().FindByID(ctx, subject)
	if errors.Is(err, ErrNotFound) {
		res.Failure = FailureNotFound
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !identity.CanAuthenticate(v.now()) {
		res.Failure = FailureOwnerDisabled
		return res, nil
	}

	tenantID := claims.TenantID
	if tenantHint != "" {
		if tenantID == "" {
			tenantID = tenantHint
		} else if tenantID != tenantHint {
			res.Failure = FailureTenantRevoked
			return res, nil
		}
	}
	if tenantID != "" {
		// Tenant access may have been revoked mid-lifetime; the claim alone
		// is not trusted.
		assignments, err := v.store.Roles().AssignmentsFor(ctx, identity.ID, tenantID)
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

	perms, err := v.resolver.Resolve(ctx, identity.ID, tenantID, nil)
	if err != nil {
		if errors.Is(err, ErrRoleDepthExceeded) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	res.OK = true
	res.IdentityID = identity.ID
	res.TenantID = tenantID
	res.Permissions = perms
	return res, nil
}
