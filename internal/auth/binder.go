package auth

import (
	"context"
	"time"

	"rightshub.io/internal/audit"
	"rightshub.io/internal/obs"
)

// Authenticator is the single entry point for inbound credentials. It detects
// the scheme from the token shape and dispatches to the matching validator;
// callers never branch on credential type themselves.
type Authenticator struct {
	store        Store
	resolver     *Resolver
	sessions     *SessionValidator
	serviceKeys  *ServiceKeyValidator
	personalKeys *PersonalKeyValidator
	now          func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithSessionSecret sets the HS256 signing secret for session tokens.
func WithSessionSecret(secret []byte) Option {
	return func(a *Authenticator) { a.sessions.secret = secret }
}

// WithIssuer pins the expected issuer claim on session tokens.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) { a.sessions.issuer = issuer }
}

// WithClock overrides the time source for every validator. Test hook.
func WithClock(fn func() time.Time) Option {
	return func(a *Authenticator) {
		if fn == nil {
			return
		}
		a.now = fn
		a.sessions.now = fn
		a.serviceKeys.now = fn
		a.personalKeys.now = fn
	}
}

// NewAuthenticator wires the three scheme validators over one store.
func NewAuthenticator(store Store, opts ...Option) *Authenticator {
	resolver := NewResolver(store.Roles())
	a := &Authenticator{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
	a.sessions = &SessionValidator{store: store, resolver: resolver, now: time.Now}
	a.serviceKeys = &ServiceKeyValidator{store: store, now: time.Now}
	a.personalKeys = &PersonalKeyValidator{store: store, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sessions exposes the session validator for token minting.
func (a *Authenticator) Sessions() *SessionValidator { return a.sessions }

// Store exposes the backing store for read paths in the API layer.
func (a *Authenticator) Store() Store { return a.store }

// Resolver exposes the shared permission resolver.
func (a *Authenticator) Resolver() *Resolver { return a.resolver }

// Authenticate validates a raw bearer credential. The returned Result is
// authoritative: OK with resolved permissions, or a failure reason from the
// closed taxonomy. An error is returned only for infrastructure faults, which
// callers must treat as unavailable rather than denied.
func (a *Authenticator) Authenticate(ctx context.Context, raw, tenantHint string, origin Origin) (Result, error) {
	scheme := DetectScheme(raw)

	var (
		res Result
		err error
	)
	switch scheme {
	case SchemeSession:
		res, err = a.sessions.Validate(ctx, raw, tenantHint)
	case SchemeService:
		res, err = a.serviceKeys.Validate(ctx, raw, tenantHint, origin)
	case SchemePersonal:
		res, err = a.personalKeys.Validate(ctx, raw, tenantHint, origin)
	default:
		res = Result{Scheme: SchemeUnknown, Failure: FailureUnrecognized}
	}
	if err != nil {
		obs.ObserveAuthAttempt(string(scheme), "error")
		return res, err
	}

	if res.OK {
		obs.ObserveAuthAttempt(string(scheme), "success")
		// Session validation is on the interactive hot path; only the
		// programmatic schemes get a per-success audit line.
		if scheme == SchemeService || scheme == SchemePersonal {
			_ = audit.LogEvent(ctx, "authentication.succeeded", map[string]any{
				"scheme":        scheme,
				"identity_id":   res.IdentityID,
				"tenant_id":     res.TenantID,
				"credential_id": res.CredentialID,
				"origin_ip":     origin.IP,
			})
		}
		return res, nil
	}

	obs.ObserveAuthAttempt(string(scheme), "failure")
	_ = audit.LogEvent(ctx, "authentication.failed", map[string]any{
		"scheme":    scheme,
		"reason":    res.Failure,
		"origin_ip": origin.IP,
	})
	if res.Failure == FailureSignatureInvalid {
		// Possible tampering, not a routine miss.
		obs.LogEntry(map[string]any{
			"level":     "error",
			"msg":       "credential signature verification failed",
			"scheme":    scheme,
			"origin_ip": origin.IP,
		})
	}
	return res, nil
}

// Authorize answers a single permission question against an authenticated
// result. Deny-by-default: a failed or permissionless result never passes.
func (a *Authenticator) Authorize(res Result, resource, action string) bool {
	if !res.OK || res.Permissions == nil {
		return false
	}
	return res.Permissions.Has(resource, action)
}
