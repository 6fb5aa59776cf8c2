package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rightshub.io/internal/audit"
	"rightshub.io/internal/auth"
	"rightshub.io/internal/ratelimit"
)

const (
	authHeader   = "Authorization"
	bearer       = "Bearer "
	tenantHeader = "X-Tenant-ID"
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth authenticates every non-public request and attaches the result to
// the context. Infrastructure faults map to 503, not 401: the caller's
// credential was never judged.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		origin := auth.Origin{IP: clientIP(r), UserAgent: r.UserAgent()}
		res, err := a.authn.Authenticate(r.Context(), token, r.Header.Get(tenantHeader), origin)
		if err != nil {
			if auth.Retryable(err) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !res.OK {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":      "unauthorized",
				"reason":     res.Failure,
				"request_id": RequestIDFromContext(r.Context()),
			})
			return
		}

		ctx := auth.ContextWithResult(r.Context(), res)
		ctx = audit.WithActor(ctx, res.IdentityID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withTenantBudget charges each authenticated request against the tenant's
// read or write budget. Runs after withAuth, so the tenant is authoritative.
func (a *API) withTenantBudget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := auth.ResultFromContext(r.Context())
		if !ok || a.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		subject := res.TenantID
		if subject == "" {
			subject = res.IdentityID
		}
		class := ratelimit.ClassForMethod(r.Method)
		d := a.limiter.Check(r.Context(), subject, class)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(d), 10))
			writeError(w, r, http.StatusTooManyRequests, "tenant rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d ratelimit.Decision) int64 {
	secs := int64(ratelimit.Window.Seconds())
	if !d.ResetAt.IsZero() {
		if until := d.ResetAt.Unix() - nowUnix(); until > 0 && until < secs {
			secs = until
		}
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ensurePermission authorizes the current request for resource:action.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, resource, action string) bool {
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if !a.authn.Authorize(res, resource, action) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errBadScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
