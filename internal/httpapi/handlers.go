// Package httpapi is the HTTP surface of the identity service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"rightshub.io/internal/audit"
	"rightshub.io/internal/auth"
	"rightshub.io/internal/obs"
	"rightshub.io/internal/ratelimit"
)

// ReadyProbe checks the service's hard dependencies.
type ReadyProbe struct {
	DB *sql.DB
	// Redis is optional: the limiter fails open without it, so an
	// unreachable counter backend degrades rather than blocks readiness.
	Redis func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	authn     *auth.Authenticator
	lifecycle *auth.LifecycleManager
	limiter   *ratelimit.Service
}

func New(rp ReadyProbe, version string, authn *auth.Authenticator, lifecycle *auth.LifecycleManager, limiter *ratelimit.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		authn:      authn,
		lifecycle:  lifecycle,
		limiter:    limiter,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth + credential lifecycle
	a.mux.HandleFunc("/v1/auth/token", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/introspect", a.handleIntrospect)
	a.mux.HandleFunc("/v1/credentials", a.handleCredentials)
	a.mux.HandleFunc("/v1/credentials/", a.handleCredentialScoped)
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withTenantBudget(h)
	h = a.withAuth(h)
	h = obs.Instrument(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "rightshub-iam",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	resp := map[string]any{"status": "ready"}
	if a.readyProbe.Redis != nil {
		if err := a.readyProbe.Redis(r.Context()); err != nil {
			resp["rate_limiter"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "rightshub-iam",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, "credentials", "admin") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": a.lifecycle.Trail(),
	})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if actor := audit.ActorFromContext(ctx); actor != "" {
		fields["actor"] = actor
	}
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
