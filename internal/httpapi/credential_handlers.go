package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rightshub.io/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const sessionTTL = 30 * time.Minute

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, expiresAt, err := a.authn.Login(r.Context(), req.Email, req.Password, req.TenantID, sessionTTL)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if auth.Retryable(err) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusServiceUnavailable, "login temporarily unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (a *API) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scheme":        res.Scheme,
		"identity_id":   res.IdentityID,
		"tenant_id":     res.TenantID,
		"credential_id": res.CredentialID,
		"permissions":   res.Permissions.Slice(),
	})
}

type issueCredentialRequest struct {
	Kind              string     `json:"kind"`
	IdentityID        string     `json:"identity_id"`
	TenantID          string     `json:"tenant_id"`
	Name              string     `json:"name"`
	ExpiresAt         *time.Time `json:"expires_at"`
	Scopes            []string   `json:"scopes"`
	InheritOwnerPerms bool       `json:"inherit_owner_permissions"`
}

type credentialResponse struct {
	ID                string     `json:"id"`
	Kind              string     `json:"kind"`
	IdentityID        string     `json:"identity_id"`
	TenantID          string     `json:"tenant_id,omitempty"`
	Name              string     `json:"name,omitempty"`
	Hint              string     `json:"hint"`
	State             string     `json:"state"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Scopes            []string   `json:"scopes,omitempty"`
	InheritOwnerPerms bool       `json:"inherit_owner_permissions,omitempty"`
	RotationDeadline  *time.Time `json:"rotation_deadline,omitempty"`
	RotatedToID       string     `json:"rotated_to_id,omitempty"`
	TotalRequests     int64      `json:"total_requests"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toCredentialResponse(c *auth.Credential) credentialResponse {
	return credentialResponse{
		ID:                c.ID,
		Kind:              string(c.Kind),
		IdentityID:        c.IdentityID,
		TenantID:          c.TenantID,
		Name:              c.Name,
		Hint:              c.DisplayHint(),
		State:             string(c.State),
		ExpiresAt:         c.ExpiresAt,
		Scopes:            c.Scopes,
		InheritOwnerPerms: c.InheritOwnerPerms,
		RotationDeadline:  c.RotationDeadline,
		RotatedToID:       c.RotatedToID,
		TotalRequests:     c.TotalRequests,
		LastUsedAt:        c.LastUsedAt,
		CreatedAt:         c.CreatedAt,
	}
}

func (a *API) handleCredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleIssueCredential(w, r)
	case http.MethodGet:
		a.handleListCredentials(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req issueCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.IdentityID == "" {
		req.IdentityID = res.IdentityID
	}
	// Issuing for someone else is an administrative act.
	if req.IdentityID != res.IdentityID && !a.authn.Authorize(res, "credentials", "admin") {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	if req.TenantID == "" {
		req.TenantID = res.TenantID
	}

	plaintext, cred, err := a.lifecycle.Issue(r.Context(), auth.IssueRequest{
		Kind:              auth.CredentialKind(req.Kind),
		IdentityID:        req.IdentityID,
		TenantID:          req.TenantID,
		Name:              req.Name,
		ExpiresAt:         req.ExpiresAt,
		Scopes:            req.Scopes,
		InheritOwnerPerms: req.InheritOwnerPerms,
	})
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}

	// The secret appears in this response and nowhere else, ever.
	writeJSON(w, http.StatusCreated, map[string]any{
		"secret":     plaintext,
		"credential": toCredentialResponse(cred),
	})
}

func (a *API) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	identityID := r.URL.Query().Get("identity_id")
	if identityID == "" {
		identityID = res.IdentityID
	}
	if identityID != res.IdentityID && !a.authn.Authorize(res, "credentials", "admin") {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	creds, err := a.authn.Store().Credentials().ListByIdentity(r.Context(), identityID)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	out := make([]credentialResponse, 0, len(creds))
	for i := range creds {
		out = append(out, toCredentialResponse(&creds[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

type lifecycleActionRequest struct {
	Reason string `json:"reason"`
	// GraceHours applies to rotate only; zero means the default window.
	GraceHours int `json:"grace_hours"`
	// NewCredentialID applies to confirm only.
	NewCredentialID string `json:"new_credential_id"`
}

func (a *API) handleCredentialScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/credentials/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.handleGetCredential(w, r, id)
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	a.handleCredentialAction(w, r, id, parts[1])
}

func (a *API) handleGetCredential(w http.ResponseWriter, r *http.Request, id string) {
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	cred, err := a.authn.Store().Credentials().FindByID(r.Context(), id)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	if cred.IdentityID != res.IdentityID && !a.authn.Authorize(res, "credentials", "admin") {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(cred))
}

func (a *API) handleCredentialAction(w http.ResponseWriter, r *http.Request, id, action string) {
	res, ok := auth.ResultFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	current, err := a.authn.Store().Credentials().FindByID(r.Context(), id)
	if err != nil {
		handleLifecycleError(w, r, err)
		return
	}
	if current.IdentityID != res.IdentityID && !a.authn.Authorize(res, "credentials", "admin") {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req lifecycleActionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	switch action {
	case "suspend":
		cred, err := a.lifecycle.Suspend(r.Context(), id, req.Reason)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		a.audit(r.Context(), "api.credential.suspend", map[string]any{"credential_id": id})
		writeJSON(w, http.StatusOK, toCredentialResponse(cred))

	case "reactivate":
		cred, err := a.lifecycle.Reactivate(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		a.audit(r.Context(), "api.credential.reactivate", map[string]any{"credential_id": id})
		writeJSON(w, http.StatusOK, toCredentialResponse(cred))

	case "revoke":
		cred, err := a.lifecycle.Revoke(r.Context(), id, req.Reason)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		a.audit(r.Context(), "api.credential.revoke", map[string]any{"credential_id": id})
		writeJSON(w, http.StatusOK, toCredentialResponse(cred))

	case "rotate":
		grace := time.Duration(req.GraceHours) * time.Hour
		plaintext, replacement, err := a.lifecycle.Rotate(r.Context(), id, grace)
		if err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		a.audit(r.Context(), "api.credential.rotate", map[string]any{
			"credential_id":  id,
			"replacement_id": replacement.ID,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"secret":     plaintext,
			"credential": toCredentialResponse(replacement),
		})

	case "confirm":
		if err := a.lifecycle.ConfirmRotation(r.Context(), id, req.NewCredentialID); err != nil {
			handleLifecycleError(w, r, err)
			return
		}
		a.audit(r.Context(), "api.credential.confirm_rotation", map[string]any{"credential_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"status": "rotated"})

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func handleLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "credential not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case auth.Retryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "store temporarily unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
