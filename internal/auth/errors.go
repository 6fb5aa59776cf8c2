package auth

import "errors"

var (
	ErrNotFound          = errors.New("auth: not found")
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrConflict          = errors.New("auth: resource conflict")
	ErrUnauthorized      = errors.New("auth: unauthorized")
	ErrInvalidTransition = errors.New("auth: invalid lifecycle transition")

	// ErrStoreUnavailable marks a failed-closed infrastructure error: the
	// credential store could not be reached, so authentication cannot
	// succeed but the caller may retry.
	ErrStoreUnavailable = errors.New("auth: credential store unavailable")

	// ErrRoleDepthExceeded is a configuration error: the role inheritance
	// chain exceeds the depth ceiling or contains a cycle. It is surfaced
	// distinctly from a plain denial because it signals an administrative
	// data defect.
	ErrRoleDepthExceeded = errors.New("auth: role inheritance depth exceeded")
)

// FailureReason is the closed taxonomy of terminal authentication failures.
type FailureReason string

const (
	FailureUnrecognized     FailureReason = "unrecognized_credential"
	FailureNotFound         FailureReason = "not_found"
	FailureInactive         FailureReason = "inactive"
	FailureExpired          FailureReason = "expired"
	FailureSignatureInvalid FailureReason = "signature_invalid"
	FailureMalformed        FailureReason = "malformed"
	FailureTenantRevoked    FailureReason = "tenant_access_revoked"
	FailureOwnerDisabled    FailureReason = "owner_disabled"
)

// Retryable reports whether a failed call may be retried by the client.
// Only infrastructure errors qualify; every taxonomy failure is terminal.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
