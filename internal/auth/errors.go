package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCredentialNotFound indicates no credential record exists for an account.
var ErrCredentialNotFound = errors.New("credential not found")

// AuthRequiredError indicates an account has no usable credential and the
// user must complete (or repeat) the authorization flow.
type AuthRequiredError struct {
	Email  string
	Status Status
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authorization required for %s (status: %s)", e.Email, e.Status)
}

// ScopeError indicates a credential lacks scopes required by an operation.
// It is surfaced before any downstream call is attempted.
type ScopeError struct {
	Email   string
	Missing []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("credential for %s lacks required scopes: %s", e.Email, strings.Join(e.Missing, ", "))
}

// CallbackTimeoutError indicates a pending authorization expired before the
// provider redirect arrived.
type CallbackTimeoutError struct {
	State string
}

func (e *CallbackTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for authorization callback (state %s)", e.State)
}

// ProviderError wraps an error reported by the OAuth provider on the
// authorization redirect (e.g. access_denied).
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("authorization provider returned error: %s", e.Code)
}

// isFatalRefreshError classifies a refresh failure. Errors indicating the
// refresh token itself is invalid or revoked cannot be retried; the user must
// re-authorize. Anything else is treated as transient.
func isFatalRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid_grant", "revoked", "not found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
