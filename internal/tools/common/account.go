package common

import (
	"errors"
	"fmt"

	"github.com/zooyoda/workspace-mcp/internal/auth"
)

// AccountFromArgs extracts the required account email from tool arguments.
func AccountFromArgs(args map[string]interface{}) (string, error) {
	account, ok := args["account"].(string)
	if !ok || account == "" {
		return "", fmt.Errorf("account is required (the Google account email to act as)")
	}
	return account, nil
}

// StringArg returns the named string argument, or fallback when absent.
func StringArg(args map[string]interface{}, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntArg returns the named integer argument, or fallback when absent. JSON
// numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, fallback int64) int64 {
	if v, ok := args[name].(float64); ok {
		return int64(v)
	}
	return fallback
}

// DescribeAuthError turns credential errors into an actionable message for
// the AI. Anything that is not an auth problem passes through unchanged.
func DescribeAuthError(err error) string {
	var authErr *auth.AuthRequiredError
	if errors.As(err, &authErr) {
		switch authErr.Status {
		case auth.StatusExpired:
			return fmt.Sprintf("The credential for %s has expired and cannot be refreshed. Run google_authorize to re-authenticate.", authErr.Email)
		case auth.StatusRefreshFailed:
			return fmt.Sprintf("Token refresh failed for %s. Run google_authorize to re-authenticate.", authErr.Email)
		default:
			return fmt.Sprintf("No credentials found for %s. Run google_authorize to authenticate this account.", authErr.Email)
		}
	}

	var scopeErr *auth.ScopeError
	if errors.As(err, &scopeErr) {
		return fmt.Sprintf("The credential for %s is missing required permissions. Run google_authorize to grant them.", scopeErr.Email)
	}

	return err.Error()
}
