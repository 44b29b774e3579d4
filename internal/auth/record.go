package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// CredentialRecord is the persisted OAuth2 credential for one account.
// ExpiryEpochMs and LastRefreshEpochMs are absolute epoch millisecond
// timestamps, never durations.
type CredentialRecord struct {
	AccessToken        string   `json:"accessToken"`
	RefreshToken       string   `json:"refreshToken,omitempty"`
	Scope              []string `json:"scope,omitempty"`
	TokenType          string   `json:"tokenType"`
	ExpiryEpochMs      int64    `json:"expiryEpochMs"`
	LastRefreshEpochMs int64    `json:"lastRefreshEpochMs,omitempty"`
}

// Expiry returns the access token expiry as a time.Time.
func (r *CredentialRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiryEpochMs)
}

// HasScope reports whether the credential carries the given scope.
func (r *CredentialRecord) HasScope(scope string) bool {
	for _, s := range r.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// MissingScopes returns the subset of required scopes the credential lacks.
func (r *CredentialRecord) MissingScopes(required []string) []string {
	var missing []string
	for _, s := range required {
		if !r.HasScope(s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// Token converts the record into an oauth2.Token for use with Google API
// clients. The token carries its own expiry so downstream token sources can
// judge staleness.
func (r *CredentialRecord) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry(),
	}
}

// recordFromToken builds a CredentialRecord from an oauth2 token exchange or
// refresh result. When the provider omits the refresh token on refresh, the
// previous refresh token is carried forward.
func recordFromToken(tok *oauth2.Token, scopes []string, prevRefreshToken string, now time.Time) *CredentialRecord {
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = prevRefreshToken
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &CredentialRecord{
		AccessToken:        tok.AccessToken,
		RefreshToken:       refreshToken,
		Scope:              scopes,
		TokenType:          tokenType,
		ExpiryEpochMs:      tok.Expiry.UnixMilli(),
		LastRefreshEpochMs: now.UnixMilli(),
	}
}
