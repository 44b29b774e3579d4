package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ExchangeClient wraps the three network operations of the OAuth2
// authorization-code grant: building the authorization URL, exchanging a
// code for tokens, and refreshing an access token.
type ExchangeClient struct {
	conf       *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewExchangeClient creates an exchange client for the Google OAuth endpoint.
func NewExchangeClient(clientID, clientSecret, redirectURL string, scopes []string, logger *slog.Logger) *ExchangeClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeClient{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		logger: logger,
		now:    time.Now,
	}
}

// SetHTTPClient overrides the HTTP client used for token endpoint calls.
// Intended for tests against a fake token endpoint.
func (c *ExchangeClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// AuthURL returns the authorization URL the user must visit. Offline access
// is requested so the provider issues a refresh token, and consent is forced
// so re-authorization of an existing account yields a fresh refresh token.
func (c *ExchangeClient) AuthURL(state string) string {
	return c.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a credential record.
func (c *ExchangeClient) Exchange(ctx context.Context, code string) (*CredentialRecord, error) {
	tok, err := c.conf.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return recordFromToken(tok, c.conf.Scopes, "", c.now()), nil
}

// Refresh exchanges the record's refresh token for a new access token. The
// returned record carries the previous refresh token when the provider omits
// one from the response.
func (c *ExchangeClient) Refresh(ctx context.Context, record *CredentialRecord) (*CredentialRecord, error) {
	if record.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	// Seed the token source with an already-expired token so it always hits
	// the token endpoint instead of returning the stale access token.
	seed := &oauth2.Token{
		RefreshToken: record.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}

	tok, err := c.conf.TokenSource(c.withHTTPClient(ctx), seed).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return recordFromToken(tok, record.Scope, record.RefreshToken, c.now()), nil
}

func (c *ExchangeClient) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}
