package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to the fake token endpoint regardless
// of the configured provider host.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestExchangeClient(t *testing.T, handler http.HandlerFunc) *ExchangeClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := NewExchangeClient("client-id", "client-secret", "http://localhost:8080/oauth2callback",
		[]string{"https://www.googleapis.com/auth/gmail.readonly"}, nil)
	c.SetHTTPClient(&http.Client{Transport: &rewriteTransport{target: target}})
	return c
}

func TestAuthURL(t *testing.T) {
	c := NewExchangeClient("client-id", "client-secret", "http://localhost:8080/oauth2callback",
		[]string{"https://www.googleapis.com/auth/gmail.readonly"}, nil)

	raw := c.AuthURL("state-token")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"), "offline access is required for refresh tokens")
	assert.Equal(t, "force", q.Get("approval_prompt"))
	assert.Equal(t, "http://localhost:8080/oauth2callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")
}

func TestExchange(t *testing.T) {
	c := newTestExchangeClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "auth-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "new-access-token",
			"refresh_token": "new-refresh-token",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	})

	record, err := c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "new-access-token", record.AccessToken)
	assert.Equal(t, "new-refresh-token", record.RefreshToken)
	assert.Equal(t, "Bearer", record.TokenType)
	assert.InDelta(t, time.Now().Add(time.Hour).UnixMilli(), record.ExpiryEpochMs, float64(10*time.Second/time.Millisecond))
	assert.Contains(t, record.Scope, "https://www.googleapis.com/auth/gmail.readonly")
}

func TestRefresh(t *testing.T) {
	c := newTestExchangeClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "stored-refresh-token", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "rotated-access-token",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	})

	record := testRecord(time.Now().Add(-time.Hour))
	record.RefreshToken = "stored-refresh-token"

	refreshed, err := c.Refresh(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, "rotated-access-token", refreshed.AccessToken)
	// The provider omitted a refresh token; the previous one is carried forward
	assert.Equal(t, "stored-refresh-token", refreshed.RefreshToken)
	assert.NotZero(t, refreshed.LastRefreshEpochMs)
}

func TestRefresh_RotatedRefreshToken(t *testing.T) {
	c := newTestExchangeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "rotated-access-token",
			"refresh_token": "rotated-refresh-token",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	})

	refreshed, err := c.Refresh(context.Background(), testRecord(time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh-token", refreshed.RefreshToken)
}

func TestRefresh_InvalidGrant(t *testing.T) {
	c := newTestExchangeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been expired or revoked."}`))
	})

	_, err := c.Refresh(context.Background(), testRecord(time.Now().Add(-time.Hour)))
	require.Error(t, err)
	assert.True(t, isFatalRefreshError(err))
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	c := NewExchangeClient("client-id", "client-secret", "", nil, nil)

	record := testRecord(time.Now())
	record.RefreshToken = ""

	_, err := c.Refresh(context.Background(), record)
	assert.Error(t, err)
}
