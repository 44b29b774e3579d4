package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zooyoda/workspace-mcp/internal/auth"
)

type fakeExchanger struct {
	mu        sync.Mutex
	record    *auth.CredentialRecord
	err       error
	gotCode   string
	exchanged bool
}

func (f *fakeExchanger) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*auth.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCode = code
	f.exchanged = true
	return f.record, f.err
}

type fakeInvalidator struct {
	mu     sync.Mutex
	emails []string
}

func (f *fakeInvalidator) Invalidate(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
}

func newAuthFlowFixture(t *testing.T, exchanger *fakeExchanger) (*AuthFlow, *auth.CallbackCorrelator, *auth.TokenStore, *fakeInvalidator) {
	t.Helper()

	store, err := auth.NewTokenStore(t.TempDir(), nil)
	require.NoError(t, err)
	correlator := auth.NewCallbackCorrelatorWithTimeout(time.Second, nil)
	invalidator := &fakeInvalidator{}
	flow := NewAuthFlow(correlator, exchanger, store, invalidator, nil, nil)
	return flow, correlator, store, invalidator
}

func TestAuthFlow_CompletesGrant(t *testing.T) {
	exchanger := &fakeExchanger{record: &auth.CredentialRecord{
		AccessToken:   "granted-access-token",
		RefreshToken:  "granted-refresh-token",
		TokenType:     "Bearer",
		ExpiryEpochMs: time.Now().Add(time.Hour).UnixMilli(),
	}}
	flow, correlator, store, invalidator := newAuthFlowFixture(t, exchanger)

	url := flow.Begin(context.Background(), "user@example.com")
	assert.Contains(t, url, "https://accounts.example.com/auth?state=")
	require.Equal(t, 1, correlator.PendingCount())

	// Simulate the provider redirect
	correlator.Deliver("auth-code", "", nil)

	require.Eventually(t, func() bool {
		return store.Has("user@example.com")
	}, time.Second, 5*time.Millisecond, "the credential is persisted once the callback arrives")

	loaded, err := store.Load("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "granted-access-token", loaded.AccessToken)

	exchanger.mu.Lock()
	assert.Equal(t, "auth-code", exchanger.gotCode)
	exchanger.mu.Unlock()

	assert.Eventually(t, func() bool {
		invalidator.mu.Lock()
		defer invalidator.mu.Unlock()
		return len(invalidator.emails) == 1 && invalidator.emails[0] == "user@example.com"
	}, time.Second, 5*time.Millisecond, "cached clients for the account are dropped")
}

func TestAuthFlow_ProviderDenialDoesNotPersist(t *testing.T) {
	exchanger := &fakeExchanger{}
	flow, correlator, store, _ := newAuthFlowFixture(t, exchanger)

	url := flow.Begin(context.Background(), "user@example.com")
	state := strings.TrimPrefix(url, "https://accounts.example.com/auth?state=")
	correlator.Deliver("", state, errors.New("access_denied"))

	require.Eventually(t, func() bool {
		return correlator.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	assert.Never(t, func() bool {
		exchanger.mu.Lock()
		defer exchanger.mu.Unlock()
		return exchanger.exchanged
	}, 100*time.Millisecond, 10*time.Millisecond, "a denied flow must not attempt an exchange")
	assert.False(t, store.Has("user@example.com"))
}

func TestAuthFlow_ExchangeFailureDoesNotPersist(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("invalid_grant")}
	flow, correlator, store, invalidator := newAuthFlowFixture(t, exchanger)

	flow.Begin(context.Background(), "user@example.com")
	correlator.Deliver("bad-code", "", nil)

	require.Eventually(t, func() bool {
		exchanger.mu.Lock()
		defer exchanger.mu.Unlock()
		return exchanger.exchanged
	}, time.Second, 5*time.Millisecond)

	assert.False(t, store.Has("user@example.com"))
	invalidator.mu.Lock()
	assert.Empty(t, invalidator.emails)
	invalidator.mu.Unlock()
}
