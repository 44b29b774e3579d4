package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
)

// fakeRefresher scripts refresh outcomes per attempt.
type fakeRefresher struct {
	mu       sync.Mutex
	attempts int32
	results  []error // error to return per attempt; nil means success
	delay    time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, record *CredentialRecord) (*CredentialRecord, error) {
	n := atomic.AddInt32(&f.attempts, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	var err error
	if int(n) <= len(f.results) {
		err = f.results[n-1]
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &CredentialRecord{
		AccessToken:        "refreshed-access-token",
		RefreshToken:       record.RefreshToken,
		Scope:              record.Scope,
		TokenType:          "Bearer",
		ExpiryEpochMs:      time.Now().Add(time.Hour).UnixMilli(),
		LastRefreshEpochMs: time.Now().UnixMilli(),
	}, nil
}

func (f *fakeRefresher) count() int32 {
	return atomic.LoadInt32(&f.attempts)
}

func newTestPolicy(t *testing.T, refresher Refresher) (*RenewalPolicy, *TokenStore) {
	t.Helper()
	store := newTestStore(t)
	return NewRenewalPolicy(store, refresher, nil, nil), store
}

func TestResolve_NoToken(t *testing.T) {
	policy, _ := newTestPolicy(t, &fakeRefresher{})

	res := policy.Resolve(context.Background(), "nobody@example.com")
	assert.Equal(t, StatusNoToken, res.Status)
	assert.False(t, res.Status.Usable())
}

func TestResolve_Valid(t *testing.T) {
	refresher := &fakeRefresher{}
	policy, store := newTestPolicy(t, refresher)
	record := testRecord(time.Now().Add(time.Hour))
	require.NoError(t, store.Save("user@example.com", record))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusValid, res.Status)
	assert.Equal(t, record.AccessToken, res.Credential.AccessToken)
	assert.Zero(t, refresher.count(), "valid token must not trigger a refresh")
}

func TestResolve_ExpiredNeverValid(t *testing.T) {
	// Tokens at or past expiry must never resolve VALID
	refresher := &fakeRefresher{}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now())))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.NotEqual(t, StatusValid, res.Status)
}

func TestResolve_WithinBufferRefreshes(t *testing.T) {
	// A token expiring inside the 5-minute buffer is refreshed proactively
	refresher := &fakeRefresher{}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(2*time.Minute))))

	res := policy.Resolve(context.Background(), "user@example.com")
	require.Equal(t, StatusRefreshed, res.Status)
	assert.Equal(t, "refreshed-access-token", res.Credential.AccessToken)

	// The refreshed record was persisted
	loaded, err := store.Load("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access-token", loaded.AccessToken)
}

func TestResolve_InvalidRecord(t *testing.T) {
	policy, store := newTestPolicy(t, &fakeRefresher{})
	require.NoError(t, store.Save("user@example.com", &CredentialRecord{
		AccessToken: "token-without-expiry",
		TokenType:   "Bearer",
	}))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusInvalid, res.Status)
}

func TestResolve_ExpiredWithoutRefreshToken(t *testing.T) {
	policy, store := newTestPolicy(t, &fakeRefresher{})
	record := testRecord(time.Now().Add(-time.Hour))
	record.RefreshToken = ""
	require.NoError(t, store.Save("user@example.com", record))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusExpired, res.Status)
}

func TestResolve_RevokedGrantFailsFast(t *testing.T) {
	refresher := &fakeRefresher{results: []error{errors.New("oauth2: \"invalid_grant\" \"Token has been expired or revoked.\"")}}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(-time.Hour))))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusRefreshFailed, res.Status)
	assert.False(t, res.CanRetry, "a revoked grant must not be retried")
	assert.EqualValues(t, 1, refresher.count(), "fatal errors must not trigger the internal retry")
}

func TestResolve_TransientFailureRetriesOnce(t *testing.T) {
	// First attempt fails with a network error, second succeeds; the caller
	// sees success, not failure.
	refresher := &fakeRefresher{results: []error{errors.New("connection reset by peer"), nil}}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(-time.Hour))))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusRefreshed, res.Status)
	assert.EqualValues(t, 2, refresher.count())
}

func TestResolve_TransientFailureTwiceCanRetry(t *testing.T) {
	refresher := &fakeRefresher{results: []error{
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
	}}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(-time.Hour))))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusRefreshFailed, res.Status)
	assert.True(t, res.CanRetry, "transient failures may be retried later without re-authorization")
	assert.EqualValues(t, 2, refresher.count())
}

func TestResolve_RetryRevealsRevokedGrant(t *testing.T) {
	refresher := &fakeRefresher{results: []error{
		errors.New("connection reset by peer"),
		errors.New("refresh token not found"),
	}}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(-time.Hour))))

	res := policy.Resolve(context.Background(), "user@example.com")
	assert.Equal(t, StatusRefreshFailed, res.Status)
	assert.False(t, res.CanRetry)
}

func TestResolve_ConcurrentRefreshCoalesced(t *testing.T) {
	refresher := &fakeRefresher{delay: 50 * time.Millisecond}
	policy, store := newTestPolicy(t, refresher)
	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(-time.Hour))))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Resolution, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = policy.Resolve(context.Background(), "user@example.com")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, StatusRefreshed, res.Status)
	}
	assert.EqualValues(t, 1, refresher.count(), "concurrent callers must share one refresh")
}

func TestIsFatalRefreshError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid grant", err: errors.New("oauth2: invalid_grant"), want: true},
		{name: "revoked", err: errors.New("token has been revoked"), want: true},
		{name: "not found", err: errors.New("refresh token not found"), want: true},
		{name: "network blip", err: errors.New("connection reset by peer"), want: false},
		{name: "timeout", err: errors.New("context deadline exceeded"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isFatalRefreshError(tt.err))
		})
	}
}

func newMetricsRecorder(t *testing.T) (*instrumentation.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)
	return metrics, reader
}

func refreshCount(t *testing.T, reader *sdkmetric.ManualReader, result string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "oauth_token_refresh_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("result"); ok && v.AsString() == result {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestResolve_RecordsRefreshOutcomeMetrics(t *testing.T) {
	metrics, reader := newMetricsRecorder(t)
	refresher := &fakeRefresher{}
	store := newTestStore(t)
	policy := NewRenewalPolicy(store, refresher, metrics, nil)

	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(time.Minute))))
	res := policy.Resolve(context.Background(), "user@example.com")
	require.Equal(t, StatusRefreshed, res.Status)

	assert.Equal(t, int64(1), refreshCount(t, reader, "success"))
	assert.Zero(t, refreshCount(t, reader, "failure"))
}

func TestResolve_RecordsFailedRefreshAttempts(t *testing.T) {
	metrics, reader := newMetricsRecorder(t)
	transient := errors.New("temporary network error")
	refresher := &fakeRefresher{results: []error{transient, transient}}
	store := newTestStore(t)
	policy := NewRenewalPolicy(store, refresher, metrics, nil)

	require.NoError(t, store.Save("user@example.com", testRecord(time.Now().Add(time.Minute))))
	res := policy.Resolve(context.Background(), "user@example.com")
	require.Equal(t, StatusRefreshFailed, res.Status)

	// Both the initial attempt and the internal retry count as attempts.
	assert.Equal(t, int64(2), refreshCount(t, reader, "failure"))
	assert.Zero(t, refreshCount(t, reader, "success"))
}
