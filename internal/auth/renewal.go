package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// Status classifies the outcome of resolving a credential for an account.
type Status string

const (
	// StatusNoToken means no credential record exists; authorization is needed.
	StatusNoToken Status = "NO_TOKEN"
	// StatusValid means the stored access token is usable as-is.
	StatusValid Status = "VALID"
	// StatusRefreshed means the access token was refreshed and persisted.
	StatusRefreshed Status = "REFRESHED"
	// StatusExpired means the token expired and no refresh token is available;
	// full re-authorization is required.
	StatusExpired Status = "EXPIRED"
	// StatusRefreshFailed means the refresh attempt(s) failed. CanRetry on the
	// resolution distinguishes transient failures from a revoked grant.
	StatusRefreshFailed Status = "REFRESH_FAILED"
	// StatusInvalid means the stored record is malformed (no expiry).
	StatusInvalid Status = "INVALID"
	// StatusError means storage failed in a way unrelated to the credential.
	StatusError Status = "ERROR"
)

// Usable reports whether the status carries a credential fit for API calls.
func (s Status) Usable() bool {
	return s == StatusValid || s == StatusRefreshed
}

// Resolution is the result of RenewalPolicy.Resolve.
type Resolution struct {
	Status     Status
	Credential *CredentialRecord
	// CanRetry is meaningful only for StatusRefreshFailed: true means the
	// failure looked transient and the caller may retry later without
	// re-authorizing; false means the grant is gone.
	CanRetry bool
	Err      error
}

// Refresher performs the network refresh operation. Satisfied by
// *ExchangeClient.
type Refresher interface {
	Refresh(ctx context.Context, record *CredentialRecord) (*CredentialRecord, error)
}

// DefaultExpiryBuffer is how long before actual expiry a token is treated as
// expiring and refreshed proactively.
const DefaultExpiryBuffer = 5 * time.Minute

// RenewalPolicy decides whether a stored credential is usable, must be
// refreshed, or requires full re-authorization, and performs the refresh with
// a bounded retry. Concurrent resolutions for the same account are coalesced
// into a single refresh.
type RenewalPolicy struct {
	store    *TokenStore
	exchange Refresher
	buffer   time.Duration
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewRenewalPolicy creates a renewal policy over the given store and
// exchange client with the default 5-minute expiry buffer.
func NewRenewalPolicy(store *TokenStore, exchange Refresher, metrics *instrumentation.Metrics, logger *slog.Logger) *RenewalPolicy {
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenewalPolicy{
		store:    store,
		exchange: exchange,
		buffer:   DefaultExpiryBuffer,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve loads the credential for an account and brings it to a usable state
// if possible. It never absorbs permanent failures: a revoked grant is
// surfaced as REFRESH_FAILED with CanRetry=false so the caller can start
// re-authorization.
func (p *RenewalPolicy) Resolve(ctx context.Context, email string) Resolution {
	record, err := p.store.Load(email)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return Resolution{Status: StatusNoToken}
		}
		return Resolution{Status: StatusError, Err: err}
	}

	if record.ExpiryEpochMs == 0 {
		return Resolution{Status: StatusInvalid}
	}

	if p.now().Add(p.buffer).Before(record.Expiry()) {
		return Resolution{Status: StatusValid, Credential: record}
	}

	if record.RefreshToken == "" {
		return Resolution{Status: StatusExpired}
	}

	// Coalesce concurrent refreshes for the same account: every waiter gets
	// the result of one network refresh instead of issuing duplicates.
	v, _, _ := p.group.Do(email, func() (interface{}, error) {
		return p.refresh(ctx, email, record), nil
	})
	return v.(Resolution)
}

// refresh performs the refresh with a single internal retry for transient
// failures. Fatal errors (revoked or invalid grant) fail immediately.
func (p *RenewalPolicy) refresh(ctx context.Context, email string, record *CredentialRecord) Resolution {
	logger := logging.WithAccount(p.logger, logging.AnonymizeEmail(email))

	refreshed, err := p.exchange.Refresh(ctx, record)
	if err != nil {
		p.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		if isFatalRefreshError(err) {
			logger.Warn("token refresh failed permanently, re-authorization required", logging.Err(err))
			return Resolution{Status: StatusRefreshFailed, CanRetry: false, Err: err}
		}

		logger.Debug("transient refresh failure, retrying once", logging.Err(err))
		refreshed, err = p.exchange.Refresh(ctx, record)
		if err != nil {
			p.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultFailure)
			if isFatalRefreshError(err) {
				return Resolution{Status: StatusRefreshFailed, CanRetry: false, Err: err}
			}
			logger.Warn("token refresh failed after retry", logging.Err(err))
			return Resolution{Status: StatusRefreshFailed, CanRetry: true, Err: err}
		}
	}
	p.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	if err := p.store.Save(email, refreshed); err != nil {
		return Resolution{Status: StatusError, Err: err}
	}

	logger.Info("token refreshed", slog.Time("expiry", refreshed.Expiry()))
	return Resolution{Status: StatusRefreshed, Credential: refreshed}
}
