package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// codeExchanger is the slice of the OAuth exchange client the auth flow
// needs. Satisfied by *auth.ExchangeClient.
type codeExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.CredentialRecord, error)
}

// clientInvalidator drops cached API clients for an account. Satisfied by
// *google.ClientCache.
type clientInvalidator interface {
	Invalidate(email string)
}

// AuthFlow drives one authorization-code grant end to end: it registers a
// pending authorization, hands out the URL for the user to visit, and in the
// background waits for the provider redirect, exchanges the code and persists
// the credential.
type AuthFlow struct {
	correlator *auth.CallbackCorrelator
	exchange   codeExchanger
	store      *auth.TokenStore
	clients    clientInvalidator
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewAuthFlow creates an auth flow coordinator.
func NewAuthFlow(correlator *auth.CallbackCorrelator, exchange codeExchanger, store *auth.TokenStore, clients clientInvalidator, metrics *instrumentation.Metrics, logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &AuthFlow{
		correlator: correlator,
		exchange:   exchange,
		store:      store,
		clients:    clients,
		metrics:    metrics,
		logger:     logger,
	}
}

// Begin starts an authorization flow for an account and returns the URL the
// user must visit. The exchange and persistence happen in the background once
// the provider redirects; callers check progress through the renewal policy
// or the token store.
func (f *AuthFlow) Begin(ctx context.Context, email string) string {
	pending := f.correlator.Begin()
	url := f.exchange.AuthURL(pending.State())

	f.logger.Info("authorization flow started",
		logging.UserHash(email),
		slog.String(logging.KeyState, pending.State()))
	f.metrics.IncrementPendingCallbacks(ctx)

	go f.complete(ctx, email, pending)
	return url
}

// complete waits for the callback and finishes the grant. Runs on its own
// goroutine per flow; the pending entry dies with the deadline if the user
// never completes the consent screen.
func (f *AuthFlow) complete(ctx context.Context, email string, pending *auth.PendingAuthorization) {
	defer f.metrics.DecrementPendingCallbacks(ctx)

	logger := logging.WithAccount(f.logger, logging.AnonymizeEmail(email))

	code, err := f.correlator.Wait(ctx, pending)
	if err != nil {
		var timeoutErr *auth.CallbackTimeoutError
		if errors.As(err, &timeoutErr) {
			logger.Warn("authorization flow expired before the callback arrived")
			f.metrics.RecordAuthFlow(ctx, instrumentation.OAuthResultExpired)
			return
		}
		logger.Warn("authorization flow failed", logging.Err(err))
		f.metrics.RecordAuthFlow(ctx, instrumentation.OAuthResultFailure)
		return
	}

	record, err := f.exchange.Exchange(ctx, code)
	if err != nil {
		logger.Error("failed to exchange authorization code", logging.Err(err))
		f.metrics.RecordAuthFlow(ctx, instrumentation.OAuthResultFailure)
		return
	}

	if err := f.store.Save(email, record); err != nil {
		logger.Error("failed to persist credential", logging.Err(err))
		f.metrics.RecordAuthFlow(ctx, instrumentation.OAuthResultFailure)
		return
	}

	// Stale clients built from a previous grant must not survive
	// re-authorization.
	if f.clients != nil {
		f.clients.Invalidate(email)
	}

	logger.Info("authorization flow completed", slog.Time("expiry", record.Expiry()))
	f.metrics.RecordAuthFlow(ctx, instrumentation.OAuthResultSuccess)
}
