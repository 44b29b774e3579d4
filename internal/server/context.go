package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zooyoda/workspace-mcp/internal/attachments"
	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/config"
	"github.com/zooyoda/workspace-mcp/internal/google"
	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
)

// ServerContext is the dependency root for one server process. Every
// component is constructed exactly once here and injected into the tools and
// HTTP handlers; nothing in the module reaches for globals.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg        config.Config
	logger     *slog.Logger
	store      *auth.TokenStore
	exchange   *auth.ExchangeClient
	policy     *auth.RenewalPolicy
	correlator *auth.CallbackCorrelator
	clients    *google.ClientCache
	authFlow   *AuthFlow
	index      *attachments.MetadataIndex
	scheduler  *attachments.CleanupScheduler
	telemetry  *instrumentation.Provider

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext wires the full credential lifecycle and attachment
// pipeline from configuration. The cleanup scheduler is started; callers own
// Shutdown.
func NewServerContext(ctx context.Context, cfg config.Config, telemetry *instrumentation.Provider, logger *slog.Logger) (*ServerContext, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	store, err := auth.NewTokenStore(cfg.CredentialsPath, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	var metrics *instrumentation.Metrics
	if telemetry != nil {
		metrics = telemetry.Metrics()
	}

	exchange := auth.NewExchangeClient(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.RedirectURL(),
		google.DefaultOAuthScopes,
		logger,
	)
	policy := auth.NewRenewalPolicy(store, exchange, metrics, logger)
	correlator := auth.NewCallbackCorrelator(logger)
	clients := google.NewClientCache(policy, metrics, logger)

	index := attachments.NewMetadataIndex(logger)
	scheduler := attachments.NewCleanupScheduler(index, metrics, logger)
	scheduler.Start()

	authFlow := NewAuthFlow(correlator, exchange, store, clients, metrics, logger)

	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		exchange:   exchange,
		policy:     policy,
		correlator: correlator,
		clients:    clients,
		authFlow:   authFlow,
		index:      index,
		scheduler:  scheduler,
		telemetry:  telemetry,
	}, nil
}

// Context returns the lifetime context of the server.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the server configuration.
func (sc *ServerContext) Config() config.Config {
	return sc.cfg
}

// Logger returns the root logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// TokenStore returns the credential store.
func (sc *ServerContext) TokenStore() *auth.TokenStore {
	return sc.store
}

// ExchangeClient returns the OAuth exchange client.
func (sc *ServerContext) ExchangeClient() *auth.ExchangeClient {
	return sc.exchange
}

// RenewalPolicy returns the credential renewal policy.
func (sc *ServerContext) RenewalPolicy() *auth.RenewalPolicy {
	return sc.policy
}

// Correlator returns the callback correlator.
func (sc *ServerContext) Correlator() *auth.CallbackCorrelator {
	return sc.correlator
}

// Clients returns the authenticated client cache.
func (sc *ServerContext) Clients() *google.ClientCache {
	return sc.clients
}

// AuthFlow returns the authorization flow coordinator.
func (sc *ServerContext) AuthFlow() *AuthFlow {
	return sc.authFlow
}

// AttachmentIndex returns the shared attachment metadata index.
func (sc *ServerContext) AttachmentIndex() *attachments.MetadataIndex {
	return sc.index
}

// CleanupScheduler returns the attachment index sweep scheduler.
func (sc *ServerContext) CleanupScheduler() *attachments.CleanupScheduler {
	return sc.scheduler
}

// Metrics returns the telemetry metrics recorder. Never nil; a disabled
// provider hands out a no-op recorder.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.telemetry == nil {
		return &instrumentation.Metrics{}
	}
	return sc.telemetry.Metrics()
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown stops the scheduler and cancels the lifetime context. It is
// idempotent.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.scheduler.Stop()
	sc.cancel()
	return nil
}
