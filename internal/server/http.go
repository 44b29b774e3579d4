package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/zooyoda/workspace-mcp/internal/auth"
	"github.com/zooyoda/workspace-mcp/internal/logging"
)

const (
	// CallbackPath is where the OAuth provider redirects after authorization.
	CallbackPath = "/oauth2callback"

	callbackReadTimeout  = 10 * time.Second
	callbackWriteTimeout = 10 * time.Second
	callbackIdleTimeout  = 60 * time.Second
)

// CallbackServer hosts the OAuth redirect endpoint and the health probes.
// It runs on the same port the authorization URLs point at.
type CallbackServer struct {
	sc         *ServerContext
	health     *HealthChecker
	httpServer *http.Server
	logger     *slog.Logger
}

// NewCallbackServer creates the HTTP server for OAuth callbacks.
func NewCallbackServer(sc *ServerContext, health *HealthChecker) *CallbackServer {
	return &CallbackServer{
		sc:     sc,
		health: health,
		logger: sc.Logger(),
	}
}

// Handler returns the full route table, exported so the serve command can
// mount the MCP endpoint on the same mux.
func (s *CallbackServer) Handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	s.health.RegisterHealthEndpoints(mux)
	return mux
}

// Start serves on addr until Shutdown. Blocking; run in a goroutine for
// non-blocking operation.
func (s *CallbackServer) Start(addr string, handler http.Handler) error {
	if handler == nil {
		handler = s.Handler()
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: callbackReadTimeout,
		WriteTimeout:      callbackWriteTimeout,
		IdleTimeout:       callbackIdleTimeout,
	}

	s.logger.Info("starting callback server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleCallback routes the provider redirect to the correlator. The browser
// always gets a terminal HTML page; the waiting request receives the outcome
// through the correlator, never through this response.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	errCode := q.Get("error")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if errCode != "" {
		providerErr := &auth.ProviderError{Code: errCode}
		s.sc.Correlator().Deliver("", state, providerErr)
		s.logger.Warn("authorization callback returned provider error",
			logging.Err(providerErr),
			slog.String(logging.KeyState, state))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(authErrorHTML))
		s.sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, CallbackPath, http.StatusOK, time.Since(start))
		return
	}

	s.sc.Correlator().Deliver(code, state, nil)
	s.logger.Debug("authorization callback delivered",
		slog.String(logging.KeyState, state),
		slog.String("code", logging.SanitizeToken(code)))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(authSuccessHTML))
	s.sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, CallbackPath, http.StatusOK, time.Since(start))
}
