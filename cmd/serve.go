package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zooyoda/workspace-mcp/internal/config"
	"github.com/zooyoda/workspace-mcp/internal/instrumentation"
	"github.com/zooyoda/workspace-mcp/internal/server"
	"github.com/zooyoda/workspace-mcp/internal/tools/calendar_tools"
	"github.com/zooyoda/workspace-mcp/internal/tools/gmail_tools"
	"github.com/zooyoda/workspace-mcp/internal/tools/google_tools"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		debugMode          bool
		transport          string
		httpAddr           string
		googleClientID     string
		googleClientSecret string
		callbackURL        string
		port               int
		credentialsPath    string
		metricsEnabled     bool
		metricsAddr        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing Gmail and Calendar
tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

OAuth Configuration:
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars
  Required for the authorization flow and automatic token refresh.

  The local callback server listens on --port (default 8080) and serves
  /oauth2callback. For deployed instances behind a public hostname, set
  --callback-url to the externally reachable callback URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv(config.Config{
				GoogleClientID:     googleClientID,
				GoogleClientSecret: googleClientSecret,
				CallbackURL:        callbackURL,
				Port:               port,
				CredentialsPath:    credentialsPath,
			})
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, transport, httpAddr, debugMode, metricsEnabled, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "External OAuth callback URL override. Can also use OAUTH_CALLBACK_URL env var.")
	cmd.Flags().IntVar(&port, "port", 0, "Local callback server port (default 8080). Can also use OAUTH_SERVER_PORT env var.")
	cmd.Flags().StringVar(&credentialsPath, "credentials-path", "", "Directory holding per-account token files. Can also use CREDENTIALS_PATH env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (non-stdio transports only).")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg config.Config, transport, httpAddr string, debugMode, metricsEnabled bool, metricsAddr string) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs go to stderr so the stdio transport keeps stdout for the protocol.
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", slog.Any("error", err))
		}
	}()

	serverContext, err := server.NewServerContext(shutdownCtx, cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", slog.Any("error", err))
		}
	}()

	if metricsAddr == "" || metricsAddr == server.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsAddr = addr
		}
	}

	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(metricsAddr, provider, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	mcpSrv := mcpserver.NewMCPServer("workspace-mcp", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	healthChecker := server.NewHealthChecker(serverContext)
	callbackServer := server.NewCallbackServer(serverContext, healthChecker)

	switch transport {
	case "stdio":
		return runStdioServer(shutdownCtx, mcpSrv, callbackServer, healthChecker, cfg, logger)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, callbackServer, healthChecker, httpAddr, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// registerAllTools registers all MCP tools
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Google accounts",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc)
			},
		},
		{
			name: "Gmail",
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc)
			},
		},
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

// runStdioServer serves MCP over stdio while the callback server listens on
// the configured port for OAuth redirects.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, callbackServer *server.CallbackServer, healthChecker *server.HealthChecker, cfg config.Config, logger *slog.Logger) error {
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := callbackServer.Start(addr, nil); err != nil && err != http.ErrServerClosed {
			logger.Error("callback server failed", slog.Any("error", err))
		}
	}()
	defer shutdownCallbackServer(callbackServer, healthChecker, logger)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

// runStreamableHTTPServer mounts the MCP endpoint on the callback server's
// mux so one listener serves /mcp, /oauth2callback and the health probes.
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, callbackServer *server.CallbackServer, healthChecker *server.HealthChecker, addr string, logger *slog.Logger) error {
	httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	mux := callbackServer.Handler()
	mux.Handle("/mcp", httpServer)

	logger.Info("starting streamable HTTP server",
		slog.String("addr", addr),
		slog.String("mcp_endpoint", "/mcp"),
		slog.String("callback_endpoint", server.CallbackPath))

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := callbackServer.Start(addr, mux); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCallbackServer(callbackServer, healthChecker, logger)
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		return nil
	}
}

func shutdownCallbackServer(callbackServer *server.CallbackServer, healthChecker *server.HealthChecker, logger *slog.Logger) {
	healthChecker.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := callbackServer.Shutdown(ctx); err != nil {
		logger.Error("callback server shutdown failed", slog.Any("error", err))
	}
}
