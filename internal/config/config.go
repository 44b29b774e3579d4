package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultPort is the local callback server port used when no override is set.
const DefaultPort = 8080

// Config holds the environment-driven configuration for the server.
// Values are resolved once at startup; a missing Google client ID or secret
// is a fatal configuration error in serve mode.
type Config struct {
	// GoogleClientID is the OAuth2 client ID for the Google Cloud project.
	GoogleClientID string

	// GoogleClientSecret is the OAuth2 client secret.
	GoogleClientSecret string

	// CallbackURL is an external callback override (OAUTH_CALLBACK_URL or
	// OAUTH_REDIRECT_URI). When empty the local callback server URL is used.
	CallbackURL string

	// Port is the local callback server port (OAUTH_SERVER_PORT or
	// WORKSPACE_MCP_PORT, default 8080).
	Port int

	// CredentialsPath is the directory holding per-account token files.
	CredentialsPath string
}

// FromEnv builds a Config from environment variables. Values already set on
// the receiver (e.g. from flags) take precedence over the environment.
func FromEnv(base Config) (Config, error) {
	cfg := base

	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}

	if cfg.CallbackURL == "" {
		cfg.CallbackURL = os.Getenv("OAUTH_CALLBACK_URL")
	}
	if cfg.CallbackURL == "" {
		cfg.CallbackURL = os.Getenv("OAUTH_REDIRECT_URI")
	}

	if cfg.Port == 0 {
		for _, key := range []string{"OAUTH_SERVER_PORT", "WORKSPACE_MCP_PORT"} {
			if v := os.Getenv(key); v != "" {
				port, err := strconv.Atoi(v)
				if err != nil || port <= 0 || port > 65535 {
					return Config{}, fmt.Errorf("invalid %s value %q", key, v)
				}
				cfg.Port = port
				break
			}
		}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = os.Getenv("CREDENTIALS_PATH")
	}
	if cfg.CredentialsPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to determine user config dir: %w", err)
		}
		cfg.CredentialsPath = filepath.Join(configDir, "workspace-mcp", "credentials")
	}

	return cfg, nil
}

// Validate checks that the configuration is complete enough to serve.
func (c Config) Validate() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required (set the env var or --google-client-id)")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required (set the env var or --google-client-secret)")
	}
	return nil
}

// RedirectURL returns the OAuth redirect URL: the external callback override
// when configured, otherwise the local callback server endpoint.
func (c Config) RedirectURL() string {
	if c.CallbackURL != "" {
		return c.CallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/oauth2callback", c.Port)
}
