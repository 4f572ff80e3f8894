// Package config loads environment variables and provides a typed Config used across the client.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Validate checks the invariants the process cannot start without (auth mode, resume prerequisites).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Default endpoints. Both are overridable so tests and proxies can point the
// client elsewhere.
const (
	DefaultRESTAddr   = "https://www.googleapis.com"
	DefaultStreamAddr = "https://youtube.googleapis.com"

	DefaultReconnectWait = 5 * time.Second
)

type Config struct {
	// Feed
	VideoID string

	// Auth: exactly one of API key / OAuth token file per run.
	APIKey            string
	APIKeyFile        string
	OAuthTokenFile    string
	OAuthClientID     string
	OAuthClientSecret string

	// Output
	OutputFile  string
	OutputDBDsn string
	Resume      bool

	// Stream behavior
	ReconnectWait time.Duration
	RESTAddr      string
	StreamAddr    string

	// Ops HTTP server (/healthz, /status, /metrics); empty disables it.
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It fails only on
// unparseable values; structural problems (both auth modes set, resume without
// an output target) are reported by Validate so callers decide when to check.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.VideoID = strings.TrimSpace(os.Getenv("VIDEO_ID"))

	cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	cfg.APIKeyFile = os.Getenv("API_KEY_FILE")
	cfg.OAuthTokenFile = os.Getenv("OAUTH_TOKEN_FILE")
	cfg.OAuthClientID = os.Getenv("OAUTH_CLIENT_ID")
	cfg.OAuthClientSecret = os.Getenv("OAUTH_CLIENT_SECRET")

	cfg.OutputFile = os.Getenv("OUTPUT_FILE")
	cfg.OutputDBDsn = os.Getenv("OUTPUT_DB_DSN")
	cfg.Resume = os.Getenv("RESUME") == "1"

	cfg.ReconnectWait = DefaultReconnectWait
	if v := os.Getenv("RECONNECT_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RECONNECT_WAIT %q (want a positive duration like 5s)", v)
		}
		cfg.ReconnectWait = d
	}

	cfg.RESTAddr = os.Getenv("REST_API_ADDR")
	if cfg.RESTAddr == "" {
		cfg.RESTAddr = DefaultRESTAddr
	}
	cfg.StreamAddr = os.Getenv("STREAM_ADDR")
	if cfg.StreamAddr == "" {
		cfg.StreamAddr = DefaultStreamAddr
	}
	// TLS-enabled endpoints require an explicit scheme.
	if !strings.HasPrefix(cfg.StreamAddr, "http://") && !strings.HasPrefix(cfg.StreamAddr, "https://") {
		cfg.StreamAddr = "https://" + cfg.StreamAddr
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")

	return cfg, nil
}

// HasAPIKey reports whether an API key is configured (inline or via file).
func (c *Config) HasAPIKey() bool { return c.APIKey != "" || c.APIKeyFile != "" }

// HasOAuth reports whether OAuth mode is configured.
func (c *Config) HasOAuth() bool { return c.OAuthTokenFile != "" }

// HasOutput reports whether a durable output target is configured.
func (c *Config) HasOutput() bool { return c.OutputFile != "" || c.OutputDBDsn != "" }

// Validate enforces the startup contract. Every error returned here is a
// configuration error: the process must exit non-zero without touching the
// network.
func (c *Config) Validate() error {
	if c.HasAPIKey() && c.HasOAuth() {
		return errors.New("API_KEY/API_KEY_FILE and OAUTH_TOKEN_FILE are mutually exclusive; configure exactly one auth mode")
	}
	if !c.HasAPIKey() && !c.HasOAuth() {
		return errors.New("no credential configured: set API_KEY, API_KEY_FILE, or OAUTH_TOKEN_FILE")
	}
	if c.HasOAuth() && (c.OAuthClientID == "" || c.OAuthClientSecret == "") {
		return errors.New("OAUTH_TOKEN_FILE requires OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET for refresh")
	}
	if c.Resume && !c.HasOutput() {
		return errors.New("RESUME=1 requires OUTPUT_FILE or OUTPUT_DB_DSN")
	}
	if !c.Resume && c.VideoID == "" {
		return errors.New("VIDEO_ID required unless resuming from existing output")
	}
	if c.OutputFile != "" && c.OutputDBDsn != "" {
		return errors.New("OUTPUT_FILE and OUTPUT_DB_DSN are mutually exclusive")
	}
	return nil
}
