package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Signal: SignalConfig{
			HTTPURL:               "http://127.0.0.1:8080",
			Transport:             "sse",
			DMPolicy:              "pairing",
			GroupPolicy:           "open",
			ReactionNotifications: "own",
			MediaMaxBytes:         20 * 1024 * 1024,
			MediaDir:              "~/.sigclaw/media",
		},
		Agents: AgentsConfig{
			DefaultID: "default",
		},
		Sessions: SessionsConfig{
			Scope:   "per-sender",
			DmScope: "per-channel-peer",
			MainKey: "main",
			Storage: "~/.sigclaw/state",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "sigclaw",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SIGCLAW_SIGNAL_ACCOUNT", &c.Signal.Account)
	envStr("SIGCLAW_SIGNAL_HTTP_URL", &c.Signal.HTTPURL)
	envStr("SIGCLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("SIGCLAW_OTLP_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("SIGCLAW_SIGNAL_MEDIA_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Signal.MediaMaxBytes = n
		}
	}

	// Auto-enable the channel if an account is provided via env.
	if c.Signal.Account != "" && os.Getenv("SIGCLAW_SIGNAL_ACCOUNT") != "" {
		c.Signal.Enabled = true
	}
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

// StateDir returns the expanded local state directory.
func (c *Config) StateDir() string {
	dir := c.Sessions.Storage
	if dir == "" {
		dir = "~/.sigclaw/state"
	}
	return ExpandHome(dir)
}
