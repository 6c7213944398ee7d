package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Allow-lists are commonly pasted with bare phone numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the sigclaw monitor.
type Config struct {
	Signal    SignalConfig    `json:"signal"`
	Agents    AgentsConfig    `json:"agents"`
	Sessions  SessionsConfig  `json:"sessions"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// SignalConfig configures the Signal channel: the signal-cli daemon endpoint,
// the bot's own account, and the inbound access/notification policies.
type SignalConfig struct {
	Enabled   bool   `json:"enabled"`
	Account   string `json:"account"`             // bot account: E.164 phone or opaque account id
	HTTPURL   string `json:"http_url"`            // signal-cli daemon base URL (default http://127.0.0.1:8080)
	Transport string `json:"transport,omitempty"` // "sse" (default) or "ws"

	AllowFrom      FlexibleStringSlice `json:"allow_from"`                 // static DM allow-list (union with pairing store)
	DMPolicy       string              `json:"dm_policy,omitempty"`        // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`     // "open" (default), "allowlist", "disabled"
	GroupAllowFrom FlexibleStringSlice `json:"group_allow_from,omitempty"` // group sender allow-list
	RequireMention bool                `json:"require_mention,omitempty"`  // groups: require the bot to be mentioned

	ReactionNotifications string `json:"reaction_notifications,omitempty"` // "off", "own" (default), "allowlist", "all"

	MediaMaxBytes int64  `json:"media_max_bytes,omitempty"` // max attachment download size (default 20MB)
	MediaDir      string `json:"media_dir,omitempty"`       // attachment download directory
}

// AgentsConfig holds the reply-pipeline routing defaults.
type AgentsConfig struct {
	DefaultID string `json:"default_id,omitempty"` // agent id for session keys (default "default")
}

// SessionsConfig controls session key scoping and local state storage.
type SessionsConfig struct {
	Scope   string `json:"scope,omitempty"`    // "per-sender" (default) or "global"
	DmScope string `json:"dm_scope,omitempty"` // "per-channel-peer" (default), "per-peer", "main"
	MainKey string `json:"main_key,omitempty"` // shared DM session name when dm_scope="main"
	Storage string `json:"storage,omitempty"`  // state directory (pairing, allowlist, notifications)
}

// DatabaseConfig configures Postgres for managed mode.
// PostgresDSN is NEVER read from config.json (secret) — only from env SIGCLAW_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`              // from env SIGCLAW_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
}

// IsManagedMode returns true if pairing/allowlist state lives in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry export for dispatch spans.
// When enabled, spans are exported to an OTLP-compatible backend
// (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local dev
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "sigclaw")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens)
}

// ResolveDefaultAgentID returns the configured default agent id.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Agents.DefaultID != "" {
		return c.Agents.DefaultID
	}
	return "default"
}
