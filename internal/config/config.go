// Package config defines the top-level configuration for colinkwatch and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COLINKWATCH_* environment variables.
type Config struct {
	Backend  BackendConfig `toml:"backend"`
	Poller   PollerConfig  `toml:"poller"`
	Push     PushConfig    `toml:"push"`
	Monitor  MonitorConfig `toml:"monitor"`
	History  HistoryConfig `toml:"history"`
	Redis    RedisConfig   `toml:"redis"`
	Server   ServerConfig  `toml:"server"`
	Notify   NotifyConfig  `toml:"notify"`
	Mode     string        `toml:"mode"`
	LogLevel string        `toml:"log_level"`
}

// BackendConfig locates the dashboard backend.
type BackendConfig struct {
	BaseURL        string   `toml:"base_url"`
	WSURL          string   `toml:"ws_url"`
	PoolsPath      string   `toml:"pools_path"`
	SwapsPath      string   `toml:"swaps_path"`
	MetaPath       string   `toml:"meta_path"`
	HealthPath     string   `toml:"health_path"`
	RequestTimeout duration `toml:"request_timeout"`
}

// PollerConfig controls the snapshot poller and the view bounds it feeds.
type PollerConfig struct {
	Interval   duration `toml:"interval"`
	Timeout    duration `toml:"timeout"`
	MaxSwaps   int      `toml:"max_swaps"`
	StaleAfter duration `toml:"stale_after"`
}

// PushConfig controls the live channel and its reconnect policy.
type PushConfig struct {
	Enabled        bool     `toml:"enabled"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	Backoff        bool     `toml:"backoff"`
	MaxDelay       duration `toml:"max_delay"`
	Jitter         float64  `toml:"jitter"`
}

// MonitorConfig controls the backend health probe.
type MonitorConfig struct {
	Interval         duration `toml:"interval"`
	Timeout          duration `toml:"timeout"`
	FailureThreshold int      `toml:"failure_threshold"`
}

// HistoryConfig sets the rolling history capacities.
type HistoryConfig struct {
	PoolCapacity    int `toml:"pool_capacity"`
	VolumeCapacity  int `toml:"volume_capacity"`
	LatencyCapacity int `toml:"latency_capacity"`
}

// RedisConfig holds Redis connection parameters for the view mirror.
type RedisConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	PoolSize      int    `toml:"pool_size"`
	MaxRetries    int    `toml:"max_retries"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	ChannelPrefix string `toml:"channel_prefix"`
	StreamMaxLen  int64  `toml:"stream_max_len"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values used when the TOML file
// leaves a field out.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:3000",
			WSURL:          "ws://localhost:3000/ws",
			PoolsPath:      "/api/pools/state",
			SwapsPath:      "/api/swaps/recent",
			MetaPath:       "/api/sim/meta",
			HealthPath:     "/health",
			RequestTimeout: duration{10 * time.Second},
		},
		Poller: PollerConfig{
			Interval:   duration{5 * time.Second},
			Timeout:    duration{10 * time.Second},
			MaxSwaps:   200,
			StaleAfter: duration{15 * time.Second},
		},
		Push: PushConfig{
			Enabled:        true,
			ReconnectDelay: duration{2 * time.Second},
			MaxDelay:       duration{60 * time.Second},
		},
		Monitor: MonitorConfig{
			Interval:         duration{5 * time.Second},
			Timeout:          duration{3 * time.Second},
			FailureThreshold: 1,
		},
		History: HistoryConfig{
			PoolCapacity:    20,
			VolumeCapacity:  20,
			LatencyCapacity: 20,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			MaxRetries:    3,
			ChannelPrefix: "colinkwatch",
			StreamMaxLen:  10000,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"backend_offline", "backend_online", "live_disconnected", "live_reconnected"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"full":     true,
	"headless": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, headless)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Backend
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend: base_url must be an http(s) URL, got %q", c.Backend.BaseURL))
	}
	if c.Push.Enabled {
		if u, err := url.Parse(c.Backend.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("backend: ws_url must be a ws(s) URL when push is enabled, got %q", c.Backend.WSURL))
		}
	}
	for name, p := range map[string]string{
		"pools_path":  c.Backend.PoolsPath,
		"swaps_path":  c.Backend.SwapsPath,
		"meta_path":   c.Backend.MetaPath,
		"health_path": c.Backend.HealthPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Sprintf("backend: %s must start with /, got %q", name, p))
		}
	}
	if c.Backend.RequestTimeout.Duration <= 0 {
		errs = append(errs, "backend: request_timeout must be > 0")
	}

	// Poller
	if c.Poller.Interval.Duration <= 0 {
		errs = append(errs, "poller: interval must be > 0")
	}
	if c.Poller.Timeout.Duration <= 0 {
		errs = append(errs, "poller: timeout must be > 0")
	}
	if c.Poller.MaxSwaps < 1 {
		errs = append(errs, "poller: max_swaps must be >= 1")
	}
	if c.Poller.StaleAfter.Duration < 0 {
		errs = append(errs, "poller: stale_after must not be negative")
	}

	// Push
	if c.Push.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "push: reconnect_delay must be > 0")
	}
	if c.Push.Backoff && c.Push.MaxDelay.Duration < c.Push.ReconnectDelay.Duration {
		errs = append(errs, "push: max_delay must be >= reconnect_delay when backoff is enabled")
	}
	if c.Push.Jitter < 0 || c.Push.Jitter > 1 {
		errs = append(errs, fmt.Sprintf("push: jitter must be within [0, 1], got %g", c.Push.Jitter))
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.Timeout.Duration <= 0 {
		errs = append(errs, "monitor: timeout must be > 0")
	}
	if c.Monitor.FailureThreshold < 1 {
		errs = append(errs, "monitor: failure_threshold must be >= 1")
	}

	// History
	if c.History.PoolCapacity < 1 {
		errs = append(errs, "history: pool_capacity must be >= 1")
	}
	if c.History.VolumeCapacity < 1 {
		errs = append(errs, "history: volume_capacity must be >= 1")
	}
	if c.History.LatencyCapacity < 1 {
		errs = append(errs, "history: latency_capacity must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if strings.TrimSpace(c.Redis.ChannelPrefix) == "" {
			errs = append(errs, "redis: channel_prefix must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
