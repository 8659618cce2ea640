package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COLINKWATCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error so the service can
// run from defaults and the environment alone. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COLINKWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Backend ──
	setStr(&cfg.Backend.BaseURL, "COLINKWATCH_BACKEND_BASE_URL")
	setStr(&cfg.Backend.WSURL, "COLINKWATCH_BACKEND_WS_URL")
	setStr(&cfg.Backend.PoolsPath, "COLINKWATCH_BACKEND_POOLS_PATH")
	setStr(&cfg.Backend.SwapsPath, "COLINKWATCH_BACKEND_SWAPS_PATH")
	setStr(&cfg.Backend.MetaPath, "COLINKWATCH_BACKEND_META_PATH")
	setStr(&cfg.Backend.HealthPath, "COLINKWATCH_BACKEND_HEALTH_PATH")
	setDuration(&cfg.Backend.RequestTimeout, "COLINKWATCH_BACKEND_REQUEST_TIMEOUT")

	// ── Poller ──
	setDuration(&cfg.Poller.Interval, "COLINKWATCH_POLLER_INTERVAL")
	setDuration(&cfg.Poller.Timeout, "COLINKWATCH_POLLER_TIMEOUT")
	setInt(&cfg.Poller.MaxSwaps, "COLINKWATCH_POLLER_MAX_SWAPS")
	setDuration(&cfg.Poller.StaleAfter, "COLINKWATCH_POLLER_STALE_AFTER")

	// ── Push ──
	setBool(&cfg.Push.Enabled, "COLINKWATCH_PUSH_ENABLED")
	setDuration(&cfg.Push.ReconnectDelay, "COLINKWATCH_PUSH_RECONNECT_DELAY")
	setBool(&cfg.Push.Backoff, "COLINKWATCH_PUSH_BACKOFF")
	setDuration(&cfg.Push.MaxDelay, "COLINKWATCH_PUSH_MAX_DELAY")
	setFloat64(&cfg.Push.Jitter, "COLINKWATCH_PUSH_JITTER")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "COLINKWATCH_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.Timeout, "COLINKWATCH_MONITOR_TIMEOUT")
	setInt(&cfg.Monitor.FailureThreshold, "COLINKWATCH_MONITOR_FAILURE_THRESHOLD")

	// ── History ──
	setInt(&cfg.History.PoolCapacity, "COLINKWATCH_HISTORY_POOL_CAPACITY")
	setInt(&cfg.History.VolumeCapacity, "COLINKWATCH_HISTORY_VOLUME_CAPACITY")
	setInt(&cfg.History.LatencyCapacity, "COLINKWATCH_HISTORY_LATENCY_CAPACITY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "COLINKWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "COLINKWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COLINKWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COLINKWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COLINKWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COLINKWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COLINKWATCH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.ChannelPrefix, "COLINKWATCH_REDIS_CHANNEL_PREFIX")
	setInt64(&cfg.Redis.StreamMaxLen, "COLINKWATCH_REDIS_STREAM_MAX_LEN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COLINKWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "COLINKWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COLINKWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COLINKWATCH_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COLINKWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COLINKWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COLINKWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COLINKWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COLINKWATCH_MODE")
	setStr(&cfg.LogLevel, "COLINKWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
