package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/colinkwatch/internal/cache/redis"
	"github.com/alanyoungcy/colinkwatch/internal/config"
	"github.com/alanyoungcy/colinkwatch/internal/feed"
	"github.com/alanyoungcy/colinkwatch/internal/health"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
	"github.com/alanyoungcy/colinkwatch/internal/notify"
	"github.com/alanyoungcy/colinkwatch/internal/platform/colink"
	"github.com/alanyoungcy/colinkwatch/internal/reconcile"
)

// Dependencies bundles every component the modes run. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics    *metrics.Recorder
	Reconciler *reconcile.Reconciler
	Client     *colink.Client
	Poller     *feed.Poller
	Push       *feed.PushChannel // nil when push is disabled
	Monitor    *health.Monitor

	// Notifications
	Notifier *notify.Notifier
	Alerts   *notify.Alerts

	// Redis mirror, nil when disabled.
	Mirror *redis.Mirror
}

// Wire constructs all concrete implementations from cfg and returns them
// together with a cleanup function that should be called on shutdown to
// release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New(nil)}

	// --- Reconciler ---
	deps.Reconciler = reconcile.New(logger, reconcile.Options{
		MaxSwaps:       cfg.Poller.MaxSwaps,
		StaleAfter:     cfg.Poller.StaleAfter.Duration,
		PoolHistory:    cfg.History.PoolCapacity,
		VolumeHistory:  cfg.History.VolumeCapacity,
		LatencyHistory: cfg.History.LatencyCapacity,
		Metrics:        deps.Metrics,
	})
	closers = append(closers, deps.Reconciler.Close)

	// --- Backend collaborators ---
	deps.Client = colink.NewClient(cfg.Backend.BaseURL, colink.Paths{
		Pools:  cfg.Backend.PoolsPath,
		Swaps:  cfg.Backend.SwapsPath,
		Meta:   cfg.Backend.MetaPath,
		Health: cfg.Backend.HealthPath,
	}, cfg.Backend.RequestTimeout.Duration, logger, deps.Metrics)

	deps.Poller = feed.NewPoller(deps.Client, deps.Reconciler, feed.PollerConfig{
		Interval: cfg.Poller.Interval.Duration,
		Timeout:  cfg.Poller.Timeout.Duration,
	}, logger, deps.Metrics)

	if cfg.Push.Enabled {
		deps.Push = feed.NewPushChannel(colink.NewWSDialer(cfg.Backend.WSURL), deps.Reconciler, feed.ReconnectPolicy{
			Delay:       cfg.Push.ReconnectDelay.Duration,
			Exponential: cfg.Push.Backoff,
			MaxDelay:    cfg.Push.MaxDelay.Duration,
			Jitter:      cfg.Push.Jitter,
		}, logger, deps.Metrics)
	}

	deps.Monitor = health.NewMonitor(deps.Client, deps.Reconciler, health.Config{
		Interval:         cfg.Monitor.Interval.Duration,
		Timeout:          cfg.Monitor.Timeout.Duration,
		FailureThreshold: cfg.Monitor.FailureThreshold,
	}, logger, deps.Metrics)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewAlerts(deps.Notifier, logger)
	deps.Monitor.OnChange(deps.Alerts.BackendStatus)
	if deps.Push != nil {
		deps.Push.OnStateChange(deps.Alerts.LiveState)
	}

	// --- Redis mirror ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Mirror = redis.NewMirror(bus, deps.Reconciler, cfg.Redis.ChannelPrefix, logger, deps.Metrics)
	}

	return deps, cleanup, nil
}
