package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/colinkwatch/internal/server"
	"github.com/alanyoungcy/colinkwatch/internal/server/handler"
	"github.com/alanyoungcy/colinkwatch/internal/server/ws"
)

// FullMode runs the reconciliation engine together with the HTTP and
// websocket server for the UI.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "server.enabled is false; views are only available in-process and via redis")
	}

	return g.Wait()
}

// HeadlessMode runs only the reconciliation engine and the optional Redis
// mirror, for deployments where another process serves the UI.
func (a *App) HeadlessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting headless mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)
	return g.Wait()
}

// startEngine launches the producers, the health monitor and the consumers
// that do not need the HTTP server.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})

	g.Go(func() error {
		return deps.Poller.Run(ctx)
	})

	if deps.Push != nil {
		g.Go(func() error {
			return deps.Push.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "push.enabled is false; relying on snapshot polling only")
	}

	if deps.Notifier.Enabled() {
		g.Go(func() error {
			return deps.Alerts.Run(ctx)
		})
	}

	if deps.Mirror != nil {
		g.Go(func() error {
			return deps.Mirror.Run(ctx)
		})
	}
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Reconciler, a.base, deps.Metrics)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Monitor, a.base),
		State:   handler.NewStateHandler(deps.Reconciler, a.base),
		History: handler.NewHistoryHandler(deps.Reconciler, a.base),
		Refresh: handler.NewRefreshHandler(deps.Poller, a.base),
		Metrics: deps.Metrics.Handler(),
	}
	if deps.Mirror != nil {
		handlers.Swaps = handler.NewSwapStreamHandler(deps.Mirror, a.base)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.base)

	a.logger.InfoContext(ctx, "HTTP server enabled", slog.Int("port", a.cfg.Server.Port))
	g.Go(func() error {
		return srv.Run(ctx)
	})
}
