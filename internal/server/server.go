// Package server is the HTTP and websocket adapter that exposes the
// reconciled view model to a UI layer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/server/handler"
	"github.com/alanyoungcy/colinkwatch/internal/server/middleware"
	"github.com/alanyoungcy/colinkwatch/internal/server/ws"
)

// shutdownTimeout bounds graceful shutdown once the run context ends.
const shutdownTimeout = 5 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Refresh and
// Swaps are optional.
type Handlers struct {
	Health  *handler.HealthHandler
	State   *handler.StateHandler
	History *handler.HistoryHandler
	Refresh *handler.RefreshHandler
	Swaps   *handler.SwapStreamHandler
	Metrics http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// wrapped in the auth, logging and CORS middleware.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()
	public := http.NewServeMux()

	// Liveness, readiness and metrics stay reachable without a key so probes
	// and scrapers work.
	public.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	public.HandleFunc("GET /api/ready", handlers.Health.Ready)
	if handlers.Metrics != nil {
		public.Handle("GET /metrics", handlers.Metrics)
	}

	mux.HandleFunc("GET /api/state", handlers.State.GetState)
	mux.HandleFunc("GET /api/history", handlers.History.ListSeries)
	mux.HandleFunc("GET /api/history/{series...}", handlers.History.GetSeries)
	if handlers.Refresh != nil {
		mux.HandleFunc("POST /api/refresh", handlers.Refresh.Refresh)
	}
	if handlers.Swaps != nil {
		mux.HandleFunc("GET /api/swaps/stream", handlers.Swaps.ListSwaps)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	public.Handle("/", middleware.Auth(cfg.APIKey)(mux))

	var h http.Handler = public
	h = middleware.Logging(logger)(h)
	if len(cfg.CORSOrigins) > 0 {
		h = middleware.CORS(cfg.CORSOrigins)(h)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully. It returns
// ctx.Err() after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutCtx); err != nil {
		return err
	}
	<-errCh
	return ctx.Err()
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
