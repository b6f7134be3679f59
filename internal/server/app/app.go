// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tchandler/eventworks/internal/server/config"
	"github.com/tchandler/eventworks/internal/server/db"
	"github.com/tchandler/eventworks/internal/server/eventbus"
)

// App wires the config, persistence, event bus, and HTTP transports.
type App struct {
	cfg           config.ServerConfig
	logger        *slog.Logger
	store         db.Store
	events        eventbus.Bus
	apiServer     *http.Server
	metricsServer *http.Server
	shutdownWait  time.Duration

	// streams is the base context of API requests; cancelling it ends open
	// SSE and WebSocket streams so shutdown does not wait on them.
	streams      context.Context
	closeStreams context.CancelFunc
}

// New constructs the daemon application. metrics may be nil, in which case no
// metrics listener is started.
func New(cfg config.ServerConfig, logger *slog.Logger, store db.Store, events eventbus.Bus, api http.Handler, metrics http.Handler) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event bus must not be nil")
	}
	if api == nil {
		api = http.NewServeMux()
	}

	streams, closeStreams := context.WithCancel(context.Background())

	a := &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		events:       events,
		shutdownWait: 15 * time.Second,
		streams:      streams,
		closeStreams: closeStreams,
	}

	a.apiServer = &http.Server{
		Addr:        cfg.APIListenAddr,
		Handler:     api,
		ReadTimeout: 30 * time.Second,
		// No write timeout: event streams stay open indefinitely.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return streams },
	}
	if metrics != nil && cfg.MetricsListenAddr != "" {
		a.metricsServer = &http.Server{
			Addr:         cfg.MetricsListenAddr,
			Handler:      metrics,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}
	return a, nil
}

// Run serves the API (and metrics, when configured) until ctx is cancelled or
// a listener fails, then shuts everything down in order: HTTP servers, the
// event bus, and finally the store.
func (a *App) Run(ctx context.Context) error {
	apiListener, err := net.Listen("tcp", a.apiServer.Addr)
	if err != nil {
		return fmt.Errorf("listen api: %w", err)
	}
	var metricsListener net.Listener
	if a.metricsServer != nil {
		metricsListener, err = net.Listen("tcp", a.metricsServer.Addr)
		if err != nil {
			_ = apiListener.Close()
			return fmt.Errorf("listen metrics: %w", err)
		}
	}
	return a.serve(ctx, apiListener, metricsListener)
}

func (a *App) serve(ctx context.Context, apiListener, metricsListener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("api server listening", "addr", apiListener.Addr().String())
		if err := a.apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if metricsListener != nil {
		g.Go(func() error {
			a.logger.Info("metrics server listening", "addr", metricsListener.Addr().String())
			if err := a.metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
	defer cancel()

	a.closeStreams()
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api shutdown", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics shutdown", "error", err)
		}
	}
	if err := a.events.Close(shutdownCtx); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		a.logger.Error("event bus close", "error", err)
	}
	if a.store != nil {
		if err := a.store.Close(shutdownCtx); err != nil {
			a.logger.Error("store close", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}
