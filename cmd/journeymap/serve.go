package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/api/httpapi"
	"github.com/osa030/journeymap/internal/infra/clock"
	"github.com/osa030/journeymap/internal/infra/config"
)

// runServe serves the control API over the engine until a signal or server error.
func runServe(cfg *config.Config) error {
	if cfg.Engine.SchedulerInterval() == 0 {
		return errors.New("serve needs the background loops: scheduler_interval_ms must be > 0")
	}

	engine := newEngine(cfg, clock.NewSystem())
	defer engine.Close()

	rack, err := attachGenerators(cfg, engine)
	if err != nil {
		return err
	}
	defer rack.Detach()

	if err := loadJourney(cfg, engine); err != nil {
		return err
	}
	if *serveAutostart {
		if err := engine.Start(); err != nil {
			return errors.Wrap(err, "failed to start journey")
		}
	}

	if cfg.Server.AdminToken == "" {
		zlog.Warn().Msg("journeymap: admin_token is not set, control endpoints are open")
	}
	api := httpapi.NewServer(engine, cfg.Server.AdminToken)

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("journeymap: starting server: addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("journeymap: received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	if err := engine.Stop(); err != nil {
		zlog.Error().Msgf("journeymap: failed to stop engine: %v", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("journeymap: failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("journeymap: server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}
