package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/infra/clock"
	"github.com/osa030/journeymap/internal/infra/config"
)

// runPlay plays the configured journey with the enabled generators attached.
// With scheduler_interval_ms set to 0 the journey is rendered offline on a manual clock.
func runPlay(cfg *config.Config) error {
	if *playLoopHz > 0 {
		cfg.Journey.Loop = &config.LoopConfig{Hz: *playLoopHz, DurationSeconds: *playLoopSec}
	}
	if len(cfg.Journey.Segments) == 0 && cfg.Journey.Loop == nil {
		return errors.New("nothing to play: journey.segments is empty and no loop is set")
	}
	if cfg.Journey.Loop != nil && *playFor == 0 && cfg.Engine.SchedulerInterval() == 0 {
		return errors.New("an offline loop never completes: pass --for")
	}

	offline := cfg.Engine.SchedulerInterval() == 0
	var clk clock.Clock = clock.NewSystem()
	manual := clock.NewManual(0)
	if offline {
		clk = manual
	}

	engine := newEngine(cfg, clk)
	defer engine.Close()

	rack, err := attachGenerators(cfg, engine)
	if err != nil {
		return err
	}
	defer rack.Detach()

	stopped := make(chan band.TimelineDetail, 1)
	subID := engine.Bus().Subscribe(band.EventTimelineStop, func(e band.Event) {
		var detail band.TimelineDetail
		if e.Detail != nil {
			detail = *e.Detail
		}
		select {
		case stopped <- detail:
		default:
		}
	})
	defer engine.Bus().Unsubscribe(subID)

	if err := loadJourney(cfg, engine); err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return errors.Wrap(err, "failed to start journey")
	}
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	state := engine.PlaybackState()
	zlog.Info().Msgf("journeymap: playing session=%s duration=%.1fs offline=%v",
		state.SessionID, state.TotalDuration, offline)

	if offline {
		return renderOffline(engine, manual, cfg.Engine.VisualFPS, *playFor)
	}
	return waitForStop(engine, stopped, *playFor)
}

// renderOffline steps the manual clock one visual frame at a time until the engine stops.
func renderOffline(engine *playback.Engine, manual *clock.Manual, fps int, limit time.Duration) error {
	step := 1 / float64(fps)
	for engine.CurrentState() != playback.StateStopped {
		if limit > 0 && manual.Now() >= limit.Seconds() {
			return engine.Stop()
		}
		manual.Advance(step)
		if err := engine.Poll(); err != nil {
			return errors.Wrap(err, "render failed")
		}
		engine.Frame()
	}
	zlog.Info().Msgf("journeymap: rendered %.1fs of audio time", manual.Now())
	return nil
}

// waitForStop blocks until the journey stops, the limit passes, or a signal arrives.
func waitForStop(engine *playback.Engine, stopped <-chan band.TimelineDetail, limit time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case detail := <-stopped:
		zlog.Info().Msgf("journeymap: journey stopped: reason=%s position=%.1fs", detail.Reason, detail.Position)
		if detail.Reason == band.ReasonError {
			return errors.New("journey stopped on a scheduling error")
		}
	case <-timeout:
		zlog.Info().Msgf("journeymap: play limit of %s reached", limit)
		return engine.Stop()
	case <-sigCh:
		zlog.Info().Msg("journeymap: received shutdown signal...")
		return engine.Stop()
	}
	return nil
}
