package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/automation"
	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/app/scheduler"
	"github.com/osa030/journeymap/internal/app/timeline"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/domain/journey"
	"github.com/osa030/journeymap/internal/infra/clock"
)

// Errors
var (
	ErrNoSegmentPlaying = errors.New("no segment playing")
	ErrInvalidLoop      = errors.New("loop duration must be positive")
	ErrInvalidPosition  = errors.New("invalid timeline position")
)

// Defaults applied by NewEngine to zero config fields.
const (
	DefaultLookahead         = 100 * time.Millisecond
	DefaultSchedulerInterval = 25 * time.Millisecond
	DefaultVisualFPS         = 60
)

// Config holds engine configuration.
type Config struct {
	Lookahead         time.Duration // Dispatch window ahead of the audio clock
	SchedulerInterval time.Duration // Poll period; 0 disables the background loops
	VisualFPS         int           // Frame rate of the display-only channel
	Memory            int           // Retention bound for every timeline
}

// Option configures an Engine.
type Option func(*Engine)

// WithWaveOutput mirrors wave-band automation to an external sink.
func WithWaveOutput(s scheduler.Sink) Option {
	return func(e *Engine) { e.waveOut = s }
}

// WithTempoOutput mirrors tempo automation to an external sink.
func WithTempoOutput(s scheduler.Sink) Option {
	return func(e *Engine) { e.tempoOut = s }
}

// Engine is the journey timeline engine. It owns the compiled plan, the transport state and
// the scheduler; listeners only see what it publishes on its bus.
type Engine struct {
	mu sync.Mutex

	config    Config
	clock     clock.Clock
	bus       *band.Bus
	wave      *automation.Param
	tempo     *automation.Param
	waveOut   scheduler.Sink
	tempoOut  scheduler.Sink
	waveSink  scheduler.Sink
	tempoSink scheduler.Sink
	scheduler *scheduler.Scheduler
	states    *timeline.StateTimeline

	// Journey
	sessionID      string
	segments       []journey.Segment
	plan           journey.Plan // Compiled from segments
	active         journey.Plan // What the current session plays
	loop           *LoopSegment
	loopIterations int
	loopQueued     bool // Next loop iteration already scheduled
	rescheduleOwed bool

	// Transport
	state         State
	startTime     float64 // Audio time of logical position 0
	pausedAt      float64
	pausedElapsed float64
	flashes       flashQueue

	// Loops
	pollCancel  func()
	frameCancel func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a stopped engine scheduling against clk.
func NewEngine(config Config, clk clock.Clock, opts ...Option) *Engine {
	if config.Lookahead <= 0 {
		config.Lookahead = DefaultLookahead
	}
	if config.VisualFPS <= 0 {
		config.VisualFPS = DefaultVisualFPS
	}
	if config.Memory <= 0 {
		config.Memory = timeline.DefaultMemory
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config: config,
		clock:  clk,
		bus:    band.NewBus(),
		wave: automation.NewParam(automation.Config{
			Name:   "wave_band",
			Min:    brainwave.MinHz,
			Max:    brainwave.MaxHz,
			Memory: config.Memory,
		}),
		tempo: automation.NewParam(automation.Config{
			Name:   "tempo",
			Min:    brainwave.TempoBPM(brainwave.MinHz),
			Max:    brainwave.TempoBPM(brainwave.MaxHz),
			Memory: config.Memory,
		}),
		states:    timeline.NewStateTimeline(StateStopped, config.Memory),
		sessionID: uuid.New().String(),
		plan:      journey.Plan{},
		active:    journey.Plan{},
		state:     StateStopped,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.waveSink = newSink(e.wave, e.waveOut)
	e.tempoSink = newSink(e.tempo, e.tempoOut)
	e.scheduler = scheduler.New(e.waveSink, e.tempoSink, scheduler.Config{
		Memory:    config.Memory,
		Lookahead: config.Lookahead.Seconds(),
	})
	return e
}

// Bus returns the bus listeners subscribe to.
func (e *Engine) Bus() *band.Bus {
	return e.bus
}

// LoadSegments replaces the journey. A running session restarts from the top of the new
// journey unless a loop segment is active.
func (e *Engine) LoadSegments(segments []journey.Segment) error {
	e.mu.Lock()
	e.segments = journey.Clone(segments)
	e.plan = journey.Compile(e.segments)
	e.rescheduleOwed = false
	zlog.Info().Msgf("playback: loaded %d segments (%.1fs)", len(e.segments), e.plan.TotalDuration())

	var events []band.Event
	var err error
	if e.loop == nil {
		events, err = e.restartLocked(band.ReasonUser)
	}
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

// Start starts from Stopped or resumes from Paused. It is a no-op while started.
func (e *Engine) Start() error {
	e.mu.Lock()
	events, err := e.startLocked()
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

func (e *Engine) startLocked() ([]band.Event, error) {
	now := e.clock.Now()
	switch e.state {
	case StateStarted:
		return nil, nil
	case StatePaused:
		return e.resumeLocked(now)
	}

	e.active = e.activePlanLocked()
	e.sessionID = uuid.New().String()
	e.loopIterations = 0
	e.resetSessionLocked()
	e.startTime = now

	if _, err := e.scheduleLocked(0, false); err != nil {
		e.resetSessionLocked()
		zlog.Error().Msgf("playback: start failed: %v", err)
		return nil, errors.Wrap(err, "failed to start journey")
	}
	if err := e.states.SetStateAtTime(StateStarted, now); err != nil {
		e.resetSessionLocked()
		return nil, errors.Wrap(err, "failed to record start")
	}
	e.state = StateStarted

	zlog.Info().Msgf("playback: started: session=%s segments=%d duration=%.1fs looping=%v",
		e.sessionID, len(e.active), e.active.TotalDuration(), e.loop != nil)

	events := []band.Event{e.lifecycleEventLocked(band.EventTimelineStart, now, band.ReasonUser)}
	events = append(events, e.dispatchLocked(now)...)
	e.startLoopsLocked()
	return events, nil
}

func (e *Engine) resumeLocked(now float64) ([]band.Event, error) {
	paused := now - e.pausedAt
	e.pausedElapsed += paused
	e.startTime += paused
	e.state = StateStarted

	position := e.positionLocked(now)
	if _, err := e.scheduleLocked(position, false); err != nil {
		return e.failLocked(now, errors.Wrap(err, "failed to resume journey"))
	}
	if err := e.states.SetStateAtTime(StateStarted, now); err != nil {
		return e.failLocked(now, errors.Wrap(err, "failed to record resume"))
	}

	zlog.Info().Msgf("playback: resumed at position %.3f after %.3fs paused", position, paused)

	events := []band.Event{e.lifecycleEventLocked(band.EventTimelineStart, now, reasonResume)}
	events = append(events, e.dispatchLocked(now)...)
	e.startLoopsLocked()
	return events, nil
}

// Pause freezes the logical position. Automation is held at its current value and nothing
// further is dispatched until Start. It is a no-op unless started.
func (e *Engine) Pause() error {
	e.mu.Lock()
	events, err := e.pauseLocked()
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

func (e *Engine) pauseLocked() ([]band.Event, error) {
	if e.state != StateStarted {
		return nil, nil
	}
	now := e.clock.Now()

	if err := e.scheduler.Hold(now); err != nil {
		return e.failLocked(now, errors.Wrap(err, "failed to pause journey"))
	}
	e.flashes.cancel(now)
	e.loopQueued = false

	// The visual loop keeps running so displays show the frozen value.
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}

	e.pausedAt = now
	e.state = StatePaused
	if err := e.states.SetStateAtTime(StatePaused, now); err != nil {
		return e.failLocked(now, errors.Wrap(err, "failed to record pause"))
	}

	zlog.Info().Msgf("playback: paused at position %.3f", e.positionLocked(now))
	return []band.Event{
		e.revokeEventLocked(now),
		e.lifecycleEventLocked(band.EventTimelinePause, now, band.ReasonUser),
	}, nil
}

// Stop tears the session down. It is a no-op while stopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	var events []band.Event
	if e.state != StateStopped {
		now := e.clock.Now()
		events = append(events, e.lifecycleEventLocked(band.EventTimelineStop, now, band.ReasonUser))
		e.teardownLocked(now)
		zlog.Info().Msgf("playback: stopped: session=%s", e.sessionID)
	}
	e.mu.Unlock()

	e.bus.Publish(events...)
	return nil
}

// LoopSegment plays a single plateau repeatedly. The loaded journey is left untouched and
// comes back with ClearLoop.
func (e *Engine) LoopSegment(hz, durationSeconds float64) error {
	if err := brainwave.CheckHz(hz); err != nil {
		zlog.Warn().Msgf("playback: loop segment rejected: %v", err)
		return errors.Wrap(err, "loop segment rejected")
	}
	if !(durationSeconds > 0) || math.IsInf(durationSeconds, 0) {
		return errors.Wrapf(ErrInvalidLoop, "got %v", durationSeconds)
	}

	e.mu.Lock()
	e.loop = &LoopSegment{Hz: hz, DurationSeconds: durationSeconds}
	e.loopIterations = 0
	zlog.Info().Msgf("playback: looping %.2fHz for %.1fs", hz, durationSeconds)
	events, err := e.restartLocked(band.ReasonLoop)
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

// ClearLoop leaves loop mode. A running session restarts the journey from the top.
func (e *Engine) ClearLoop() error {
	e.mu.Lock()
	if e.loop == nil {
		e.mu.Unlock()
		return nil
	}
	e.loop = nil
	zlog.Info().Msg("playback: loop cleared")
	events, err := e.restartLocked(band.ReasonUser)
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

// restartLocked switches the session to the active plan from position 0.
func (e *Engine) restartLocked(reason string) ([]band.Event, error) {
	e.active = e.activePlanLocked()

	switch e.state {
	case StatePaused:
		e.startTime = e.pausedAt
		return nil, nil
	case StateStarted:
		now := e.clock.Now()
		e.startTime = now
		e.loopQueued = false
		e.flashes.cancel(now)
		if _, err := e.scheduleLocked(0, false); err != nil {
			return e.failLocked(now, errors.Wrap(err, "failed to restart journey"))
		}
		events := []band.Event{
			e.revokeEventLocked(now),
			e.lifecycleEventLocked(band.EventTimelineStart, now, reason),
		}
		return append(events, e.dispatchLocked(now)...), nil
	default:
		return nil, nil
	}
}

// ApplyLiveHzEdit sets the frequency of the segment playing now, effective immediately on
// both bands. Editing a plateau changes the loaded journey and marks a reschedule owed;
// editing a transition flattens the rest of it for this session only.
func (e *Engine) ApplyLiveHzEdit(hz float64) error {
	if err := brainwave.CheckHz(hz); err != nil {
		zlog.Warn().Msgf("playback: live edit rejected: %v", err)
		return errors.Wrap(err, "live edit rejected")
	}

	e.mu.Lock()
	events, err := e.liveEditLocked(hz)
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

func (e *Engine) liveEditLocked(hz float64) ([]band.Event, error) {
	if e.state == StateStopped {
		return nil, ErrNoSegmentPlaying
	}
	now := e.clock.Now()
	position := e.positionLocked(now)
	idx := e.active.IndexAt(position)
	if idx < 0 {
		return nil, ErrNoSegmentPlaying
	}

	switch {
	case e.loop != nil:
		e.loop.Hz = hz
		e.active = loopPlan(*e.loop)
	case idx < len(e.segments) && e.segments[idx].Kind == journey.KindPlateau:
		e.segments[idx].Hz = &hz
		e.active = journey.Compile(e.segments)
		e.rescheduleOwed = true
	default:
		active := e.active.Clone()
		active[idx].StartHz = hz
		active[idx].EndHz = hz
		e.active = active
	}

	zlog.Info().Msgf("playback: live edit: segment %d -> %.2fHz at position %.3f", idx, hz, position)

	if e.state != StateStarted {
		return nil, nil
	}
	e.loopQueued = false
	e.flashes.cancel(now)
	immediate, err := e.scheduleLocked(position, true)
	if err != nil {
		return e.failLocked(now, errors.Wrap(err, "failed to apply live edit"))
	}
	events := append([]band.Event{e.revokeEventLocked(now)}, immediate...)
	return append(events, e.dispatchLocked(now)...), nil
}

// Seek moves the logical position. While paused the move takes effect on resume.
// It is a no-op while stopped.
func (e *Engine) Seek(position float64) error {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return errors.Wrapf(ErrInvalidPosition, "got %v", position)
	}
	if position < 0 {
		return errors.Wrapf(timeline.ErrNegativeTime, "seek to %v", position)
	}

	e.mu.Lock()
	events, err := e.seekLocked(position)
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

func (e *Engine) seekLocked(position float64) ([]band.Event, error) {
	if total := e.active.TotalDuration(); position > total {
		position = total
	}

	switch e.state {
	case StatePaused:
		e.startTime = e.pausedAt - position
		return nil, nil
	case StateStarted:
		now := e.clock.Now()
		e.startTime = now - position
		e.loopQueued = false
		e.flashes.cancel(now)
		immediate, err := e.scheduleLocked(position, true)
		if err != nil {
			return e.failLocked(now, errors.Wrap(err, "failed to seek"))
		}
		zlog.Debug().Msgf("playback: seek to %.3f", position)
		events := []band.Event{
			e.revokeEventLocked(now),
			e.lifecycleEventLocked(band.EventTimelineStart, now, band.ReasonSeek),
		}
		events = append(events, immediate...)
		return append(events, e.dispatchLocked(now)...), nil
	default:
		return nil, nil
	}
}

// Poll dispatches everything due within the lookahead window and handles the end of the
// journey: a loop wraps seamlessly, anything else stops with reason completed.
// The scheduler loop calls it; with the loop disabled callers drive it themselves.
func (e *Engine) Poll() error {
	e.mu.Lock()
	events, err := e.pollLocked()
	e.mu.Unlock()

	e.bus.Publish(events...)
	return err
}

func (e *Engine) pollLocked() ([]band.Event, error) {
	if e.state != StateStarted {
		return nil, nil
	}
	now := e.clock.Now()
	total := e.active.TotalDuration()
	end := e.startTime + total

	if e.loop != nil && total > 0 {
		if !e.loopQueued && now+e.config.Lookahead.Seconds() >= end {
			if _, err := e.scheduler.Schedule(scheduler.Request{Plan: e.active, Origin: end}); err != nil {
				return e.failLocked(now, errors.Wrap(err, "failed to schedule next loop iteration"))
			}
			e.loopQueued = true
		}
		events := e.dispatchLocked(now)
		if now >= end {
			e.startTime = end
			e.loopQueued = false
			e.loopIterations++
			zlog.Debug().Msgf("playback: loop iteration %d", e.loopIterations)
			events = append(events, e.lifecycleEventLocked(band.EventTimelineStart, now, band.ReasonLoop))
		}
		return events, nil
	}

	events := e.dispatchLocked(now)
	if now >= end {
		events = append(events, e.lifecycleEventLocked(band.EventTimelineStop, now, band.ReasonCompleted))
		e.teardownLocked(now)
		zlog.Info().Msgf("playback: journey completed: session=%s", e.sessionID)
	}
	return events, nil
}

// Frame publishes the display-only channel: the frequency now and a flash for pulses whose
// time has passed since the previous frame.
func (e *Engine) Frame() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	events := []band.Event{{Type: band.EventHzVisualUpdate, Time: now, Hz: e.wave.ValueAtTime(now)}}
	if e.state == StateStarted {
		if flash, ok := e.flashes.due(now); ok {
			events = append(events, flash)
		}
	}
	e.mu.Unlock()

	e.bus.Publish(events...)
}

// Close stops the engine and drops every subscription.
func (e *Engine) Close() {
	e.cancel()
	_ = e.Stop()
	e.bus.Close()
}

// CurrentHz returns the wave-band frequency now.
func (e *Engine) CurrentHz() float64 {
	return e.HzAtTime(e.clock.Now())
}

// HzAtTime returns the wave-band frequency at an audio clock time.
func (e *Engine) HzAtTime(t float64) float64 {
	return e.wave.ValueAtTime(t)
}

// CurrentBPM returns the tempo clock now. Tempo-dependent consumers read this instead of
// deriving BPM themselves.
func (e *Engine) CurrentBPM() float64 {
	return e.tempo.ValueAtTime(e.clock.Now())
}

// CurrentState returns the transport state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StateAtTime returns the transport state recorded at an audio clock time.
func (e *Engine) StateAtTime(t float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.GetValueAtTime(t)
}

// DurationInState returns the total time spent in state up to now.
func (e *Engine) DurationInState(state State) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states.GetDurationInState(state, e.clock.Now())
}

// SessionID returns the ID of the current or most recent session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Segments returns a copy of the loaded journey, including live edits.
func (e *Engine) Segments() []journey.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return journey.Clone(e.segments)
}

// Plan returns the compiled journey the next start from the top will play. Loop segments
// never appear here.
func (e *Engine) Plan() journey.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rescheduleOwed {
		return journey.Compile(e.segments)
	}
	return e.plan.Clone()
}

// PlaybackState returns a snapshot of the transport.
func (e *Engine) PlaybackState() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	position := e.positionLocked(now)
	hz := e.wave.ValueAtTime(now)
	ps := PlaybackState{
		SessionID:           e.sessionID,
		State:               e.state.String(),
		IsRunning:           e.state == StateStarted,
		IsPaused:            e.state == StatePaused,
		StartTime:           e.startTime,
		PauseTime:           e.pausedAt,
		TimelinePosition:    position,
		TotalDuration:       e.active.TotalDuration(),
		CurrentSegmentIndex: -1,
		CurrentHz:           hz,
		CurrentBPM:          e.tempo.ValueAtTime(now),
		WaveType:            brainwave.GetWaveType(hz),
		LoopIterations:      e.loopIterations,
		RescheduleOwed:      e.rescheduleOwed,
	}
	if e.state != StateStopped {
		ps.CurrentSegmentIndex = e.active.IndexAt(position)
	}
	if e.loop != nil {
		loop := *e.loop
		ps.Loop = &loop
	}
	return ps
}

// positionLocked returns the logical position. Must be called with lock held.
func (e *Engine) positionLocked(now float64) float64 {
	switch e.state {
	case StateStarted:
		return now - e.startTime
	case StatePaused:
		return e.pausedAt - e.startTime
	default:
		return 0
	}
}

// activePlanLocked returns the plan a session starting from the top plays.
func (e *Engine) activePlanLocked() journey.Plan {
	if e.loop != nil {
		return loopPlan(*e.loop)
	}
	if e.rescheduleOwed {
		e.plan = journey.Compile(e.segments)
		e.rescheduleOwed = false
	}
	return e.plan
}

func loopPlan(loop LoopSegment) journey.Plan {
	return journey.Compile([]journey.Segment{journey.Plateau(loop.Hz, loop.DurationSeconds)})
}

// scheduleLocked schedules the active plan from position, relative to startTime.
func (e *Engine) scheduleLocked(position float64, immediate bool) ([]band.Event, error) {
	res, err := e.scheduler.Schedule(scheduler.Request{
		Plan:      e.active,
		Origin:    e.startTime,
		From:      position,
		Immediate: immediate,
	})
	if err != nil {
		return nil, err
	}
	return res.Immediate, nil
}

// revokeEventLocked tells audio listeners that everything dispatched for now or later is void.
// Must follow the scheduler cancel it reports on.
func (e *Engine) revokeEventLocked(now float64) band.Event {
	return band.Event{Type: band.EventScheduleCancel, Time: now, PulseCount: e.scheduler.DispatchedCount()}
}

func (e *Engine) dispatchLocked(now float64) []band.Event {
	events := e.scheduler.Dispatch(now + e.config.Lookahead.Seconds())
	e.flashes.push(events)
	return events
}

// failLocked returns the engine to Stopped after a failed scheduling attempt.
func (e *Engine) failLocked(now float64, cause error) ([]band.Event, error) {
	zlog.Error().Msgf("playback: %v", cause)
	var events []band.Event
	if e.state != StateStopped {
		events = append(events, e.lifecycleEventLocked(band.EventTimelineStop, now, band.ReasonError))
	}
	e.teardownLocked(now)
	return events, cause
}

// teardownLocked stops both loops and clears everything the session scheduled.
func (e *Engine) teardownLocked(now float64) {
	e.stopLoopsLocked()
	e.resetSessionLocked()
	if e.state != StateStopped {
		if err := e.states.SetStateAtTime(StateStopped, now); err != nil {
			zlog.Error().Msgf("playback: failed to record stop: %v", err)
		}
	}
	e.state = StateStopped
	e.startTime = 0
	e.pausedAt = 0
}

func (e *Engine) resetSessionLocked() {
	e.scheduler.Reset()
	if err := e.waveSink.CancelScheduledValues(0); err != nil {
		zlog.Error().Msgf("playback: failed to clear wave band: %v", err)
	}
	if err := e.tempoSink.CancelScheduledValues(0); err != nil {
		zlog.Error().Msgf("playback: failed to clear tempo clock: %v", err)
	}
	e.flashes.clear()
	e.loopQueued = false
	e.pausedElapsed = 0
}

func (e *Engine) startLoopsLocked() {
	if e.config.SchedulerInterval <= 0 {
		return
	}
	if e.pollCancel == nil {
		e.pollCancel = e.startTicker(e.config.SchedulerInterval, func() {
			if err := e.Poll(); err != nil {
				zlog.Error().Msgf("playback: poll failed: %v", err)
			}
		})
	}
	if e.frameCancel == nil {
		e.frameCancel = e.startTicker(time.Second/time.Duration(e.config.VisualFPS), e.Frame)
	}
}

func (e *Engine) stopLoopsLocked() {
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	if e.frameCancel != nil {
		e.frameCancel()
		e.frameCancel = nil
	}
}

// startTicker calls fn every interval until the returned cancel function is called.
func (e *Engine) startTicker(interval time.Duration, fn func()) func() {
	ctx, cancel := context.WithCancel(e.ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A tick can race a cancel; never run a callback for a finished loop.
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()

	return cancel
}
