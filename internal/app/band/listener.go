package band

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/journeymap/internal/domain/brainwave"
)

// UpdateMode selects which frequency channel a wave-band listener receives.
type UpdateMode string

const (
	UpdateModeAudio  UpdateMode = "audio"  // Sample-accurate changes only
	UpdateModeVisual UpdateMode = "visual" // Throttled display updates only
	UpdateModeBoth   UpdateMode = "both"
)

// ParseUpdateMode parses an update mode; empty means audio.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(s) {
	case "":
		return UpdateModeAudio, nil
	case UpdateModeAudio, UpdateModeVisual, UpdateModeBoth:
		return UpdateMode(s), nil
	default:
		return "", errors.Newf("unknown update mode %q", s)
	}
}

func (m UpdateMode) audio() bool  { return m == UpdateModeAudio || m == UpdateModeBoth }
func (m UpdateMode) visual() bool { return m == UpdateModeVisual || m == UpdateModeBoth }

// DefaultPulseRateEpsilon is the interval change (seconds) below which rate changes are not reported.
const DefaultPulseRateEpsilon = 0.0001

// Listener owns a set of bus subscriptions and tracks whether the timeline is running.
// Dispose removes every subscription it created.
type Listener struct {
	bus *Bus

	mu              sync.Mutex
	subscriptions   map[EventType]string
	lifecycle       LifecycleHooks
	timelineRunning bool
	disposed        bool
}

// NewListener creates a listener and subscribes it to lifecycle events.
// hooks may be nil when only the running flag is needed.
func NewListener(bus *Bus, hooks LifecycleHooks) *Listener {
	l := &Listener{
		bus:           bus,
		subscriptions: make(map[EventType]string),
		lifecycle:     hooks,
	}
	l.on(EventTimelineStart, func(e Event) {
		l.setRunning(true)
		if l.lifecycle != nil {
			l.lifecycle.OnTimelineStart(detailOf(e))
		}
	})
	l.on(EventTimelineStop, func(e Event) {
		l.setRunning(false)
		if l.lifecycle != nil {
			l.lifecycle.OnTimelineStop(detailOf(e))
		}
	})
	l.on(EventTimelinePause, func(e Event) {
		l.setRunning(false)
		if l.lifecycle != nil {
			l.lifecycle.OnTimelinePause(detailOf(e))
		}
	})
	return l
}

// TimelineRunning returns true between a start and the next pause or stop.
func (l *Listener) TimelineRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timelineRunning
}

// SubscriptionCount returns the number of live subscriptions.
func (l *Listener) SubscriptionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subscriptions)
}

// Dispose unsubscribes everything. Calling it twice is harmless.
func (l *Listener) Dispose() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.subscriptions))
	for _, id := range l.subscriptions {
		ids = append(ids, id)
	}
	l.subscriptions = make(map[EventType]string)
	l.disposed = true
	l.mu.Unlock()

	for _, id := range ids {
		l.bus.Unsubscribe(id)
	}
}

// on subscribes handler for eventType, replacing an earlier handler for the same type.
func (l *Listener) on(eventType EventType, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	if old, ok := l.subscriptions[eventType]; ok {
		l.bus.Unsubscribe(old)
	}
	l.subscriptions[eventType] = l.bus.Subscribe(eventType, handler)
}

func (l *Listener) setRunning(running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timelineRunning = running
}

func detailOf(e Event) TimelineDetail {
	if e.Detail == nil {
		return TimelineDetail{Time: e.Time, SegmentIndex: -1}
	}
	return *e.Detail
}

// WaveBandListener adapts bus events to WaveBandHooks and caches the latest frequency.
type WaveBandListener struct {
	*Listener
	hooks WaveBandHooks
	mode  UpdateMode

	stateMu         sync.Mutex
	currentHz       float64
	currentWaveType brainwave.WaveType
}

// NewWaveBandListener subscribes hooks to the channels selected by mode.
// If hooks also implements LifecycleHooks it receives lifecycle events.
func NewWaveBandListener(bus *Bus, hooks WaveBandHooks, mode UpdateMode) *WaveBandListener {
	lifecycle, _ := hooks.(LifecycleHooks)
	return newWaveBandListener(bus, hooks, mode, lifecycle)
}

func newWaveBandListener(bus *Bus, hooks WaveBandHooks, mode UpdateMode, lifecycle LifecycleHooks) *WaveBandListener {
	if mode == "" {
		mode = UpdateModeAudio
	}
	w := &WaveBandListener{
		Listener:        NewListener(bus, lifecycle),
		hooks:           hooks,
		mode:            mode,
		currentWaveType: brainwave.WaveUnknown,
	}

	if mode.audio() {
		w.on(EventHzChanged, func(e Event) {
			waveType := w.observe(e.Hz)
			w.hooks.OnHzChanged(e.Hz, e.Time, waveType)
		})
		w.on(EventTransitionStart, func(e Event) {
			w.hooks.OnTransitionStart(e.FromHz, e.ToHz, e.Duration, e.Time)
		})
		if cancel, ok := hooks.(CancelHooks); ok {
			w.on(EventScheduleCancel, func(e Event) {
				cancel.OnScheduleCancel(e.Time)
			})
		}
	}
	if mode.visual() {
		w.on(EventHzVisualUpdate, func(e Event) {
			waveType := brainwave.GetWaveType(e.Hz)
			if !mode.audio() {
				waveType = w.observe(e.Hz)
			}
			w.hooks.OnHzVisualUpdate(e.Hz, waveType, e.Time)
		})
	}
	return w
}

// Mode returns the update mode.
func (w *WaveBandListener) Mode() UpdateMode {
	return w.mode
}

// CurrentHz returns the last frequency received.
func (w *WaveBandListener) CurrentHz() float64 {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.currentHz
}

// CurrentWaveType returns the band label of the last frequency received.
func (w *WaveBandListener) CurrentWaveType() brainwave.WaveType {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.currentWaveType
}

// observe caches hz and fires OnWaveTypeChanged when the band label moves.
func (w *WaveBandListener) observe(hz float64) brainwave.WaveType {
	waveType := brainwave.GetWaveType(hz)

	w.stateMu.Lock()
	changed := waveType != w.currentWaveType
	w.currentHz = hz
	w.currentWaveType = waveType
	w.stateMu.Unlock()

	if changed {
		w.hooks.OnWaveTypeChanged(waveType, hz)
	}
	return waveType
}

// PulseBandListener adapts bus events to PulseBandHooks and tracks the pulse rate.
type PulseBandListener struct {
	*Listener
	hooks   PulseBandHooks
	mode    UpdateMode
	epsilon float64

	stateMu      sync.Mutex
	currentHz    float64
	lastInterval float64
	pulseCount   int
}

// NewPulseBandListener subscribes hooks to pulse triggers (audio) and flashes (visual).
// A non-positive epsilon uses DefaultPulseRateEpsilon.
func NewPulseBandListener(bus *Bus, hooks PulseBandHooks, mode UpdateMode, epsilon float64) *PulseBandListener {
	lifecycle, _ := hooks.(LifecycleHooks)
	cancel, _ := hooks.(CancelHooks)
	return newPulseBandListener(bus, hooks, mode, epsilon, lifecycle, cancel)
}

func newPulseBandListener(bus *Bus, hooks PulseBandHooks, mode UpdateMode, epsilon float64, lifecycle LifecycleHooks, cancel CancelHooks) *PulseBandListener {
	if mode == "" {
		mode = UpdateModeAudio
	}
	if epsilon <= 0 {
		epsilon = DefaultPulseRateEpsilon
	}
	p := &PulseBandListener{
		Listener: NewListener(bus, lifecycle),
		hooks:    hooks,
		mode:     mode,
		epsilon:  epsilon,
	}

	if mode.audio() {
		p.on(EventPulse32n, func(e Event) {
			p.stateMu.Lock()
			rateChanged := math.Abs(e.Interval-p.lastInterval) > p.epsilon
			p.currentHz = e.Hz
			p.pulseCount = e.PulseCount
			if rateChanged {
				p.lastInterval = e.Interval
			}
			p.stateMu.Unlock()

			if rateChanged {
				p.hooks.OnPulseRateChanged(e.Hz, e.Interval, e.Time)
			}
			p.hooks.OnPulse32n(e.Time, e.Hz, e.Interval, e.PulseCount)
		})
		p.on(EventScheduleCancel, func(e Event) {
			p.stateMu.Lock()
			if p.pulseCount > e.PulseCount {
				p.pulseCount = e.PulseCount
			}
			p.stateMu.Unlock()
			if cancel != nil {
				cancel.OnScheduleCancel(e.Time)
			}
		})
	}
	if mode.visual() {
		p.on(EventPulseFlash, func(e Event) {
			p.hooks.OnPulseFlash(e.Time, e.Hz)
		})
	}
	p.on(EventTimelineStop, func(e Event) {
		p.setRunning(false)
		p.stateMu.Lock()
		p.lastInterval = 0
		p.pulseCount = 0
		p.stateMu.Unlock()
		if lifecycle != nil {
			lifecycle.OnTimelineStop(detailOf(e))
		}
	})
	return p
}

// PulseCount returns the count carried by the last pulse received.
func (p *PulseBandListener) PulseCount() int {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.pulseCount
}

// CurrentInterval returns the last reported pulse interval.
func (p *PulseBandListener) CurrentInterval() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.lastInterval
}

// CurrentHz returns the Hz of the last pulse received.
func (p *PulseBandListener) CurrentHz() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.currentHz
}

// DualBandListener composes a wave-band and a pulse-band listener around one hooks value.
// Lifecycle events reach hooks once.
type DualBandListener struct {
	Wave  *WaveBandListener
	Pulse *PulseBandListener
}

// NewDualBandListener subscribes hooks to both bands.
func NewDualBandListener(bus *Bus, hooks DualBandHooks, mode UpdateMode, epsilon float64) *DualBandListener {
	lifecycle, _ := hooks.(LifecycleHooks)
	return &DualBandListener{
		Wave:  newWaveBandListener(bus, hooks, mode, lifecycle),
		Pulse: newPulseBandListener(bus, hooks, mode, epsilon, nil, nil),
	}
}

// TimelineRunning returns the running flag.
func (d *DualBandListener) TimelineRunning() bool {
	return d.Wave.TimelineRunning()
}

// Dispose unsubscribes both bands.
func (d *DualBandListener) Dispose() {
	d.Wave.Dispose()
	d.Pulse.Dispose()
}
