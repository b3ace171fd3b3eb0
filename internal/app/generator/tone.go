package generator

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/domain/brainwave"
)

// ToneConfig represents the configuration for ToneGenerator.
type ToneConfig struct {
	CarrierHz float64 `yaml:"carrier_hz" mapstructure:"carrier_hz" default:"200" validate:"gte=20,lte=2000"`
	Volume    float64 `yaml:"volume" mapstructure:"volume" default:"0.5" validate:"gt=0,lte=1"`
	// The carrier only follows the audio channel; "both" adds the display-only DisplayHz.
	UpdateMode string `yaml:"update_mode" mapstructure:"update_mode" default:"audio" validate:"oneof=audio both"`
}

// Ramp is a wave-band transition in progress.
type Ramp struct {
	FromHz    float64
	ToHz      float64
	Duration  float64
	StartTime float64
}

// ToneState is the binaural carrier state of a ToneGenerator.
type ToneState struct {
	Active    bool
	BeatHz    float64
	LeftHz    float64 // Carrier minus half the beat
	RightHz   float64 // Carrier plus half the beat
	WaveType  brainwave.WaveType
	Ramp      *Ramp
	Changes   int
	DisplayHz float64 // Last display-channel value; never reaches the carrier
}

// toneHistory bounds the dispatched beat changes kept for revocation.
const toneHistory = 32

type toneChange struct {
	time     float64
	hz       float64
	waveType brainwave.WaveType
}

// ToneGenerator is the continuous binaural generator on the wave band.
type ToneGenerator struct {
	config   *ToneConfig
	listener *band.WaveBandListener

	mu      sync.Mutex
	state   ToneState
	changes []toneChange // Dispatched beat changes, time ascending
}

// NewToneGenerator creates a new tone generator.
func NewToneGenerator() *ToneGenerator {
	return &ToneGenerator{state: ToneState{WaveType: brainwave.WaveUnknown}}
}

func (g *ToneGenerator) Name() string {
	return "tone_generator"
}

func (g *ToneGenerator) Description() string {
	return "Binaural carrier pair following the wave band"
}

func (g *ToneGenerator) ValidateConfig(settings map[string]any) error {
	var config ToneConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	g.config = &config
	zlog.Info().Msgf("tone generator config: %+v", config)
	return nil
}

func (g *ToneGenerator) Attach(env Env) error {
	if g.config == nil {
		if err := g.ValidateConfig(nil); err != nil {
			return err
		}
	}
	if env.Bus == nil {
		return errors.New("tone generator needs a bus")
	}
	mode, err := band.ParseUpdateMode(g.config.UpdateMode)
	if err != nil {
		return err
	}
	g.listener = band.NewWaveBandListener(env.Bus, g, mode)
	return nil
}

func (g *ToneGenerator) Detach() {
	if g.listener != nil {
		g.listener.Dispose()
		g.listener = nil
	}
}

// State returns a snapshot of the carrier state.
func (g *ToneGenerator) State() ToneState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state
	if s.Ramp != nil {
		r := *s.Ramp
		s.Ramp = &r
	}
	return s
}

// BeatAt returns the beat frequency the generator plays at time, following a ramp in progress.
func (g *ToneGenerator) BeatAt(time float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.state.Ramp
	if r == nil || r.Duration <= 0 || time < r.StartTime {
		for i := len(g.changes) - 1; i >= 0; i-- {
			if g.changes[i].time <= time {
				return g.changes[i].hz
			}
		}
		return g.state.BeatHz
	}
	return r.valueAt(time)
}

func (r *Ramp) valueAt(time float64) float64 {
	if time >= r.StartTime+r.Duration {
		return r.ToHz
	}
	return r.FromHz + (r.ToHz-r.FromHz)*(time-r.StartTime)/r.Duration
}

func (g *ToneGenerator) OnTimelineStart(band.TimelineDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Active = true
}

func (g *ToneGenerator) OnTimelineStop(band.TimelineDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = ToneState{WaveType: brainwave.WaveUnknown}
	g.changes = nil
}

func (g *ToneGenerator) OnTimelinePause(band.TimelineDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Active = false
}

func (g *ToneGenerator) OnHzChanged(hz, time float64, waveType brainwave.WaveType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.changes = append(g.changes, toneChange{time: time, hz: hz, waveType: waveType})
	if over := len(g.changes) - toneHistory; over > 0 {
		g.changes = g.changes[over:]
	}
	g.setBeatLocked(hz, waveType)
	if r := g.state.Ramp; r != nil && time >= r.StartTime+r.Duration {
		g.state.Ramp = nil
	}
	g.state.Changes++
}

func (g *ToneGenerator) OnHzVisualUpdate(hz float64, _ brainwave.WaveType, _ float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.DisplayHz = hz
}

// OnScheduleCancel drops beat changes and ramps dispatched for time or later. A ramp in
// progress at time freezes at its value then.
func (g *ToneGenerator) OnScheduleCancel(time float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var frozen *toneChange
	if r := g.state.Ramp; r != nil {
		switch {
		case r.StartTime >= time:
			g.state.Ramp = nil
		case time < r.StartTime+r.Duration:
			hz := r.valueAt(time)
			frozen = &toneChange{time: time, hz: hz, waveType: brainwave.GetWaveType(hz)}
			g.state.Ramp = nil
		}
	}

	n := len(g.changes)
	for n > 0 && g.changes[n-1].time >= time {
		n--
	}
	g.changes = g.changes[:n]
	if frozen != nil {
		g.changes = append(g.changes, *frozen)
	}
	if n := len(g.changes); n > 0 {
		last := g.changes[n-1]
		g.setBeatLocked(last.hz, last.waveType)
	}
}

func (g *ToneGenerator) OnTransitionStart(fromHz, toHz, duration, startTime float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Ramp = &Ramp{FromHz: fromHz, ToHz: toHz, Duration: duration, StartTime: startTime}
}

func (g *ToneGenerator) OnWaveTypeChanged(waveType brainwave.WaveType, hz float64) {
	zlog.Debug().Msgf("tone generator: entering %s at %.2fHz", waveType, hz)
}

// setBeatLocked must be called with g.mu held.
func (g *ToneGenerator) setBeatLocked(hz float64, waveType brainwave.WaveType) {
	carrier := g.config.CarrierHz
	g.state.BeatHz = hz
	g.state.LeftHz = carrier - hz/2
	g.state.RightHz = carrier + hz/2
	g.state.WaveType = waveType
}

func init() {
	Register("tone_generator", func() Generator {
		return NewToneGenerator()
	})
}
