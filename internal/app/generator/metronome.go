package generator

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/domain/brainwave"
)

// MetronomeConfig represents the configuration for Metronome.
type MetronomeConfig struct {
	BeatsPerBar int `yaml:"beats_per_bar" mapstructure:"beats_per_bar" default:"4" validate:"gte=1,lte=16"`
}

// MetronomeState is what a visual metronome shows.
type MetronomeState struct {
	BPM   float64
	Beats int // Beats since start
	Bar   int
	Beat  int // 1-based position in the bar
}

// Metronome is a visual metronome. It reads BPM from the tempo clock on every frame and
// never derives it from Hz.
type Metronome struct {
	band.NopLifecycle
	band.NopWaveBand

	config   *MetronomeConfig
	tempo    TempoSource
	listener *band.WaveBandListener

	mu       sync.Mutex
	state    MetronomeState
	nextBeat float64
	running  bool
}

// NewMetronome creates a new metronome.
func NewMetronome() *Metronome {
	return &Metronome{}
}

func (m *Metronome) Name() string {
	return "metronome"
}

func (m *Metronome) Description() string {
	return "Visual metronome driven by the tempo clock"
}

func (m *Metronome) ValidateConfig(settings map[string]any) error {
	var config MetronomeConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	m.config = &config
	zlog.Info().Msgf("metronome config: %+v", config)
	return nil
}

func (m *Metronome) Attach(env Env) error {
	if m.config == nil {
		if err := m.ValidateConfig(nil); err != nil {
			return err
		}
	}
	if env.Bus == nil || env.Tempo == nil {
		return errors.New("metronome needs a bus and a tempo clock")
	}
	m.tempo = env.Tempo
	m.listener = band.NewWaveBandListener(env.Bus, m, band.UpdateModeVisual)
	return nil
}

func (m *Metronome) Detach() {
	if m.listener != nil {
		m.listener.Dispose()
		m.listener = nil
	}
}

// State returns what the metronome shows.
func (m *Metronome) State() MetronomeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Metronome) OnTimelineStart(band.TimelineDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

func (m *Metronome) OnTimelinePause(band.TimelineDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.nextBeat = 0
}

func (m *Metronome) OnTimelineStop(band.TimelineDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.nextBeat = 0
	m.state = MetronomeState{}
}

func (m *Metronome) OnHzVisualUpdate(_ float64, _ brainwave.WaveType, time float64) {
	bpm := m.tempo.CurrentBPM()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.BPM = bpm
	if !m.running || bpm <= 0 {
		return
	}
	interval := 60 / bpm
	if m.nextBeat == 0 {
		m.nextBeat = time
	}
	for time >= m.nextBeat {
		m.state.Beats++
		m.state.Beat = (m.state.Beats-1)%m.config.BeatsPerBar + 1
		m.state.Bar = (m.state.Beats-1)/m.config.BeatsPerBar + 1
		m.nextBeat += interval
	}
}

func init() {
	Register("metronome", func() Generator {
		return NewMetronome()
	})
}
