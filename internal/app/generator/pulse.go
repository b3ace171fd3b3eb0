package generator

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
)

// PulseConfig represents the configuration for PulseGenerator.
type PulseConfig struct {
	CarrierHz float64 `yaml:"carrier_hz" mapstructure:"carrier_hz" default:"200" validate:"gte=20,lte=2000"`
	DutyCycle float64 `yaml:"duty_cycle" mapstructure:"duty_cycle" default:"0.5" validate:"gt=0,lt=1"`
	History   int     `yaml:"history" mapstructure:"history" default:"64" validate:"gte=1,lte=4096"`
}

// Gate is one scheduled opening of the isochronic gate.
type Gate struct {
	On    float64
	Off   float64
	Hz    float64
	Count int
}

// PulseGenerator is the gated isochronic generator on the pulse band.
type PulseGenerator struct {
	band.NopLifecycle
	band.NopPulseBand

	config   *PulseConfig
	listener *band.PulseBandListener

	mu          sync.Mutex
	gates       []Gate
	rateChanges int
}

// NewPulseGenerator creates a new pulse generator.
func NewPulseGenerator() *PulseGenerator {
	return &PulseGenerator{}
}

func (g *PulseGenerator) Name() string {
	return "pulse_generator"
}

func (g *PulseGenerator) Description() string {
	return "Isochronic gate opening on every 32nd-note pulse"
}

func (g *PulseGenerator) ValidateConfig(settings map[string]any) error {
	var config PulseConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	g.config = &config
	zlog.Info().Msgf("pulse generator config: %+v", config)
	return nil
}

func (g *PulseGenerator) Attach(env Env) error {
	if g.config == nil {
		if err := g.ValidateConfig(nil); err != nil {
			return err
		}
	}
	if env.Bus == nil {
		return errors.New("pulse generator needs a bus")
	}
	g.listener = band.NewPulseBandListener(env.Bus, g, band.UpdateModeAudio, env.RateEpsilon)
	return nil
}

func (g *PulseGenerator) Detach() {
	if g.listener != nil {
		g.listener.Dispose()
		g.listener = nil
	}
}

// Gates returns the most recent gates, oldest first.
func (g *PulseGenerator) Gates() []Gate {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Gate, len(g.gates))
	copy(out, g.gates)
	return out
}

// RateChanges returns how many pulse-rate changes were reported.
func (g *PulseGenerator) RateChanges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rateChanges
}

func (g *PulseGenerator) OnPulse32n(time, hz, interval float64, pulseCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates = append(g.gates, Gate{
		On:    time,
		Off:   time + interval*g.config.DutyCycle,
		Hz:    hz,
		Count: pulseCount,
	})
	if over := len(g.gates) - g.config.History; over > 0 {
		g.gates = g.gates[over:]
	}
}

func (g *PulseGenerator) OnPulseRateChanged(hz, interval, time float64) {
	g.mu.Lock()
	g.rateChanges++
	g.mu.Unlock()
	zlog.Debug().Msgf("pulse generator: rate %.2fHz interval=%.4fs at %.3f", hz, interval, time)
}

// OnScheduleCancel drops gates opening at or after time and closes a gate still open then.
func (g *PulseGenerator) OnScheduleCancel(time float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.gates)
	for n > 0 && g.gates[n-1].On >= time {
		n--
	}
	g.gates = g.gates[:n]
	if n > 0 && g.gates[n-1].Off > time {
		g.gates[n-1].Off = time
	}
}

func (g *PulseGenerator) OnTimelineStop(band.TimelineDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates = nil
	g.rateChanges = 0
}

func init() {
	Register("pulse_generator", func() Generator {
		return NewPulseGenerator()
	})
}
