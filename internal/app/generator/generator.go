// Package generator provides the sound generators that consume the engine's bands.
// Generators never reach into the engine; they subscribe to its bus through the band
// listeners and read the tempo clock through Env.
package generator

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
)

// TempoSource exposes the engine's tempo clock.
type TempoSource interface {
	CurrentBPM() float64
}

// Env is what a generator gets when attached.
type Env struct {
	Bus         *band.Bus
	Tempo       TempoSource
	RateEpsilon float64 // Pulse-rate change threshold; 0 uses the listener default
}

// Generator is the interface for band-driven generators.
type Generator interface {
	// Name returns the generator name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ValidateConfig decodes and validates the generator settings.
	ValidateConfig(settings map[string]any) error
	// Attach subscribes the generator to the bus.
	Attach(env Env) error
	// Detach removes every subscription made by Attach.
	Detach()
}

// registry holds registered generator factories.
var registry = make(map[string]func() Generator)

// Register registers a generator factory.
func Register(name string, factory func() Generator) {
	registry[name] = factory
}

// GetRegistered returns all registered generator factories.
func GetRegistered() map[string]func() Generator {
	return registry
}

// decodeSettings decodes settings into config, then applies defaults and validation.
func decodeSettings(settings map[string]any, config any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// Rack holds the generators attached to one engine.
type Rack struct {
	generators []Generator
}

// NewRack creates an empty rack.
func NewRack() *Rack {
	return &Rack{
		generators: make([]Generator, 0),
	}
}

// Build creates, configures and racks the named generators. Names are processed in sorted
// order so attachment order is stable.
func Build(settings map[string]map[string]any) (*Rack, error) {
	rack := NewRack()
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown generator %q", name)
		}
		g := factory()
		if err := g.ValidateConfig(settings[name]); err != nil {
			return nil, errors.Wrapf(err, "generator %s", name)
		}
		rack.Add(g)
	}
	return rack, nil
}

// Add adds a generator to the rack.
func (r *Rack) Add(g Generator) {
	r.generators = append(r.generators, g)
}

// Attach attaches every generator in order. On failure the ones already attached are
// detached again.
func (r *Rack) Attach(env Env) error {
	for i, g := range r.generators {
		if err := g.Attach(env); err != nil {
			for _, attached := range r.generators[:i] {
				attached.Detach()
			}
			return errors.Wrapf(err, "failed to attach %s", g.Name())
		}
		zlog.Debug().Msgf("generator: attached %s", g.Name())
	}
	return nil
}

// Detach detaches every generator.
func (r *Rack) Detach() {
	for _, g := range r.generators {
		g.Detach()
	}
}

// Generators returns all generators in the rack.
func (r *Rack) Generators() []Generator {
	return r.generators
}
