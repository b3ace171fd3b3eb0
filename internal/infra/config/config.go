// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/journeymap/internal/domain/journey"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Engine     EngineConfig               `yaml:"engine"`
	Journey    JourneyConfig              `yaml:"journey"`
	Generators map[string]GeneratorConfig `yaml:"generators"`
	Log        LogConfig                  `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
	// AdminToken, when set, is required on every control endpoint.
	AdminToken string      `yaml:"admin_token"`
	Hooks      HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// EngineConfig represents timeline engine configuration.
type EngineConfig struct {
	LookaheadMs int `yaml:"lookahead_ms" default:"100" validate:"gte=10,lte=1000"`
	// SchedulerIntervalMs of 0 disables the background loops.
	SchedulerIntervalMs *int    `yaml:"scheduler_interval_ms" default:"25" validate:"gte=0,lte=1000"`
	VisualFPS           int     `yaml:"visual_fps" default:"60" validate:"gte=1,lte=240"`
	MemoryLimit         int     `yaml:"memory_limit" default:"1048576" validate:"gte=16"`
	PulseRateEpsilon    float64 `yaml:"pulse_rate_epsilon" default:"0.0001" validate:"gt=0,lt=1"`
}

// JourneyConfig represents the journey loaded at startup.
type JourneyConfig struct {
	Segments []journey.Segment `yaml:"segments" validate:"dive"`
	Loop     *LoopConfig       `yaml:"loop"`
}

// LoopConfig represents a loop segment applied at startup.
type LoopConfig struct {
	Hz              float64 `yaml:"hz" validate:"gte=0.5,lte=25"`
	DurationSeconds float64 `yaml:"duration_seconds" validate:"gt=0"`
}

// GeneratorConfig represents a generator's configuration.
type GeneratorConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return finish(&cfg)
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("JOURNEYMAP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JOURNEYMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("JOURNEYMAP_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// The poll must run at least once per lookahead window
	if interval := c.Engine.schedulerIntervalMs(); interval > 0 && interval >= c.Engine.LookaheadMs {
		return errors.Newf("scheduler_interval_ms (%d) must be smaller than lookahead_ms (%d)",
			interval, c.Engine.LookaheadMs)
	}

	for name := range c.Generators {
		if name == "" {
			return errors.New("generator name must not be empty")
		}
	}
	return nil
}

// Lookahead returns the dispatch lookahead window.
func (e EngineConfig) Lookahead() time.Duration {
	return time.Duration(e.LookaheadMs) * time.Millisecond
}

// SchedulerInterval returns the poll period; zero means the loops are disabled.
func (e EngineConfig) SchedulerInterval() time.Duration {
	return time.Duration(e.schedulerIntervalMs()) * time.Millisecond
}

func (e EngineConfig) schedulerIntervalMs() int {
	if e.SchedulerIntervalMs == nil {
		return 0
	}
	return *e.SchedulerIntervalMs
}

// IsGeneratorEnabled checks if a generator is enabled.
func (c *Config) IsGeneratorEnabled(name string) bool {
	if g, ok := c.Generators[name]; ok {
		return g.Enabled
	}
	return false
}

// EnabledGenerators returns the settings of every enabled generator by name.
func (c *Config) EnabledGenerators() map[string]map[string]any {
	enabled := make(map[string]map[string]any)
	for name, g := range c.Generators {
		if g.Enabled {
			enabled[name] = g.Settings
		}
	}
	return enabled
}
