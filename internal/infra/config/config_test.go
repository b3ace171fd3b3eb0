package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/journeymap/internal/domain/journey"
)

func intPtr(v int) *int { return &v }

func validConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Engine: EngineConfig{
			LookaheadMs:         100,
			SchedulerIntervalMs: intPtr(25),
			VisualFPS:           60,
			MemoryLimit:         1024,
			PulseRateEpsilon:    0.0001,
		},
		Log: LogConfig{Level: "info", Output: "stdout"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "loops disabled",
			mutate: func(c *Config) { c.Engine.SchedulerIntervalMs = intPtr(0) },
		},
		{
			name:    "lookahead too short",
			mutate:  func(c *Config) { c.Engine.LookaheadMs = 5 },
			wantErr: true,
			errMsg:  "LookaheadMs",
		},
		{
			name:    "interval longer than lookahead",
			mutate:  func(c *Config) { c.Engine.SchedulerIntervalMs = intPtr(200) },
			wantErr: true,
			errMsg:  "must be smaller than lookahead_ms",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name: "segment with unknown type",
			mutate: func(c *Config) {
				c.Journey.Segments = []journey.Segment{{Kind: "ramp", DurationSeconds: 10}}
			},
			wantErr: true,
			errMsg:  "Kind",
		},
		{
			name: "segment with negative duration",
			mutate: func(c *Config) {
				c.Journey.Segments = []journey.Segment{{Kind: journey.KindTransition, DurationSeconds: -1}}
			},
			wantErr: true,
			errMsg:  "DurationSeconds",
		},
		{
			name: "loop out of range",
			mutate: func(c *Config) {
				c.Journey.Loop = &LoopConfig{Hz: 40, DurationSeconds: 60}
			},
			wantErr: true,
			errMsg:  "Hz",
		},
		{
			name: "loop without duration",
			mutate: func(c *Config) {
				c.Journey.Loop = &LoopConfig{Hz: 10}
			},
			wantErr: true,
			errMsg:  "DurationSeconds",
		},
		{
			name: "journey and generators",
			mutate: func(c *Config) {
				c.Journey.Segments = []journey.Segment{journey.Plateau(10, 60), journey.Transition(30), journey.Plateau(6, 60)}
				c.Generators = map[string]GeneratorConfig{"tone_generator": {Enabled: true}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine:
  scheduler_interval_ms: 0
journey:
  segments:
    - type: plateau
      hz: 10
      duration_seconds: 60
    - type: transition
      duration_seconds: 30
      curve: exponential
    - type: plateau
      hz: 4
      duration_seconds: 120
generators:
  tone_generator:
    enabled: true
    settings:
      carrier_hz: 180
  metronome:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// defaults
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.Lookahead())
	assert.Equal(t, 60, cfg.Engine.VisualFPS)
	assert.Equal(t, "info", cfg.Log.Level)

	// explicit zero survives defaulting
	require.NotNil(t, cfg.Engine.SchedulerIntervalMs)
	assert.Equal(t, time.Duration(0), cfg.Engine.SchedulerInterval())

	require.Len(t, cfg.Journey.Segments, 3)
	assert.Equal(t, journey.KindPlateau, cfg.Journey.Segments[0].Kind)
	assert.Equal(t, 10.0, cfg.Journey.Segments[0].HzValue())
	assert.Nil(t, cfg.Journey.Segments[1].Hz)
	assert.Equal(t, journey.CurveExponential, cfg.Journey.Segments[1].Curve)
	assert.Nil(t, cfg.Journey.Loop)

	assert.True(t, cfg.IsGeneratorEnabled("tone_generator"))
	assert.False(t, cfg.IsGeneratorEnabled("metronome"))
	assert.False(t, cfg.IsGeneratorEnabled("band_monitor"))
	assert.Equal(t, map[string]map[string]any{
		"tone_generator": {"carrier_hz": 180},
	}, cfg.EnabledGenerators())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Parse([]byte("engine: [not a map"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Parse([]byte("engine:\n  lookahead_ms: 2000\n"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestDefault_EnvOverrides(t *testing.T) {
	t.Setenv("JOURNEYMAP_ADDR", "127.0.0.1:9090")
	t.Setenv("JOURNEYMAP_LOG_LEVEL", "debug")
	t.Setenv("JOURNEYMAP_ADMIN_TOKEN", "secret")

	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "secret", cfg.Server.AdminToken)
	assert.Equal(t, 25*time.Millisecond, cfg.Engine.SchedulerInterval())
	assert.Empty(t, cfg.EnabledGenerators())
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "journeymap.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.Journey.Segments, 5)
	assert.Equal(t, 25*time.Millisecond, cfg.Engine.SchedulerInterval())
	assert.True(t, cfg.IsGeneratorEnabled("tone_generator"))
	assert.False(t, cfg.IsGeneratorEnabled("metronome"))
	assert.Len(t, cfg.EnabledGenerators(), 3)
}
