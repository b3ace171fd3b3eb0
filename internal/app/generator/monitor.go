package generator

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/domain/brainwave"
)

// MonitorConfig represents the configuration for BandMonitor.
type MonitorConfig struct {
	Level      string `yaml:"level" mapstructure:"level" default:"debug" validate:"oneof=trace debug info"`
	UpdateMode string `yaml:"update_mode" mapstructure:"update_mode" default:"both" validate:"oneof=audio visual both"`
}

// BandMonitor listens to both bands and logs every hook call.
type BandMonitor struct {
	config   *MonitorConfig
	level    zerolog.Level
	listener *band.DualBandListener

	mu     sync.Mutex
	counts map[string]int
}

// NewBandMonitor creates a new band monitor.
func NewBandMonitor() *BandMonitor {
	return &BandMonitor{counts: make(map[string]int)}
}

func (m *BandMonitor) Name() string {
	return "band_monitor"
}

func (m *BandMonitor) Description() string {
	return "Logs every wave-band and pulse-band event"
}

func (m *BandMonitor) ValidateConfig(settings map[string]any) error {
	var config MonitorConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrap(err, "invalid level")
	}
	m.config = &config
	m.level = level
	return nil
}

func (m *BandMonitor) Attach(env Env) error {
	if m.config == nil {
		if err := m.ValidateConfig(nil); err != nil {
			return err
		}
	}
	if env.Bus == nil {
		return errors.New("band monitor needs a bus")
	}
	mode, err := band.ParseUpdateMode(m.config.UpdateMode)
	if err != nil {
		return err
	}
	m.listener = band.NewDualBandListener(env.Bus, m, mode, env.RateEpsilon)
	return nil
}

func (m *BandMonitor) Detach() {
	if m.listener != nil {
		m.listener.Dispose()
		m.listener = nil
	}
}

// Counts returns how many times each hook fired.
func (m *BandMonitor) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

func (m *BandMonitor) log(hook string, format string, args ...any) {
	m.mu.Lock()
	m.counts[hook]++
	m.mu.Unlock()
	zlog.WithLevel(m.level).Str("hook", hook).Msgf("band monitor: "+format, args...)
}

func (m *BandMonitor) OnTimelineStart(d band.TimelineDetail) {
	m.log("timeline_start", "start session=%s position=%.3f reason=%s resumed=%v", d.SessionID, d.Position, d.Reason, d.Resumed)
}

func (m *BandMonitor) OnTimelineStop(d band.TimelineDetail) {
	m.log("timeline_stop", "stop session=%s position=%.3f reason=%s", d.SessionID, d.Position, d.Reason)
}

func (m *BandMonitor) OnTimelinePause(d band.TimelineDetail) {
	m.log("timeline_pause", "pause session=%s position=%.3f", d.SessionID, d.Position)
}

func (m *BandMonitor) OnHzChanged(hz, time float64, waveType brainwave.WaveType) {
	m.log("hz_changed", "%.3fHz (%s) at %.3f", hz, waveType, time)
}

func (m *BandMonitor) OnHzVisualUpdate(hz float64, waveType brainwave.WaveType, time float64) {
	m.log("hz_visual_update", "%.3fHz (%s) at %.3f", hz, waveType, time)
}

func (m *BandMonitor) OnTransitionStart(fromHz, toHz, duration, startTime float64) {
	m.log("transition_start", "%.3fHz -> %.3fHz over %.1fs from %.3f", fromHz, toHz, duration, startTime)
}

func (m *BandMonitor) OnWaveTypeChanged(waveType brainwave.WaveType, hz float64) {
	m.log("wave_type_changed", "%s at %.3fHz", waveType, hz)
}

func (m *BandMonitor) OnPulse32n(time, hz, interval float64, pulseCount int) {
	m.log("pulse_32n", "#%d at %.3f (%.3fHz, %.4fs)", pulseCount, time, hz, interval)
}

func (m *BandMonitor) OnPulseRateChanged(hz, interval, time float64) {
	m.log("pulse_rate_changed", "%.3fHz interval=%.4fs at %.3f", hz, interval, time)
}

func (m *BandMonitor) OnPulseFlash(time, hz float64) {
	m.log("pulse_flash", "at %.3f (%.3fHz)", time, hz)
}

func (m *BandMonitor) OnScheduleCancel(time float64) {
	m.log("schedule_cancel", "dispatched events from %.3f revoked", time)
}

func init() {
	Register("band_monitor", func() Generator {
		return NewBandMonitor()
	})
}
