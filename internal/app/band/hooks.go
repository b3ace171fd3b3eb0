package band

import "github.com/osa030/journeymap/internal/domain/brainwave"

// LifecycleHooks receives transport lifecycle changes.
type LifecycleHooks interface {
	OnTimelineStart(detail TimelineDetail)
	OnTimelineStop(detail TimelineDetail)
	OnTimelinePause(detail TimelineDetail)
}

// WaveBandHooks is implemented by continuous-frequency generators.
type WaveBandHooks interface {
	// OnHzChanged fires with the scheduled audio time of a frequency change.
	OnHzChanged(hz, time float64, waveType brainwave.WaveType)
	// OnHzVisualUpdate is display-only and throttled; never drive audio from it.
	OnHzVisualUpdate(hz float64, waveType brainwave.WaveType, time float64)
	OnTransitionStart(fromHz, toHz, duration, startTime float64)
	OnWaveTypeChanged(waveType brainwave.WaveType, hz float64)
}

// PulseBandHooks is implemented by discrete pulse generators.
type PulseBandHooks interface {
	OnPulse32n(time, hz, interval float64, pulseCount int)
	// OnPulseRateChanged fires only when the interval moves by more than the listener epsilon.
	OnPulseRateChanged(hz, interval, time float64)
	OnPulseFlash(time, hz float64)
}

// DualBandHooks is implemented by generators consuming both bands.
type DualBandHooks interface {
	WaveBandHooks
	PulseBandHooks
}

// CancelHooks is implemented by audio consumers holding dispatched events ahead of the
// audio clock. Pause, seek, live edits and restarts revoke everything from time onward.
type CancelHooks interface {
	OnScheduleCancel(time float64)
}

// NopLifecycle can be embedded to implement LifecycleHooks selectively.
type NopLifecycle struct{}

func (NopLifecycle) OnTimelineStart(TimelineDetail) {}
func (NopLifecycle) OnTimelineStop(TimelineDetail)  {}
func (NopLifecycle) OnTimelinePause(TimelineDetail) {}

// NopWaveBand can be embedded to implement WaveBandHooks selectively.
type NopWaveBand struct{}

func (NopWaveBand) OnHzChanged(float64, float64, brainwave.WaveType)      {}
func (NopWaveBand) OnHzVisualUpdate(float64, brainwave.WaveType, float64) {}
func (NopWaveBand) OnTransitionStart(float64, float64, float64, float64)  {}
func (NopWaveBand) OnWaveTypeChanged(brainwave.WaveType, float64)         {}

// NopPulseBand can be embedded to implement PulseBandHooks selectively.
type NopPulseBand struct{}

func (NopPulseBand) OnPulse32n(float64, float64, float64, int)    {}
func (NopPulseBand) OnPulseRateChanged(float64, float64, float64) {}
func (NopPulseBand) OnPulseFlash(float64, float64)                {}
