// Package brainwave provides beat-frequency math shared by the scheduler and its consumers.
package brainwave

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Valid entrainment range in Hz.
const (
	MinHz = 0.5
	MaxHz = 25.0
)

// ErrHzOutOfRange is returned when a beat frequency falls outside [MinHz, MaxHz].
var ErrHzOutOfRange = errors.New("hz out of range")

// WaveType represents a brainwave band label.
type WaveType string

const (
	WaveDelta   WaveType = "DELTA"
	WaveTheta   WaveType = "THETA"
	WaveAlpha   WaveType = "ALPHA"
	WaveSMR     WaveType = "SMR"
	WaveBeta    WaveType = "BETA"
	WaveUnknown WaveType = "UNKNOWN"
)

// String returns the band label.
func (w WaveType) String() string {
	return string(w)
}

// GetWaveType classifies hz into its brainwave band.
// Lower bounds are exclusive except for DELTA.
func GetWaveType(hz float64) WaveType {
	switch {
	case hz >= MinHz && hz <= 4:
		return WaveDelta
	case hz > 4 && hz <= 8:
		return WaveTheta
	case hz > 8 && hz <= 12:
		return WaveAlpha
	case hz > 12 && hz <= 15:
		return WaveSMR
	case hz > 15 && hz <= MaxHz:
		return WaveBeta
	default:
		return WaveUnknown
	}
}

// ValidHz reports whether hz is a finite value inside the entrainment range.
func ValidHz(hz float64) bool {
	if math.IsNaN(hz) || math.IsInf(hz, 0) {
		return false
	}
	return hz >= MinHz && hz <= MaxHz
}

// CheckHz returns ErrHzOutOfRange (with the offending value) when hz is not valid.
func CheckHz(hz float64) error {
	if !ValidHz(hz) {
		return errors.Wrapf(ErrHzOutOfRange, "%v not in [%v, %v]", hz, MinHz, MaxHz)
	}
	return nil
}

// TempoBPM returns the tempo locked to hz: one 32nd note per beat cycle.
// Never rounded.
func TempoBPM(hz float64) float64 {
	return hz * 60 / 8
}

// PulseInterval returns the 32nd-note pulse period in seconds for hz.
func PulseInterval(hz float64) float64 {
	return 1 / (hz * 4)
}
