// Package playback provides transport control over the dual-band scheduler, including
// single-segment looping and live frequency edits.
package playback

import (
	"github.com/osa030/journeymap/internal/app/timeline"
	"github.com/osa030/journeymap/internal/domain/brainwave"
)

// State represents the transport state.
type State = timeline.State

const (
	StateStopped = timeline.StateStopped
	StateStarted = timeline.StateStarted
	StatePaused  = timeline.StatePaused
)

// LoopSegment is the transient single-plateau override used in loop mode.
type LoopSegment struct {
	Hz              float64 `json:"hz"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// PlaybackState is a snapshot of the engine's transport bookkeeping.
type PlaybackState struct {
	SessionID           string             `json:"session_id"`
	State               string             `json:"state"`
	IsRunning           bool               `json:"is_running"`
	IsPaused            bool               `json:"is_paused"`
	StartTime           float64            `json:"start_time"` // Audio time of logical position 0
	PauseTime           float64            `json:"pause_time"`
	TimelinePosition    float64            `json:"timeline_position"`
	TotalDuration       float64            `json:"total_duration"`
	CurrentSegmentIndex int                `json:"current_segment_index"`
	CurrentHz           float64            `json:"current_hz"`
	CurrentBPM          float64            `json:"current_bpm"`
	WaveType            brainwave.WaveType `json:"wave_type"`
	Loop                *LoopSegment       `json:"loop,omitempty"`
	LoopIterations      int                `json:"loop_iterations"`
	RescheduleOwed      bool               `json:"reschedule_owed"`
}
