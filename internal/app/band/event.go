// Package band provides the event vocabulary the scheduler publishes and the listener
// adapters generators use to consume it.
package band

// EventType represents a band event type.
type EventType int

const (
	EventTimelineStart   EventType = iota // Transport started or resumed
	EventTimelineStop                     // Transport stopped
	EventTimelinePause                    // Transport paused
	EventHzChanged                        // Sample-accurate wave-band frequency change
	EventHzVisualUpdate                   // Throttled display-only frequency update
	EventTransitionStart                  // Wave-band ramp begins
	EventPulse32n                         // One pulse-band trigger
	EventPulseFlash                       // Display-only echo of pulses since the last frame
	EventScheduleCancel                   // Dispatched events at or after Time are void
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTimelineStart:
		return "timeline_start"
	case EventTimelineStop:
		return "timeline_stop"
	case EventTimelinePause:
		return "timeline_pause"
	case EventHzChanged:
		return "hz_changed"
	case EventHzVisualUpdate:
		return "hz_visual_update"
	case EventTransitionStart:
		return "transition_start"
	case EventPulse32n:
		return "pulse_32n"
	case EventPulseFlash:
		return "pulse_flash"
	case EventScheduleCancel:
		return "schedule_cancel"
	default:
		return "unknown"
	}
}

// Stop and start reasons carried in TimelineDetail.
const (
	ReasonUser      = "user"      // Explicit control call
	ReasonCompleted = "completed" // Journey reached its end
	ReasonLoop      = "loop"      // Loop segment wrapped or was entered
	ReasonSeek      = "seek"      // Position moved while running
	ReasonError     = "error"     // Scheduling attempt failed
)

// TimelineDetail describes a transport lifecycle change.
type TimelineDetail struct {
	SessionID    string
	Time         float64 // Audio clock time of the change
	Position     float64 // Logical timeline position in seconds
	SegmentIndex int     // -1 when no segment is active
	Resumed      bool    // Start came from Paused
	Looping      bool
	Reason       string
}

// Event represents one published band event. Fields not relevant to Type are zero.
type Event struct {
	Type       EventType
	SequenceNo uint64
	Time       float64 // Scheduled audio clock time
	Hz         float64
	FromHz     float64 // Transition start Hz
	ToHz       float64 // Transition end Hz
	Duration   float64 // Transition duration in seconds
	Interval   float64 // Pulse interval in seconds
	PulseCount int     // Pulses since start, pulses since the last frame for flashes, or the last surviving pulse for cancels
	Detail     *TimelineDetail
}
