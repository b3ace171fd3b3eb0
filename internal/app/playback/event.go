package playback

import "github.com/osa030/journeymap/internal/app/band"

// lifecycleEvent builds a transport event carrying the current session detail.
// Must be called with lock held.
func (e *Engine) lifecycleEventLocked(eventType band.EventType, now float64, reason string) band.Event {
	position := e.positionLocked(now)
	return band.Event{
		Type: eventType,
		Time: now,
		Hz:   e.wave.ValueAtTime(now),
		Detail: &band.TimelineDetail{
			SessionID:    e.sessionID,
			Time:         now,
			Position:     position,
			SegmentIndex: e.active.IndexAt(position),
			Resumed:      eventType == band.EventTimelineStart && reason == reasonResume,
			Looping:      e.loop != nil,
			Reason:       publicReason(reason),
		},
	}
}

// reasonResume is internal; listeners see it as a user start with Resumed set.
const reasonResume = "resume"

func publicReason(reason string) string {
	if reason == reasonResume {
		return band.ReasonUser
	}
	return reason
}

// flashQueue holds dispatched pulses until their audio time passes, so the visual loop can
// echo them.
type flashQueue struct {
	pending []band.Event
}

func (q *flashQueue) push(events []band.Event) {
	for _, ev := range events {
		if ev.Type == band.EventPulse32n {
			q.pending = append(q.pending, ev)
		}
	}
}

// due removes pulses at or before now and returns a flash summarising them.
func (q *flashQueue) due(now float64) (band.Event, bool) {
	n := 0
	for n < len(q.pending) && q.pending[n].Time <= now {
		n++
	}
	if n == 0 {
		return band.Event{}, false
	}
	last := q.pending[n-1]
	q.pending = q.pending[n:]
	return band.Event{Type: band.EventPulseFlash, Time: now, Hz: last.Hz, Interval: last.Interval, PulseCount: n}, true
}

// cancel drops pulses at or after at.
func (q *flashQueue) cancel(at float64) {
	for i, ev := range q.pending {
		if ev.Time >= at {
			q.pending = q.pending[:i]
			return
		}
	}
}

func (q *flashQueue) clear() {
	q.pending = nil
}
