// Package scheduler turns a compiled journey into wave-band automation, a locked tempo clock
// and pulse-band triggers, and dispatches them to band listeners ahead of the audio clock.
package scheduler

import (
	"math"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/app/timeline"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/domain/journey"
)

// Sink receives sample-accurate automation. automation.Param implements it.
type Sink interface {
	SetValueAtTime(value, time float64) error
	LinearRampToValueAtTime(value, time float64) error
	ExponentialRampToValueAtTime(value, time float64) error
	CancelScheduledValues(time float64) error
	CancelAndHoldAtTime(time float64) error
}

// WaveEvent is a wave-band change waiting to be dispatched to listeners.
type WaveEvent struct {
	Time         float64 // Audio clock time
	Hz           float64 // Value at Time
	Ramp         bool
	ToHz         float64
	Duration     float64
	SegmentIndex int
}

// EventTime implements timeline.Event.
func (e WaveEvent) EventTime() float64 {
	return e.Time
}

// PulseTrigger is one 32nd-note pulse waiting to be dispatched.
type PulseTrigger struct {
	Time         float64 // Audio clock time
	Hz           float64 // Hz snapshot the interval was computed from
	Interval     float64
	Count        int
	SegmentIndex int
}

// EventTime implements timeline.Event.
func (p PulseTrigger) EventTime() float64 {
	return p.Time
}

// DefaultPulseHorizon is how far ahead of the dispatch window pulses are planned.
const DefaultPulseHorizon = 2.0

// Config holds scheduler configuration.
type Config struct {
	Memory       int     // Retention bound for the dispatch timelines
	Lookahead    float64 // Seconds between the audio clock and the dispatch window end
	PulseHorizon float64 // Seconds of pulses kept planned past the dispatch window
}

// Request describes one scheduling pass.
type Request struct {
	Plan   journey.Plan
	Origin float64 // Audio clock time of logical position 0
	From   float64 // Logical position to schedule from
	// Immediate returns the first wave change in Result.Immediate instead of queueing it,
	// for edits that must be heard now.
	Immediate bool
}

// Result summarises a scheduling pass.
type Result struct {
	Scheduled []int // Segment indices pushed to the bands
	Skipped   []int // Segment indices rejected for out-of-range Hz
	Pulses    int
	SeedBPM   float64
	Immediate []band.Event
}

// Scheduler is the dual-band scheduler. It is not safe for concurrent use; the engine
// serialises calls.
type Scheduler struct {
	wave  Sink
	tempo Sink

	lookahead float64
	horizon   float64

	waveEvents      *timeline.Timeline[WaveEvent]
	pulses          *timeline.Timeline[PulseTrigger]
	dispatched      *timeline.Timeline[PulseTrigger] // Handed to listeners, not yet played
	cursor          *pulseCursor
	pulseCount      int
	dispatchedCount int // Count of the last pulse handed to listeners and not revoked
}

// pulseCursor is where pulse planning resumes for the current pass.
type pulseCursor struct {
	plan    journey.Plan
	origin  float64
	pos     float64 // Logical position of the last planned pulse
	skipped map[int]bool
}

// New creates a scheduler pushing frequency automation to wave and BPM automation to tempo.
func New(wave, tempo Sink, cfg Config) *Scheduler {
	if cfg.PulseHorizon <= 0 {
		cfg.PulseHorizon = DefaultPulseHorizon
	}
	return &Scheduler{
		wave:       wave,
		tempo:      tempo,
		lookahead:  cfg.Lookahead,
		horizon:    cfg.PulseHorizon,
		waveEvents: timeline.New[WaveEvent](cfg.Memory),
		pulses:     timeline.New[PulseTrigger](cfg.Memory),
		dispatched: timeline.New[PulseTrigger](cfg.Memory),
	}
}

// Schedule cancels everything at or after the scheduling point, then pushes the plan from
// req.From onward. Wave-band and tempo automation cover the whole plan; pulses are planned
// PulseHorizon ahead and refilled by Dispatch. Segments with out-of-range Hz are skipped with
// a warning. A sink error rolls back the pass and is returned.
func (s *Scheduler) Schedule(req Request) (Result, error) {
	var res Result
	at := req.Origin + req.From

	// The previous pass keeps its pulses up to the new scheduling point.
	if _, err := s.fillPulses(at); err != nil {
		return res, err
	}
	if err := s.Cancel(at); err != nil {
		return res, err
	}

	skipped := make(map[int]bool)
	seeded := false

	for i, seg := range req.Plan {
		if seg.StartTimeSeconds < req.From && seg.EndTimeSeconds() <= req.From {
			continue
		}

		offset := 0.0
		if req.From > seg.StartTimeSeconds {
			offset = req.From - seg.StartTimeSeconds
		}
		startHz := seg.HzAt(offset)
		endHz := seg.EndHz
		remaining := seg.DurationSeconds - offset
		t := req.Origin + seg.StartTimeSeconds + offset

		if err := brainwave.CheckHz(startHz); err != nil {
			s.skip(i, err, &res, skipped)
			continue
		}
		if err := brainwave.CheckHz(endHz); err != nil {
			s.skip(i, err, &res, skipped)
			continue
		}

		// A session never starts without a tempo. When the first playable segment starts
		// at the scheduling point its own Set is the seed.
		if !seeded {
			res.SeedBPM = brainwave.TempoBPM(startHz)
			if t > at {
				if err := s.tempo.SetValueAtTime(res.SeedBPM, at); err != nil {
					return res, s.rollback(at, errors.Wrap(err, "failed to seed tempo clock"))
				}
			}
			seeded = true
		}

		ev, err := s.pushSegment(seg, startHz, endHz, t, remaining)
		if err != nil {
			return res, s.rollback(at, errors.Wrapf(err, "failed to schedule segment %d", i))
		}

		if req.Immediate && len(res.Immediate) == 0 && len(res.Scheduled) == 0 {
			res.Immediate = waveBandEvents(ev)
		} else if err := s.waveEvents.Add(ev); err != nil {
			return res, s.rollback(at, errors.Wrapf(err, "failed to queue segment %d", i))
		}
		res.Scheduled = append(res.Scheduled, i)
	}

	s.cursor = &pulseCursor{plan: req.Plan, origin: req.Origin, pos: req.From, skipped: skipped}
	n, err := s.fillPulses(at + s.lookahead + s.horizon)
	if err != nil {
		return res, s.rollback(at, err)
	}
	res.Pulses = n

	zlog.Debug().Msgf("scheduler: scheduled %d segments (%d skipped), %d pulses from position %.3f at %.3f",
		len(res.Scheduled), len(res.Skipped), res.Pulses, req.From, at)
	return res, nil
}

// pushSegment writes one segment to both the wave band and the tempo clock.
func (s *Scheduler) pushSegment(seg journey.CompiledSegment, startHz, endHz, t, duration float64) (WaveEvent, error) {
	ev := WaveEvent{Time: t, Hz: startHz, SegmentIndex: seg.Index}

	if startHz == endHz || duration <= 0 {
		hz := endHz
		if duration > 0 {
			hz = startHz
		}
		ev.Hz = hz
		if err := s.wave.SetValueAtTime(hz, t); err != nil {
			return ev, errors.Wrap(err, "wave band")
		}
		if err := s.tempo.SetValueAtTime(brainwave.TempoBPM(hz), t); err != nil {
			return ev, errors.Wrap(err, "tempo clock")
		}
		return ev, nil
	}

	ev.Ramp = true
	ev.ToHz = endHz
	ev.Duration = duration
	end := t + duration

	if err := s.wave.SetValueAtTime(startHz, t); err != nil {
		return ev, errors.Wrap(err, "wave band")
	}
	if err := ramp(s.wave, seg.TransitionCurve, endHz, end); err != nil {
		return ev, errors.Wrap(err, "wave band")
	}
	if err := s.tempo.SetValueAtTime(brainwave.TempoBPM(startHz), t); err != nil {
		return ev, errors.Wrap(err, "tempo clock")
	}
	if err := ramp(s.tempo, seg.TransitionCurve, brainwave.TempoBPM(endHz), end); err != nil {
		return ev, errors.Wrap(err, "tempo clock")
	}
	return ev, nil
}

func ramp(sink Sink, curve journey.Curve, value, end float64) error {
	if curve == journey.CurveExponential {
		return sink.ExponentialRampToValueAtTime(value, end)
	}
	return sink.LinearRampToValueAtTime(value, end)
}

// fillPulses plans pulses from the cursor up to audio time until, or until the pulse queue is
// full. The interval of each pulse comes from the Hz snapshot at the previous pulse, not from
// integrating the ramp.
func (s *Scheduler) fillPulses(until float64) (int, error) {
	cur := s.cursor
	if cur == nil {
		return 0, nil
	}
	plan := cur.plan
	end := plan.TotalDuration()
	n := 0

	for cur.pos < end {
		if s.pulses.Len() >= s.pulses.Memory() {
			return n, nil
		}
		i := plan.IndexAt(cur.pos)
		if i < 0 {
			break
		}
		seg := plan[i]
		hz := seg.HzAt(cur.pos - seg.StartTimeSeconds)
		if cur.skipped[i] || !brainwave.ValidHz(hz) {
			cur.pos = seg.EndTimeSeconds()
			continue
		}

		interval := brainwave.PulseInterval(hz)
		p := cur.pos + interval
		if p >= end {
			break
		}
		if cur.origin+p >= until {
			return n, nil
		}
		j := plan.IndexAt(p)
		if j < 0 {
			break
		}
		if cur.skipped[j] {
			cur.pos = plan[j].EndTimeSeconds()
			continue
		}

		s.pulseCount++
		n++
		if err := s.pulses.Add(PulseTrigger{
			Time:         cur.origin + p,
			Hz:           hz,
			Interval:     interval,
			Count:        s.pulseCount,
			SegmentIndex: plan[j].Index,
		}); err != nil {
			return n, errors.Wrap(err, "failed to queue pulse")
		}
		cur.pos = p
	}
	s.cursor = nil
	return n, nil
}

func (s *Scheduler) skip(i int, err error, res *Result, skipped map[int]bool) {
	zlog.Warn().Msgf("scheduler: skipping segment %d: %v", i, err)
	res.Skipped = append(res.Skipped, i)
	skipped[i] = true
}

// rollback removes whatever the failed pass pushed so the bands never stay half-scheduled.
func (s *Scheduler) rollback(at float64, cause error) error {
	if err := s.Cancel(at); err != nil {
		zlog.Error().Msgf("scheduler: rollback failed: %v", err)
	}
	return cause
}

// Cancel removes automation and pending dispatches at or after at.
func (s *Scheduler) Cancel(at float64) error {
	if err := s.wave.CancelScheduledValues(at); err != nil {
		return errors.Wrap(err, "failed to cancel wave band")
	}
	if err := s.tempo.CancelScheduledValues(at); err != nil {
		return errors.Wrap(err, "failed to cancel tempo clock")
	}
	s.cancelPending(at)
	return nil
}

// Hold freezes both automated values at at and drops pending dispatches from at onward.
func (s *Scheduler) Hold(at float64) error {
	if err := s.wave.CancelAndHoldAtTime(at); err != nil {
		return errors.Wrap(err, "failed to hold wave band")
	}
	if err := s.tempo.CancelAndHoldAtTime(at); err != nil {
		return errors.Wrap(err, "failed to hold tempo clock")
	}
	s.cancelPending(at)
	return nil
}

// cancelPending drops queued dispatches at or after at, revokes dispatched pulses that have
// not played by at, and rewinds pulse numbering to the last pulse before at.
func (s *Scheduler) cancelPending(at float64) {
	s.cursor = nil
	s.waveEvents.Cancel(at)
	s.pulses.Cancel(at)
	if revoked, ok := s.dispatched.GetAfter(math.Nextafter(at, math.Inf(-1))); ok {
		s.dispatchedCount = revoked.Count - 1
	}
	s.dispatched.Cancel(at)
	if last, ok := s.pulses.Last(); ok {
		s.pulseCount = last.Count
	} else {
		s.pulseCount = s.dispatchedCount
	}
}

// Dispatch removes every queued wave event and pulse with time before until and returns them
// as band events in time order. Wave events precede pulses at equal times. Pulse planning is
// refilled to PulseHorizon past until.
func (s *Scheduler) Dispatch(until float64) []band.Event {
	if _, err := s.fillPulses(until + s.horizon); err != nil {
		zlog.Error().Msgf("scheduler: %v", err)
	}

	var waves []WaveEvent
	var pulses []PulseTrigger
	s.waveEvents.ForEachBetween(0, until, func(e WaveEvent) { waves = append(waves, e) })
	s.pulses.ForEachBetween(0, until, func(p PulseTrigger) { pulses = append(pulses, p) })
	s.waveEvents.CancelBefore(until)
	s.pulses.CancelBefore(until)

	out := make([]band.Event, 0, len(waves)*2+len(pulses))
	wi, pi := 0, 0
	for wi < len(waves) || pi < len(pulses) {
		if pi >= len(pulses) || (wi < len(waves) && waves[wi].Time <= pulses[pi].Time) {
			out = append(out, waveBandEvents(waves[wi])...)
			wi++
			continue
		}
		p := pulses[pi]
		s.dispatchedCount = p.Count
		if err := s.dispatched.Add(p); err != nil {
			zlog.Error().Msgf("scheduler: failed to record pulse %d: %v", p.Count, err)
		}
		out = append(out, band.Event{
			Type:       band.EventPulse32n,
			Time:       p.Time,
			Hz:         p.Hz,
			Interval:   p.Interval,
			PulseCount: p.Count,
		})
		pi++
	}
	s.dispatched.CancelBefore(until - s.lookahead)
	return out
}

func waveBandEvents(e WaveEvent) []band.Event {
	if !e.Ramp {
		return []band.Event{{Type: band.EventHzChanged, Time: e.Time, Hz: e.Hz}}
	}
	return []band.Event{
		{Type: band.EventTransitionStart, Time: e.Time, FromHz: e.Hz, ToHz: e.ToHz, Duration: e.Duration},
		{Type: band.EventHzChanged, Time: e.Time, Hz: e.Hz},
	}
}

// PendingWaveEvents returns queued, undispatched wave events.
func (s *Scheduler) PendingWaveEvents() []WaveEvent {
	return s.waveEvents.Events()
}

// PendingPulses returns queued, undispatched pulses.
func (s *Scheduler) PendingPulses() []PulseTrigger {
	return s.pulses.Events()
}

// PulseCount returns the count of the last pulse planned since the last Reset.
func (s *Scheduler) PulseCount() int {
	return s.pulseCount
}

// DispatchedCount returns the count of the last pulse handed to listeners that is still due.
func (s *Scheduler) DispatchedCount() int {
	return s.dispatchedCount
}

// DispatchedPulses returns pulses handed to listeners that have not played yet.
func (s *Scheduler) DispatchedPulses() []PulseTrigger {
	return s.dispatched.Events()
}

// Reset drops all pending dispatches and restarts pulse numbering. Automation already pushed
// to the sinks is left to the caller.
func (s *Scheduler) Reset() {
	s.waveEvents.Clear()
	s.pulses.Clear()
	s.dispatched.Clear()
	s.cursor = nil
	s.pulseCount = 0
	s.dispatchedCount = 0
}
