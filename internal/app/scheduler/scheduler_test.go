package scheduler

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/journeymap/internal/app/automation"
	"github.com/osa030/journeymap/internal/app/band"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/domain/journey"
)

func newParams() (*automation.Param, *automation.Param) {
	wave := automation.NewParam(automation.Config{Name: "wave", Min: brainwave.MinHz, Max: brainwave.MaxHz})
	tempo := automation.NewParam(automation.Config{
		Name: "tempo",
		Min:  brainwave.TempoBPM(brainwave.MinHz),
		Max:  brainwave.TempoBPM(brainwave.MaxHz),
	})
	return wave, tempo
}

var errSinkRejected = errors.New("sink rejected value")

// failingSink wraps a Param and rejects ramps.
type failingSink struct {
	*automation.Param
}

func (f failingSink) LinearRampToValueAtTime(float64, float64) error {
	return errSinkRejected
}

func TestSchedule_SinglePlateau(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	res, err := s.Schedule(Request{Plan: journey.Compile([]journey.Segment{journey.Plateau(6, 120)})})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, res.Scheduled)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 45.0, res.SeedBPM)

	waveEvents := wave.Events()
	require.Len(t, waveEvents, 1)
	assert.Equal(t, automation.Event{Type: automation.EventSet, Time: 0, Value: 6}, waveEvents[0])

	assert.Equal(t, []automation.Event{{Type: automation.EventSet, Time: 0, Value: 45}}, tempo.Events())

	pulses := s.PendingPulses()
	require.NotEmpty(t, pulses)
	assert.InDelta(t, 1.0/24, pulses[0].Time, 1e-12)
	assert.Equal(t, 6.0, pulses[0].Hz)
	assert.Equal(t, 1, pulses[0].Count)
	assert.Equal(t, res.Pulses, len(pulses))
	assert.Less(t, pulses[len(pulses)-1].Time, 120.0)
}

func TestSchedule_TransitionRampsBothBandsAndTempo(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	plan := journey.Compile([]journey.Segment{
		journey.Plateau(4, 60),
		journey.Transition(30),
		journey.Plateau(8, 60),
	})
	_, err := s.Schedule(Request{Plan: plan, Origin: 10})
	require.NoError(t, err)

	assert.Equal(t, []automation.Event{
		{Type: automation.EventSet, Time: 10, Value: 4},
		{Type: automation.EventSet, Time: 70, Value: 4},
		{Type: automation.EventLinearRamp, Time: 100, Value: 8},
		{Type: automation.EventSet, Time: 100, Value: 8},
	}, wave.Events())

	assert.InDelta(t, 6.0, wave.ValueAtTime(85), 1e-9)
	assert.InDelta(t, 30.0, tempo.ValueAtTime(10), 1e-9)
	assert.InDelta(t, brainwave.TempoBPM(6), tempo.ValueAtTime(85), 1e-9)
	assert.InDelta(t, 60.0, tempo.ValueAtTime(120), 1e-9)

	// tempo tracks the wave band everywhere
	for at := 10.0; at < 160; at += 0.5 {
		assert.InDelta(t, brainwave.TempoBPM(wave.ValueAtTime(at)), tempo.ValueAtTime(at), 1e-9, "at=%v", at)
	}

	waves := s.PendingWaveEvents()
	require.Len(t, waves, 3)
	assert.True(t, waves[1].Ramp)
	assert.Equal(t, 4.0, waves[1].Hz)
	assert.Equal(t, 8.0, waves[1].ToHz)
	assert.Equal(t, 30.0, waves[1].Duration)
}

func TestSchedule_ExponentialCurve(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	segments := []journey.Segment{journey.Plateau(2, 10), journey.Transition(10), journey.Plateau(8, 10)}
	segments[1].Curve = journey.CurveExponential

	_, err := s.Schedule(Request{Plan: journey.Compile(segments)})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, wave.ValueAtTime(15), 1e-9)
	assert.InDelta(t, brainwave.TempoBPM(4), tempo.ValueAtTime(15), 1e-9)
}

func TestSchedule_IsIdempotent(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})
	plan := journey.Compile([]journey.Segment{journey.Plateau(4, 20), journey.Transition(10), journey.Plateau(8, 20)})

	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)
	firstWave := wave.Events()
	firstTempo := tempo.Events()
	firstPulses := s.PendingPulses()
	firstQueued := s.PendingWaveEvents()

	_, err = s.Schedule(Request{Plan: plan})
	require.NoError(t, err)

	assert.Equal(t, firstWave, wave.Events())
	assert.Equal(t, firstTempo, tempo.Events())
	assert.Equal(t, firstPulses, s.PendingPulses())
	assert.Equal(t, firstQueued, s.PendingWaveEvents())
}

func TestSchedule_SkipsOutOfRangeSegments(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{PulseHorizon: 60})

	plan := journey.Compile([]journey.Segment{
		journey.Transition(10), // 0 Hz -> 6 Hz
		journey.Plateau(6, 10),
		journey.Plateau(30, 10),
		journey.Plateau(10, 10),
	})
	res, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, res.Skipped)
	assert.Equal(t, []int{1, 3}, res.Scheduled)
	assert.Equal(t, 45.0, res.SeedBPM)
	assert.Equal(t, 45.0, tempo.ValueAtTime(0))
	// seeded at 0, then set again where the first playable segment starts
	tempoEvents := tempo.Events()
	require.Len(t, tempoEvents, 3)
	assert.Equal(t, automation.Event{Type: automation.EventSet, Time: 0, Value: 45}, tempoEvents[0])
	assert.Equal(t, 10.0, tempoEvents[1].Time)

	for _, p := range s.PendingPulses() {
		inSkipped := (p.Time < 10) || (p.Time >= 20 && p.Time < 30)
		assert.False(t, inSkipped, "pulse at %v inside a skipped segment", p.Time)
	}
	pulses := s.PendingPulses()
	require.NotEmpty(t, pulses)
	assert.InDelta(t, 10+1.0/24, pulses[0].Time, 1e-9)
}

func TestSchedule_EmptyPlan(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	res, err := s.Schedule(Request{Plan: journey.Compile(nil)})
	require.NoError(t, err)
	assert.Empty(t, res.Scheduled)
	assert.Empty(t, wave.Events())
	assert.Empty(t, tempo.Events())
	assert.Empty(t, s.PendingPulses())
}

func TestSchedule_SinkErrorPropagatesAndRollsBack(t *testing.T) {
	wave, tempo := newParams()
	s := New(failingSink{wave}, tempo, Config{})

	plan := journey.Compile([]journey.Segment{journey.Plateau(4, 10), journey.Transition(10), journey.Plateau(8, 10)})
	_, err := s.Schedule(Request{Plan: plan, Origin: 5})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errSinkRejected))
	assert.Contains(t, err.Error(), "segment 1")
	assert.Empty(t, wave.Events())
	assert.Empty(t, tempo.Events())
	assert.Empty(t, s.PendingWaveEvents())
	assert.Empty(t, s.PendingPulses())
}

func TestSchedule_FromMidRamp(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	plan := journey.Compile([]journey.Segment{journey.Plateau(4, 60), journey.Transition(30), journey.Plateau(8, 60)})
	res, err := s.Schedule(Request{Plan: plan, Origin: 100, From: 75})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, res.Scheduled)
	assert.InDelta(t, brainwave.TempoBPM(6), res.SeedBPM, 1e-9)

	events := wave.Events()
	require.Len(t, events, 3)
	assert.Equal(t, 175.0, events[0].Time)
	assert.InDelta(t, 6.0, events[0].Value, 1e-9)
	assert.Equal(t, automation.EventLinearRamp, events[1].Type)
	assert.Equal(t, 190.0, events[1].Time)
}

func TestSchedule_ImmediateBypassesQueue(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	plan := journey.Plan{
		{Index: 0, StartTimeSeconds: 0, DurationSeconds: 60, StartHz: 12, EndHz: 12, Kind: journey.KindPlateau},
		{Index: 1, StartTimeSeconds: 60, DurationSeconds: 60, StartHz: 8, EndHz: 8, Kind: journey.KindPlateau},
	}
	res, err := s.Schedule(Request{Plan: plan, From: 30, Immediate: true})
	require.NoError(t, err)

	require.Len(t, res.Immediate, 1)
	assert.Equal(t, band.EventHzChanged, res.Immediate[0].Type)
	assert.Equal(t, 12.0, res.Immediate[0].Hz)
	assert.Equal(t, 30.0, res.Immediate[0].Time)

	queued := s.PendingWaveEvents()
	require.Len(t, queued, 1)
	assert.Equal(t, 60.0, queued[0].Time)
	assert.Equal(t, 12.0, wave.ValueAtTime(30))
}

func TestDispatch_OrdersAndPrunes(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})

	plan := journey.Compile([]journey.Segment{journey.Plateau(2, 1), journey.Transition(1), journey.Plateau(4, 1)})
	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)

	events := s.Dispatch(1.01)
	require.NotEmpty(t, events)
	assert.Equal(t, band.EventHzChanged, events[0].Type)
	assert.Equal(t, 0.0, events[0].Time)

	var types []band.EventType
	last := -1.0
	for _, e := range events {
		types = append(types, e.Type)
		assert.GreaterOrEqual(t, e.Time, last)
		last = e.Time
	}
	assert.Contains(t, types, band.EventTransitionStart)

	// hz=2 pulses land on exact multiples of 0.125
	pulses := 0
	for _, e := range events {
		if e.Type == band.EventPulse32n {
			pulses++
			assert.Equal(t, 0.125, e.Interval)
		}
	}
	assert.Equal(t, 8, pulses)

	// nothing is delivered twice
	for _, e := range s.Dispatch(1.01) {
		t.Errorf("unexpected redelivery: %+v", e)
	}
	for _, w := range s.PendingWaveEvents() {
		assert.GreaterOrEqual(t, w.Time, 1.01)
	}
}

func TestSchedule_PulseNumberingSurvivesReschedule(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{PulseHorizon: 60})
	plan := journey.Compile([]journey.Segment{journey.Plateau(2, 10)})

	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)
	assert.Equal(t, 79, s.PulseCount())

	dispatched := s.Dispatch(1.0)
	assert.Equal(t, 8, len(dispatched)) // one wave change + 7 pulses

	_, err = s.Schedule(Request{Plan: plan, From: 1.0})
	require.NoError(t, err)

	pulses := s.PendingPulses()
	require.NotEmpty(t, pulses)
	assert.Equal(t, 8, pulses[0].Count)
	assert.Equal(t, 1.125, pulses[0].Time)
}

func TestHold_FreezesBothBands(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{})
	plan := journey.Compile([]journey.Segment{journey.Plateau(4, 60), journey.Transition(30), journey.Plateau(8, 60)})
	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)

	require.NoError(t, s.Hold(75))

	assert.InDelta(t, 6.0, wave.ValueAtTime(75), 1e-9)
	assert.InDelta(t, 6.0, wave.ValueAtTime(500), 1e-9)
	assert.InDelta(t, 45.0, tempo.ValueAtTime(500), 1e-9)
	for _, p := range s.PendingPulses() {
		assert.Less(t, p.Time, 75.0)
	}

	s.Reset()
	assert.Empty(t, s.PendingPulses())
	assert.Equal(t, 0, s.PulseCount())
}

func TestSchedule_PulsesPlannedToHorizon(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{Memory: 100, Lookahead: 0.1})
	plan := journey.Compile([]journey.Segment{journey.Plateau(25, 10)})

	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)

	pending := s.PendingPulses()
	require.Len(t, pending, 100)
	assert.InDelta(t, 0.01, pending[0].Time, 1e-9)
	assert.Equal(t, 1, pending[0].Count)

	var pulses []band.Event
	for until := 0.1; until < 10.5; until += 0.05 {
		for _, e := range s.Dispatch(until) {
			if e.Type == band.EventPulse32n {
				pulses = append(pulses, e)
			}
		}
		assert.LessOrEqual(t, len(s.PendingPulses()), 100)
	}

	require.Greater(t, len(pulses), 990)
	for i := 1; i < len(pulses); i++ {
		assert.Equal(t, pulses[i-1].PulseCount+1, pulses[i].PulseCount)
		assert.Greater(t, pulses[i].Time, pulses[i-1].Time)
	}
	assert.Less(t, pulses[len(pulses)-1].Time, 10.0)
	assert.Empty(t, s.PendingPulses())
}

func TestHold_RevokesDispatchedPulses(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{Lookahead: 0.1})
	plan := journey.Compile([]journey.Segment{journey.Plateau(6, 120)})

	_, err := s.Schedule(Request{Plan: plan})
	require.NoError(t, err)
	var dispatched []band.Event
	for _, e := range s.Dispatch(0.1) {
		if e.Type == band.EventPulse32n {
			dispatched = append(dispatched, e)
		}
	}
	require.Len(t, dispatched, 2)
	assert.Equal(t, 2, s.DispatchedCount())

	require.NoError(t, s.Hold(0.05))
	assert.Equal(t, 1, s.DispatchedCount())
	assert.Equal(t, 1, s.PulseCount())
	require.Len(t, s.DispatchedPulses(), 1)

	// resumed five seconds later from logical position 0.05
	_, err = s.Schedule(Request{Plan: plan, Origin: 5, From: 0.05})
	require.NoError(t, err)
	pulses := s.PendingPulses()
	require.NotEmpty(t, pulses)
	assert.Equal(t, 2, pulses[0].Count)
	assert.InDelta(t, 5.05+1.0/24, pulses[0].Time, 1e-9)
}

func TestDispatch_ForgetsPlayedPulses(t *testing.T) {
	wave, tempo := newParams()
	s := New(wave, tempo, Config{Lookahead: 0.1})
	_, err := s.Schedule(Request{Plan: journey.Compile([]journey.Segment{journey.Plateau(6, 120)})})
	require.NoError(t, err)

	s.Dispatch(0.1)
	s.Dispatch(1.1)
	for _, p := range s.DispatchedPulses() {
		assert.GreaterOrEqual(t, p.Time, 1.0)
	}

	// a cut after every dispatched pulse revokes nothing
	require.NoError(t, s.Hold(1.1))
	assert.Equal(t, s.PulseCount(), s.DispatchedCount())
}
