package journey

import "math"

// CompiledSegment represents a segment placed on the absolute timeline with resolved endpoints.
type CompiledSegment struct {
	Index            int // Position in the authored list
	StartTimeSeconds float64
	DurationSeconds  float64
	StartHz          float64
	EndHz            float64
	Kind             SegmentKind
	TransitionCurve  Curve
}

// EndTimeSeconds returns the absolute end time of the segment.
func (c CompiledSegment) EndTimeSeconds() float64 {
	return c.StartTimeSeconds + c.DurationSeconds
}

// IsRamp returns true if the segment changes frequency over its duration.
func (c CompiledSegment) IsRamp() bool {
	return c.StartHz != c.EndHz
}

// HzAt returns the frequency at an offset into the segment.
func (c CompiledSegment) HzAt(offset float64) float64 {
	if !c.IsRamp() || c.DurationSeconds <= 0 {
		return c.EndHz
	}
	frac := offset / c.DurationSeconds
	if frac <= 0 {
		return c.StartHz
	}
	if frac >= 1 {
		return c.EndHz
	}
	if c.TransitionCurve == CurveExponential && c.StartHz > 0 && c.EndHz > 0 {
		return c.StartHz * math.Pow(c.EndHz/c.StartHz, frac)
	}
	return c.StartHz + (c.EndHz-c.StartHz)*frac
}

// Plan is a compiled, time-ordered journey.
type Plan []CompiledSegment

// Compile flattens authored segments into a Plan.
// Start times are the cumulative sum of prior durations. Negative durations count as zero.
// A transition takes its start Hz from the nearest preceding plateau and its end Hz from the
// nearest following plateau, scanning past other transitions; a missing side resolves to 0.
func Compile(segments []Segment) Plan {
	plan := make(Plan, 0, len(segments))
	var current float64

	for i, s := range segments {
		duration := s.DurationSeconds
		if duration < 0 || math.IsNaN(duration) {
			duration = 0
		}

		curve := s.Curve
		if curve == "" {
			curve = CurveLinear
		}

		cs := CompiledSegment{
			Index:            i,
			StartTimeSeconds: current,
			DurationSeconds:  duration,
			Kind:             s.Kind,
			TransitionCurve:  curve,
		}

		switch s.Kind {
		case KindTransition:
			cs.StartHz = previousPlateauHz(segments, i)
			cs.EndHz = nextPlateauHz(segments, i)
		default:
			cs.StartHz = s.HzValue()
			cs.EndHz = cs.StartHz
		}

		plan = append(plan, cs)
		current += duration
	}

	return plan
}

func previousPlateauHz(segments []Segment, from int) float64 {
	for i := from - 1; i >= 0; i-- {
		if segments[i].Kind == KindPlateau {
			return segments[i].HzValue()
		}
	}
	return 0
}

func nextPlateauHz(segments []Segment, from int) float64 {
	for i := from + 1; i < len(segments); i++ {
		if segments[i].Kind == KindPlateau {
			return segments[i].HzValue()
		}
	}
	return 0
}

// TotalDuration returns the summed duration of the plan.
func (p Plan) TotalDuration() float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].EndTimeSeconds()
}

// IndexAt returns the index of the segment active at position, or -1 when position is
// outside the plan. Zero-length segments are never active.
func (p Plan) IndexAt(position float64) int {
	for i, s := range p {
		if position >= s.StartTimeSeconds && position < s.EndTimeSeconds() {
			return i
		}
	}
	return -1
}

// HzAt returns the frequency at a logical position. Past the end the last segment's end Hz
// is held; before the start or for an empty plan it returns 0.
func (p Plan) HzAt(position float64) float64 {
	if len(p) == 0 || position < 0 {
		return 0
	}
	if i := p.IndexAt(position); i >= 0 {
		return p[i].HzAt(position - p[i].StartTimeSeconds)
	}
	return p[len(p)-1].EndHz
}

// Clone returns a copy of the plan.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	copy(out, p)
	return out
}
