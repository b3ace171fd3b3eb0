// Package journey provides the authored segment model and the segment compiler.
package journey

// SegmentKind represents the kind of an authored segment.
type SegmentKind string

const (
	KindPlateau    SegmentKind = "plateau"    // Holds one beat frequency
	KindTransition SegmentKind = "transition" // Ramps between neighbouring plateaus
)

// Curve represents the envelope shape used for a transition.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
)

// Segment represents one user-authored journey segment.
// Transitions carry no Hz of their own.
type Segment struct {
	Kind            SegmentKind `yaml:"type" json:"type" mapstructure:"type" validate:"required,oneof=plateau transition"`
	Hz              *float64    `yaml:"hz,omitempty" json:"hz,omitempty" mapstructure:"hz"`
	DurationSeconds float64     `yaml:"duration_seconds" json:"duration_seconds" mapstructure:"duration_seconds" validate:"gte=0"`
	Curve           Curve       `yaml:"curve,omitempty" json:"curve,omitempty" mapstructure:"curve" validate:"omitempty,oneof=linear exponential"`
}

// Plateau creates a plateau segment.
func Plateau(hz, durationSeconds float64) Segment {
	return Segment{Kind: KindPlateau, Hz: &hz, DurationSeconds: durationSeconds}
}

// Transition creates a linear transition segment.
func Transition(durationSeconds float64) Segment {
	return Segment{Kind: KindTransition, DurationSeconds: durationSeconds}
}

// HzValue returns the segment Hz, or 0 when none was authored.
func (s Segment) HzValue() float64 {
	if s.Hz == nil {
		return 0
	}
	return *s.Hz
}

// Clone returns a deep copy of segments.
func Clone(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	for i, s := range segments {
		out[i] = s
		if s.Hz != nil {
			hz := *s.Hz
			out[i].Hz = &hz
		}
	}
	return out
}
