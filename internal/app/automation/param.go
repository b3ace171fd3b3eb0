// Package automation provides sample-accurate parameter automation stored on a timeline.
package automation

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/journeymap/internal/app/timeline"
)

// Errors
var (
	ErrOutOfRange   = errors.New("automation: value out of range")
	ErrInvalidValue = errors.New("automation: value must be finite")
)

// EventType represents the kind of automation event.
type EventType int

const (
	EventSet             EventType = iota // Jump to Value at Time
	EventLinearRamp                       // Ramp linearly from the previous event to Value at Time
	EventExponentialRamp                  // Ramp exponentially from the previous event to Value at Time
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventSet:
		return "set"
	case EventLinearRamp:
		return "linear_ramp"
	case EventExponentialRamp:
		return "exponential_ramp"
	default:
		return "unknown"
	}
}

// Event is one scheduled automation point.
type Event struct {
	Type  EventType
	Time  float64
	Value float64
}

// EventTime implements timeline.Event.
func (e Event) EventTime() float64 {
	return e.Time
}

// Param is an automatable value with a valid range, in the manner of an audio parameter.
type Param struct {
	mu           sync.RWMutex
	name         string
	min          float64
	max          float64
	defaultValue float64
	events       *timeline.Timeline[Event]
}

// Config holds parameter configuration.
type Config struct {
	Name         string
	Min          float64
	Max          float64
	DefaultValue float64 // Value before any event
	Memory       int     // Timeline retention bound
}

// NewParam creates a parameter.
func NewParam(cfg Config) *Param {
	return &Param{
		name:         cfg.Name,
		min:          cfg.Min,
		max:          cfg.Max,
		defaultValue: cfg.DefaultValue,
		events:       timeline.New[Event](cfg.Memory),
	}
}

// Name returns the parameter name.
func (p *Param) Name() string {
	return p.name
}

// SetValueAtTime schedules an instant change to value at time.
func (p *Param) SetValueAtTime(value, time float64) error {
	return p.add(Event{Type: EventSet, Time: time, Value: value})
}

// LinearRampToValueAtTime schedules a linear ramp from the previous event, ending at value at time.
func (p *Param) LinearRampToValueAtTime(value, time float64) error {
	return p.add(Event{Type: EventLinearRamp, Time: time, Value: value})
}

// ExponentialRampToValueAtTime schedules an exponential ramp ending at value at time.
func (p *Param) ExponentialRampToValueAtTime(value, time float64) error {
	if value <= 0 {
		return errors.Wrapf(ErrOutOfRange, "%s: exponential ramp target must be > 0, got %v", p.name, value)
	}
	return p.add(Event{Type: EventExponentialRamp, Time: time, Value: value})
}

// CancelScheduledValues removes every event at or after time.
func (p *Param) CancelScheduledValues(time float64) error {
	if time < 0 {
		return errors.Wrapf(timeline.ErrNegativeTime, "%s: cancel at %v", p.name, time)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events.Cancel(time)
	return nil
}

// CancelAndHoldAtTime cancels events at or after time and pins the value it had at time.
func (p *Param) CancelAndHoldAtTime(time float64) error {
	if time < 0 {
		return errors.Wrapf(timeline.ErrNegativeTime, "%s: cancel at %v", p.name, time)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.valueAtTimeLocked(time)
	kind := EventSet
	if next, ok := p.events.GetAfter(time); ok && next.Type != EventSet {
		if _, started := p.events.GetBefore(time); started {
			// keep the in-flight ramp shape up to the hold point
			kind = next.Type
		}
	}
	p.events.Cancel(time)
	if err := p.events.Add(Event{Type: kind, Time: time, Value: held}); err != nil {
		return errors.Wrapf(err, "%s: hold", p.name)
	}
	return nil
}

// ValueAtTime returns the automated value at time.
func (p *Param) ValueAtTime(time float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valueAtTimeLocked(time)
}

// Events returns a copy of the scheduled events.
func (p *Param) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.events.Events()
}

// Clear removes every scheduled event.
func (p *Param) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events.Clear()
}

func (p *Param) add(e Event) error {
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return errors.Wrapf(ErrInvalidValue, "%s: %s %v at %v", p.name, e.Type, e.Value, e.Time)
	}
	if e.Value < p.min || e.Value > p.max {
		return errors.Wrapf(ErrOutOfRange, "%s: %v not in [%v, %v]", p.name, e.Value, p.min, p.max)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.events.Add(e); err != nil {
		return errors.Wrapf(err, "%s: %s", p.name, e.Type)
	}
	return nil
}

// valueAtTimeLocked must be called with p.mu held.
func (p *Param) valueAtTimeLocked(time float64) float64 {
	before, hasBefore := p.events.Get(time)
	after, hasAfter := p.events.GetAfter(time)

	if hasAfter && after.Type != EventSet {
		startTime, startValue := 0.0, p.defaultValue
		if hasBefore {
			startTime, startValue = before.Time, before.Value
		}
		return interpolate(after.Type, startTime, startValue, after.Time, after.Value, time)
	}

	if hasBefore {
		return before.Value
	}
	return p.defaultValue
}

func interpolate(kind EventType, t0, v0, t1, v1, t float64) float64 {
	if t1 <= t0 {
		return v1
	}
	frac := (t - t0) / (t1 - t0)
	if kind == EventExponentialRamp && v0 > 0 && v1 > 0 {
		return v0 * math.Pow(v1/v0, frac)
	}
	return v0 + (v1-v0)*frac
}
