package playback

import "github.com/osa030/journeymap/internal/app/scheduler"

// tee writes automation to the engine's own parameter first, then mirrors it to an external
// output such as an audio host parameter. An output error fails the call.
type tee struct {
	primary scheduler.Sink
	mirror  scheduler.Sink
}

func newSink(primary, mirror scheduler.Sink) scheduler.Sink {
	if mirror == nil {
		return primary
	}
	return tee{primary: primary, mirror: mirror}
}

func (t tee) SetValueAtTime(value, time float64) error {
	if err := t.primary.SetValueAtTime(value, time); err != nil {
		return err
	}
	return t.mirror.SetValueAtTime(value, time)
}

func (t tee) LinearRampToValueAtTime(value, time float64) error {
	if err := t.primary.LinearRampToValueAtTime(value, time); err != nil {
		return err
	}
	return t.mirror.LinearRampToValueAtTime(value, time)
}

func (t tee) ExponentialRampToValueAtTime(value, time float64) error {
	if err := t.primary.ExponentialRampToValueAtTime(value, time); err != nil {
		return err
	}
	return t.mirror.ExponentialRampToValueAtTime(value, time)
}

func (t tee) CancelScheduledValues(time float64) error {
	if err := t.primary.CancelScheduledValues(time); err != nil {
		return err
	}
	return t.mirror.CancelScheduledValues(time)
}

func (t tee) CancelAndHoldAtTime(time float64) error {
	if err := t.primary.CancelAndHoldAtTime(time); err != nil {
		return err
	}
	return t.mirror.CancelAndHoldAtTime(time)
}
