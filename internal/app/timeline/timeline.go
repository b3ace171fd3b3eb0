// Package timeline provides a sparse, time-ordered event store and a transport state
// timeline built on top of it.
package timeline

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
)

// DefaultMemory is the default number of events a timeline retains.
const DefaultMemory = 1 << 20

// Errors
var (
	ErrNegativeTime = errors.New("timeline: event time must be >= 0")
	ErrInvalidTime  = errors.New("timeline: event time must be finite")
)

// Event is anything positioned on a timeline.
type Event interface {
	EventTime() float64
}

// entry stores an event together with its insertion sequence for FIFO eviction.
type entry[E Event] struct {
	seq   uint64
	event E
}

// ref locates an entry by insertion sequence and time.
type ref struct {
	seq  uint64
	time float64
}

// Timeline stores events sorted by time ascending. Events sharing a time keep insertion
// order. When more than Memory events are held, the earliest inserted ones are evicted.
// Timeline is not safe for concurrent use; owners serialise access.
type Timeline[E Event] struct {
	entries []entry[E]
	nextSeq uint64
	memory  int

	// Insertion order ring; refs to cancelled entries are skipped lazily.
	order []ref
	head  int
}

// New creates a timeline retaining at most memory events (DefaultMemory when memory <= 0).
func New[E Event](memory int) *Timeline[E] {
	if memory <= 0 {
		memory = DefaultMemory
	}
	return &Timeline[E]{memory: memory}
}

// Memory returns the retention bound.
func (t *Timeline[E]) Memory() int {
	return t.memory
}

// Len returns the number of stored events.
func (t *Timeline[E]) Len() int {
	return len(t.entries)
}

// Add inserts an event keeping time order. Negative or non-finite times are rejected.
func (t *Timeline[E]) Add(e E) error {
	at := e.EventTime()
	if math.IsNaN(at) || math.IsInf(at, 0) {
		return errors.Wrapf(ErrInvalidTime, "time=%v", at)
	}
	if at < 0 {
		return errors.Wrapf(ErrNegativeTime, "time=%v", at)
	}

	// First index strictly after at: ties land behind existing entries.
	idx := t.upperBound(at)
	t.entries = append(t.entries, entry[E]{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = entry[E]{seq: t.nextSeq, event: e}
	t.order = append(t.order, ref{seq: t.nextSeq, time: at})
	t.nextSeq++

	for len(t.entries) > t.memory && t.evictOldest() {
	}
	t.compactOrder()
	return nil
}

// Get returns the latest event with time <= at.
func (t *Timeline[E]) Get(at float64) (E, bool) {
	idx := t.upperBound(at) - 1
	if idx < 0 {
		var zero E
		return zero, false
	}
	return t.entries[idx].event, true
}

// GetAfter returns the first event with time > at.
func (t *Timeline[E]) GetAfter(at float64) (E, bool) {
	idx := t.upperBound(at)
	if idx >= len(t.entries) {
		var zero E
		return zero, false
	}
	return t.entries[idx].event, true
}

// GetBefore returns the latest event with time < at.
func (t *Timeline[E]) GetBefore(at float64) (E, bool) {
	idx := t.lowerBound(at) - 1
	if idx < 0 {
		var zero E
		return zero, false
	}
	return t.entries[idx].event, true
}

// Last returns the event with the greatest time.
func (t *Timeline[E]) Last() (E, bool) {
	if len(t.entries) == 0 {
		var zero E
		return zero, false
	}
	return t.entries[len(t.entries)-1].event, true
}

// ForEach calls fn for every event in time order.
func (t *Timeline[E]) ForEach(fn func(E)) {
	for _, e := range t.snapshot(0, len(t.entries)) {
		fn(e)
	}
}

// ForEachBetween calls fn for events with start <= time < end, in time order.
func (t *Timeline[E]) ForEachBetween(start, end float64, fn func(E)) {
	if end <= start {
		return
	}
	for _, e := range t.snapshot(t.lowerBound(start), t.lowerBound(end)) {
		fn(e)
	}
}

// ForEachFrom calls fn for events with time >= start, in time order.
func (t *Timeline[E]) ForEachFrom(start float64, fn func(E)) {
	for _, e := range t.snapshot(t.lowerBound(start), len(t.entries)) {
		fn(e)
	}
}

// Events returns a copy of all events in time order.
func (t *Timeline[E]) Events() []E {
	return t.snapshot(0, len(t.entries))
}

// Cancel removes every event with time >= at.
func (t *Timeline[E]) Cancel(at float64) {
	idx := t.lowerBound(at)
	clear(t.entries[idx:])
	t.entries = t.entries[:idx]
}

// CancelBefore removes every event with time < at.
func (t *Timeline[E]) CancelBefore(at float64) {
	idx := t.lowerBound(at)
	if idx == 0 {
		return
	}
	n := copy(t.entries, t.entries[idx:])
	clear(t.entries[n:])
	t.entries = t.entries[:n]
}

// Clear removes all events.
func (t *Timeline[E]) Clear() {
	clear(t.entries)
	t.entries = t.entries[:0]
	t.order = t.order[:0]
	t.head = 0
}

// snapshot copies events out so callbacks may mutate the timeline safely.
func (t *Timeline[E]) snapshot(from, to int) []E {
	if from >= to {
		return nil
	}
	out := make([]E, 0, to-from)
	for _, en := range t.entries[from:to] {
		out = append(out, en.event)
	}
	return out
}

// lowerBound returns the first index whose time is >= at.
func (t *Timeline[E]) lowerBound(at float64) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].event.EventTime() >= at
	})
}

// upperBound returns the first index whose time is > at.
func (t *Timeline[E]) upperBound(at float64) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].event.EventTime() > at
	})
}

// evictOldest drops the live entry with the lowest insertion sequence.
func (t *Timeline[E]) evictOldest() bool {
	for t.head < len(t.order) {
		r := t.order[t.head]
		t.head++
		if idx, ok := t.find(r); ok {
			copy(t.entries[idx:], t.entries[idx+1:])
			var zero entry[E]
			t.entries[len(t.entries)-1] = zero
			t.entries = t.entries[:len(t.entries)-1]
			return true
		}
	}
	return false
}

// find returns the index of the entry r refers to, if it is still stored.
func (t *Timeline[E]) find(r ref) (int, bool) {
	for i := t.lowerBound(r.time); i < len(t.entries) && t.entries[i].event.EventTime() == r.time; i++ {
		if t.entries[i].seq == r.seq {
			return i, true
		}
	}
	return 0, false
}

// compactOrder drops consumed refs and, once cancellations leave it mostly stale, rebuilds
// the ring from the stored entries.
func (t *Timeline[E]) compactOrder() {
	live := len(t.order) - t.head
	switch {
	case live > 2*len(t.entries)+64:
		t.order = t.order[:0]
		for _, en := range t.entries {
			t.order = append(t.order, ref{seq: en.seq, time: en.event.EventTime()})
		}
		slices.SortFunc(t.order, func(a, b ref) int { return cmp.Compare(a.seq, b.seq) })
		t.head = 0
	case t.head > 64 && t.head > live:
		n := copy(t.order, t.order[t.head:])
		t.order = t.order[:n]
		t.head = 0
	}
}
