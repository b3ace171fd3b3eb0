package timeline

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	time  float64
	label string
}

func (e testEvent) EventTime() float64 { return e.time }

func labels(events []testEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.label)
	}
	return out
}

func TestTimeline_AddKeepsOrder(t *testing.T) {
	tl := New[testEvent](0)

	require.NoError(t, tl.Add(testEvent{3, "c"}))
	require.NoError(t, tl.Add(testEvent{1, "a"}))
	require.NoError(t, tl.Add(testEvent{2, "b"}))
	require.NoError(t, tl.Add(testEvent{2, "b2"}))
	require.NoError(t, tl.Add(testEvent{0, "zero"}))

	assert.Equal(t, []string{"zero", "a", "b", "b2", "c"}, labels(tl.Events()))
	assert.Equal(t, 5, tl.Len())
}

func TestTimeline_AddRejectsBadTimes(t *testing.T) {
	tl := New[testEvent](0)

	err := tl.Add(testEvent{-0.001, "neg"})
	assert.True(t, errors.Is(err, ErrNegativeTime))

	err = tl.Add(testEvent{math.NaN(), "nan"})
	assert.True(t, errors.Is(err, ErrInvalidTime))

	err = tl.Add(testEvent{math.Inf(1), "inf"})
	assert.True(t, errors.Is(err, ErrInvalidTime))

	assert.Equal(t, 0, tl.Len())
}

func TestTimeline_Get(t *testing.T) {
	tl := New[testEvent](0)
	_, ok := tl.Get(10)
	assert.False(t, ok)

	require.NoError(t, tl.Add(testEvent{1, "a"}))
	require.NoError(t, tl.Add(testEvent{2, "b"}))
	require.NoError(t, tl.Add(testEvent{2, "b2"}))

	tests := []struct {
		at     float64
		want   string
		wantOK bool
	}{
		{at: 0.5, wantOK: false},
		{at: 1, want: "a", wantOK: true},
		{at: 1.5, want: "a", wantOK: true},
		{at: 2, want: "b2", wantOK: true},
		{at: 100, want: "b2", wantOK: true},
	}
	for _, tt := range tests {
		got, ok := tl.Get(tt.at)
		assert.Equal(t, tt.wantOK, ok, "at=%v", tt.at)
		assert.Equal(t, tt.want, got.label, "at=%v", tt.at)
	}

	after, ok := tl.GetAfter(1)
	require.True(t, ok)
	assert.Equal(t, "b", after.label)

	before, ok := tl.GetBefore(2)
	require.True(t, ok)
	assert.Equal(t, "a", before.label)
}

func TestTimeline_ForEachBetween(t *testing.T) {
	tl := New[testEvent](0)
	for i, l := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tl.Add(testEvent{float64(i), l}))
	}

	var got []testEvent
	tl.ForEachBetween(1, 3, func(e testEvent) { got = append(got, e) })
	assert.Equal(t, []string{"b", "c"}, labels(got))

	got = nil
	tl.ForEachBetween(3, 1, func(e testEvent) { got = append(got, e) })
	assert.Empty(t, got)
}

func TestTimeline_ForEachBetweenAllowsMutation(t *testing.T) {
	tl := New[testEvent](0)
	for i := 0; i < 4; i++ {
		require.NoError(t, tl.Add(testEvent{float64(i), "x"}))
	}

	count := 0
	tl.ForEachBetween(0, 10, func(e testEvent) {
		count++
		tl.Cancel(0)
	})
	assert.Equal(t, 4, count)
	assert.Equal(t, 0, tl.Len())
}

func TestTimeline_Cancel(t *testing.T) {
	tl := New[testEvent](0)
	for i, l := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tl.Add(testEvent{float64(i), l}))
	}

	tl.Cancel(2)
	assert.Equal(t, []string{"a", "b"}, labels(tl.Events()))

	tl.CancelBefore(1)
	assert.Equal(t, []string{"b"}, labels(tl.Events()))

	tl.Clear()
	assert.Equal(t, 0, tl.Len())
}

func TestTimeline_MemoryEvictsByInsertionOrder(t *testing.T) {
	tl := New[testEvent](3)

	require.NoError(t, tl.Add(testEvent{5, "first"}))
	require.NoError(t, tl.Add(testEvent{1, "second"}))
	require.NoError(t, tl.Add(testEvent{3, "third"}))
	require.NoError(t, tl.Add(testEvent{4, "fourth"}))

	assert.Equal(t, 3, tl.Len())
	assert.Equal(t, []string{"second", "third", "fourth"}, labels(tl.Events()))

	require.NoError(t, tl.Add(testEvent{0, "fifth"}))
	assert.Equal(t, []string{"fifth", "third", "fourth"}, labels(tl.Events()))
}

func TestTimeline_EvictionSkipsCancelledEntries(t *testing.T) {
	tl := New[testEvent](3)

	require.NoError(t, tl.Add(testEvent{1, "a"}))
	require.NoError(t, tl.Add(testEvent{2, "b"}))
	require.NoError(t, tl.Add(testEvent{3, "c"}))
	tl.CancelBefore(2)
	tl.Cancel(3)

	require.NoError(t, tl.Add(testEvent{2, "d"}))
	require.NoError(t, tl.Add(testEvent{2, "e"}))
	assert.Equal(t, []string{"b", "d", "e"}, labels(tl.Events()))

	// b is the oldest insertion still stored
	require.NoError(t, tl.Add(testEvent{0, "f"}))
	assert.Equal(t, []string{"f", "d", "e"}, labels(tl.Events()))
}

func TestTimeline_LongRunEvictionKeepsNewest(t *testing.T) {
	tl := New[testEvent](100)

	for i := 0; i < 10000; i++ {
		require.NoError(t, tl.Add(testEvent{time: float64(i)}))
		if i%7 == 0 {
			tl.Cancel(float64(i))
		}
	}

	require.Equal(t, 100, tl.Len())
	first, ok := tl.GetAfter(-1)
	require.True(t, ok)
	last, ok := tl.Last()
	require.True(t, ok)
	assert.Equal(t, 9999.0, last.time)
	assert.Greater(t, first.time, 9800.0)
	assert.LessOrEqual(t, len(tl.order)-tl.head, 2*tl.Len()+64)
}
