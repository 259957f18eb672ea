package evloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimingWheelDefaults(t *testing.T) {
	w := NewTimingWheel(0, 0)
	require.Equal(t, 60, w.Slots())
	require.Equal(t, time.Second, w.Interval())
	require.Equal(t, 0, w.CurrentSlot())
}

func TestTimingWheelWrapAround(t *testing.T) {
	rec := &recorder{}
	w := NewTimingWheel(4, 2*time.Second)
	timer := w.Add(9*time.Second, &namedOwner{name: "late", rec: rec})
	require.Equal(t, 1, timer.Rotation())
	require.Equal(t, 0, timer.Slot())

	for i := 0; i < 4; i++ {
		w.Tick()
		require.Empty(t, rec.fired, "fired early on tick %d", i+1)
	}
	require.Equal(t, 0, timer.Rotation())
	require.True(t, timer.Linked())

	w.Tick()
	require.Equal(t, []string{"late"}, rec.fired)
	require.False(t, timer.Linked())
	require.Equal(t, 0, w.Len())
	require.Equal(t, 1, w.CurrentSlot())
}

func TestTimingWheelShortTimeoutTakesOneTick(t *testing.T) {
	rec := &recorder{}
	w := NewTimingWheel(8, time.Second)
	w.Tick()
	w.Tick()
	timer := w.Add(300*time.Millisecond, &namedOwner{name: "short", rec: rec})
	require.Equal(t, 3, timer.Slot())
	require.Equal(t, 0, timer.Rotation())

	w.Tick()
	require.Empty(t, rec.fired)
	w.Tick()
	require.Equal(t, []string{"short"}, rec.fired)
}

func TestTimingWheelSharedSlot(t *testing.T) {
	rec := &recorder{}
	w := NewTimingWheel(4, time.Second)
	a := w.Add(2*time.Second, &namedOwner{name: "a", rec: rec})
	b := w.Add(2*time.Second, &namedOwner{name: "b", rec: rec})
	c := w.Add(6*time.Second, &namedOwner{name: "c", rec: rec})
	require.Equal(t, a.Slot(), b.Slot())
	require.Equal(t, a.Slot(), c.Slot())
	require.Equal(t, 3, w.Len())

	w.Remove(b)
	require.False(t, b.Linked())
	require.Equal(t, 2, w.Len())

	for i := 0; i < 3; i++ {
		w.Tick()
	}
	require.Equal(t, []string{"a"}, rec.fired)
	require.True(t, c.Linked())
	for i := 0; i < 4; i++ {
		w.Tick()
	}
	require.Equal(t, []string{"a", "c"}, rec.fired)
	require.Equal(t, 0, w.Len())

	// removing a fired timer is harmless
	w.Remove(a)
	require.Equal(t, 0, w.Len())
}

func TestTimingWheelClear(t *testing.T) {
	rec := &recorder{}
	w := NewTimingWheel(4, time.Second)
	timer := w.Add(time.Second, &namedOwner{name: "a", rec: rec})
	w.Clear()
	require.False(t, timer.Linked())
	require.Equal(t, 0, w.Len())
	for i := 0; i < 8; i++ {
		w.Tick()
	}
	require.Empty(t, rec.fired)
}
