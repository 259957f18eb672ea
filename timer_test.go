package evloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewTimerStore(t *testing.T) {
	clock := newFakeClock()
	store, err := NewTimerStore(ReactorConfig{TimerStore: TimerStoreList, TimeSlotSec: 5}, clock.Now)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, store.Interval())

	store, err = NewTimerStore(ReactorConfig{TimerStore: TimerStoreWheel, WheelSlots: 10, WheelIntervalSec: 2}, clock.Now)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, store.Interval())

	_, err = NewTimerStore(ReactorConfig{TimerStore: "heap"}, clock.Now)
	require.ErrorIs(t, err, ErrUnknownTimerStore)
}

func TestListStoreRefresh(t *testing.T) {
	rec := &recorder{}
	clock := newFakeClock()
	store, err := NewTimerStore(ReactorConfig{TimerStore: TimerStoreList, TimeSlotSec: 1}, clock.Now)
	require.NoError(t, err)

	quiet := store.Schedule(&namedOwner{name: "quiet", rec: rec}, 3*time.Second)
	busy := store.Schedule(&namedOwner{name: "busy", rec: rec}, 3*time.Second)
	require.Equal(t, 2, store.Len())

	clock.Advance(2 * time.Second)
	refreshed := store.Refresh(busy, 3*time.Second)
	require.Same(t, busy, refreshed)
	require.Equal(t, 2, store.Len())

	clock.Advance(time.Second)
	store.Tick()
	require.Equal(t, []string{"quiet"}, rec.fired)
	require.False(t, quiet.Linked())
	require.True(t, busy.Linked())

	// refreshing a fired timer does not resurrect it
	require.Same(t, quiet, store.Refresh(quiet, time.Minute))
	require.Equal(t, 1, store.Len())

	clock.Advance(2 * time.Second)
	store.Tick()
	require.Equal(t, []string{"quiet", "busy"}, rec.fired)
	require.Equal(t, 0, store.Len())
}

func TestWheelStoreRefreshReplacesHandle(t *testing.T) {
	rec := &recorder{}
	store, err := NewTimerStore(ReactorConfig{TimerStore: TimerStoreWheel, WheelSlots: 8, WheelIntervalSec: 1}, time.Now)
	require.NoError(t, err)

	owner := &namedOwner{name: "a", rec: rec}
	first := store.Schedule(owner, 2*time.Second)
	store.Tick()
	second := store.Refresh(first, 2*time.Second)
	require.NotSame(t, first, second)
	require.False(t, first.Linked())
	require.True(t, second.Linked())
	require.Same(t, owner, second.Owner())
	require.Equal(t, 1, store.Len())

	store.Tick()
	store.Tick()
	require.Empty(t, rec.fired)
	store.Tick()
	require.Equal(t, []string{"a"}, rec.fired)

	store.Cancel(second)
	require.Equal(t, 0, store.Len())
}

func TestTimerStoreCancelAndClear(t *testing.T) {
	rec := &recorder{}
	for _, name := range []string{TimerStoreList, TimerStoreWheel} {
		clock := newFakeClock()
		store, err := NewTimerStore(ReactorConfig{TimerStore: name, TimeSlotSec: 1, WheelSlots: 4, WheelIntervalSec: 1}, clock.Now)
		require.NoError(t, err)
		a := store.Schedule(&namedOwner{name: "a", rec: rec}, time.Second)
		store.Schedule(&namedOwner{name: "b", rec: rec}, time.Second)
		store.Cancel(a)
		require.Equal(t, 1, store.Len(), name)
		store.Clear()
		require.Equal(t, 0, store.Len(), name)
		clock.Advance(time.Minute)
		for i := 0; i < 8; i++ {
			store.Tick()
		}
	}
	require.Empty(t, rec.fired)
}
