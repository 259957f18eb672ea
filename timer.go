package evloop

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TimerStoreList  = "list"
	TimerStoreWheel = "wheel"
)

// Evictable is implemented by whatever owns a timer. OnTimeout runs
// synchronously inside a tick: it must not block and must not touch the
// timer store; it may only record that its owner has to be closed.
type Evictable interface {
	OnTimeout()
}

// Timer is a handle returned by a TimerStore.
type Timer interface {
	Owner() Evictable
	Linked() bool
}

// TimerStore hides the scheduling strategy from the reactor.
type TimerStore interface {
	Schedule(owner Evictable, timeout time.Duration) Timer
	// Refresh pushes the deadline of t to timeout from now. The returned
	// handle replaces t.
	Refresh(t Timer, timeout time.Duration) Timer
	Cancel(t Timer)
	Tick()
	// Interval is how often Tick has to be driven.
	Interval() time.Duration
	Len() int
	Clear()
}

func NewTimerStore(config ReactorConfig, clock func() time.Time) (TimerStore, error) {
	switch config.TimerStore {
	case TimerStoreList, "":
		return &listStore{
			list:     NewSortedTimerList(),
			clock:    clock,
			interval: config.TimeSlot(),
		}, nil
	case TimerStoreWheel:
		return &wheelStore{wheel: NewTimingWheel(config.WheelSlots, config.WheelInterval())}, nil
	}
	return nil, ErrUnknownTimerStore
}

type listStore struct {
	list     *SortedTimerList
	clock    func() time.Time
	interval time.Duration
}

func (s *listStore) Schedule(owner Evictable, timeout time.Duration) Timer {
	timer := NewListTimer(owner, s.clock().Add(timeout))
	s.list.Add(timer)
	return timer
}

func (s *listStore) Refresh(t Timer, timeout time.Duration) Timer {
	timer, ok := t.(*ListTimer)
	if !ok || !timer.Linked() {
		return t
	}
	err := s.list.Adjust(timer, s.clock().Add(timeout))
	if err != nil {
		log.Warn().Msgf("got error while adjusting timer, keeping deadline %s: %+v", timer.expire.Format(time.RFC3339), err)
	}
	return timer
}

func (s *listStore) Cancel(t Timer) {
	if timer, ok := t.(*ListTimer); ok {
		s.list.Remove(timer)
	}
}

func (s *listStore) Tick() {
	s.list.Tick(s.clock())
}

func (s *listStore) Interval() time.Duration {
	return s.interval
}

func (s *listStore) Len() int {
	return s.list.Len()
}

func (s *listStore) Clear() {
	s.list.Clear()
}

type wheelStore struct {
	wheel *TimingWheel
}

func (s *wheelStore) Schedule(owner Evictable, timeout time.Duration) Timer {
	return s.wheel.Add(timeout, owner)
}

func (s *wheelStore) Refresh(t Timer, timeout time.Duration) Timer {
	timer, ok := t.(*WheelTimer)
	if !ok || !timer.Linked() {
		return t
	}
	s.wheel.Remove(timer)
	return s.wheel.Add(timeout, timer.owner)
}

func (s *wheelStore) Cancel(t Timer) {
	if timer, ok := t.(*WheelTimer); ok {
		s.wheel.Remove(timer)
	}
}

func (s *wheelStore) Tick() {
	s.wheel.Tick()
}

func (s *wheelStore) Interval() time.Duration {
	return s.wheel.Interval()
}

func (s *wheelStore) Len() int {
	return s.wheel.Len()
}

func (s *wheelStore) Clear() {
	s.wheel.Clear()
}
