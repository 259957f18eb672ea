package evloop

import "time"

const (
	defaultWheelSlots    = 60
	defaultWheelInterval = time.Second
)

// WheelTimer is a timer parked in one slot of a TimingWheel.
type WheelTimer struct {
	rotation int
	slot     int
	owner    Evictable
	prev     *WheelTimer
	next     *WheelTimer
	wheel    *TimingWheel
}

func (t *WheelTimer) Owner() Evictable {
	return t.owner
}

// Rotation is the number of full wheel turns left before the timer is live.
func (t *WheelTimer) Rotation() int {
	return t.rotation
}

func (t *WheelTimer) Slot() int {
	return t.slot
}

func (t *WheelTimer) Linked() bool {
	return t.wheel != nil
}

// TimingWheel keeps timers in a fixed ring of slots advanced once per
// interval. Add and Remove are O(1); precision is one interval.
type TimingWheel struct {
	slots    []*WheelTimer
	interval time.Duration
	cur      int
	size     int
}

func NewTimingWheel(slots int, interval time.Duration) *TimingWheel {
	if slots <= 0 {
		slots = defaultWheelSlots
	}
	if interval <= 0 {
		interval = defaultWheelInterval
	}
	return &TimingWheel{
		slots:    make([]*WheelTimer, slots),
		interval: interval,
	}
}

func (w *TimingWheel) Slots() int {
	return len(w.slots)
}

func (w *TimingWheel) Interval() time.Duration {
	return w.interval
}

func (w *TimingWheel) CurrentSlot() int {
	return w.cur
}

func (w *TimingWheel) Len() int {
	return w.size
}

// Add schedules owner to fire after timeout. Timeouts shorter than one
// interval round up to a single tick, longer ones round down.
func (w *TimingWheel) Add(timeout time.Duration, owner Evictable) *WheelTimer {
	ticks := int(timeout / w.interval)
	if ticks < 1 {
		ticks = 1
	}
	n := len(w.slots)
	timer := &WheelTimer{
		rotation: ticks / n,
		slot:     (w.cur + ticks%n) % n,
		owner:    owner,
		wheel:    w,
	}
	head := w.slots[timer.slot]
	if head != nil {
		timer.next = head
		head.prev = timer
	}
	w.slots[timer.slot] = timer
	w.size++
	return timer
}

func (w *TimingWheel) Remove(timer *WheelTimer) {
	if timer == nil || timer.wheel != w {
		return
	}
	w.unlink(timer)
}

// Tick processes the slot under the cursor and advances it by one.
func (w *TimingWheel) Tick() {
	timer := w.slots[w.cur]
	for timer != nil {
		next := timer.next
		if timer.rotation > 0 {
			timer.rotation--
		} else {
			if timer.owner != nil {
				timer.owner.OnTimeout()
			}
			w.unlink(timer)
		}
		timer = next
	}
	w.cur = (w.cur + 1) % len(w.slots)
}

// Clear drops every timer without firing it.
func (w *TimingWheel) Clear() {
	for i, timer := range w.slots {
		for timer != nil {
			next := timer.next
			timer.prev, timer.next, timer.wheel = nil, nil, nil
			timer = next
		}
		w.slots[i] = nil
	}
	w.size = 0
}

func (w *TimingWheel) unlink(timer *WheelTimer) {
	if timer.prev != nil {
		timer.prev.next = timer.next
	} else {
		w.slots[timer.slot] = timer.next
	}
	if timer.next != nil {
		timer.next.prev = timer.prev
	}
	timer.prev, timer.next, timer.wheel = nil, nil, nil
	w.size--
}
