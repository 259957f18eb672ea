package evloop

import "time"

// ListTimer is a node of SortedTimerList. A timer is linked into at most one list.
type ListTimer struct {
	expire time.Time
	owner  Evictable
	prev   *ListTimer
	next   *ListTimer
	list   *SortedTimerList
}

func NewListTimer(owner Evictable, expire time.Time) *ListTimer {
	return &ListTimer{owner: owner, expire: expire}
}

func (t *ListTimer) Owner() Evictable {
	return t.owner
}

func (t *ListTimer) Expire() time.Time {
	return t.expire
}

// Linked reports whether the timer is still scheduled.
func (t *ListTimer) Linked() bool {
	return t.list != nil
}

// SortedTimerList is a doubly linked list of timers kept in ascending
// expiration order. Insertion is O(n), removal O(1) and a tick only touches
// the timers that are due.
type SortedTimerList struct {
	head *ListTimer
	tail *ListTimer
	size int
}

func NewSortedTimerList() *SortedTimerList {
	return &SortedTimerList{}
}

func (l *SortedTimerList) Len() int {
	return l.size
}

func (l *SortedTimerList) Head() *ListTimer {
	return l.head
}

func (l *SortedTimerList) Tail() *ListTimer {
	return l.tail
}

// Add links timer in order. Timers with an equal expiration keep insertion order.
func (l *SortedTimerList) Add(timer *ListTimer) {
	if timer == nil || timer.list != nil {
		return
	}
	timer.list = l
	l.size++
	if l.head == nil {
		timer.prev, timer.next = nil, nil
		l.head, l.tail = timer, timer
		return
	}
	if timer.expire.Before(l.head.expire) {
		timer.prev = nil
		timer.next = l.head
		l.head.prev = timer
		l.head = timer
		return
	}
	l.insertAfter(timer, l.head)
}

// Adjust moves timer to expire. Only extensions are supported: a timer that
// still expires no later than its successor keeps its position, otherwise it
// is re-inserted starting from its old successor.
func (l *SortedTimerList) Adjust(timer *ListTimer, expire time.Time) error {
	if timer == nil || timer.list != l {
		return nil
	}
	if expire.Before(timer.expire) {
		return ErrAdjustBackwards
	}
	timer.expire = expire
	next := timer.next
	if next == nil || !expire.After(next.expire) {
		return nil
	}
	if timer == l.head {
		l.head = next
		next.prev = nil
	} else {
		timer.prev.next = next
		next.prev = timer.prev
	}
	timer.prev, timer.next = nil, nil
	l.insertAfter(timer, next)
	return nil
}

// Remove unlinks timer. Removing a timer that already fired is a no-op.
func (l *SortedTimerList) Remove(timer *ListTimer) {
	if timer == nil || timer.list != l {
		return
	}
	switch {
	case timer == l.head && timer == l.tail:
		l.head, l.tail = nil, nil
	case timer == l.head:
		l.head = timer.next
		l.head.prev = nil
	case timer == l.tail:
		l.tail = timer.prev
		l.tail.next = nil
	default:
		timer.prev.next = timer.next
		timer.next.prev = timer.prev
	}
	timer.prev, timer.next, timer.list = nil, nil, nil
	l.size--
}

// Tick fires every timer whose expiration is not after now, in order, and
// stops at the first timer that is still pending.
func (l *SortedTimerList) Tick(now time.Time) {
	for l.head != nil {
		timer := l.head
		if now.Before(timer.expire) {
			return
		}
		if timer.owner != nil {
			timer.owner.OnTimeout()
		}
		// the callback is not allowed to touch the list, so head is still timer
		l.head = timer.next
		if l.head != nil {
			l.head.prev = nil
		} else {
			l.tail = nil
		}
		timer.prev, timer.next, timer.list = nil, nil, nil
		l.size--
	}
}

// Each walks the list from head to tail until fn returns false.
func (l *SortedTimerList) Each(fn func(timer *ListTimer) bool) {
	for timer := l.head; timer != nil; timer = timer.next {
		if !fn(timer) {
			return
		}
	}
}

// Clear unlinks every timer without firing it.
func (l *SortedTimerList) Clear() {
	for timer := l.head; timer != nil; {
		next := timer.next
		timer.prev, timer.next, timer.list = nil, nil, nil
		timer = next
	}
	l.head, l.tail, l.size = nil, nil, 0
}

// insertAfter places timer after the first node at or after start whose
// expiration is not later than timer's own.
func (l *SortedTimerList) insertAfter(timer *ListTimer, start *ListTimer) {
	prev := start
	for cur := start.next; cur != nil; cur = cur.next {
		if timer.expire.Before(cur.expire) {
			prev.next = timer
			timer.prev = prev
			timer.next = cur
			cur.prev = timer
			return
		}
		prev = cur
	}
	prev.next = timer
	timer.prev = prev
	timer.next = nil
	l.tail = timer
}
