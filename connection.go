package evloop

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

type ConnState int

const (
	StateFree ConnState = iota
	StateAccepted
	StateActive
	StateClosedByPeer
	StateClosedByError
	StateClosedByTimeout
	StateClosedByShutdown
)

var connStateNames = map[ConnState]string{
	StateFree:             "free",
	StateAccepted:         "accepted",
	StateActive:           "active",
	StateClosedByPeer:     "closed-by-peer",
	StateClosedByError:    "closed-by-error",
	StateClosedByTimeout:  "closed-by-timeout",
	StateClosedByShutdown: "closed-by-shutdown",
}

func (s ConnState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the state ends the connection lifecycle.
func (s ConnState) Terminal() bool {
	return s >= StateClosedByPeer
}

type ConnStats struct {
	AcceptedAt    time.Time
	LastActivity  time.Time
	ReceivedBytes uint64
	SentBytes     uint64
}

// Connection is one slot of the ConnectionTable. Everything but the
// busy flag belongs to the reactor goroutine, or to the worker that
// currently holds busy.
type Connection struct {
	fd      int
	id      string
	addr    net.Addr
	buf     []byte
	timer   Timer
	state   ConnState
	pending []byte
	stats   ConnStats
	gen     uint64
	table   *ConnectionTable

	mu       sync.Mutex
	busy     *atomic.Bool
	deferred ConnState
	// set by the reactor so that Write can ask for write interest
	wantWrite func(c *Connection)
}

func (c *Connection) Fd() int {
	return c.fd
}

func (c *Connection) Id() string {
	return c.id
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.addr
}

func (c *Connection) State() ConnState {
	return c.state
}

func (c *Connection) Stats() ConnStats {
	return c.stats
}

// Generation changes every time the slot is handed to a new peer.
func (c *Connection) Generation() uint64 {
	return c.gen
}

func (c *Connection) Timer() Timer {
	return c.timer
}

// Pending is the unsent remainder of the last Write.
func (c *Connection) Pending() int {
	return len(c.pending)
}

// OnTimeout only records that the connection must go; the reactor closes
// it once the tick is over.
func (c *Connection) OnTimeout() {
	if c.table != nil && c.table.onTimeout != nil {
		c.table.onTimeout(c)
	}
}

// Write sends p directly. Whatever the socket does not take is kept as the
// single pending buffer and flushed on the next writable event.
func (c *Connection) Write(p []byte) (int, error) {
	if len(c.pending) > 0 {
		return 0, ErrWritePending
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.fd, p[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				break
			}
			c.addSent(written)
			return written, classifyIoError("write", err)
		}
		if n == 0 {
			break
		}
	}
	c.addSent(written)
	if written < len(p) {
		c.pending = append(c.pending[:0], p[written:]...)
		if c.wantWrite != nil {
			c.wantWrite(c)
		}
	}
	return len(p), nil
}

// flush writes as much of the pending buffer as the socket accepts and
// reports whether it is now empty.
func (c *Connection) flush() (bool, error) {
	for len(c.pending) > 0 {
		n, err := unix.Write(c.fd, c.pending)
		if n > 0 {
			c.addSent(n)
			c.pending = c.pending[n:]
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return false, nil
			}
			return false, classifyIoError("write", err)
		}
		if n == 0 {
			return false, nil
		}
	}
	c.pending = c.pending[:0]
	return true, nil
}

func (c *Connection) addSent(n int) {
	if n <= 0 {
		return
	}
	c.stats.SentBytes += uint64(n)
	if c.table != nil && c.table.sent != nil {
		c.table.sent.Add(uint64(n))
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("[%d] %s %s %s", c.fd, c.id, c.addr, c.state)
}
