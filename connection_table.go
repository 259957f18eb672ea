package evloop

import (
	"net"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const freeSlot = -1

// ConnectionTable is a fixed arena of connections indexed by fd. A slot is
// free when its fd is -1; records and read buffers are reused across peers.
type ConnectionTable struct {
	slots      []Connection
	bufferSize int
	open       int
	onTimeout  func(c *Connection)
	sent       *atomic.Uint64
}

func NewConnectionTable(limit, bufferSize int, onTimeout func(c *Connection)) *ConnectionTable {
	if bufferSize <= 0 {
		bufferSize = defReadBufferSize
	}
	t := &ConnectionTable{
		slots:      make([]Connection, limit),
		bufferSize: bufferSize,
		onTimeout:  onTimeout,
	}
	for i := range t.slots {
		t.slots[i].fd = freeSlot
		t.slots[i].table = t
		t.slots[i].busy = atomic.NewBool(false)
	}
	return t
}

func (t *ConnectionTable) Cap() int {
	return len(t.slots)
}

// Len is the number of occupied slots.
func (t *ConnectionTable) Len() int {
	return t.open
}

func (t *ConnectionTable) Open(fd int, addr net.Addr) (*Connection, error) {
	if fd < 0 || fd >= len(t.slots) {
		return nil, ErrInvalidFd
	}
	c := &t.slots[fd]
	if c.fd != freeSlot {
		return nil, ErrSlotBusy
	}
	if c.buf == nil {
		c.buf = make([]byte, t.bufferSize)
	}
	c.fd = fd
	c.id = uuid.NewString()
	c.addr = addr
	c.timer = nil
	c.state = StateAccepted
	c.pending = c.pending[:0]
	c.stats = ConnStats{}
	c.gen++
	c.deferred = StateFree
	c.busy.Store(false)
	t.open++
	return c, nil
}

func (t *ConnectionTable) Get(fd int) *Connection {
	if fd < 0 || fd >= len(t.slots) {
		return nil
	}
	c := &t.slots[fd]
	if c.fd == freeSlot {
		return nil
	}
	return c
}

// Release frees the slot of fd. The buffer stays allocated for the next peer.
func (t *ConnectionTable) Release(fd int) {
	c := t.Get(fd)
	if c == nil {
		return
	}
	c.fd = freeSlot
	c.timer = nil
	c.addr = nil
	c.pending = c.pending[:0]
	c.wantWrite = nil
	c.state = StateFree
	t.open--
}

// Each visits occupied slots in fd order until fn returns false.
func (t *ConnectionTable) Each(fn func(c *Connection) bool) {
	for i := range t.slots {
		c := &t.slots[i]
		if c.fd == freeSlot {
			continue
		}
		if !fn(c) {
			return
		}
	}
}
