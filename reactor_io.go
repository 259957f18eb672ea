//go:build linux

package evloop

import (
	"errors"
	"net"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

func (r *Reactor) accept() {
	for {
		fd, sa, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EINTR, unix.ECONNABORTED:
				continue
			case unix.EAGAIN:
				return
			}
			log.Error().Msgf("got error while accepting connection: %+v", err)
			return
		}
		if _, err := r.openConn(fd, sockaddrToAddr(sa)); err != nil && log.Debug().Enabled() {
			log.Debug().Msgf("[%d] connection refused: %+v", fd, err)
		}
	}
}

// openConn takes ownership of fd. On any failure fd is closed.
func (r *Reactor) openConn(fd int, addr net.Addr) (*Connection, error) {
	if fd >= r.table.Cap() {
		log.Warn().Msgf("[%d] fd exceeds the limit of %d, closing", fd, r.table.Cap())
		r.refuse(fd)
		return nil, ErrInvalidFd
	}
	now := r.clock()
	if r.tracker != nil {
		if host := hostOf(addr); host != "" {
			if rejected, count := r.tracker.Rejected(host); rejected {
				log.Warn().Msgf("[%d] refuse %s after %d evictions", fd, host, count)
				r.refuse(fd)
				r.route(host, genRejectedEvent(host, count, now))
				return nil, ErrPeerRejected
			}
		}
	}
	if r.sockopts != nil {
		r.sockopts(fd)
	}
	c, err := r.table.Open(fd, addr)
	if err != nil {
		log.Error().Msgf("[%d] got error while opening connection slot: %+v", fd, err)
		r.refuse(fd)
		return nil, err
	}
	c.stats.AcceptedAt = now
	c.stats.LastActivity = now
	c.wantWrite = r.wantWrite
	if _, err := r.Register(fd, Readable, r.mode); err != nil {
		log.Error().Msgf("[%d] got error while registering connection: %+v", fd, err)
		r.table.Release(fd)
		r.refuse(fd)
		return nil, err
	}
	c.timer = r.timers.Schedule(c, r.idleTimeout)
	r.stats.Accepted.Inc()
	r.stats.Active.Inc()
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] accepted %s from %s", fd, c.id, addr)
	}
	r.handler.OnOpen(c)
	r.route(c.id, genConnEvent(c, EventAccepted, now))
	return c, nil
}

func (r *Reactor) refuse(fd int) {
	r.stats.Rejected.Inc()
	if err := unix.Close(fd); err != nil {
		log.Error().Msgf("[%d] got error while closing refused connection: %+v", fd, err)
	}
}

// wantWrite is called by Connection.Write when part of the data stays
// pending. A busy connection gets write interest from its worker's re-arm.
func (r *Reactor) wantWrite(c *Connection) {
	if c.busy.Load() {
		return
	}
	if err := r.poller.Modify(c.fd, Readable|Writable, r.mode, r.config.OneShot); err != nil {
		log.Error().Msgf("[%d] got error while polling for write: %+v", c.fd, err)
	}
}

func (r *Reactor) handleConnEvent(fd int, events uint32) {
	c := r.table.Get(fd)
	if c == nil {
		if log.Debug().Enabled() {
			log.Debug().Msgf("[%d] event for a closed connection", fd)
		}
		return
	}
	if r.pool != nil {
		r.delegate(c, events)
		return
	}
	if events&writeEvents != 0 {
		r.handleWrite(c)
		if c.fd == freeSlot {
			return
		}
	}
	switch {
	case events&readEvents != 0:
		n, err := r.drain(c, r.mode == EdgeTriggered)
		if n > 0 {
			r.touch(c)
		}
		if err != nil {
			r.closeConn(c, closeReason(err))
			return
		}
	case events&errorEvents != 0:
		r.closeConn(c, StateClosedByError)
		return
	}
	if r.config.OneShot {
		if err := r.rearm(c); err != nil {
			log.Error().Msgf("[%d] got error while re-arming: %+v", fd, err)
			r.closeConn(c, StateClosedByError)
		}
	}
}

func (r *Reactor) handleWrite(c *Connection) {
	empty, err := c.flush()
	if err != nil {
		log.Error().Msgf("[%d] got error while flushing pending data: %+v", c.fd, err)
		r.closeConn(c, StateClosedByError)
		return
	}
	if empty && !r.config.OneShot {
		if err := r.poller.Modify(c.fd, Readable, r.mode, false); err != nil {
			log.Error().Msgf("[%d] got error while dropping write interest: %+v", c.fd, err)
		}
	}
}

// drain reads c into its buffer and hands each chunk to the handler. With
// untilBlocked it keeps reading until the socket would block, otherwise it
// does a single read. It returns the received byte count and the error that
// ended the connection, if any.
func (r *Reactor) drain(c *Connection, untilBlocked bool) (int, error) {
	total := 0
	for {
		n, err := unix.Read(c.fd, c.buf)
		if err == unix.EINTR {
			continue
		}
		if err = classifyIoError("read", err); err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return total, nil
			}
			log.Error().Msgf("[%d] got error while reading data: %+v", c.fd, err)
			return total, err
		}
		if n == 0 {
			return total, ErrPeerClosed
		}
		total += n
		c.stats.ReceivedBytes += uint64(n)
		r.stats.ReceivedBytes.Add(uint64(n))
		if err := r.handler.OnData(c, c.buf[:n]); err != nil {
			return total, err
		}
		if !untilBlocked {
			return total, nil
		}
	}
}

func closeReason(err error) ConnState {
	if errors.Is(err, ErrPeerClosed) {
		return StateClosedByPeer
	}
	return StateClosedByError
}

// delegate hands a one-shot readiness to the worker pool. One-shot delivery
// guarantees a single owner, so a busy connection here is a stale event.
func (r *Reactor) delegate(c *Connection, events uint32) {
	if !c.busy.CAS(false, true) {
		return
	}
	r.stats.Delegated.Inc()
	gen := c.gen
	err := r.pool.Submit(func() {
		r.serve(c, gen, events)
	})
	if err != nil {
		c.busy.Store(false)
		r.closeConn(c, StateClosedByError)
	}
}

// serve runs on a worker goroutine while c is busy.
func (r *Reactor) serve(c *Connection, gen uint64, events uint32) {
	var err error
	if events&writeEvents != 0 {
		_, err = c.flush()
	}
	received := 0
	if err == nil && events&(readEvents|errorEvents) != 0 {
		received, err = r.drain(c, true)
	}
	c.mu.Lock()
	c.busy.Store(false)
	if err == nil {
		err = r.rearm(c)
	}
	c.mu.Unlock()
	r.postCompletion(completion{c: c, gen: gen, received: received, err: err})
}
