//go:build linux

package evloop

import (
	"encoding/binary"
	"os"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT
	errorEvents = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

const (
	defEventsBufferSize = 128
	blocked             = -1
)

// Poller owns the epoll registration table and an eventfd used to wake a
// blocked wait from other goroutines.
type Poller struct {
	fd              int // epoll fd
	wakeFd          int
	eventBufferSize int
	events          []unix.EpollEvent
}

func openPoller(eventsBufferSize int) (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	bufferSize := eventsBufferSize
	if bufferSize < defEventsBufferSize {
		bufferSize = defEventsBufferSize
	}
	p := &Poller{
		fd:              fd,
		wakeFd:          wakeFd,
		eventBufferSize: bufferSize,
		events:          make([]unix.EpollEvent, bufferSize),
	}
	if err := p.Add(wakeFd, Readable, EdgeTriggered, false); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func epollFlags(interest Interest, mode TriggerMode, oneShot bool) uint32 {
	var flags uint32 = errorEvents
	if interest&Readable != 0 {
		flags |= readEvents
	}
	if interest&Writable != 0 {
		flags |= writeEvents
	}
	if mode == EdgeTriggered {
		flags |= unix.EPOLLET
	}
	if oneShot {
		flags |= unix.EPOLLONESHOT
	}
	return flags
}

func (p *Poller) Add(fd int, interest Interest, mode TriggerMode, oneShot bool) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] add epoll interest:%d mode:%s oneshot:%t", fd, interest, mode, oneShot)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollFlags(interest, mode, oneShot)})
	if err != nil {
		return registrationError("epoll_ctl add", err)
	}
	return nil
}

// Modify replaces the interest set of fd. For one-shot registrations this
// is also what re-arms delivery.
func (p *Poller) Modify(fd int, interest Interest, mode TriggerMode, oneShot bool) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] mod epoll interest:%d mode:%s oneshot:%t", fd, interest, mode, oneShot)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollFlags(interest, mode, oneShot)})
	if err != nil {
		return registrationError("epoll_ctl mod", err)
	}
	return nil
}

func (p *Poller) Delete(fd int) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] delete epoll", fd)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return registrationError("epoll_ctl del", err)
	}
	return nil
}

// Wait blocks for at most msec milliseconds (blocked waits forever). An
// interrupted wait returns no events and no error.
func (p *Poller) Wait(msec int) ([]unix.EpollEvent, error) {
	evCount, err := epollWait(p.fd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}
	return p.events[:evCount], nil
}

func (p *Poller) IsWakeFd(fd int) bool {
	return fd == p.wakeFd
}

func (p *Poller) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakeFd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	if err != nil {
		return os.NewSyscallError("write", err)
	}
	return nil
}

// drainWake resets the eventfd counter.
func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				log.Error().Msgf("got error while draining wake fd: %+v", err)
			}
			if err != unix.EINTR {
				return
			}
		}
	}
}

func (p *Poller) Close() {
	err := os.NewSyscallError("close", unix.Close(p.wakeFd))
	if err != nil {
		log.Error().Msgf("got error while closing wake fd: %+v", err)
	}
	err = os.NewSyscallError("close", unix.Close(p.fd))
	if err != nil {
		log.Error().Msgf("got error while closing epoll: %+v", err)
	}
}

func epollWait(epollFd int, events []unix.EpollEvent, msec int) (count int, err error) {
	var eventCount uintptr
	var eventsPointer = unsafe.Pointer(&events[0])
	if msec == 0 {
		eventCount, _, err = syscall.RawSyscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epollFd), uintptr(eventsPointer), uintptr(len(events)), 0, 0, 0)
	} else {
		eventCount, _, err = syscall.Syscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epollFd), uintptr(eventsPointer), uintptr(len(events)), uintptr(msec), 0, 0)
	}
	if err == syscall.Errno(0) {
		err = nil
	}
	if err != nil {
		return 0, err
	}
	return int(eventCount), nil
}
