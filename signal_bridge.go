//go:build linux

package evloop

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// SignalKind is what the reactor makes of a drained signal byte.
type SignalKind int

const (
	SignalIgnored SignalKind = iota
	SignalTick
	SignalShutdown
)

var signalKinds = map[syscall.Signal]SignalKind{
	syscall.SIGALRM: SignalTick,
	syscall.SIGTERM: SignalShutdown,
	syscall.SIGINT:  SignalShutdown,
	syscall.SIGHUP:  SignalIgnored,
	syscall.SIGCHLD: SignalIgnored,
}

func ClassifySignal(sig syscall.Signal) SignalKind {
	return signalKinds[sig]
}

// DefaultSignals are the signals a reactor subscribes to.
var DefaultSignals = []syscall.Signal{syscall.SIGALRM, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGCHLD}

// SignalBridge turns asynchronous signals into bytes on a non-blocking pipe
// so that the reactor sees them as ordinary readable events. Every delivered
// signal writes exactly one byte holding its number. Once the pipe buffer is
// full further signals are dropped and counted.
type SignalBridge struct {
	readFd  int
	mu      sync.Mutex
	writeFd int
	dropped *atomic.Uint64
	sigs    chan os.Signal
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewSignalBridge opens the pipe and routes sigs into it. With no signals
// the bridge is only fed through Notify.
func NewSignalBridge(sigs ...syscall.Signal) (*SignalBridge, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	b := &SignalBridge{
		readFd:  fds[0],
		writeFd: fds[1],
		dropped: atomic.NewUint64(0),
		done:    make(chan struct{}),
	}
	if len(sigs) > 0 {
		b.sigs = make(chan os.Signal, 64)
		osSigs := make([]os.Signal, 0, len(sigs))
		for _, sig := range sigs {
			osSigs = append(osSigs, sig)
		}
		signal.Notify(b.sigs, osSigs...)
		b.wg.Add(1)
		go b.relay()
	}
	return b, nil
}

// Fd is the read end of the pipe.
func (b *SignalBridge) Fd() int {
	return b.readFd
}

func (b *SignalBridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *SignalBridge) relay() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case sig := <-b.sigs:
			if s, ok := sig.(syscall.Signal); ok {
				if err := b.Notify(s); err != nil {
					log.Warn().Msgf("signal %s dropped: %+v", s, err)
				}
			}
		}
	}
}

// Notify writes one byte for sig without blocking. After Close it returns
// ErrBridgeClosed and writes nothing.
func (b *SignalBridge) Notify(sig syscall.Signal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeFd < 0 {
		return ErrBridgeClosed
	}
	msg := [1]byte{byte(sig)}
	for {
		_, err := unix.Write(b.writeFd, msg[:])
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			b.dropped.Inc()
			return ErrSignalChannelFull
		default:
			return os.NewSyscallError("write", err)
		}
	}
}

// Drain reads until the pipe is empty and calls fn once per byte, duplicates
// included, in arrival order. It returns the number of bytes read.
func (b *SignalBridge) Drain(fn func(sig syscall.Signal)) (int, error) {
	var buf [64]byte
	total := 0
	for {
		n, err := unix.Read(b.readFd, buf[:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return total, nil
			}
			return total, os.NewSyscallError("read", err)
		}
		if n <= 0 {
			return total, nil
		}
		total += n
		if fn != nil {
			for _, s := range buf[:n] {
				fn(syscall.Signal(s))
			}
		}
	}
}

// Close restores default signal handling and closes both pipe ends.
func (b *SignalBridge) Close() {
	b.once.Do(func() {
		if b.sigs != nil {
			signal.Stop(b.sigs)
		}
		close(b.done)
		b.wg.Wait()
		b.mu.Lock()
		if err := unix.Close(b.writeFd); err != nil {
			log.Error().Msgf("got error while closing signal pipe: %+v", err)
		}
		b.writeFd = -1
		b.mu.Unlock()
		if err := unix.Close(b.readFd); err != nil {
			log.Error().Msgf("got error while closing signal pipe: %+v", err)
		}
	})
}
