//go:build linux

package evloop

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Ticker arms the next periodic tick. The tick itself arrives as SIGALRM
// through the SignalBridge, so implementations only schedule it.
type Ticker interface {
	Arm(interval time.Duration) error
	Stop() error
}

// ItimerTicker uses a one-shot ITIMER_REAL that is re-armed after every tick.
type ItimerTicker struct{}

func (ItimerTicker) Arm(interval time.Duration) error {
	_, err := unix.Setitimer(unix.ItimerReal, unix.Itimerval{Value: unix.NsecToTimeval(interval.Nanoseconds())})
	if err != nil {
		return os.NewSyscallError("setitimer", err)
	}
	return nil
}

func (ItimerTicker) Stop() error {
	_, err := unix.Setitimer(unix.ItimerReal, unix.Itimerval{})
	if err != nil {
		return os.NewSyscallError("setitimer", err)
	}
	return nil
}

// ManualTicker never raises anything. Ticks are injected by the caller,
// typically by writing SIGALRM into the bridge.
type ManualTicker struct{}

func (ManualTicker) Arm(time.Duration) error {
	return nil
}

func (ManualTicker) Stop() error {
	return nil
}
