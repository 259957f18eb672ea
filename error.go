package evloop

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrWouldBlock          = errors.New("evloop: operation would block")
	ErrPeerClosed          = errors.New("evloop: connection closed by peer")
	ErrIoFailure           = errors.New("evloop: i/o failure")
	ErrRegistrationFailure = errors.New("evloop: readiness registration failed")
	ErrSignalChannelFull   = errors.New("evloop: signal channel is full")
	ErrBridgeClosed        = errors.New("evloop: signal bridge is closed")
)

var (
	ErrInvalidFd         = errors.New("evloop: file descriptor out of range")
	ErrSlotBusy          = errors.New("evloop: connection slot already in use")
	ErrAdjustBackwards   = errors.New("evloop: timer can only be adjusted forward")
	ErrWritePending      = errors.New("evloop: previous write is still pending")
	ErrPoolClosed        = errors.New("evloop: worker pool is closed")
	ErrUnknownTimerStore = errors.New("evloop: unknown timer store")
	ErrInvalidConfig     = errors.New("evloop: invalid configuration")
	ErrPeerRejected      = errors.New("evloop: peer rejected")
)

// classifyIoError maps a raw read/write errno onto the error kinds the reactor acts on.
func classifyIoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return ErrWouldBlock
	}
	return fmt.Errorf("%w: %v", ErrIoFailure, os.NewSyscallError(op, err))
}

func registrationError(op string, err error) error {
	return fmt.Errorf("%w: %v", ErrRegistrationFailure, os.NewSyscallError(op, err))
}
