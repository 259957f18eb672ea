//go:build linux

package evloop

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// setSocketOptions tunes an accepted fd. Failures are logged, the
// connection is still served with the kernel defaults.
func setSocketOptions(fd int, config ListenerConfig) {
	err := unix.SetNonblock(fd, true)
	if err != nil {
		log.Error().Msgf("got error while setting socket options O_NONBLOCK: %+v", err)
	}
	if config.RcvBuffer > 0 {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, config.RcvBuffer)
		if err != nil {
			log.Error().Msgf("got error while setting socket options SO_RCVBUF: %+v", err)
		}
	}
	if config.SndBuffer > 0 {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, config.SndBuffer)
		if err != nil {
			log.Error().Msgf("got error while setting socket options SO_SNDBUF: %+v", err)
		}
	}
	if config.NoDelay && isTCP(config.Net) {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if err != nil {
			log.Error().Msgf("got error while setting socket options TCP_NODELAY: %+v", err)
		}
	}
}

func socketOptionsApplier(config ListenerConfig) func(fd int) {
	return func(fd int) {
		setSocketOptions(fd, config)
	}
}
