//go:build linux

package evloop

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

func isTCP(network string) bool {
	return strings.HasPrefix(network, "tcp")
}

// Listen opens a non-blocking listening socket and returns its raw fd.
// Supported networks are tcp, tcp4, tcp6 and unix.
func Listen(network, address string, backlog int, reusePort bool) (int, error) {
	family, sa, err := resolveSockaddr(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	if family != unix.AF_UNIX {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			return -1, os.NewSyscallError("setsockopt", err)
		}
		if reusePort {
			if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				_ = unix.Close(fd)
				return -1, os.NewSyscallError("setsockopt", err)
			}
		}
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}
	if backlog <= 0 {
		backlog = defBacklog
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}
	return fd, nil
}

// ListenerAddr returns the bound address of a listening fd.
func ListenerAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return sockaddrToAddr(sa), nil
}

func resolveSockaddr(network, address string) (int, unix.Sockaddr, error) {
	if network == "unix" {
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: address}, nil
	}
	if !isTCP(network) {
		return 0, nil, fmt.Errorf("%w: unsupported network %q", ErrInvalidConfig, network)
	}
	tcpAddr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return 0, nil, err
	}
	if ip4 := tcpAddr.IP.To4(); network != "tcp6" && (tcpAddr.IP == nil || ip4 != nil) {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa, nil
	}
	sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa.Addr[:], tcpAddr.IP.To16())
	if tcpAddr.Zone != "" {
		if ifi, err := net.InterfaceByName(tcpAddr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa, nil
}
