//go:build linux

package evloop

import (
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServerEvictsWithIntervalTimer(t *testing.T) {
	config := DefaultConfig()
	config.Listener.Address = "127.0.0.1:0"
	config.Listener.NoDelay = true
	config.Reactor.TimeSlotSec = 1
	config.Reactor.TimeoutMultiplier = 1
	config.Evictions.Enabled = true

	server, err := NewServer(config, EchoHandler{}, WithSignals(syscall.SIGALRM))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- server.Run()
	}()

	conn, err := net.Dial("tcp4", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", readExactly(t, conn, 5))

	require.Eventually(t, func() bool {
		return server.Stats().ClosedByTimeout == 1
	}, 5*time.Second, 20*time.Millisecond)
	requireClosedByServer(t, conn)
	require.GreaterOrEqual(t, server.Stats().Ticks, uint64(1))

	require.NoError(t, server.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("server did not stop")
	}
}

func TestServerRejectsBadNetwork(t *testing.T) {
	config := DefaultConfig()
	config.Listener.Net = "udp"
	_, err := NewServer(config, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRaiseOpenFilesLimit(t *testing.T) {
	limit, err := RaiseOpenFilesLimit(256)
	require.NoError(t, err)
	require.GreaterOrEqual(t, limit, uint64(256))
}
