//go:build linux

package evloop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func write(t *testing.T, fd int, data string) {
	t.Helper()
	n, err := unix.Write(fd, []byte(data))
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func countFd(events []unix.EpollEvent, fd int) int {
	count := 0
	for _, ev := range events {
		if int(ev.Fd) == fd {
			count++
		}
	}
	return count
}

func TestPollerLevelAndEdge(t *testing.T) {
	poller, err := openPoller(16)
	require.NoError(t, err)
	defer poller.Close()

	levelFd, levelPeer := socketPair(t)
	edgeFd, edgePeer := socketPair(t)
	require.NoError(t, poller.Add(levelFd, Readable, LevelTriggered, false))
	require.NoError(t, poller.Add(edgeFd, Readable, EdgeTriggered, false))
	write(t, levelPeer, "level")
	write(t, edgePeer, "edge")

	events, err := poller.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, countFd(events, levelFd))
	require.Equal(t, 1, countFd(events, edgeFd))

	// nothing was read: level keeps reporting, edge stays silent
	events, err = poller.Wait(50)
	require.NoError(t, err)
	require.Equal(t, 1, countFd(events, levelFd))
	require.Equal(t, 0, countFd(events, edgeFd))

	require.NoError(t, poller.Delete(levelFd))
	events, err = poller.Wait(50)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestPollerOneShotExclusivity(t *testing.T) {
	poller, err := openPoller(16)
	require.NoError(t, err)
	defer poller.Close()

	fd, peer := socketPair(t)
	require.NoError(t, poller.Add(fd, Readable, EdgeTriggered, true))

	delivered := atomic.NewInt64(0)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events := make([]unix.EpollEvent, 8)
			n, err := epollWait(poller.fd, events, 300)
			if err == nil {
				delivered.Add(int64(countFd(events[:n], fd)))
			}
		}()
	}
	write(t, peer, "one")
	wg.Wait()
	require.Equal(t, int64(1), delivered.Load())

	// new data does not wake a disarmed fd
	write(t, peer, "two")
	events, err := poller.Wait(50)
	require.NoError(t, err)
	require.Equal(t, 0, countFd(events, fd))

	require.NoError(t, poller.Modify(fd, Readable, EdgeTriggered, true))
	events, err = poller.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, countFd(events, fd))
}

func TestPollerWake(t *testing.T) {
	poller, err := openPoller(16)
	require.NoError(t, err)
	defer poller.Close()

	go func() {
		_ = poller.Wake()
	}()
	events, err := poller.Wait(blocked)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, poller.IsWakeFd(int(events[0].Fd)))
	poller.drainWake()

	events, err = poller.Wait(50)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestPollerRegistrationErrors(t *testing.T) {
	poller, err := openPoller(16)
	require.NoError(t, err)
	defer poller.Close()

	fd, _ := socketPair(t)
	require.ErrorIs(t, poller.Modify(fd, Readable, EdgeTriggered, false), ErrRegistrationFailure)
	require.ErrorIs(t, poller.Delete(fd), ErrRegistrationFailure)
	require.NoError(t, poller.Add(fd, Readable, EdgeTriggered, false))
	require.ErrorIs(t, poller.Add(fd, Readable, EdgeTriggered, false), ErrRegistrationFailure)
}
