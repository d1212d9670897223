//go:build linux

package sys

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, FaultNone, Classify(nil))
	assert.Equal(t, Transient, Classify(&Error{Op: "read", Err: unix.EAGAIN}))
	assert.Equal(t, Transient, Classify(unix.EWOULDBLOCK))
	assert.Equal(t, Interrupted, Classify(&Error{Op: "epoll_wait", Err: unix.EINTR}))
	assert.Equal(t, Fatal, Classify(&Error{Op: "read", Err: unix.ECONNRESET}))
	assert.Equal(t, Fatal, Classify(errors.New("boom")))

	// Wrapped twice still classifies
	err := fmt.Errorf("handler: %w", &Error{Op: "accept", Err: unix.EAGAIN})
	assert.Equal(t, Transient, Classify(err))
	assert.Equal(t, unix.EAGAIN, Errno(err))
	assert.Equal(t, unix.Errno(0), Errno(errors.New("no errno")))

	assert.Equal(t, "accept: "+unix.EAGAIN.Error(), (&Error{Op: "accept", Err: unix.EAGAIN}).Error())
	assert.Equal(t, "transient", Transient.String())
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadWriteNonblocking(t *testing.T) {
	a, b := socketPair(t)

	// Nothing written yet: the read must not block.
	buf := make([]byte, 16)
	_, err := Read(a, buf)
	require.Error(t, err)
	assert.Equal(t, Transient, Classify(err))

	n, err := FD(b).Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = FD(a).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	// Half-close: the peer sees end of stream.
	require.NoError(t, Shutdown(b))
	n, err = Read(a, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEpollReadiness(t *testing.T) {
	a, b := socketPair(t)

	ep, err := NewEpoll(8)
	require.NoError(t, err)
	defer ep.Close()

	require.NoError(t, ep.Add(a, ConnEvents))

	// A fresh socket pair is writable straight away.
	ready, err := ep.Wait(nil, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, a, ready[0].FD)
	assert.True(t, ready[0].Writable())
	assert.False(t, ready[0].Readable())

	// Edge-triggered: no new edge, no new event.
	ready, err = ep.Wait(nil, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, ready, 0)

	_, err = Write(b, []byte("x"))
	require.NoError(t, err)

	ready, err = ep.Wait(ready[:0], 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.True(t, ready[0].Readable())
	assert.True(t, ready[0].Writable())

	require.NoError(t, ep.Modify(a, ListenerEvents))
	require.NoError(t, ep.Delete(a))
	assert.Error(t, ep.Delete(a))
}

func TestWaitMillis(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{0, 0},
		{time.Nanosecond, 1},
		{500 * time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{100 * time.Millisecond, 100},
		{-1, -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, waitMillis(tt.timeout), "timeout %s", tt.timeout)
	}
}

func TestBindAndAddresses(t *testing.T) {
	fd, err := Socket(unix.AF_INET)
	require.NoError(t, err)
	defer Close(fd)

	require.NoError(t, Bind(fd, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}))
	addr, err := LocalAddr(fd)
	require.NoError(t, err)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.NotZero(t, addr.Port, "kernel picks a port for port 0")

	// Not connected, so there is no peer.
	_, err = PeerAddr(fd)
	require.Error(t, err)
	assert.Equal(t, unix.ENOTCONN, Errno(err))
}

func TestListenTCP(t *testing.T) {
	fd, err := ListenTCP("127.0.0.1:0", 16)
	require.NoError(t, err)
	defer Close(fd)

	addr, err := LocalAddr(fd)
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.NotZero(t, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))

	// Empty accept queue on a non-blocking listener is transient.
	_, err = Accept(fd)
	require.Error(t, err)
	assert.Equal(t, Transient, Classify(err))

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	var nfd int
	require.Eventually(t, func() bool {
		nfd, err = Accept(fd)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer Close(nfd)

	peer, err := PeerAddr(nfd)
	require.NoError(t, err)
	assert.Equal(t, conn.LocalAddr().(*net.TCPAddr).Port, peer.Port)
}

func TestListenTCPErrors(t *testing.T) {
	_, err := ListenTCP("not an address", 16)
	assert.Error(t, err)

	_, err = Socket(-1)
	require.Error(t, err)
	assert.Equal(t, Fatal, Classify(err))
	assert.Equal(t, unix.EAFNOSUPPORT, Errno(err))
}
