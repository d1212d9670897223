//go:build linux

package sys

import (
	"fmt"
	"net"

	sockaddrnet "github.com/libp2p/go-sockaddr/net"
	"golang.org/x/sys/unix"
)

// Socket creates a TCP socket for the given address family.
func Socket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, wrap("socket", err)
	}
	return fd, nil
}

// SetReuse sets SO_REUSEADDR and SO_REUSEPORT so a restarted server
// can bind while old connections sit in TIME_WAIT.
func SetReuse(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return wrap("setsockopt SO_REUSEADDR", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return wrap("setsockopt SO_REUSEPORT", err)
	}
	return nil
}

// Bind binds fd to addr.
func Bind(fd int, addr *net.TCPAddr) error {
	sa := sockaddrnet.TCPAddrToSockaddr(addr)
	if sa == nil {
		return &Error{Op: "bind", Err: fmt.Errorf("unsupported address %v", addr)}
	}
	return wrap("bind", unix.Bind(fd, sa))
}

func Listen(fd, backlog int) error {
	return wrap("listen", unix.Listen(fd, backlog))
}

func SetNonblock(fd int) error {
	return wrap("set nonblock", unix.SetNonblock(fd, true))
}

// Accept takes one pending connection off the listener.
// On an empty queue the error classifies as Transient.
func Accept(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, wrap("accept", err)
	}
	return nfd, nil
}

// Read returns 0, nil on end of stream.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		return 0, wrap("read", err)
	}
	return n, nil
}

func Write(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err != nil {
		return 0, wrap("write", err)
	}
	return n, nil
}

// Shutdown disables further writes on fd.
func Shutdown(fd int) error {
	return wrap("shutdown", unix.Shutdown(fd, unix.SHUT_WR))
}

func Close(fd int) error {
	return wrap("close", unix.Close(fd))
}

// LocalAddr returns the address fd is bound to.
func LocalAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, wrap("getsockname", err)
	}
	return sockaddrnet.SockaddrToTCPAddr(sa), nil
}

// PeerAddr returns the remote address of a connected fd.
func PeerAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, wrap("getpeername", err)
	}
	return sockaddrnet.SockaddrToTCPAddr(sa), nil
}

// ListenTCP creates a non-blocking listening socket bound to addr
// ("host:port"). Every failure closes the socket before returning.
func ListenTCP(addr string, backlog int) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, fmt.Errorf("resolve %q: %w", addr, err)
	}

	family := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := Socket(family)
	if err != nil {
		return -1, err
	}

	setup := []func() error{
		func() error { return SetReuse(fd) },
		func() error { return Bind(fd, tcpAddr) },
		func() error { return Listen(fd, backlog) },
		func() error { return SetNonblock(fd) },
	}
	for _, step := range setup {
		if err := step(); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}
	return fd, nil
}

// FD adapts a raw descriptor to io.Reader and io.Writer.
type FD int

func (fd FD) Read(p []byte) (int, error) {
	return Read(int(fd), p)
}

func (fd FD) Write(p []byte) (int, error) {
	return Write(int(fd), p)
}
