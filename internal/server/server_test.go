//go:build linux

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Brownie44l1/edge-http/internal/request"
	"github.com/Brownie44l1/edge-http/internal/response"
	"github.com/Brownie44l1/edge-http/internal/sys"
)

// startServer runs a server on an ephemeral loopback port. The returned
// stop function cancels it and waits for Serve to return.
func startServer(t *testing.T) (*Server, func() error) {
	t.Helper()

	s := New(Config{
		Addr:        "127.0.0.1:0",
		Logger:      &NullLogger{},
		WaitTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var once sync.Once
	var serveErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case serveErr = <-done:
			case <-time.After(2 * time.Second):
				serveErr = errors.New("serve did not return after cancel")
			}
		})
		return serveErr
	}
	t.Cleanup(func() { stop() })
	return s, stop
}

func roundTrip(t *testing.T, addr string, write func(net.Conn)) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	write(conn)

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(got)
}

func TestServerRespondsNoContent(t *testing.T) {
	s, stop := startServer(t)

	got := roundTrip(t, s.Addr().String(), func(c net.Conn) {
		_, err := c.Write([]byte("GET /index.html HTTP/1.1\r\nHost: localhost:8080\r\n\r\n"))
		require.NoError(t, err)
	})
	assert.Equal(t, string(response.NoContent), got)

	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.RequestsTotal == 1 && st.ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)

	st := s.Stats()
	assert.Equal(t, int64(1), st.ConnectionsAccepted)
	assert.Equal(t, int64(1), st.ResponsesWritten)
	assert.Equal(t, int64(0), st.ParseErrors)

	assert.NoError(t, stop())
}

func TestServerSlowClient(t *testing.T) {
	s, _ := startServer(t)

	req := "GET /index.html HTTP/1.1\r\nHost: localhost:8080\r\nAccept: */*\r\n\r\n"
	got := roundTrip(t, s.Addr().String(), func(c net.Conn) {
		for i := 0; i < len(req); i++ {
			_, err := c.Write([]byte{req[i]})
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}
	})
	assert.Equal(t, string(response.NoContent), got)
}

func TestServerMalformedRequest(t *testing.T) {
	s, _ := startServer(t)

	got := roundTrip(t, s.Addr().String(), func(c net.Conn) {
		_, err := c.Write([]byte("GET /index.html HTTP/2.0\r\n\r\n"))
		require.NoError(t, err)
	})
	assert.Equal(t, string(response.NoContent), got)

	assert.Eventually(t, func() bool {
		return s.Stats().ParseErrors == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServerClientHangsUp(t *testing.T) {
	s, _ := startServer(t)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET /ind"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, got)
	conn.Close()

	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.RequestsTotal == 1 && st.ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), s.Stats().ResponsesWritten)
}

func TestServerManyClients(t *testing.T) {
	s, _ := startServer(t)

	const clients = 20
	var wg sync.WaitGroup
	results := make([]string, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", s.Addr().String())
			if err != nil {
				results[i] = err.Error()
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(2 * time.Second))
			if _, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
				results[i] = err.Error()
				return
			}
			got, err := io.ReadAll(conn)
			if err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = string(got)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, string(response.NoContent), got, "client %d", i)
	}
	assert.Eventually(t, func() bool {
		return s.Stats().ResponsesWritten == clients
	}, time.Second, 10*time.Millisecond)
}

func TestServerStopsOnCancel(t *testing.T) {
	s, stop := startServer(t)
	addr := s.Addr().String()

	// An idle connection is still open when the server stops.
	idle, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer idle.Close()
	assert.Eventually(t, func() bool {
		return s.Stats().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, stop())

	require.NoError(t, idle.SetDeadline(time.Now().Add(2*time.Second)))
	got, err := io.ReadAll(idle)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int64(0), s.Stats().ActiveConnections)

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err, "listener is closed")
}

func TestServerListenError(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:99999", Logger: &NullLogger{}})
	err := s.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:99999")

	err = s.ListenAndServe(context.Background())
	assert.Error(t, err)
}

func TestServerAddrBeforeListen(t *testing.T) {
	s := New(Config{Logger: &NullLogger{}})
	addr, ok := s.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.Nil(t, addr.IP)
	assert.Equal(t, 0, addr.Port)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:9000"}.withDefaults()
	def := DefaultConfig()

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, def.Backlog, cfg.Backlog)
	assert.Equal(t, def.BufferSize, cfg.BufferSize)
	assert.Equal(t, request.DefaultMaxHeaderBytes, cfg.BufferSize)
	assert.Equal(t, def.MaxEvents, cfg.MaxEvents)
	assert.Equal(t, def.WaitTimeout, cfg.WaitTimeout)
	assert.NotNil(t, cfg.Logger)
}

func TestDispatchUnknownDescriptor(t *testing.T) {
	ep, err := sys.NewEpoll(4)
	require.NoError(t, err)
	defer ep.Close()

	s := New(Config{Logger: &NullLogger{}})
	s.epoll = ep

	// Nothing registered under this fd: dispatch must not panic.
	s.dispatch(sys.Readiness{FD: 12345, Events: unix.EPOLLIN})
	assert.Empty(t, s.events)
}

func TestDispatchClosesFinishedConnection(t *testing.T) {
	srv, cli := socketPair(t)

	ep, err := sys.NewEpoll(4)
	require.NoError(t, err)
	defer ep.Close()

	s := New(Config{Logger: &NullLogger{}})
	s.epoll = ep
	s.handler = Chain(s.base, s.middleware...)

	// The server closes what it dispatches, so hand it a duplicate.
	dup, err := unix.Dup(srv)
	require.NoError(t, err)
	require.NoError(t, ep.Add(dup, sys.ConnEvents))

	conn := NewConnection(dup, s.pool.Get())
	s.events[dup] = NewEvent(conn, s.handler)
	s.metrics.ConnectionOpened()

	send(t, cli, "GET / HTTP/1.1\r\n\r\n")
	s.dispatch(sys.Readiness{FD: dup, Events: unix.EPOLLIN | unix.EPOLLOUT})

	assert.NotContains(t, s.events, dup)
	assert.Equal(t, string(response.NoContent), received(t, cli))
	assert.Equal(t, int64(0), s.Stats().ActiveConnections)
	assert.Equal(t, int64(1), s.Stats().ResponsesWritten)

	// The descriptor is gone.
	_, err = unix.FcntlInt(uintptr(dup), unix.F_GETFD, 0)
	assert.ErrorIs(t, err, unix.EBADF)
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingLogger) record(level, msg string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	b.WriteString(level + " " + msg)
	for _, f := range fields {
		b.WriteString(" " + f.Key)
	}
	r.entries = append(r.entries, b.String())
}

func (r *recordingLogger) Debug(msg string, fields ...Field) { r.record("debug", msg, fields) }
func (r *recordingLogger) Info(msg string, fields ...Field)  { r.record("info", msg, fields) }
func (r *recordingLogger) Error(msg string, fields ...Field) { r.record("error", msg, fields) }
func (r *recordingLogger) Warn(msg string, fields ...Field)  { r.record("warn", msg, fields) }

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(fd int, ev *Event) {
				order = append(order, name)
				next.OnReady(fd, ev)
			})
		}
	}
	base := HandlerFunc(func(fd int, ev *Event) { order = append(order, "handler") })

	h := Chain(base, mark("first"), mark("second"))
	h.OnReady(0, NewEvent(nil, nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := &recordingLogger{}
	panicky := HandlerFunc(func(fd int, ev *Event) { panic("boom") })
	h := RecoveryMiddleware(logger)(panicky)

	ev := NewEvent(NewConnection(7, make([]byte, 0, 8)), h)
	assert.NotPanics(t, func() { h.OnReady(7, ev) })

	assert.Equal(t, Shutdown, ev.State)
	require.Error(t, ev.Conn.Fault)
	assert.Contains(t, ev.Conn.Fault.Error(), "boom")
	assert.ErrorIs(t, ev.Conn.Fault, ErrHandlerPanic)
	assert.Equal(t, Outcome{Panicked: true}, outcomeOf(ev.Conn))
	require.Len(t, logger.entries, 1)
	assert.Contains(t, logger.entries[0], "panic recovered")
}

func TestLoggingMiddleware(t *testing.T) {
	logger := &recordingLogger{}
	ev := NewEvent(NewConnection(7, make([]byte, 0, 8)), nil)

	stay := LoggingMiddleware(logger)(HandlerFunc(func(fd int, ev *Event) {}))
	stay.OnReady(7, ev)
	assert.Empty(t, logger.entries, "nothing logged while the connection is live")

	finish := LoggingMiddleware(logger)(HandlerFunc(func(fd int, ev *Event) {
		ev.Conn.Fault = request.ErrHeaderTooLarge
		ev.State = Shutdown
	}))
	finish.OnReady(7, ev)
	require.Len(t, logger.entries, 1)
	assert.Contains(t, logger.entries[0], "info connection finished")
	assert.Contains(t, logger.entries[0], "error")

	// Already shut down: no second entry.
	finish.OnReady(7, ev)
	assert.Len(t, logger.entries, 1)
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name  string
		fault error
		check func(t *testing.T, s MetricsSnapshot)
	}{
		{
			name:  "parse error",
			fault: request.ErrMalformedRequestLine,
			check: func(t *testing.T, s MetricsSnapshot) {
				assert.Equal(t, int64(1), s.ParseErrors)
				assert.Equal(t, int64(0), s.IOErrors)
			},
		},
		{
			name:  "io error",
			fault: &sys.Error{Op: "write", Err: unix.EPIPE},
			check: func(t *testing.T, s MetricsSnapshot) {
				assert.Equal(t, int64(0), s.ParseErrors)
				assert.Equal(t, int64(1), s.IOErrors)
			},
		},
		{
			name:  "panic",
			fault: fmt.Errorf("%w: %v", ErrHandlerPanic, "boom"),
			check: func(t *testing.T, s MetricsSnapshot) {
				assert.Equal(t, int64(0), s.ParseErrors, "panics are not grammar faults")
				assert.Equal(t, int64(0), s.IOErrors)
				assert.Equal(t, int64(1), s.Panics)
			},
		},
		{
			name: "clean",
			check: func(t *testing.T, s MetricsSnapshot) {
				assert.Equal(t, int64(0), s.ParseErrors)
				assert.Equal(t, int64(0), s.IOErrors)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			h := MetricsMiddleware(m)(HandlerFunc(func(fd int, ev *Event) {
				ev.Conn.Fault = tt.fault
				ev.State = Shutdown
			}))
			h.OnReady(7, NewEvent(NewConnection(7, make([]byte, 0, 8)), nil))

			s := m.Snapshot()
			assert.Equal(t, int64(1), s.RequestsTotal)
			assert.Equal(t, int64(0), s.ResponsesWritten)
			tt.check(t, s)
		})
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.AverageLatency())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordRequest(Outcome{Responded: true}, 10*time.Millisecond)
	m.RecordRequest(Outcome{ParseError: true, Responded: true}, 30*time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.ConnectionsAccepted)
	assert.Equal(t, int64(1), s.ActiveConnections)
	assert.Equal(t, int64(2), s.RequestsTotal)
	assert.Equal(t, int64(2), s.ResponsesWritten)
	assert.Equal(t, int64(1), s.ParseErrors)
	assert.Equal(t, 20*time.Millisecond, s.AverageLatency)
}

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool(64)
	assert.Equal(t, 64, bp.Size())

	buf := bp.Get()
	assert.Equal(t, 0, len(buf))
	assert.Equal(t, 64, cap(buf))

	buf = append(buf, "GET / HTTP/1.1"...)
	bp.Put(buf)

	again := bp.Get()
	assert.Equal(t, 0, len(again), "returned buffers come back empty")
	assert.Equal(t, 64, cap(again))

	// Foreign capacities are dropped rather than pooled.
	bp.Put(make([]byte, 0, 8))
	assert.Equal(t, 64, cap(bp.Get()))
}

func TestDefaultLogger(t *testing.T) {
	var out bytes.Buffer
	l := NewDefaultLogger()
	l.SetOutput(&out)

	l.Debug("hidden")
	assert.Empty(t, out.String(), "debug is off by default")

	require.NoError(t, l.SetLevel("debug"))
	l.Debug("request parsed", Field{"method", []byte("GET")}, Field{"fd", 5})
	assert.Contains(t, out.String(), "request parsed")
	assert.Contains(t, out.String(), "method=GET")
	assert.Contains(t, out.String(), "fd=5")

	out.Reset()
	l.Warn("long", Field{"path", strings.Repeat("a", 150)})
	assert.Contains(t, out.String(), "...[truncated]")
	assert.NotContains(t, out.String(), strings.Repeat("a", 101))

	assert.Error(t, l.SetLevel("loud"))
}

func TestLoggingMiddlewareReportsStatus(t *testing.T) {
	srv, cli := socketPair(t)
	logger := &recordingLogger{}

	h := LoggingMiddleware(logger)(NewHTTPHandler(&NullLogger{}))
	ev := NewEvent(NewConnection(srv, make([]byte, 0, 64)), h)
	ev.Readable = true
	ev.Writable = true

	send(t, cli, "GET / HTTP/1.1\r\n\r\n")
	h.OnReady(srv, ev)

	require.Equal(t, Shutdown, ev.State)
	require.Len(t, logger.entries, 1)
	assert.Contains(t, logger.entries[0], " status")
	assert.Contains(t, logger.entries[0], " method path")
}
