package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Brownie44l1/edge-http/internal/sys"
)

var ErrServerStarted = errors.New("server already serving")

// Server is a single-threaded, edge-triggered epoll reactor.
//
// One goroutine runs Serve. It owns the listener, the epoll instance and
// the registry of live connections; nothing else touches them, so none
// of it is locked.
type Server struct {
	cfg        Config
	Logger     Logger
	metrics    *Metrics
	pool       *BufferPool
	base       Handler
	middleware []Middleware
	handler    Handler

	listenFD int
	epoll    *sys.Epoll
	addr     *net.TCPAddr
	serving  bool

	events map[int]*Event
	ready  []sys.Readiness
}

// New creates a server with recovery, logging and metrics middleware
// installed around the configured handler.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:      cfg,
		Logger:   cfg.Logger,
		metrics:  NewMetrics(),
		pool:     NewBufferPool(cfg.BufferSize),
		base:     cfg.Handler,
		listenFD: -1,
		events:   make(map[int]*Event),
		ready:    make([]sys.Readiness, 0, cfg.MaxEvents),
	}
	if s.base == nil {
		s.base = NewHTTPHandler(s.Logger)
	}
	s.middleware = []Middleware{
		RecoveryMiddleware(s.Logger),
		LoggingMiddleware(s.Logger),
		MetricsMiddleware(s.metrics),
	}
	return s
}

// Use adds middleware inside the default chain. It must be called
// before Serve.
func (s *Server) Use(mw ...Middleware) {
	s.middleware = append(s.middleware, mw...)
}

// Listen creates the listening socket and the epoll instance and
// registers the listener for edge-triggered read readiness. Failures
// here are fatal for startup.
func (s *Server) Listen() error {
	if s.epoll != nil {
		return nil
	}

	fd, err := sys.ListenTCP(s.cfg.Addr, s.cfg.Backlog)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	ep, err := sys.NewEpoll(s.cfg.MaxEvents)
	if err != nil {
		sys.Close(fd)
		return fmt.Errorf("create epoll: %w", err)
	}

	if err := ep.Add(fd, sys.ListenerEvents); err != nil {
		ep.Close()
		sys.Close(fd)
		return fmt.Errorf("register listener: %w", err)
	}

	addr, err := sys.LocalAddr(fd)
	if err != nil {
		s.Logger.Warn("could not read listener address", Field{"error", err})
	}

	s.listenFD = fd
	s.epoll = ep
	s.addr = addr
	s.Logger.Info("listening", Field{"addr", s.Addr().String()})
	return nil
}

// Addr returns the bound address, resolving port 0 to the real port.
func (s *Server) Addr() net.Addr {
	if s.addr == nil {
		return &net.TCPAddr{}
	}
	return s.addr
}

// Stats returns a snapshot of the metrics. Safe from any goroutine.
func (s *Server) Stats() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the event loop until ctx is done, then closes every
// connection, the epoll instance and the listener. It returns nil on a
// cooperative stop.
func (s *Server) Serve(ctx context.Context) error {
	if s.serving {
		return ErrServerStarted
	}
	if err := s.Listen(); err != nil {
		return err
	}
	s.serving = true
	s.handler = Chain(s.base, s.middleware...)
	defer s.teardown()

	for ctx.Err() == nil {
		ready, err := s.epoll.Wait(s.ready[:0], s.cfg.WaitTimeout)
		s.ready = ready
		if err != nil {
			switch sys.Classify(err) {
			case sys.Interrupted, sys.Transient:
				continue
			default:
				s.Logger.Error("readiness wait failed", Field{"error", err})
				return fmt.Errorf("wait: %w", err)
			}
		}

		for _, r := range ready {
			if r.FD == s.listenFD {
				s.acceptAll()
				continue
			}
			s.dispatch(r)
		}
	}

	s.Logger.Info("stopping", Field{"connections", len(s.events)})
	return nil
}

// acceptAll drains the accept queue. The listener is edge-triggered,
// so stopping early would strand pending connections until the next
// one arrives.
func (s *Server) acceptAll() {
	for {
		fd, err := sys.Accept(s.listenFD)
		if err != nil {
			switch sys.Classify(err) {
			case sys.Transient:
				return
			case sys.Interrupted:
				continue
			default:
				s.Logger.Error("accept failed", Field{"error", err})
				return
			}
		}

		if err := sys.SetNonblock(fd); err != nil {
			s.Logger.Error("set nonblock failed", Field{"fd", fd}, Field{"error", err})
			sys.Close(fd)
			continue
		}
		if err := s.epoll.Add(fd, sys.ConnEvents); err != nil {
			s.Logger.Error("register connection failed", Field{"fd", fd}, Field{"error", err})
			sys.Close(fd)
			continue
		}

		conn := NewConnection(fd, s.pool.Get())
		if peer, err := sys.PeerAddr(fd); err == nil && peer != nil {
			conn.Peer = peer.String()
		}
		s.events[fd] = NewEvent(conn, s.handler)
		s.metrics.ConnectionOpened()

		s.Logger.Debug("connection accepted", Field{"fd", fd}, Field{"peer", conn.Peer})
	}
}

func (s *Server) dispatch(r sys.Readiness) {
	ev, ok := s.events[r.FD]
	if !ok {
		// Not ours (any more); make sure epoll forgets it too.
		if err := s.epoll.Delete(r.FD); err != nil {
			s.Logger.Debug("deregister unknown fd", Field{"fd", r.FD}, Field{"error", err})
		}
		return
	}

	// Flags are only ever raised here; the handler lowers them when the
	// socket reports EAGAIN.
	if ev.IsReady() {
		if r.Readable() {
			ev.Readable = true
		}
		if r.Writable() {
			ev.Writable = true
		}
	}

	ev.Handler.OnReady(r.FD, ev)

	if !ev.IsReady() {
		s.closeConn(r.FD, ev)
	}
}

// closeConn half-closes, deregisters and closes fd and drops it from
// the registry. Each step is attempted even if an earlier one failed.
func (s *Server) closeConn(fd int, ev *Event) {
	if err := sys.Shutdown(fd); err != nil {
		s.Logger.Debug("shutdown failed", Field{"fd", fd}, Field{"error", err})
	}
	if err := s.epoll.Delete(fd); err != nil {
		s.Logger.Debug("deregister failed", Field{"fd", fd}, Field{"error", err})
	}
	if err := sys.Close(fd); err != nil {
		s.Logger.Warn("close failed", Field{"fd", fd}, Field{"error", err})
	}

	delete(s.events, fd)
	if ev.Conn != nil {
		s.pool.Put(ev.Conn.Buf)
		ev.Conn.Buf = nil
	}
	s.metrics.ConnectionClosed()
}

func (s *Server) teardown() {
	for fd, ev := range s.events {
		ev.State = Shutdown
		s.closeConn(fd, ev)
	}
	if err := s.epoll.Close(); err != nil {
		s.Logger.Warn("close epoll failed", Field{"error", err})
	}
	if err := sys.Close(s.listenFD); err != nil {
		s.Logger.Warn("close listener failed", Field{"error", err})
	}
	s.epoll = nil
	s.listenFD = -1
	s.serving = false
	s.Logger.Info("server stopped")
}
