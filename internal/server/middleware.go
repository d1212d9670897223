package server

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Brownie44l1/edge-http/internal/sys"
)

// ErrHandlerPanic marks the fault recorded for a recovered panic.
var ErrHandlerPanic = errors.New("handler panic")

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain applies middleware so the first one listed runs outermost.
func Chain(h Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// finished reports whether this invocation moved ev to Shutdown.
func finished(before EventState, ev *Event) bool {
	return before == Ready && ev.State == Shutdown
}

// RecoveryMiddleware turns a panicking handler into a shut down
// connection instead of a crashed reactor.
func RecoveryMiddleware(logger Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(fd int, ev *Event) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						Field{"error", err},
						Field{"stack", string(debug.Stack())},
						Field{"fd", fd},
					)
					if ev.Conn != nil && ev.Conn.Fault == nil {
						ev.Conn.Fault = fmt.Errorf("%w: %v", ErrHandlerPanic, err)
					}
					ev.State = Shutdown
				}
			}()

			next.OnReady(fd, ev)
		})
	}
}

// LoggingMiddleware logs every connection that reaches Shutdown.
func LoggingMiddleware(logger Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(fd int, ev *Event) {
			before := ev.State

			next.OnReady(fd, ev)

			if !finished(before, ev) || ev.Conn == nil {
				return
			}
			conn := ev.Conn
			fields := []Field{
				{"fd", fd},
				{"peer", conn.Peer},
				{"responded", conn.Responded()},
				{"duration_ms", time.Since(conn.Accepted).Milliseconds()},
			}
			if conn.writer != nil {
				fields = append(fields, Field{"status", int(conn.writer.StatusCode())})
			}
			if conn.Parser.Done() {
				fields = append(fields,
					Field{"method", conn.Parser.Header.MethodBytes(conn.Buf)},
					Field{"path", conn.Parser.Header.PathBytes(conn.Buf)},
				)
			}
			if conn.Fault != nil {
				fields = append(fields, Field{"error", conn.Fault.Error()})
			}
			logger.Info("connection finished", fields...)
		})
	}
}

// MetricsMiddleware records every connection that reaches Shutdown.
func MetricsMiddleware(metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(fd int, ev *Event) {
			before := ev.State

			next.OnReady(fd, ev)

			if !finished(before, ev) || ev.Conn == nil {
				return
			}
			metrics.RecordRequest(outcomeOf(ev.Conn), time.Since(ev.Conn.Accepted))
		})
	}
}

func outcomeOf(conn *Connection) Outcome {
	o := Outcome{Responded: conn.Responded()}
	var sysErr *sys.Error
	switch {
	case conn.Fault == nil:
	case errors.Is(conn.Fault, ErrHandlerPanic):
		o.Panicked = true
	case errors.As(conn.Fault, &sysErr):
		o.IOError = true
	default:
		o.ParseError = true
	}
	return o
}
