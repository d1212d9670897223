package server

import (
	"time"

	"github.com/Brownie44l1/edge-http/internal/request"
	"github.com/Brownie44l1/edge-http/internal/response"
)

// EventState is the lifecycle state of an Event.
type EventState int

const (
	Ready EventState = iota
	// Shutdown is terminal: the reactor tears the descriptor down.
	Shutdown
)

func (s EventState) String() string {
	if s == Ready {
		return "Ready"
	}
	return "Shutdown"
}

// Connection is the per-socket state owned by one Event.
//
// Buf only ever grows up to its capacity, so the spans recorded by
// Parser stay valid for the connection's lifetime.
type Connection struct {
	FD       int
	Buf      []byte
	Parser   request.Parser
	Peer     string
	Accepted time.Time

	// Fault is the error that ended the read or write phase early.
	Fault error

	writer *response.Writer
}

func NewConnection(fd int, buf []byte) *Connection {
	return &Connection{
		FD:       fd,
		Buf:      buf[:0],
		Accepted: time.Now(),
	}
}

// Responded reports whether the full response reached the socket.
func (c *Connection) Responded() bool {
	return c.writer != nil && c.writer.Done()
}

// Writing reports whether the connection has moved on to writing.
func (c *Connection) Writing() bool {
	return c.writer != nil
}

// Handler reacts to readiness of one descriptor.
type Handler interface {
	OnReady(fd int, ev *Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(fd int, ev *Event)

func (f HandlerFunc) OnReady(fd int, ev *Event) {
	f(fd, ev)
}

// Event wraps a Connection with readiness flags, a lifecycle state and
// the handler chosen at accept time.
type Event struct {
	Readable bool
	Writable bool
	State    EventState
	Handler  Handler
	Conn     *Connection
}

// NewEvent returns a Ready event with both flags cleared.
func NewEvent(conn *Connection, h Handler) *Event {
	return &Event{
		State:   Ready,
		Handler: h,
		Conn:    conn,
	}
}

func (e *Event) IsReady() bool {
	return e.State == Ready
}
