package server

import (
	"github.com/Brownie44l1/edge-http/internal/grammar"
	"github.com/Brownie44l1/edge-http/internal/request"
	"github.com/Brownie44l1/edge-http/internal/response"
	"github.com/Brownie44l1/edge-http/internal/sys"
)

// HTTPHandler reads one request header section and answers it with
// the fixed 204 response.
//
// It only acts once the socket is both readable and writable. Reads
// drain the socket into the connection buffer, feeding the parser after
// every read. A finished or rejected header section moves the
// connection to writing; a peer that disappears first gets no response.
type HTTPHandler struct {
	Logger Logger
}

func NewHTTPHandler(logger Logger) *HTTPHandler {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &HTTPHandler{Logger: logger}
}

func (h *HTTPHandler) OnReady(fd int, ev *Event) {
	if !ev.IsReady() {
		return
	}

	conn := ev.Conn
	if conn == nil {
		h.Logger.Warn("event has no connection", Field{"fd", fd})
		ev.State = Shutdown
		return
	}

	if !conn.Writing() {
		if !(ev.Readable && ev.Writable) {
			return
		}
		if !h.read(fd, ev) {
			return
		}
	} else if !ev.Writable {
		return
	}

	h.write(fd, ev)
}

// read drains the socket into the connection buffer. It returns true
// when the connection should move on to writing the response.
func (h *HTTPHandler) read(fd int, ev *Event) bool {
	conn := ev.Conn

	for {
		if len(conn.Buf) == cap(conn.Buf) {
			conn.Parser.Abort(request.ErrHeaderTooLarge)
			conn.Fault = request.ErrHeaderTooLarge
			h.Logger.Warn("request rejected",
				Field{"fd", fd},
				Field{"peer", conn.Peer},
				Field{"error", conn.Fault},
			)
			return true
		}

		n, err := sys.Read(fd, conn.Buf[len(conn.Buf):cap(conn.Buf)])
		if err != nil {
			switch sys.Classify(err) {
			case sys.Transient:
				ev.Readable = false
				return false
			case sys.Interrupted:
				continue
			default:
				conn.Fault = err
				h.Logger.Error("read failed", Field{"fd", fd}, Field{"error", err})
				ev.State = Shutdown
				return false
			}
		}

		if n == 0 {
			h.Logger.Debug("peer closed before request completed",
				Field{"fd", fd},
				Field{"buffered", len(conn.Buf)},
			)
			ev.State = Shutdown
			return false
		}

		conn.Buf = conn.Buf[:len(conn.Buf)+n]

		switch conn.Parser.Parse(conn.Buf) {
		case grammar.Complete:
			hdr := &conn.Parser.Header
			host, _ := hdr.Get(conn.Buf, "Host")
			h.Logger.Debug("request parsed",
				Field{"fd", fd},
				Field{"method", hdr.MethodBytes(conn.Buf)},
				Field{"path", hdr.PathBytes(conn.Buf)},
				Field{"host", host},
				Field{"fields", hdr.FieldCount()},
			)
			return true
		case grammar.Error:
			conn.Fault = conn.Parser.Err()
			h.Logger.Warn("request rejected",
				Field{"fd", fd},
				Field{"peer", conn.Peer},
				Field{"error", conn.Fault},
			)
			return true
		}
	}
}

func (h *HTTPHandler) write(fd int, ev *Event) {
	conn := ev.Conn

	var err error
	if conn.writer == nil {
		conn.writer = response.NewWriter(sys.FD(fd))
		err = conn.writer.NoContentResponse()
	} else {
		err = conn.writer.Flush()
	}
	for sys.Classify(err) == sys.Interrupted {
		err = conn.writer.Flush()
	}

	switch sys.Classify(err) {
	case sys.FaultNone:
		ev.State = Shutdown
	case sys.Transient:
		ev.Writable = false
		h.Logger.Debug("write would block", Field{"fd", fd}, Field{"pending", conn.writer.Pending()})
	default:
		conn.Fault = err
		h.Logger.Error("write failed",
			Field{"fd", fd},
			Field{"pending", conn.writer.Pending()},
			Field{"error", err},
		)
		ev.State = Shutdown
	}
}
