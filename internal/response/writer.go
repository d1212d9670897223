package response

import (
	"errors"
	"io"
	"strconv"
)

// StatusCode represents HTTP status codes
type StatusCode int

const StatusNoContent StatusCode = 204

// statusText maps status codes to reason phrases
var statusText = map[StatusCode]string{
	StatusNoContent: "No Content",
}

// StatusText returns the reason phrase, or "Unknown".
func StatusText(code StatusCode) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown"
}

// NoContent is the only response the server sends.
var NoContent = []byte("HTTP/1.1 204 No Content\r\n\r\n")

var (
	ErrStatusWritten   = errors.New("status line already written")
	ErrNoStatusLine    = errors.New("must write status line before ending headers")
	ErrHeadersFinished = errors.New("headers already finished")
)

// writerState tracks what's been queued so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
)

// Writer queues a response and flushes it to a possibly non-blocking
// io.Writer. A Flush that fails part way keeps the unwritten tail, so
// it can be called again once the destination is writable.
type Writer struct {
	w          io.Writer
	state      writerState
	statusCode StatusCode
	pending    []byte
	written    int
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteStatusLine queues the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return ErrStatusWritten
	}

	w.pending = append(w.pending, "HTTP/1.1 "...)
	w.pending = strconv.AppendInt(w.pending, int64(code), 10)
	w.pending = append(w.pending, ' ')
	w.pending = append(w.pending, StatusText(code)...)
	w.pending = append(w.pending, "\r\n"...)

	w.statusCode = code
	w.state = stateStatusWritten
	return nil
}

// EndHeaders queues the blank line that ends the header section.
func (w *Writer) EndHeaders() error {
	switch w.state {
	case stateStart:
		return ErrNoStatusLine
	case stateHeadersWritten:
		return ErrHeadersFinished
	}
	w.pending = append(w.pending, "\r\n"...)
	w.state = stateHeadersWritten
	return nil
}

// NoContentResponse queues a bodiless 204 and flushes it.
func (w *Writer) NoContentResponse() error {
	if err := w.WriteStatusLine(StatusNoContent); err != nil {
		return err
	}
	if err := w.EndHeaders(); err != nil {
		return err
	}
	return w.Flush()
}

// Flush writes whatever is still pending. It returns the destination's
// error unchanged so callers can tell a retryable condition apart.
func (w *Writer) Flush() error {
	for w.written < len(w.pending) {
		n, err := w.w.Write(w.pending[w.written:])
		if n > 0 {
			w.written += n
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// Done reports whether everything queued has been written.
func (w *Writer) Done() bool {
	return w.state == stateHeadersWritten && w.written == len(w.pending)
}

// Pending is the number of queued bytes not yet written.
func (w *Writer) Pending() int {
	return len(w.pending) - w.written
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}
