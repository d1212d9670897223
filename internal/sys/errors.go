package sys

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Fault is how the reactor reacts to a failed call.
type Fault int

const (
	// FaultNone means the call succeeded.
	FaultNone Fault = iota
	// Transient means no data or connection is available right now.
	// Stop the current loop and wait for the next readiness event.
	Transient
	// Interrupted means a signal interrupted the call. Retry it.
	Interrupted
	// Fatal abandons the operation.
	Fatal
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case Transient:
		return "transient"
	case Interrupted:
		return "interrupted"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a failed system call and its errno.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "no error"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Classify maps err onto a Fault.
func Classify(err error) Fault {
	switch {
	case err == nil:
		return FaultNone
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
		return Transient
	case errors.Is(err, unix.EINTR):
		return Interrupted
	default:
		return Fatal
	}
}

// Errno extracts the OS error code from err, or 0.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
