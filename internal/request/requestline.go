package request

import (
	"errors"

	"github.com/Brownie44l1/edge-http/internal/grammar"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
)

// LineState is the continuation point of the request line parser.
type LineState int

const (
	LineStart LineState = iota
	LineMethod
	LinePath
	LineProtocol
	LineEnd
	// LineEndLF waits for the LF after a CR that ended the line.
	LineEndLF
)

func (s LineState) String() string {
	switch s {
	case LineStart:
		return "Start"
	case LineMethod:
		return "Method"
	case LinePath:
		return "Path"
	case LineProtocol:
		return "Protocol"
	case LineEnd:
		return "End"
	case LineEndLF:
		return "EndLF"
	default:
		return "Unknown"
	}
}

var protocolHTTP11 = []byte("HTTP/1.1")

// ParseRequestLine parses: METHOD SP PATH SP HTTP/1.1 (CRLF | LF)
//
// Parsing starts in st and stops at the first step that does not
// return Ok. On Again the returned state is where to resume once the
// buffer has grown; the cursor position must be carried along with it.
func ParseRequestLine(c *grammar.Cursor, h *Header, st LineState) (LineState, grammar.Result) {
	for {
		var r grammar.Result
		switch st {
		case LineStart:
			st, r = parseStart(c, h)
		case LineMethod:
			st, r = parseMethod(c, h)
		case LinePath:
			st, r = parsePath(c, h)
		case LineProtocol:
			st, r = parseProtocol(c, h)
		case LineEnd:
			st, r = parseEnd(c)
		case LineEndLF:
			st, r = parseEndLF(c)
		default:
			return st, grammar.Error
		}
		if r != grammar.Ok {
			return st, r
		}
	}
}

// parseStart skips stray CR/LF left over before the request line.
func parseStart(c *grammar.Cursor, h *Header) (LineState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return LineStart, grammar.Again
		case grammar.ReadErr:
			return LineStart, grammar.Error
		}
		if b == '\r' || b == '\n' {
			continue
		}
		// A space here would end an empty method.
		if b == ' ' {
			return LineStart, grammar.Error
		}
		h.Method.Start = c.Pos() - 1
		return LineMethod, grammar.Ok
	}
}

func parseMethod(c *grammar.Cursor, h *Header) (LineState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return LineMethod, grammar.Again
		case grammar.ReadErr:
			return LineMethod, grammar.Error
		}
		if b == ' ' {
			h.Method.End = c.Pos() - 1
			h.Path.Start = c.Pos()
			return LinePath, grammar.Ok
		}
	}
}

func parsePath(c *grammar.Cursor, h *Header) (LineState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return LinePath, grammar.Again
		case grammar.ReadErr:
			return LinePath, grammar.Error
		}
		if b == ' ' {
			if c.Pos()-1 == h.Path.Start {
				// a second space where the path should begin
				return LinePath, grammar.Error
			}
			h.Path.End = c.Pos() - 1
			h.Protocol.Start = c.Pos()
			return LineProtocol, grammar.Ok
		}
		if !grammar.IsGraphic(b) {
			return LinePath, grammar.Error
		}
	}
}

func parseProtocol(c *grammar.Cursor, h *Header) (LineState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return LineProtocol, grammar.Again
		case grammar.ReadErr:
			return LineProtocol, grammar.Error
		}

		offset := c.Pos() - 1 - h.Protocol.Start
		if offset >= len(protocolHTTP11) || b != protocolHTTP11[offset] {
			return LineProtocol, grammar.Error
		}
		if offset == len(protocolHTTP11)-1 {
			h.Protocol.End = c.Pos()
			return LineEnd, grammar.Ok
		}
	}
}

func parseEnd(c *grammar.Cursor) (LineState, grammar.Result) {
	b, rr := c.Next()
	switch rr {
	case grammar.ReadAgain:
		return LineEnd, grammar.Again
	case grammar.ReadErr:
		return LineEnd, grammar.Error
	}
	switch b {
	case '\n':
		return LineEnd, grammar.Complete
	case '\r':
		return LineEndLF, grammar.Ok
	default:
		return LineEnd, grammar.Error
	}
}

func parseEndLF(c *grammar.Cursor) (LineState, grammar.Result) {
	b, rr := c.Next()
	switch rr {
	case grammar.ReadAgain:
		return LineEndLF, grammar.Again
	case grammar.ReadErr:
		return LineEndLF, grammar.Error
	}
	if b != '\n' {
		return LineEndLF, grammar.Error
	}
	return LineEndLF, grammar.Complete
}
