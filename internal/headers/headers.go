package headers

import (
	"bytes"
	"errors"

	"github.com/Brownie44l1/edge-http/internal/grammar"
)

var ErrMalformedField = errors.New("malformed header field")

// FieldState is the continuation point of the header field parser.
type FieldState int

const (
	FieldStart FieldState = iota
	FieldName
	FieldOWS1
	FieldValue
	FieldOWS2
	FieldEnd
)

func (s FieldState) String() string {
	switch s {
	case FieldStart:
		return "Start"
	case FieldName:
		return "FieldName"
	case FieldOWS1:
		return "OWS1"
	case FieldValue:
		return "FieldValue"
	case FieldOWS2:
		return "OWS2"
	case FieldEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// Field is one parsed header line. IsSeparator marks the blank line
// that ends the header section; Name and Value are unused then.
type Field struct {
	IsSeparator bool
	Name        grammar.Span
	Value       grammar.Span

	// set while the value parser sits on a whitespace run
	inWhitespace bool
}

// NameBytes returns the field name as a view into buf.
func (f *Field) NameBytes(buf []byte) []byte {
	return f.Name.Bytes(buf)
}

// ValueBytes returns the trimmed field value as a view into buf.
func (f *Field) ValueBytes(buf []byte) []byte {
	return f.Value.Bytes(buf)
}

// ParseField parses one header line starting in state st.
//
// field-line = field-name ":" OWS field-value OWS ( CRLF / LF )
//
// It returns Complete when the line (or the blank separator line) is
// done, Again with the state to resume from when the cursor runs dry,
// and Error on anything outside the grammar.
func ParseField(c *grammar.Cursor, f *Field, st FieldState) (FieldState, grammar.Result) {
	for {
		var r grammar.Result
		switch st {
		case FieldStart:
			st, r = parseStart(c, f)
		case FieldName:
			st, r = parseName(c, f)
		case FieldOWS1:
			st, r = parseOWS1(c, f)
		case FieldValue:
			st, r = parseValue(c, f)
		case FieldOWS2:
			st, r = parseOWS2(c)
		case FieldEnd:
			st, r = parseEnd(c)
		default:
			return st, grammar.Error
		}
		if r != grammar.Ok {
			return st, r
		}
	}
}

func parseStart(c *grammar.Cursor, f *Field) (FieldState, grammar.Result) {
	b, rr := c.Next()
	switch rr {
	case grammar.ReadAgain:
		return FieldStart, grammar.Again
	case grammar.ReadErr:
		return FieldStart, grammar.Error
	}

	switch {
	case b == '\r':
		f.IsSeparator = true
		return FieldEnd, grammar.Ok
	case b == '\n':
		f.IsSeparator = true
		return FieldStart, grammar.Complete
	case grammar.IsTChar(b):
		f.Name.Start = c.Pos() - 1
		return FieldName, grammar.Ok
	default:
		return FieldStart, grammar.Error
	}
}

func parseName(c *grammar.Cursor, f *Field) (FieldState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return FieldName, grammar.Again
		case grammar.ReadErr:
			return FieldName, grammar.Error
		}

		if b == ':' {
			f.Name.End = c.Pos() - 1
			return FieldOWS1, grammar.Ok
		}
		if !grammar.IsTChar(b) {
			return FieldName, grammar.Error
		}
	}
}

func parseOWS1(c *grammar.Cursor, f *Field) (FieldState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return FieldOWS1, grammar.Again
		case grammar.ReadErr:
			return FieldOWS1, grammar.Error
		}

		if grammar.IsWhitespace(b) {
			continue
		}
		if !grammar.IsVChar(b) {
			return FieldOWS1, grammar.Error
		}
		f.Value.Start = c.Pos() - 1
		f.Value.End = c.Pos()
		return FieldValue, grammar.Ok
	}
}

// parseValue keeps Value.End on the last visible byte, so a trailing
// whitespace run never enters the span.
func parseValue(c *grammar.Cursor, f *Field) (FieldState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return FieldValue, grammar.Again
		case grammar.ReadErr:
			return FieldValue, grammar.Error
		}

		switch {
		case grammar.IsVChar(b):
			f.inWhitespace = false
			f.Value.End = c.Pos()
		case grammar.IsWhitespace(b):
			if f.inWhitespace {
				f.inWhitespace = false
				return FieldOWS2, grammar.Ok
			}
			f.inWhitespace = true
		case b == '\r':
			f.inWhitespace = false
			return FieldEnd, grammar.Ok
		case b == '\n':
			f.inWhitespace = false
			return FieldStart, grammar.Complete
		default:
			return FieldValue, grammar.Error
		}
	}
}

func parseOWS2(c *grammar.Cursor) (FieldState, grammar.Result) {
	for {
		b, rr := c.Next()
		switch rr {
		case grammar.ReadAgain:
			return FieldOWS2, grammar.Again
		case grammar.ReadErr:
			return FieldOWS2, grammar.Error
		}

		switch {
		case grammar.IsWhitespace(b):
			continue
		case b == '\r':
			return FieldEnd, grammar.Ok
		case b == '\n':
			return FieldStart, grammar.Complete
		default:
			return FieldOWS2, grammar.Error
		}
	}
}

func parseEnd(c *grammar.Cursor) (FieldState, grammar.Result) {
	b, rr := c.Next()
	switch rr {
	case grammar.ReadAgain:
		return FieldEnd, grammar.Again
	case grammar.ReadErr:
		return FieldEnd, grammar.Error
	}
	if b != '\n' {
		return FieldEnd, grammar.Error
	}
	return FieldStart, grammar.Complete
}

// Get returns the value of the first field named key, compared
// case-insensitively. The returned slice aliases buf.
func Get(buf []byte, fields []Field, key string) ([]byte, bool) {
	for i := range fields {
		f := &fields[i]
		if f.IsSeparator {
			continue
		}
		if bytes.EqualFold(f.NameBytes(buf), []byte(key)) {
			return f.ValueBytes(buf), true
		}
	}
	return nil, false
}

// GetAll returns every value for key in arrival order.
func GetAll(buf []byte, fields []Field, key string) [][]byte {
	var values [][]byte
	for i := range fields {
		f := &fields[i]
		if f.IsSeparator {
			continue
		}
		if bytes.EqualFold(f.NameBytes(buf), []byte(key)) {
			values = append(values, f.ValueBytes(buf))
		}
	}
	return values
}
