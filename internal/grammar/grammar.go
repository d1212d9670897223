package grammar

// Result is the outcome of one parse step.
type Result int

const (
	// Again means the input ran out before the element finished.
	// The caller resumes in the returned state once more bytes arrive.
	Again Result = iota
	// Ok means a sub-element finished and parsing advances to the returned state.
	Ok
	// Complete means the whole element finished.
	Complete
	// Error is a grammar violation. It is terminal for the element.
	Error
)

func (r Result) String() string {
	switch r {
	case Again:
		return "Again"
	case Ok:
		return "Ok"
	case Complete:
		return "Complete"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Byte classes from RFC 9110.

// IsTChar reports whether b is a token character:
// ALPHA / DIGIT / "!" / "#" / "$" / "%" / "&" / "'" / "*" /
// "+" / "-" / "." / "^" / "_" / "`" / "|" / "~"
func IsTChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}

// IsVChar reports whether b is a visible (printing) US-ASCII character.
func IsVChar(b byte) bool {
	return b >= 0x21 && b <= 0x7e
}

// IsGraphic is the check applied to request-target bytes.
func IsGraphic(b byte) bool {
	return IsVChar(b)
}

// IsWhitespace reports SP or HTAB, the bytes allowed in OWS.
func IsWhitespace(b byte) bool {
	return b == ' ' || b == '\t'
}

// Span is a [Start,End) byte range into a connection buffer.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Bytes returns a view of buf covered by the span. It does not copy.
func (s Span) Bytes(buf []byte) []byte {
	if s.Start < 0 || s.End < s.Start || s.End > len(buf) {
		return nil
	}
	return buf[s.Start:s.End]
}

// String copies the spanned bytes out of buf.
func (s Span) String(buf []byte) string {
	return string(s.Bytes(buf))
}
