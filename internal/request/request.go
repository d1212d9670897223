package request

import (
	"github.com/Brownie44l1/edge-http/internal/grammar"
	"github.com/Brownie44l1/edge-http/internal/headers"
)

// Header holds the request line and header fields as spans into the
// connection buffer. The spans are only valid while that buffer is
// unmodified.
type Header struct {
	Method   grammar.Span
	Path     grammar.Span
	Protocol grammar.Span
	Fields   []headers.Field
}

// MethodBytes returns the request method as a view into buf.
func (h *Header) MethodBytes(buf []byte) []byte {
	return h.Method.Bytes(buf)
}

// PathBytes returns the request target as a view into buf.
func (h *Header) PathBytes(buf []byte) []byte {
	return h.Path.Bytes(buf)
}

// ProtocolBytes returns the protocol token as a view into buf.
func (h *Header) ProtocolBytes(buf []byte) []byte {
	return h.Protocol.Bytes(buf)
}

func (h *Header) AddField(f headers.Field) {
	h.Fields = append(h.Fields, f)
}

// FieldCount is the number of named fields, not counting the separator.
func (h *Header) FieldCount() int {
	n := 0
	for i := range h.Fields {
		if !h.Fields[i].IsSeparator {
			n++
		}
	}
	return n
}

// Get returns the first value of the named field.
func (h *Header) Get(buf []byte, key string) ([]byte, bool) {
	return headers.Get(buf, h.Fields, key)
}

func (h *Header) reset() {
	h.Method = grammar.Span{}
	h.Path = grammar.Span{}
	h.Protocol = grammar.Span{}
	h.Fields = h.Fields[:0]
}
