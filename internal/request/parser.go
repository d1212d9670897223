package request

import (
	"errors"
	"fmt"
	"io"

	"github.com/Brownie44l1/edge-http/internal/grammar"
	"github.com/Brownie44l1/edge-http/internal/headers"
)

// Size limits
const (
	DefaultMaxHeaderBytes = 1024
	maxHeaderLines        = 100
)

var (
	ErrHeaderTooLarge = errors.New("headers too large")
	ErrTooManyHeaders = errors.New("too many header lines")
	ErrUnexpectedEOF  = errors.New("unexpected EOF")
)

// parserState represents which element the parser is working on
type parserState int

const (
	stateRequestLine parserState = iota
	stateHeaders
	stateDone
	stateError
)

// Parser parses a request line and header section across any number
// of calls. The buffer handed to Parse must be append-only between
// calls: the parser keeps the offset it stopped at and the spans it has
// recorded, and both index into that buffer.
type Parser struct {
	state  parserState
	line   LineState
	field  headers.FieldState
	cur    headers.Field
	offset int
	err    error

	Header Header
}

// Parse resumes parsing at the saved offset of buf. It returns Again
// when buf ends before the header section does, Complete once the blank
// line has been consumed, and Error on a grammar violation. Complete and
// Error are sticky.
func (p *Parser) Parse(buf []byte) grammar.Result {
	switch p.state {
	case stateDone:
		return grammar.Complete
	case stateError:
		return grammar.Error
	}

	c := grammar.NewCursor(buf, p.offset)
	defer func() { p.offset = c.Pos() }()

	if p.state == stateRequestLine {
		st, r := ParseRequestLine(c, &p.Header, p.line)
		p.line = st
		switch r {
		case grammar.Again:
			return grammar.Again
		case grammar.Error:
			if st == LineProtocol || st == LineEnd {
				return p.fail(fmt.Errorf("%w: %w", ErrMalformedRequestLine, ErrUnsupportedVersion))
			}
			return p.fail(ErrMalformedRequestLine)
		}
		p.state = stateHeaders
	}

	for {
		st, r := headers.ParseField(c, &p.cur, p.field)
		p.field = st
		switch r {
		case grammar.Again:
			return grammar.Again
		case grammar.Error:
			return p.fail(fmt.Errorf("%w (state %s)", headers.ErrMalformedField, st))
		}

		f := p.cur
		p.cur = headers.Field{}
		p.field = headers.FieldStart
		p.Header.AddField(f)

		if f.IsSeparator {
			p.state = stateDone
			return grammar.Complete
		}
		if len(p.Header.Fields) > maxHeaderLines {
			return p.fail(ErrTooManyHeaders)
		}
	}
}

func (p *Parser) fail(err error) grammar.Result {
	p.state = stateError
	p.err = err
	return grammar.Error
}

// Abort marks the parse as failed with err, e.g. when the buffer
// filled up before the header section ended.
func (p *Parser) Abort(err error) {
	if p.state != stateDone {
		p.fail(err)
	}
}

// Err describes why Parse returned Error.
func (p *Parser) Err() error {
	return p.err
}

// Offset is the buffer position the next Parse call resumes from.
func (p *Parser) Offset() int {
	return p.offset
}

func (p *Parser) Done() bool {
	return p.state == stateDone
}

// Reset prepares the parser for a new buffer.
func (p *Parser) Reset() {
	p.state = stateRequestLine
	p.line = LineStart
	p.field = headers.FieldStart
	p.cur = headers.Field{}
	p.offset = 0
	p.err = nil
	p.Header.reset()
}

// ReadHeader reads from r until a full request line and header section
// have arrived. It returns the buffer the spans in the Header point into.
func ReadHeader(r io.Reader, maxHeaderBytes int) ([]byte, *Header, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}

	buf := make([]byte, 0, maxHeaderBytes)
	p := &Parser{}

	for {
		if len(buf) == cap(buf) {
			return buf, &p.Header, ErrHeaderTooLarge
		}

		n, err := r.Read(buf[len(buf):cap(buf)])
		if n > 0 {
			buf = buf[:len(buf)+n]
			switch p.Parse(buf) {
			case grammar.Complete:
				return buf, &p.Header, nil
			case grammar.Error:
				return buf, &p.Header, p.Err()
			}
		}

		if err != nil {
			if err == io.EOF {
				return buf, &p.Header, ErrUnexpectedEOF
			}
			return buf, &p.Header, fmt.Errorf("read error: %w", err)
		}
	}
}
