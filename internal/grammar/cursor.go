package grammar

// ReadResult is the outcome of reading a single byte from a Cursor.
type ReadResult int

const (
	ReadOk ReadResult = iota
	ReadAgain
	ReadErr
)

// Cursor walks a byte slice one byte at a time. The position is an
// absolute offset into the slice, so spans recorded from it stay valid
// as long as the slice is only appended to.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor over buf starting at pos.
func NewCursor(buf []byte, pos int) *Cursor {
	return &Cursor{buf: buf, pos: pos}
}

// Next reads one byte and advances.
// ReadAgain means the cursor is at the end of the available bytes.
func (c *Cursor) Next() (byte, ReadResult) {
	if c.pos < 0 || c.pos > len(c.buf) {
		return 0, ReadErr
	}
	if c.pos == len(c.buf) {
		return 0, ReadAgain
	}
	b := c.buf[c.pos]
	c.pos++
	return b, ReadOk
}

// Pos is the offset of the next unread byte.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len is the length of the underlying slice.
func (c *Cursor) Len() int {
	return len(c.buf)
}
