// Package bsoncore provides the low-level byte cursor and varint decoder
// that the bson and ftdc packages build on. It knows nothing about document
// structure; it only knows how to read fixed-width little-endian scalars
// and LEB128 varints out of a borrowed byte slice without copying.
package bsoncore

import (
	"math"

	"github.com/pkg/errors"
)

// ErrOutOfRange is returned whenever a read would consume more bytes than
// remain in the cursor. The cursor's position is left unchanged.
var ErrOutOfRange = errors.New("bsoncore: read past end of buffer")

// ErrVarintTooLong is returned when a varint does not terminate within 10
// bytes.
var ErrVarintTooLong = errors.New("bsoncore: varint exceeds 10 bytes")

// Cursor is a borrowed view over a byte slice plus a read position. Take
// returns a slice of the underlying buffer without copying; ReadCString
// returns a string copied out of it.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential reads starting at position 0. The
// cursor does not take ownership of buf; the caller must not mutate it
// while the cursor is in use.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// IsEmpty reports whether the cursor has no unread bytes.
func (c *Cursor) IsEmpty() bool {
	return c.Remaining() == 0
}

// Peek returns the byte at the given offset from the current position
// without advancing. offset must be 0 <= offset < Remaining().
func (c *Cursor) Peek(offset int) (byte, error) {
	if offset < 0 || offset >= c.Remaining() {
		return 0, ErrOutOfRange
	}
	return c.buf[c.pos+offset], nil
}

// Take returns a sub-slice of the next n bytes and advances the cursor by
// n. The slice aliases the cursor's underlying buffer.
func (c *Cursor) Take(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, ErrOutOfRange
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadByte reads and returns a single byte, advancing the position by one.
func (c *Cursor) ReadByte() (byte, error) {
	if c.Remaining() < 1 {
		return 0, ErrOutOfRange
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// Len returns the total length of the underlying buffer, irrespective of
// the current position.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// ReadU32LE reads a little-endian uint32.
func (c *Cursor) ReadU32LE() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, ErrOutOfRange
	}
	b := c.buf[c.pos : c.pos+4]
	c.pos += 4
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadI32LE reads a little-endian int32.
func (c *Cursor) ReadI32LE() (int32, error) {
	v, err := c.ReadU32LE()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadU64LE reads a little-endian uint64.
func (c *Cursor) ReadU64LE() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, ErrOutOfRange
	}
	b := c.buf[c.pos : c.pos+8]
	c.pos += 8
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// ReadI64LE reads a little-endian int64.
func (c *Cursor) ReadI64LE() (int64, error) {
	v, err := c.ReadU64LE()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadF64LE reads 8 bytes and reinterprets them as an IEEE-754 binary64,
// little-endian.
func (c *Cursor) ReadF64LE() (float64, error) {
	v, err := c.ReadU64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadObjectID reads the 12 raw bytes of a BSON ObjectId.
func (c *Cursor) ReadObjectID() ([12]byte, error) {
	var oid [12]byte
	if c.Remaining() < 12 {
		return oid, ErrOutOfRange
	}
	copy(oid[:], c.buf[c.pos:c.pos+12])
	c.pos += 12
	return oid, nil
}

// ReadCString reads bytes up to, but not including, the next NUL, and
// advances past the NUL. The returned string is a copy and does not alias
// the cursor's buffer.
func (c *Cursor) ReadCString() (string, error) {
	start := c.pos
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == 0x00 {
			s := string(c.buf[start:i])
			c.pos = i + 1
			return s, nil
		}
	}
	return "", ErrOutOfRange
}

// DecodeVarint decodes an unsigned LEB128 integer: 7 bits per byte, a set
// high bit (0x80) meaning more bytes follow. It does not zig-zag decode;
// callers that need a signed value reinterpret the returned bit pattern as
// two's-complement themselves.
func (c *Cursor) DecodeVarint() (uint64, error) {
	start := c.pos
	var res uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := c.ReadByte()
		if err != nil {
			c.pos = start
			return 0, err
		}
		res |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return res, nil
		}
		shift += 7
	}
	c.pos = start
	return 0, ErrVarintTooLong
}
