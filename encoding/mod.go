// Package encoding implements the deterministic binary layout shared by the
// ledger and every off-chain consumer: fixed-width little-endian integers,
// raw fixed-size byte arrays and u32 length-prefixed variable fields.
//
// The Decoder keeps the first error it meets so that a sequence of reads can be
// checked once at the end.
package encoding

import (
	"encoding/binary"
	"unicode/utf8"

	"golang.org/x/xerrors"
)

// ErrShortBuffer is returned when the input ends before the value.
var ErrShortBuffer = xerrors.New("unexpected end of buffer")

// ErrTooLong is returned when a length prefix exceeds the allowed maximum.
var ErrTooLong = xerrors.New("length exceeds maximum")

// Encoder appends values to a buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// U8 writes a single byte.
func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

// Bool writes 1 for true and 0 for false.
func (e *Encoder) Bool(v bool) {
	if v {
		e.U8(1)
	} else {
		e.U8(0)
	}
}

// U32 writes a little-endian unsigned 32-bit integer.
func (e *Encoder) U32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// U64 writes a little-endian unsigned 64-bit integer.
func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// Fixed writes the bytes without any prefix.
func (e *Encoder) Fixed(data []byte) {
	e.buf = append(e.buf, data...)
}

// Bytes writes the length of the data as a u32 followed by the data.
func (e *Encoder) Bytes(data []byte) {
	e.U32(uint32(len(data)))
	e.Fixed(data)
}

// String writes the length of the text as a u32 followed by the UTF-8 bytes.
func (e *Encoder) String(text string) {
	e.Bytes([]byte(text))
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Data returns the encoded bytes.
func (e *Encoder) Data() []byte {
	return e.buf
}

// Decoder reads values from a buffer.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder that reads the data from the beginning.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

// Err returns the first error that happened, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of bytes left to read.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Offset returns the number of bytes read so far.
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}

	if n < 0 || d.Remaining() < n {
		d.err = xerrors.Errorf("reading %d bytes at offset %d: %w", n, d.off, ErrShortBuffer)
		return nil
	}

	chunk := d.buf[d.off : d.off+n]
	d.off += n

	return chunk
}

// U8 reads a single byte.
func (d *Decoder) U8() uint8 {
	chunk := d.next(1)
	if chunk == nil {
		return 0
	}

	return chunk[0]
}

// Bool reads a byte that must be 0 or 1.
func (d *Decoder) Bool() bool {
	v := d.U8()
	if d.err == nil && v > 1 {
		d.err = xerrors.Errorf("invalid boolean value %d", v)
	}

	return v == 1
}

// U32 reads a little-endian unsigned 32-bit integer.
func (d *Decoder) U32() uint32 {
	chunk := d.next(4)
	if chunk == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(chunk)
}

// U64 reads a little-endian unsigned 64-bit integer.
func (d *Decoder) U64() uint64 {
	chunk := d.next(8)
	if chunk == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(chunk)
}

// Fixed reads exactly n bytes and returns a copy of them.
func (d *Decoder) Fixed(n int) []byte {
	chunk := d.next(n)
	if chunk == nil {
		return nil
	}

	res := make([]byte, n)
	copy(res, chunk)

	return res
}

// Length reads a u32 length prefix and checks it against the maximum.
func (d *Decoder) Length(max int) int {
	size := d.U32()
	if d.err != nil {
		return 0
	}

	if uint64(size) > uint64(max) {
		d.err = xerrors.Errorf("%d > %d: %w", size, max, ErrTooLong)
		return 0
	}

	return int(size)
}

// Bytes reads a u32 length-prefixed byte slice of at most max bytes.
func (d *Decoder) Bytes(max int) []byte {
	size := d.Length(max)

	return d.Fixed(size)
}

// String reads a u32 length-prefixed UTF-8 text of at most max bytes.
func (d *Decoder) String(max int) string {
	data := d.Bytes(max)
	if d.err != nil {
		return ""
	}

	if !utf8.Valid(data) {
		d.err = xerrors.New("invalid utf-8 text")
		return ""
	}

	return string(data)
}

// Done returns the first error, or an error if some bytes are left unread.
func (d *Decoder) Done() error {
	if d.err != nil {
		return d.err
	}

	if d.Remaining() > 0 {
		return xerrors.Errorf("%d trailing bytes", d.Remaining())
	}

	return nil
}
