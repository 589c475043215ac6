// Package bitstream packs bounded integers, flags and raw bytes into a compact
// bit stream. Writers and readers carry a sticky error so codecs can serialize
// a whole record and check once at the end.
package bitstream

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/icza/bitio"
)

// ErrOutOfRange reports a value outside the declared [min, max] interval.
var ErrOutOfRange = errors.New("bitstream: value out of range")

// BitsRequired returns how many bits are needed to store any value in
// [min, max].
func BitsRequired(min, max int32) uint8 {
	if max <= min {
		return 0
	}
	return uint8(bits.Len32(uint32(int64(max) - int64(min))))
}

// Writer accumulates bits into an in-memory buffer.
type Writer struct {
	buf  bytes.Buffer
	w    *bitio.Writer
	bits int
	err  error
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	wr := &Writer{}
	wr.w = bitio.NewWriter(&wr.buf)
	return wr
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// BitsWritten reports the number of bits written so far.
func (w *Writer) BitsWritten() int {
	return w.bits
}

// Bits writes the low n bits of value.
func (w *Writer) Bits(value uint64, n uint8) {
	if w.err != nil || n == 0 {
		return
	}
	if err := w.w.WriteBits(value, n); err != nil {
		w.err = err
		return
	}
	w.bits += int(n)
}

// Bool writes a single flag bit.
func (w *Writer) Bool(value bool) {
	var bit uint64
	if value {
		bit = 1
	}
	w.Bits(bit, 1)
}

// Int writes value using only the bits needed for [min, max].
func (w *Writer) Int(value, min, max int32) {
	if w.err != nil {
		return
	}
	if value < min || value > max {
		w.err = fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, value, min, max)
		return
	}
	w.Bits(uint64(int64(value)-int64(min)), BitsRequired(min, max))
}

// Uint16 writes a full 16-bit value.
func (w *Writer) Uint16(value uint16) {
	w.Bits(uint64(value), 16)
}

// Uint32 writes a full 32-bit value.
func (w *Writer) Uint32(value uint32) {
	w.Bits(uint64(value), 32)
}

// Uint64 writes a full 64-bit value.
func (w *Writer) Uint64(value uint64) {
	w.Bits(value, 64)
}

// Float32 writes the IEEE-754 bits of value.
func (w *Writer) Float32(value float32) {
	w.Uint32(math.Float32bits(value))
}

// Bytes writes raw bytes without alignment.
func (w *Writer) Bytes(data []byte) {
	for _, b := range data {
		w.Bits(uint64(b), 8)
	}
}

// Finish flushes pending bits (zero padded to a byte) and returns the encoded
// buffer.
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if err := w.w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out, nil
}

// Reader extracts bits from a byte slice.
type Reader struct {
	r   *bitio.Reader
	err error
}

// NewReader wraps data for reading.
func NewReader(data []byte) *Reader {
	return &Reader{r: bitio.NewReader(bytes.NewReader(data))}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Bits reads n bits.
func (r *Reader) Bits(n uint8) uint64 {
	if r.err != nil || n == 0 {
		return 0
	}
	value, err := r.r.ReadBits(n)
	if err != nil {
		r.err = err
		return 0
	}
	return value
}

// Bool reads a flag bit.
func (r *Reader) Bool() bool {
	return r.Bits(1) == 1
}

// Int reads a value written with Writer.Int for the same bounds.
func (r *Reader) Int(min, max int32) int32 {
	if r.err != nil {
		return min
	}
	raw := r.Bits(BitsRequired(min, max))
	value := int64(min) + int64(raw)
	if value > int64(max) {
		r.err = fmt.Errorf("%w: decoded %d above %d", ErrOutOfRange, value, max)
		return min
	}
	return int32(value)
}

// Uint16 reads a full 16-bit value.
func (r *Reader) Uint16() uint16 {
	return uint16(r.Bits(16))
}

// Uint32 reads a full 32-bit value.
func (r *Reader) Uint32() uint32 {
	return uint32(r.Bits(32))
}

// Uint64 reads a full 64-bit value.
func (r *Reader) Uint64() uint64 {
	return r.Bits(64)
}

// Float32 reads IEEE-754 bits.
func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Bits(8))
	}
	if r.err != nil {
		return nil
	}
	return out
}
