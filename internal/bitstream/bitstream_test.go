package bitstream

import (
	"bytes"
	"errors"
	"testing"
)

func TestBitsRequired(t *testing.T) {
	cases := []struct {
		min, max int32
		want     uint8
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0, 3, 2},
		{0, 4, 3},
		{-16, 15, 5},
		{-32768, 32767, 16},
		{0, 511, 9},
	}
	for _, tc := range cases {
		if got := BitsRequired(tc.min, tc.max); got != tc.want {
			t.Fatalf("BitsRequired(%d, %d) = %d, want %d", tc.min, tc.max, got, tc.want)
		}
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Bool(true)
	w.Int(-7, -16, 15)
	w.Int(300, 0, 511)
	w.Uint16(0xBEEF)
	w.Uint32(0xDEADBEEF)
	w.Uint64(0x0123456789ABCDEF)
	w.Float32(3.25)
	w.Bytes([]byte("cube"))
	w.Bool(false)
	data, err := w.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if want := (w.BitsWritten() + 7) / 8; len(data) != want {
		t.Fatalf("expected %d bytes, got %d", want, len(data))
	}

	r := NewReader(data)
	if !r.Bool() {
		t.Fatalf("expected leading flag")
	}
	if got := r.Int(-16, 15); got != -7 {
		t.Fatalf("expected -7, got %d", got)
	}
	if got := r.Int(0, 511); got != 300 {
		t.Fatalf("expected 300, got %d", got)
	}
	if got := r.Uint16(); got != 0xBEEF {
		t.Fatalf("unexpected uint16 %x", got)
	}
	if got := r.Uint32(); got != 0xDEADBEEF {
		t.Fatalf("unexpected uint32 %x", got)
	}
	if got := r.Uint64(); got != 0x0123456789ABCDEF {
		t.Fatalf("unexpected uint64 %x", got)
	}
	if got := r.Float32(); got != 3.25 {
		t.Fatalf("unexpected float %v", got)
	}
	if got := r.Bytes(4); !bytes.Equal(got, []byte("cube")) {
		t.Fatalf("unexpected bytes %q", got)
	}
	if r.Bool() {
		t.Fatalf("expected trailing flag to be false")
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected reader error: %v", err)
	}
}

func TestWriterRejectsOutOfRange(t *testing.T) {
	w := NewWriter()
	w.Int(16, -16, 15)
	if !errors.Is(w.Err(), ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", w.Err())
	}
	if _, err := w.Finish(); err == nil {
		t.Fatalf("expected finish to surface the sticky error")
	}
}

func TestReaderFailsOnTruncatedInput(t *testing.T) {
	r := NewReader([]byte{0xFF})
	r.Uint16()
	if r.Err() == nil {
		t.Fatalf("expected error reading past the end of input")
	}
	if got := r.Uint32(); got != 0 {
		t.Fatalf("expected zero after sticky error, got %d", got)
	}
}
