package seq

// Buffer stores values keyed by a 16-bit sequence in a fixed-size ring. Newer
// sequences overwrite the slot of the sequence Size entries older.
type Buffer[T any] struct {
	entries   []T
	sequences []uint32
}

const emptySlot = ^uint32(0)

// NewBuffer constructs a ring with the provided capacity. Capacities that do
// not divide 65536 would make wrapped sequences collide unevenly, so they are
// rounded up to the next power of two.
func NewBuffer[T any](size int) *Buffer[T] {
	if size < 1 {
		size = 1
	}
	capacity := 1
	for capacity < size && capacity < 1<<16 {
		capacity <<= 1
	}
	b := &Buffer[T]{
		entries:   make([]T, capacity),
		sequences: make([]uint32, capacity),
	}
	b.Reset()
	return b
}

// Size reports the ring capacity.
func (b *Buffer[T]) Size() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Reset marks every slot as empty.
func (b *Buffer[T]) Reset() {
	if b == nil {
		return
	}
	var zero T
	for i := range b.entries {
		b.entries[i] = zero
		b.sequences[i] = emptySlot
	}
}

// Insert claims the slot for sequence, clearing whatever was stored there, and
// returns a pointer to the zeroed value.
func (b *Buffer[T]) Insert(sequence uint16) *T {
	idx := b.index(sequence)
	var zero T
	b.entries[idx] = zero
	b.sequences[idx] = uint32(sequence)
	return &b.entries[idx]
}

// Find returns the value stored for sequence, if the slot still holds it.
func (b *Buffer[T]) Find(sequence uint16) (*T, bool) {
	if b == nil {
		return nil, false
	}
	idx := b.index(sequence)
	if b.sequences[idx] != uint32(sequence) {
		return nil, false
	}
	return &b.entries[idx], true
}

// Exists reports whether sequence is currently stored.
func (b *Buffer[T]) Exists(sequence uint16) bool {
	_, ok := b.Find(sequence)
	return ok
}

// Remove clears the slot for sequence if it is stored.
func (b *Buffer[T]) Remove(sequence uint16) {
	if b == nil {
		return
	}
	idx := b.index(sequence)
	if b.sequences[idx] != uint32(sequence) {
		return
	}
	var zero T
	b.entries[idx] = zero
	b.sequences[idx] = emptySlot
}

func (b *Buffer[T]) index(sequence uint16) int {
	return int(sequence) % len(b.entries)
}
