// Package seq provides wrap-aware 16-bit sequence arithmetic and the small
// ring structures built on top of it: a sequence-indexed buffer and the
// ack/ack-bits bookkeeping carried in every state update header.
package seq

// HalfRange is the distance at which a 16-bit sequence is considered to have
// wrapped around.
const HalfRange = 1 << 15

// GreaterThan reports whether a is newer than b, treating the 16-bit space as
// circular. Sequences exactly HalfRange apart are neither newer nor older, which
// keeps the comparison invariant under shifting both operands.
func GreaterThan(a, b uint16) bool {
	return int16(a-b) > 0
}

// LessThan reports whether a is older than b.
func LessThan(a, b uint16) bool {
	return GreaterThan(b, a)
}

// Difference returns the signed distance from b to a, in the range
// [-32768, 32767].
func Difference(a, b uint16) int {
	return int(int16(a - b))
}
