// Package quant converts cube transforms between their simulation form and
// the bounded integer form that travels on the wire.
package quant

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// NumCubes is the fixed size of the shared cube roster.
	NumCubes = 64
	// MaxClients bounds the session slot table. Slot 0 is the host.
	MaxClients = 4

	// UnitsPerMeter is the fixed point scale for positions.
	UnitsPerMeter = 512
	// PositionExtent is the largest representable distance from the origin
	// on any axis, in meters.
	PositionExtent = 64
	// PositionBound is PositionExtent expressed in quantized units.
	PositionBound = PositionExtent * UnitsPerMeter

	// RotationBits is the precision of each smallest-three component.
	RotationBits = 9
	// RotationMax is the largest quantized smallest-three component.
	RotationMax = 1<<RotationBits - 1

	// LinearVelocityScale is the number of units per meter per second.
	LinearVelocityScale = 512
	// MaxLinearSpeed clamps each linear velocity axis, in m/s.
	MaxLinearSpeed = 32
	// LinearVelocityBound is MaxLinearSpeed in quantized units.
	LinearVelocityBound = MaxLinearSpeed * LinearVelocityScale

	// AngularVelocityScale is the number of units per radian per second.
	AngularVelocityScale = 256
	// MaxAngularSpeed clamps each angular velocity axis, in rad/s.
	MaxAngularSpeed = 32
	// AngularVelocityBound is MaxAngularSpeed in quantized units.
	AngularVelocityBound = MaxAngularSpeed * AngularVelocityScale
)

// smallestThreeBound is the largest magnitude a non-largest quaternion
// component can take.
const smallestThreeBound = 1 / math.Sqrt2

// CubeState is the simulation view of a cube.
type CubeState struct {
	Position          mgl32.Vec3
	Rotation          mgl32.Quat
	LinearVelocity    mgl32.Vec3
	AngularVelocity   mgl32.Vec3
	AtRest            bool
	Owner             int
	AuthoritySequence uint16
	OwnershipSequence uint16
}

// Free reports whether no client currently owns the cube.
func (s CubeState) Free() bool {
	return s.Owner < 0
}

// QuantizedCubeState is the wire view of a cube. AuthorityIndex is the owner
// plus one so that zero means free.
type QuantizedCubeState struct {
	AtRest            bool
	AuthorityIndex    uint8
	AuthoritySequence uint16
	OwnershipSequence uint16
	Position          [3]int32
	RotationLargest   uint8
	Rotation          [3]int32
	LinearVelocity    [3]int32
	AngularVelocity   [3]int32
}

// SamePhysics reports whether the physical fields of q and other are equal.
// Authority fields are ignored.
func (q QuantizedCubeState) SamePhysics(other QuantizedCubeState) bool {
	return q.AtRest == other.AtRest &&
		q.Position == other.Position &&
		q.RotationLargest == other.RotationLargest &&
		q.Rotation == other.Rotation &&
		q.LinearVelocity == other.LinearVelocity &&
		q.AngularVelocity == other.AngularVelocity
}

// Owner returns the owning client index, or -1 when free.
func (q QuantizedCubeState) Owner() int {
	return int(q.AuthorityIndex) - 1
}

// Quantize converts a cube state to its wire form.
func Quantize(s CubeState) QuantizedCubeState {
	q := QuantizedCubeState{
		AtRest:            s.AtRest,
		AuthoritySequence: s.AuthoritySequence,
		OwnershipSequence: s.OwnershipSequence,
	}
	if s.Owner >= 0 && s.Owner < MaxClients {
		q.AuthorityIndex = uint8(s.Owner + 1)
	}
	q.Position = QuantizeVector(s.Position, UnitsPerMeter, PositionBound)
	q.RotationLargest, q.Rotation = QuaternionToSmallestThree(s.Rotation)
	if !s.AtRest {
		q.LinearVelocity = QuantizeVector(s.LinearVelocity, LinearVelocityScale, LinearVelocityBound)
		q.AngularVelocity = QuantizeVector(s.AngularVelocity, AngularVelocityScale, AngularVelocityBound)
	}
	return q
}

// Unquantize converts a wire cube state back to simulation form.
func Unquantize(q QuantizedCubeState) CubeState {
	s := CubeState{
		Position:          UnquantizeVector(q.Position, UnitsPerMeter),
		Rotation:          SmallestThreeToQuaternion(q.RotationLargest, q.Rotation),
		AtRest:            q.AtRest,
		Owner:             q.Owner(),
		AuthoritySequence: q.AuthoritySequence,
		OwnershipSequence: q.OwnershipSequence,
	}
	if !q.AtRest {
		s.LinearVelocity = UnquantizeVector(q.LinearVelocity, LinearVelocityScale)
		s.AngularVelocity = UnquantizeVector(q.AngularVelocity, AngularVelocityScale)
	}
	return s
}

// QuantizeVector scales, rounds and clamps each axis of v to [-bound, bound].
func QuantizeVector(v mgl32.Vec3, scale float64, bound int32) [3]int32 {
	var out [3]int32
	for i := range v {
		out[i] = QuantizeFloat(float64(v[i]), scale, bound)
	}
	return out
}

// UnquantizeVector is the inverse of QuantizeVector for unclamped values.
func UnquantizeVector(v [3]int32, scale float64) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := range v {
		out[i] = float32(float64(v[i]) / scale)
	}
	return out
}

// QuantizeFloat rounds value*scale to the nearest integer and clamps it.
func QuantizeFloat(value, scale float64, bound int32) int32 {
	if math.IsNaN(value) {
		return 0
	}
	scaled := math.Floor(value*scale + 0.5)
	if scaled > float64(bound) {
		return bound
	}
	if scaled < -float64(bound) {
		return -bound
	}
	return int32(scaled)
}

// QuaternionToSmallestThree drops the largest component of q and quantizes
// the remaining three. The sign of q is flipped when needed so the dropped
// component is positive.
func QuaternionToSmallestThree(q mgl32.Quat) (uint8, [3]int32) {
	q = q.Normalize()
	comps := [4]float64{float64(q.V[0]), float64(q.V[1]), float64(q.V[2]), float64(q.W)}

	largest := 0
	for i := 1; i < 4; i++ {
		if math.Abs(comps[i]) > math.Abs(comps[largest]) {
			largest = i
		}
	}
	if comps[largest] < 0 {
		for i := range comps {
			comps[i] = -comps[i]
		}
	}

	var out [3]int32
	n := 0
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		normalized := (comps[i] + smallestThreeBound) / (2 * smallestThreeBound)
		value := math.Floor(normalized*RotationMax + 0.5)
		out[n] = int32(math.Max(0, math.Min(RotationMax, value)))
		n++
	}
	return uint8(largest), out
}

// SmallestThreeToQuaternion rebuilds a unit quaternion from its smallest-three
// form. The rebuilt largest component is always positive.
func SmallestThreeToQuaternion(largest uint8, values [3]int32) mgl32.Quat {
	var comps [4]float64
	sum := 0.0
	n := 0
	for i := 0; i < 4; i++ {
		if i == int(largest&3) {
			continue
		}
		v := float64(values[n])/RotationMax*(2*smallestThreeBound) - smallestThreeBound
		comps[i] = v
		sum += v * v
		n++
	}
	comps[largest&3] = math.Sqrt(math.Max(0, 1-sum))

	q := mgl32.Quat{
		W: float32(comps[3]),
		V: mgl32.Vec3{float32(comps[0]), float32(comps[1]), float32(comps[2])},
	}
	return q.Normalize()
}

// Slerp interpolates between two rotations along the shortest arc.
func Slerp(a, b mgl32.Quat, t float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, t)
}

// Lerp linearly interpolates between two vectors.
func Lerp(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
