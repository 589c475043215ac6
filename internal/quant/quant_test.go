package quant

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func randomQuat(rng *rand.Rand) mgl32.Quat {
	for {
		q := mgl32.Quat{
			W: float32(rng.Float64()*2 - 1),
			V: mgl32.Vec3{float32(rng.Float64()*2 - 1), float32(rng.Float64()*2 - 1), float32(rng.Float64()*2 - 1)},
		}
		if q.Len() > 0.1 {
			return q.Normalize()
		}
	}
}

func quatClose(a, b mgl32.Quat, eps float32) bool {
	return math.Abs(float64(a.W-b.W)) <= float64(eps) && vecClose(a.V, b.V, eps)
}

func vecClose(a, b mgl32.Vec3, eps float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > float64(eps) {
			return false
		}
	}
	return true
}

func TestQuantizePositionWithinOneStep(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	step := float32(1.0 / UnitsPerMeter)
	for i := 0; i < 5000; i++ {
		var p mgl32.Vec3
		for axis := range p {
			p[axis] = float32((rng.Float64()*2 - 1) * PositionExtent)
		}
		got := Unquantize(Quantize(CubeState{Position: p, Rotation: mgl32.QuatIdent(), Owner: -1})).Position
		for axis := range p {
			if diff := float32(math.Abs(float64(got[axis] - p[axis]))); diff > step {
				t.Fatalf("axis %d of %v: expected error <= %v, got %v", axis, p, step, diff)
			}
		}
	}
}

func TestQuantizeClampsToExtent(t *testing.T) {
	q := Quantize(CubeState{
		Position:       mgl32.Vec3{1000, -1000, 0},
		Rotation:       mgl32.QuatIdent(),
		LinearVelocity: mgl32.Vec3{100, 0, 0},
		Owner:          -1,
	})
	if q.Position[0] != PositionBound || q.Position[1] != -PositionBound {
		t.Fatalf("expected clamped position, got %v", q.Position)
	}
	if q.LinearVelocity[0] != LinearVelocityBound {
		t.Fatalf("expected clamped velocity, got %v", q.LinearVelocity)
	}
}

func TestQuantizeAtRestDropsVelocity(t *testing.T) {
	q := Quantize(CubeState{
		Rotation:        mgl32.QuatIdent(),
		LinearVelocity:  mgl32.Vec3{1, 2, 3},
		AngularVelocity: mgl32.Vec3{1, 2, 3},
		AtRest:          true,
		Owner:           2,
	})
	if q.LinearVelocity != [3]int32{} || q.AngularVelocity != [3]int32{} {
		t.Fatalf("expected zero velocities at rest, got %v %v", q.LinearVelocity, q.AngularVelocity)
	}
	if q.AuthorityIndex != 3 || q.Owner() != 2 {
		t.Fatalf("expected authority index 3, got %d", q.AuthorityIndex)
	}
	if Quantize(CubeState{Rotation: mgl32.QuatIdent(), Owner: -1}).AuthorityIndex != 0 {
		t.Fatalf("expected free cube to carry authority index 0")
	}
}

func TestSmallestThreeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const bound = 0.006
	for i := 0; i < 5000; i++ {
		q := randomQuat(rng)
		largest, values := QuaternionToSmallestThree(q)
		got := SmallestThreeToQuaternion(largest, values)

		// q and -q encode the same rotation.
		if got.Dot(q) < 0 {
			q = q.Scale(-1)
		}
		if !quatClose(got, q, bound) {
			t.Fatalf("round trip of %v: got %v", q, got)
		}
		v := mgl32.Vec3{0.3, -0.2, 0.9}
		if !vecClose(got.Rotate(v), q.Rotate(v), 4*bound) {
			t.Fatalf("rotation of %v changed: %v vs %v", v, got.Rotate(v), q.Rotate(v))
		}
	}
}

func TestSmallestThreeLargestComponentPositive(t *testing.T) {
	q := mgl32.Quat{W: -0.9, V: mgl32.Vec3{0.1, 0.2, 0.3}}.Normalize()
	largest, values := QuaternionToSmallestThree(q)
	if largest != 3 {
		t.Fatalf("expected w to be the largest component, got %d", largest)
	}
	got := SmallestThreeToQuaternion(largest, values)
	if got.W <= 0 {
		t.Fatalf("expected positive w, got %v", got)
	}
	if !quatClose(got, q.Scale(-1), 0.006) {
		t.Fatalf("expected negated quaternion, got %v", got)
	}
}

func TestSlerpTakesShortestPath(t *testing.T) {
	a := mgl32.QuatIdent()
	b := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}).Scale(-1)
	mid := Slerp(a, b, 0.5)
	want := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	if !quatClose(mid, want, 1e-5) {
		t.Fatalf("expected %v, got %v", want, mid)
	}
}
