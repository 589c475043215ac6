package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

type fakeGrabber struct {
	owned    map[int]bool
	grabs    int
	releases int
	deny     bool
}

func (g *fakeGrabber) Grab(cube int) bool {
	if g.deny {
		return false
	}
	if g.owned == nil {
		g.owned = make(map[int]bool)
	}
	g.owned[cube] = true
	g.grabs++
	return true
}

func (g *fakeGrabber) Release(cube int) bool {
	if !g.owned[cube] {
		return false
	}
	delete(g.owned, cube)
	g.releases++
	return true
}

func TestResetLaysCubesOutAtRest(t *testing.T) {
	cubes := NewCubes()
	seen := make(map[[2]float32]bool)
	for id := 0; id < cubes.NumCubes(); id++ {
		s := cubes.Cube(id)
		if !s.AtRest {
			t.Fatalf("expected cube %d at rest", id)
		}
		if s.Owner != -1 {
			t.Fatalf("expected cube %d free, got owner %d", id, s.Owner)
		}
		key := [2]float32{s.Position[0], s.Position[2]}
		if seen[key] {
			t.Fatalf("cube %d overlaps another cube at %v", id, key)
		}
		seen[key] = true
	}
}

func TestThrownCubeComesToRestOnFloor(t *testing.T) {
	cubes := NewCubes()
	cubes.Attach(3)
	cubes.MoveHeld(3, mgl32.Vec3{0, 2, 0}, mgl32.QuatIdent(), 1.0/60)
	cubes.Throw(3, mgl32.Vec3{1, 1, 0})

	for i := 0; i < 60*10; i++ {
		cubes.Step(1.0 / 60)
	}
	s := cubes.Cube(3)
	if !s.AtRest {
		t.Fatalf("expected cube to settle, velocity=%v", s.LinearVelocity)
	}
	if s.Position[1] != CubeHalfExtent {
		t.Fatalf("expected cube on the floor, got y=%v", s.Position[1])
	}
	if s.Position[0] <= 0 {
		t.Fatalf("expected cube to travel along +x, got %v", s.Position)
	}
}

func TestStepSkipsHeldCubes(t *testing.T) {
	cubes := NewCubes()
	cubes.Attach(5)
	cubes.MoveHeld(5, mgl32.Vec3{0, 3, 0}, mgl32.QuatIdent(), 1.0/60)
	before := cubes.Cube(5).Position
	cubes.Step(1.0 / 60)
	if cubes.Cube(5).Position != before {
		t.Fatalf("expected held cube to stay put, moved from %v to %v", before, cubes.Cube(5).Position)
	}
	cubes.Detach(5)
	if cubes.Held(5) {
		t.Fatalf("expected detach to release the hand")
	}
}

func TestSetCubeIgnoresInvalidIDs(t *testing.T) {
	cubes := NewCubes()
	cubes.SetCube(quant.NumCubes, quant.CubeState{Owner: 2})
	if s := cubes.Cube(quant.NumCubes); s.Owner != -1 {
		t.Fatalf("expected invalid id to read as free, got %+v", s)
	}
}

func TestRigGrabsCarriesAndReleases(t *testing.T) {
	cubes := NewCubes()
	rig := NewRig(cubes, 1)
	grabber := &fakeGrabber{}

	dt := 1.0 / 60
	for i := 0; i < 60; i++ {
		rig.Update(dt, grabber)
	}
	if grabber.grabs == 0 {
		t.Fatalf("expected the rig to grab a cube within a second")
	}
	local := rig.Local()
	held := local.HeldCubes()
	if len(held) == 0 {
		t.Fatalf("expected local avatar to report a held cube")
	}
	if !cubes.Held(held[0]) {
		t.Fatalf("expected cube %d attached to a hand", held[0])
	}

	for i := 0; i < 60*4; i++ {
		rig.Update(dt, grabber)
	}
	if grabber.releases == 0 {
		t.Fatalf("expected the rig to release after the hold duration")
	}
}

func TestRigDropsStolenCube(t *testing.T) {
	cubes := NewCubes()
	rig := NewRig(cubes, 0)
	grabber := &fakeGrabber{}
	dt := 1.0 / 60
	for i := 0; i < 10 && grabber.grabs == 0; i++ {
		rig.Update(dt, grabber)
	}
	if grabber.grabs == 0 {
		t.Fatalf("expected an initial grab")
	}
	cube := rig.Local().HeldCubes()[0]
	cubes.Detach(cube)
	grabber.deny = true
	rig.Update(dt, grabber)
	for _, id := range rig.Local().HeldCubes() {
		if id == cube {
			t.Fatalf("expected stolen cube %d to leave the hand", cube)
		}
	}
}

func TestAnimationStreamRoundTrip(t *testing.T) {
	cubes := NewCubes()
	rig := NewRig(cubes, 0)
	rig.Update(0.5, nil)
	clock, ok := DecodeAnimation(rig.Serialize())
	if !ok || clock != 0.5 {
		t.Fatalf("expected clock 0.5, got %v ok=%v", clock, ok)
	}

	rig.Apply(2, []byte{1, 2, 3})
	if got := rig.Animation(2); len(got) != 3 {
		t.Fatalf("expected stored animation for client 2, got %v", got)
	}
	rig.Apply(0, []byte{9})
	if got := rig.Animation(0); got != nil {
		t.Fatalf("expected own animation to be ignored, got %v", got)
	}
	rig.Forget(2)
	if got := rig.Animation(2); got != nil {
		t.Fatalf("expected forgotten client to have no animation")
	}
}
