// Package world is a small kinematic stand-in for the physics engine and the
// avatar rig, so the relay binary runs on its own.
package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

const (
	// CubeHalfExtent is half the edge length of a cube, in meters.
	CubeHalfExtent = 0.25
	// Gravity pulls cubes down, in m/s².
	Gravity = 9.8

	gridColumns   = 8
	gridSpacing   = 1.0
	restSpeed     = 0.05
	floorFriction = 4.0
	angularDrag   = 2.0
	worldExtent   = quant.PositionExtent - 1
)

// Cubes is an arena of cubes indexed by id.
type Cubes struct {
	states [quant.NumCubes]quant.CubeState
	held   [quant.NumCubes]bool
}

// NewCubes lays the cubes out on the floor, at rest.
func NewCubes() *Cubes {
	c := &Cubes{}
	c.Reset()
	return c
}

// NumCubes reports the arena size.
func (c *Cubes) NumCubes() int {
	return quant.NumCubes
}

// Cube returns the state of id.
func (c *Cubes) Cube(id int) quant.CubeState {
	if !valid(id) {
		return quant.CubeState{Owner: -1, Rotation: mgl32.QuatIdent()}
	}
	return c.states[id]
}

// SetCube overwrites the state of id with a networked state.
func (c *Cubes) SetCube(id int, state quant.CubeState) {
	if !valid(id) {
		return
	}
	c.states[id] = state
}

// Detach drops id from whichever local hand holds it.
func (c *Cubes) Detach(id int) {
	if !valid(id) {
		return
	}
	c.held[id] = false
}

// Held reports whether a local hand drives id.
func (c *Cubes) Held(id int) bool {
	return valid(id) && c.held[id]
}

// Attach hands id over to a local hand. Step no longer integrates it.
func (c *Cubes) Attach(id int) {
	if !valid(id) {
		return
	}
	c.held[id] = true
	c.states[id].AtRest = false
}

// MoveHeld places a held cube and derives its velocity from the displacement.
func (c *Cubes) MoveHeld(id int, position mgl32.Vec3, rotation mgl32.Quat, dt float64) {
	if !c.Held(id) || dt <= 0 {
		return
	}
	s := &c.states[id]
	s.LinearVelocity = position.Sub(s.Position).Mul(float32(1 / dt))
	s.Position = position
	s.Rotation = rotation.Normalize()
	s.AtRest = false
}

// Throw releases id from the hand with the given velocity.
func (c *Cubes) Throw(id int, velocity mgl32.Vec3) {
	if !valid(id) {
		return
	}
	c.held[id] = false
	c.states[id].LinearVelocity = velocity
	c.states[id].AtRest = false
}

// Reset lays the cubes out in a grid on the floor.
func (c *Cubes) Reset() {
	for id := range c.states {
		row, col := id/gridColumns, id%gridColumns
		c.states[id] = quant.CubeState{
			Position: mgl32.Vec3{
				float32((float64(col) - gridColumns/2) * gridSpacing),
				CubeHalfExtent,
				float32((float64(row) - gridColumns/2) * gridSpacing),
			},
			Rotation: mgl32.QuatIdent(),
			AtRest:   true,
			Owner:    -1,
		}
		c.held[id] = false
	}
}

// Step integrates every cube not driven by a hand.
func (c *Cubes) Step(dt float64) {
	if dt <= 0 {
		return
	}
	for id := range c.states {
		if c.held[id] || c.states[id].AtRest {
			continue
		}
		step(&c.states[id], dt)
	}
}

func step(s *quant.CubeState, dt float64) {
	v := s.LinearVelocity
	v[1] -= float32(Gravity * dt)
	p := s.Position.Add(v.Mul(float32(dt)))

	onFloor := false
	if p[1] <= CubeHalfExtent {
		p[1] = CubeHalfExtent
		if v[1] < 0 {
			v[1] = 0
		}
		onFloor = true
	}
	for _, axis := range []int{0, 2} {
		if p[axis] > worldExtent {
			p[axis], v[axis] = worldExtent, -v[axis]
		} else if p[axis] < -worldExtent {
			p[axis], v[axis] = -worldExtent, -v[axis]
		}
	}

	w := s.AngularVelocity
	if onFloor {
		damp := float32(math.Max(0, 1-floorFriction*dt))
		v[0] *= damp
		v[2] *= damp
		w = w.Mul(float32(math.Max(0, 1-angularDrag*dt)))
	}
	if w.Len() > 0 {
		spin := mgl32.Quat{W: 0, V: w}.Mul(s.Rotation).Scale(float32(0.5 * dt))
		s.Rotation = s.Rotation.Add(spin).Normalize()
	}

	s.Position = p
	s.LinearVelocity = v
	s.AngularVelocity = w
	if onFloor && v.Len() < restSpeed && w.Len() < restSpeed {
		s.LinearVelocity = mgl32.Vec3{}
		s.AngularVelocity = mgl32.Vec3{}
		s.AtRest = true
	}
}

func valid(id int) bool {
	return id >= 0 && id < quant.NumCubes
}
