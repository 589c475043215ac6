package world

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

const (
	holdDuration   = 3.0
	idleDuration   = 1.0
	orbitRadius    = 0.6
	orbitSpeed     = 1.5
	shoulderHeight = 1.4
	animationSize  = 16
)

// Grabber is the ownership surface the rig drives.
type Grabber interface {
	Grab(cube int) bool
	Release(cube int) bool
}

type rigHand struct {
	holding bool
	cube    int
	phase   float64
	idle    float64
	offset  mgl32.Vec3
}

// Rig is a scripted local avatar. Each hand repeatedly picks up a cube,
// carries it around and throws it.
type Rig struct {
	client int
	cubes  *Cubes
	time   float64
	hands  [avatar.NumHands]rigHand
	next   int

	remote    map[int]avatar.State
	animation map[int][]byte
}

// NewRig creates a rig driving cubes for the client in slot client.
func NewRig(cubes *Cubes, client int) *Rig {
	r := &Rig{
		cubes:     cubes,
		remote:    make(map[int]avatar.State),
		animation: make(map[int][]byte),
	}
	r.SetClient(client)
	return r
}

// SetClient moves the rig to another slot, for clients that learn their slot
// after connecting.
func (r *Rig) SetClient(client int) {
	r.client = client
	r.next = (client * 16) % quant.NumCubes
	for i := range r.hands {
		r.hands[i] = rigHand{cube: -1, idle: float64(i) * idleDuration / 2}
	}
}

// Update advances the script by dt seconds.
func (r *Rig) Update(dt float64, grabber Grabber) {
	r.time += dt
	for i := range r.hands {
		h := &r.hands[i]
		if h.holding && !r.cubes.Held(h.cube) {
			// Lost the cube to another client.
			h.holding = false
			h.cube = -1
			h.idle = idleDuration
		}
		if !h.holding {
			h.idle -= dt
			if h.idle > 0 || grabber == nil {
				continue
			}
			cube := r.pick()
			if cube < 0 || !grabber.Grab(cube) {
				h.idle = idleDuration
				continue
			}
			r.cubes.Attach(cube)
			h.holding = true
			h.cube = cube
			h.phase = 0
			h.offset = mgl32.Vec3{0, 0, -0.2}
			continue
		}

		h.phase += dt
		position := r.handPosition(i)
		rotation := mgl32.QuatRotate(float32(r.time*orbitSpeed), mgl32.Vec3{0, 1, 0})
		r.cubes.MoveHeld(h.cube, position.Add(rotation.Rotate(h.offset)), rotation, dt)
		if h.phase >= holdDuration {
			velocity := r.cubes.Cube(h.cube).LinearVelocity.Add(mgl32.Vec3{0, 2, 0})
			r.cubes.Throw(h.cube, velocity)
			if grabber != nil {
				grabber.Release(h.cube)
			}
			h.holding = false
			h.cube = -1
			h.idle = idleDuration
		}
	}
}

func (r *Rig) pick() int {
	for tries := 0; tries < quant.NumCubes; tries++ {
		cube := r.next
		r.next = (r.next + 1) % quant.NumCubes
		if !r.cubes.Held(cube) && r.cubes.Cube(cube).Owner < 0 {
			return cube
		}
	}
	return -1
}

func (r *Rig) handPosition(hand int) mgl32.Vec3 {
	angle := r.time*orbitSpeed + float64(hand)*math.Pi
	base := mgl32.Vec3{float32(r.client) * 2, shoulderHeight, 0}
	return base.Add(mgl32.Vec3{
		float32(math.Cos(angle) * orbitRadius),
		float32(math.Sin(angle*2) * 0.1),
		float32(math.Sin(angle) * orbitRadius),
	})
}

// Local implements the relay avatar source.
func (r *Rig) Local() avatar.State {
	s := avatar.State{ClientIndex: r.client}
	for i, h := range r.hands {
		hand := avatar.Hand{CubeID: -1, LocalRotation: mgl32.QuatIdent()}
		if h.holding {
			hand.Holding = true
			hand.CubeID = h.cube
			hand.LocalPosition = h.offset
		}
		s.Hands[i] = hand
	}
	s.Animation = r.Serialize()
	return s
}

// ApplyRemote stores the latest interpolated avatars of other clients.
func (r *Rig) ApplyRemote(states []avatar.State) {
	for _, s := range states {
		if s.ClientIndex == r.client {
			continue
		}
		r.remote[s.ClientIndex] = s
	}
}

// Remote returns the last avatar applied for client.
func (r *Rig) Remote(client int) (avatar.State, bool) {
	s, ok := r.remote[client]
	return s, ok
}

// Serialize encodes the animation pose: the script clock and both hand phases.
func (r *Rig) Serialize() []byte {
	buf := make([]byte, animationSize)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(r.time))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(r.hands[0].phase)))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(float32(r.hands[1].phase)))
	return buf
}

// Apply stores the animation stream of a remote client.
func (r *Rig) Apply(client int, data []byte) {
	if client == r.client {
		return
	}
	r.animation[client] = append([]byte(nil), data...)
}

// Animation returns the last animation stream applied for client.
func (r *Rig) Animation(client int) []byte {
	return r.animation[client]
}

// Forget drops everything stored about client.
func (r *Rig) Forget(client int) {
	delete(r.remote, client)
	delete(r.animation, client)
}

// DecodeAnimation reads the script clock back out of a Serialize stream.
func DecodeAnimation(data []byte) (float64, bool) {
	if len(data) < animationSize {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), true
}
