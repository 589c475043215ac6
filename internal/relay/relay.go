// Package relay runs the state synchronisation of a shared physics session.
//
// The host relays for every client: each fixed tick it picks the cubes each
// peer most needs, delta-encodes them against what that peer acknowledged
// and sends them together with the avatars the peer has not produced itself.
// Clients send their own avatar and the cubes they hold. Both sides share the
// same session core; Host and Client differ only in connection handling and
// epoch policy.
package relay

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/proto"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/priority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

// Physics is the rigid body simulation shared by every participant.
type Physics interface {
	NumCubes() int
	Cube(id int) quant.CubeState
	SetCube(id int, state quant.CubeState)
	// Detach releases id from any local hand attachment.
	Detach(id int)
	Reset()
}

// Avatars supplies the local avatar and receives remote ones.
type Avatars interface {
	Local() avatar.State
	ApplyRemote(states []avatar.State)
	// Forget drops the avatar and animation of a client that left.
	Forget(client int)
}

// Animation is the opaque avatar animation stream.
type Animation interface {
	Serialize() []byte
	Apply(client int, data []byte)
}

// Identity is what the host advertises about a participant in the roster.
type Identity struct {
	UserID      uint64
	DisplayName string
	AnonymousID uuid.UUID
}

// Config tunes a session.
type Config struct {
	TickRate          int
	MaxStateUpdates   int
	Timeout           time.Duration
	JitterDelay       time.Duration
	InteractionWindow uint32
	Policy            priority.Policy
	Identity          Identity
}

// DefaultConfig returns the defaults used by the relay binary.
func DefaultConfig() Config {
	return Config{
		TickRate:          60,
		MaxStateUpdates:   proto.MaxStateUpdates,
		Timeout:           5 * time.Second,
		JitterDelay:       100 * time.Millisecond,
		InteractionWindow: 60,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.MaxStateUpdates <= 0 || c.MaxStateUpdates > proto.MaxStateUpdates {
		c.MaxStateUpdates = def.MaxStateUpdates
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.JitterDelay < 0 {
		c.JitterDelay = 0
	}
	if c.Policy == nil {
		c.Policy = priority.DefaultPolicy()
	}
	if c.Identity.AnonymousID == uuid.Nil {
		c.Identity.AnonymousID = uuid.New()
	}
	return c
}

// Deps carries the collaborators and shared infrastructure of a session.
type Deps struct {
	Transport transport.Transport
	Physics   Physics
	Avatars   Avatars
	Animation Animation
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

var (
	// ErrMissingTransport reports a session constructed without a transport.
	ErrMissingTransport = errors.New("relay: transport is required")
	// ErrMissingPhysics reports a session constructed without physics.
	ErrMissingPhysics = errors.New("relay: physics is required")
)

func (d Deps) withDefaults() (Deps, error) {
	if d.Transport == nil {
		return d, ErrMissingTransport
	}
	if d.Physics == nil {
		return d, ErrMissingPhysics
	}
	if d.Avatars == nil {
		d.Avatars = noAvatars{}
	}
	if d.Animation == nil {
		d.Animation = noAnimation{}
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	if d.Logger == nil {
		d.Logger = telemetry.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NopMetrics()
	}
	return d, nil
}

type noAvatars struct{}

func (noAvatars) Local() avatar.State {
	s := avatar.State{}
	for i := range s.Hands {
		s.Hands[i].CubeID = -1
	}
	return s
}

func (noAvatars) ApplyRemote([]avatar.State) {}
func (noAvatars) Forget(int)                 {}

type noAnimation struct{}

func (noAnimation) Serialize() []byte { return nil }
func (noAnimation) Apply(int, []byte) {}
