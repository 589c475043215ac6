// Package avatar models the per-client avatar record exchanged every tick:
// two hands, each optionally holding a cube, plus an opaque animation stream.
package avatar

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

const (
	// NumHands is the number of hands per avatar.
	NumHands = 2
	// MaxAnimationBytes bounds the opaque animation stream.
	MaxAnimationBytes = 1024
	// LocalPositionExtent bounds held cube offsets from the hand, in meters.
	LocalPositionExtent = 4
	// LocalPositionBound is LocalPositionExtent in quantized units.
	LocalPositionBound = LocalPositionExtent * quant.UnitsPerMeter
)

// Hand describes one hand and the cube it holds, if any.
type Hand struct {
	Holding           bool
	CubeID            int
	AuthoritySequence uint16
	OwnershipSequence uint16
	LocalPosition     mgl32.Vec3
	LocalRotation     mgl32.Quat
}

// State is the full avatar record of one client.
type State struct {
	ClientIndex int
	Hands       [NumHands]Hand
	Animation   []byte
}

// QuantizedHand is the wire form of Hand.
type QuantizedHand struct {
	Holding           bool
	CubeID            uint8
	AuthoritySequence uint16
	OwnershipSequence uint16
	LocalPosition     [3]int32
	RotationLargest   uint8
	LocalRotation     [3]int32
}

// Quantized is the wire form of State.
type Quantized struct {
	ClientIndex uint8
	Hands       [NumHands]QuantizedHand
	Animation   []byte
}

// Quantize converts an avatar to its wire form. Animation data longer than
// MaxAnimationBytes is truncated.
func Quantize(s State) Quantized {
	q := Quantized{ClientIndex: uint8(s.ClientIndex)}
	for i, hand := range s.Hands {
		qh := QuantizedHand{Holding: hand.Holding}
		if hand.Holding && hand.CubeID >= 0 && hand.CubeID < quant.NumCubes {
			qh.CubeID = uint8(hand.CubeID)
			qh.AuthoritySequence = hand.AuthoritySequence
			qh.OwnershipSequence = hand.OwnershipSequence
			qh.LocalPosition = quant.QuantizeVector(hand.LocalPosition, quant.UnitsPerMeter, LocalPositionBound)
			qh.RotationLargest, qh.LocalRotation = quant.QuaternionToSmallestThree(rotationOrIdentity(hand.LocalRotation))
		} else {
			qh.Holding = false
		}
		q.Hands[i] = qh
	}
	anim := s.Animation
	if len(anim) > MaxAnimationBytes {
		anim = anim[:MaxAnimationBytes]
	}
	q.Animation = append([]byte(nil), anim...)
	return q
}

// Unquantize converts a wire avatar back to simulation form.
func Unquantize(q Quantized) State {
	s := State{ClientIndex: int(q.ClientIndex)}
	for i, qh := range q.Hands {
		hand := Hand{CubeID: -1, LocalRotation: mgl32.QuatIdent()}
		if qh.Holding {
			hand = Hand{
				Holding:           true,
				CubeID:            int(qh.CubeID),
				AuthoritySequence: qh.AuthoritySequence,
				OwnershipSequence: qh.OwnershipSequence,
				LocalPosition:     quant.UnquantizeVector(qh.LocalPosition, quant.UnitsPerMeter),
				LocalRotation:     quant.SmallestThreeToQuaternion(qh.RotationLargest, qh.LocalRotation),
			}
		}
		s.Hands[i] = hand
	}
	s.Animation = append([]byte(nil), q.Animation...)
	return s
}

// Interpolate blends two avatar samples of the same client. A hand is blended
// only when it holds the same cube in both samples; otherwise it keeps a.
// Animation bytes switch to b past the midpoint.
func Interpolate(a, b State, t float32) State {
	out := State{ClientIndex: a.ClientIndex}
	for i := range a.Hands {
		ha, hb := a.Hands[i], b.Hands[i]
		hand := ha
		if ha.Holding == hb.Holding && ha.CubeID == hb.CubeID {
			hand.LocalPosition = quant.Lerp(ha.LocalPosition, hb.LocalPosition, t)
			hand.LocalRotation = quant.Slerp(rotationOrIdentity(ha.LocalRotation), rotationOrIdentity(hb.LocalRotation), t)
		}
		out.Hands[i] = hand
	}
	if t > 0.5 {
		out.Animation = b.Animation
	} else {
		out.Animation = a.Animation
	}
	return out
}

// HeldCubes returns the ids held by either hand.
func (s State) HeldCubes() []int {
	var ids []int
	for _, hand := range s.Hands {
		if hand.Holding {
			ids = append(ids, hand.CubeID)
		}
	}
	return ids
}

func rotationOrIdentity(q mgl32.Quat) mgl32.Quat {
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q
}
