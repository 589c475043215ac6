// Package delta compresses cube states against acknowledged baselines.
//
// The sender tracks, per cube, the newest baseline the receiver has
// acknowledged and the one before it. Each update is encoded as unchanged,
// predicted from the two baselines, a residual against the newest baseline, or
// in full. Both sides resolve updates with the same integer arithmetic so the
// reconstructed state is bit-identical.
package delta

import (
	"errors"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// Kind selects how an update is expressed relative to its baselines.
type Kind uint8

const (
	// KindFull carries absolute quantized values.
	KindFull Kind = iota
	// KindUnchanged repeats the baseline physics.
	KindUnchanged
	// KindDelta carries residuals against the baseline.
	KindDelta
	// KindPrediction carries residuals against the extrapolated state.
	KindPrediction
	// KindPerfectPrediction matches the extrapolated state exactly.
	KindPerfectPrediction
)

// MaxKind is the largest valid Kind value.
const MaxKind = KindPerfectPrediction

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindUnchanged:
		return "unchanged"
	case KindDelta:
		return "delta"
	case KindPrediction:
		return "prediction"
	case KindPerfectPrediction:
		return "perfect_prediction"
	default:
		return "unknown"
	}
}

// UsesBaseline reports whether the kind references the acked baseline.
func (k Kind) UsesBaseline() bool {
	return k != KindFull
}

// UsesPrior reports whether the kind also references the prior baseline.
func (k Kind) UsesPrior() bool {
	return k == KindPrediction || k == KindPerfectPrediction
}

// CarriesPhysics reports whether the kind transmits physical fields.
func (k Kind) CarriesPhysics() bool {
	return k == KindFull || k == KindDelta || k == KindPrediction
}

// MaxBaselineOffset is the largest distance, in packets, between an update
// and a baseline it references.
const MaxBaselineOffset = HistorySize - 1

var (
	// ErrMissingBaseline reports an update whose baseline is not in history.
	ErrMissingBaseline = errors.New("delta: missing baseline")
	// ErrEpochMismatch reports a batch tagged with a reset epoch other than
	// the current one.
	ErrEpochMismatch = errors.New("delta: reset epoch mismatch")
	// ErrInvalidUpdate reports an update with an out-of-range id or offset.
	ErrInvalidUpdate = errors.New("delta: invalid update")
)

// Update is one cube entry of a state update batch. Position, Rotation and
// velocities hold absolute values for KindFull and residuals for KindDelta
// and KindPrediction. Rotation is absolute whenever RotationAbsolute is set.
type Update struct {
	ID             int
	Kind           Kind
	BaselineOffset uint16
	PriorOffset    uint16

	AuthorityIndex    uint8
	AuthoritySequence uint16
	OwnershipSequence uint16

	AtRest           bool
	Position         [3]int32
	RotationAbsolute bool
	RotationLargest  uint8
	Rotation         [3]int32
	LinearVelocity   [3]int32
	AngularVelocity  [3]int32
}

// Residual vectors are sent in one of three widths.
const (
	SmallResidual = 16
	LargeResidual = 2048
)

// ResidualClass identifies the width a residual vector is written with.
type ResidualClass uint8

const (
	ResidualSmall ResidualClass = iota
	ResidualLarge
	ResidualFull
)

// ClassifyResidual picks the narrowest representation holding every axis.
func ClassifyResidual(v [3]int32) ResidualClass {
	class := ResidualSmall
	for _, c := range v {
		if c < 0 {
			c = -c
		}
		switch {
		case c > LargeResidual:
			return ResidualFull
		case c > SmallResidual:
			class = ResidualLarge
		}
	}
	return class
}

// Residual bounds for the full-range representation of each field.
const (
	PositionResidualBound        = 2 * quant.PositionBound
	RotationResidualBound        = quant.RotationMax
	LinearVelocityResidualBound  = 2 * quant.LinearVelocityBound
	AngularVelocityResidualBound = 2 * quant.AngularVelocityBound
)

// residualBits estimates the encoded size of a residual vector, including the
// two-bit class selector.
func residualBits(v [3]int32, full int32) int {
	switch ClassifyResidual(v) {
	case ResidualSmall:
		return 2 + 3*bitsFor(2*SmallResidual)
	case ResidualLarge:
		return 2 + 3*bitsFor(2*LargeResidual)
	default:
		return 2 + 3*bitsFor(2*int64(full))
	}
}

func bitsFor(span int64) int {
	n := 0
	for span > 0 {
		n++
		span >>= 1
	}
	return n
}

// updateBits estimates the physical payload size of a residual update.
func updateBits(u Update) int {
	bits := residualBits(u.Position, PositionResidualBound) + 1
	if u.RotationAbsolute {
		bits += 2 + 3*quant.RotationBits
	} else {
		bits += residualBits(u.Rotation, RotationResidualBound)
	}
	if !u.AtRest {
		bits += residualBits(u.LinearVelocity, LinearVelocityResidualBound)
		bits += residualBits(u.AngularVelocity, AngularVelocityResidualBound)
	}
	return bits
}

type baseline struct {
	state quant.QuantizedCubeState
	frame uint32
}

// predict extrapolates the cube from prior a to baseline b at frame. The
// result is clamped to the quantized ranges.
func predict(a, b baseline, frame uint32) (quant.QuantizedCubeState, bool) {
	span := int64(b.frame) - int64(a.frame)
	ahead := int64(frame) - int64(b.frame)
	if span <= 0 || ahead < 0 {
		return quant.QuantizedCubeState{}, false
	}
	p := b.state
	for i := 0; i < 3; i++ {
		p.Position[i] = clamp(extrapolate(a.state.Position[i], b.state.Position[i], ahead, span), quant.PositionBound)
	}
	if a.state.RotationLargest == b.state.RotationLargest {
		for i := 0; i < 3; i++ {
			v := extrapolate(a.state.Rotation[i], b.state.Rotation[i], ahead, span)
			if v < 0 {
				v = 0
			}
			if v > quant.RotationMax {
				v = quant.RotationMax
			}
			p.Rotation[i] = v
		}
	}
	return p, true
}

func extrapolate(a, b int32, ahead, span int64) int32 {
	v := int64(b) + (int64(b)-int64(a))*ahead/span
	if v > 1<<30 {
		return 1 << 30
	}
	if v < -(1 << 30) {
		return -(1 << 30)
	}
	return int32(v)
}

func clamp(v, bound int32) int32 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func predictable(a, b quant.QuantizedCubeState) bool {
	return a.AuthorityIndex != 0 &&
		a.AuthorityIndex == b.AuthorityIndex &&
		a.OwnershipSequence == b.OwnershipSequence
}

func sub(a, b [3]int32) [3]int32 {
	return [3]int32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add(a, b [3]int32) [3]int32 {
	return [3]int32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// residualAgainst builds a residual update of cur relative to ref.
func residualAgainst(cur, ref quant.QuantizedCubeState) Update {
	u := Update{
		AtRest:   cur.AtRest,
		Position: sub(cur.Position, ref.Position),
	}
	if cur.RotationLargest == ref.RotationLargest {
		u.Rotation = sub(cur.Rotation, ref.Rotation)
	} else {
		u.RotationAbsolute = true
		u.RotationLargest = cur.RotationLargest
		u.Rotation = cur.Rotation
	}
	if !cur.AtRest {
		u.LinearVelocity = sub(cur.LinearVelocity, ref.LinearVelocity)
		u.AngularVelocity = sub(cur.AngularVelocity, ref.AngularVelocity)
	}
	return u
}

// applyResidual rebuilds a state from ref and a residual update.
func applyResidual(u Update, ref quant.QuantizedCubeState) quant.QuantizedCubeState {
	s := quant.QuantizedCubeState{
		AtRest:   u.AtRest,
		Position: add(ref.Position, u.Position),
	}
	if u.RotationAbsolute {
		s.RotationLargest = u.RotationLargest
		s.Rotation = u.Rotation
	} else {
		s.RotationLargest = ref.RotationLargest
		s.Rotation = add(ref.Rotation, u.Rotation)
	}
	if !u.AtRest {
		s.LinearVelocity = add(ref.LinearVelocity, u.LinearVelocity)
		s.AngularVelocity = add(ref.AngularVelocity, u.AngularVelocity)
	}
	return s
}

// resolve reconstructs the state described by u. lookup returns the stored
// baseline at a given offset before the update's sequence.
func resolve(u Update, frame uint32, lookup func(offset uint16) (baseline, bool)) (quant.QuantizedCubeState, error) {
	var s quant.QuantizedCubeState
	switch u.Kind {
	case KindFull:
		s = quant.QuantizedCubeState{
			AtRest:          u.AtRest,
			Position:        u.Position,
			RotationLargest: u.RotationLargest,
			Rotation:        u.Rotation,
		}
		if !u.AtRest {
			s.LinearVelocity = u.LinearVelocity
			s.AngularVelocity = u.AngularVelocity
		}
	case KindUnchanged, KindDelta:
		b, ok := lookup(u.BaselineOffset)
		if !ok {
			return s, ErrMissingBaseline
		}
		s = b.state
		if u.Kind == KindDelta {
			s = applyResidual(u, b.state)
		}
	case KindPrediction, KindPerfectPrediction:
		b, ok := lookup(u.BaselineOffset)
		if !ok {
			return s, ErrMissingBaseline
		}
		a, ok := lookup(u.PriorOffset)
		if !ok {
			return s, ErrMissingBaseline
		}
		p, ok := predict(a, b, frame)
		if !ok {
			return s, ErrInvalidUpdate
		}
		s = p
		if u.Kind == KindPrediction {
			s = applyResidual(u, p)
		}
	default:
		return s, ErrInvalidUpdate
	}
	s.AuthorityIndex = u.AuthorityIndex
	s.AuthoritySequence = u.AuthoritySequence
	s.OwnershipSequence = u.OwnershipSequence
	return s, nil
}

func validOffset(offset uint16) bool {
	return offset >= 1 && offset <= MaxBaselineOffset
}
