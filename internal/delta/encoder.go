package delta

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/seq"
)

type ackRef struct {
	valid    bool
	sequence uint16
}

// Encoder is the send side of one connection.
type Encoder struct {
	history *History
	epoch   uint16
	acked   [quant.NumCubes]ackRef
	prior   [quant.NumCubes]ackRef

	stats EncoderStats
}

// EncoderStats counts encoded updates per kind.
type EncoderStats struct {
	Full              uint64 `json:"full"`
	Unchanged         uint64 `json:"unchanged"`
	Delta             uint64 `json:"delta"`
	Prediction        uint64 `json:"prediction"`
	PerfectPrediction uint64 `json:"perfectPrediction"`
}

// NewEncoder returns an encoder for reset epoch 0.
func NewEncoder() *Encoder {
	return &Encoder{history: NewHistory()}
}

// Epoch returns the reset epoch the encoder tracks.
func (e *Encoder) Epoch() uint16 {
	return e.epoch
}

// Stats returns the running per-kind counters.
func (e *Encoder) Stats() EncoderStats {
	return e.stats
}

// SetEpoch switches to a new reset epoch. All baselines are forgotten.
func (e *Encoder) SetEpoch(epoch uint16) {
	if epoch == e.epoch {
		return
	}
	e.Reset()
	e.epoch = epoch
}

// Reset forgets every baseline without touching the epoch.
func (e *Encoder) Reset() {
	e.history.Reset()
	e.acked = [quant.NumCubes]ackRef{}
	e.prior = [quant.NumCubes]ackRef{}
}

// Ack promotes the cubes carried by packet sequence to acked baselines.
// Packets from another epoch or no longer in history are ignored.
func (e *Encoder) Ack(sequence uint16) {
	for _, id := range e.history.Cubes(sequence, e.epoch) {
		cur := e.acked[id]
		if cur.valid && !seq.GreaterThan(sequence, cur.sequence) {
			continue
		}
		e.prior[id] = cur
		e.acked[id] = ackRef{valid: true, sequence: sequence}
	}
}

// Encode produces one update per id, in order. states must be parallel to
// ids. The encoder records in its history the state the receiver will
// reconstruct from each update.
func (e *Encoder) Encode(sequence, epoch uint16, frame uint32, ids []int, states []quant.QuantizedCubeState) []Update {
	e.SetEpoch(epoch)
	e.history.Begin(sequence, epoch, frame)

	updates := make([]Update, 0, len(ids))
	for i, id := range ids {
		if id < 0 || id >= quant.NumCubes || i >= len(states) {
			continue
		}
		u := e.encodeOne(sequence, frame, id, states[i])
		resolved, err := resolve(u, frame, func(offset uint16) (baseline, bool) {
			return e.baselineAt(sequence-offset, id)
		})
		if err != nil {
			u = fullUpdate(id, states[i])
			resolved, _ = resolve(u, frame, nil)
		}
		e.history.Store(sequence, id, resolved)
		e.count(u.Kind)
		updates = append(updates, u)
	}
	return updates
}

func (e *Encoder) baselineAt(sequence uint16, id int) (baseline, bool) {
	state, frame, ok := e.history.Lookup(sequence, e.epoch, id)
	return baseline{state: state, frame: frame}, ok
}

func (e *Encoder) encodeOne(sequence uint16, frame uint32, id int, cur quant.QuantizedCubeState) Update {
	ref := e.acked[id]
	if !ref.valid {
		return fullUpdate(id, cur)
	}
	offset := sequence - ref.sequence
	if !validOffset(offset) {
		return fullUpdate(id, cur)
	}
	b, ok := e.baselineAt(ref.sequence, id)
	if !ok {
		return fullUpdate(id, cur)
	}

	base := Update{
		ID:                id,
		BaselineOffset:    offset,
		AuthorityIndex:    cur.AuthorityIndex,
		AuthoritySequence: cur.AuthoritySequence,
		OwnershipSequence: cur.OwnershipSequence,
	}

	if cur.SamePhysics(b.state) {
		base.Kind = KindUnchanged
		return base
	}

	deltaUpdate := residualAgainst(cur, b.state)
	deltaUpdate.Kind = KindDelta
	copyHeader(&deltaUpdate, base)
	best := deltaUpdate

	if priorRef := e.prior[id]; priorRef.valid {
		priorOffset := sequence - priorRef.sequence
		a, ok := e.baselineAt(priorRef.sequence, id)
		if ok && validOffset(priorOffset) && predictable(a.state, b.state) {
			if p, ok := predict(a, b, frame); ok {
				if cur.SamePhysics(p) {
					base.Kind = KindPerfectPrediction
					base.PriorOffset = priorOffset
					return base
				}
				predicted := residualAgainst(cur, p)
				predicted.Kind = KindPrediction
				copyHeader(&predicted, base)
				predicted.PriorOffset = priorOffset
				// The prior offset costs a byte on the wire.
				if updateBits(predicted)+8 < updateBits(deltaUpdate) {
					best = predicted
				}
			}
		}
	}
	return best
}

func copyHeader(dst *Update, src Update) {
	dst.ID = src.ID
	dst.BaselineOffset = src.BaselineOffset
	dst.AuthorityIndex = src.AuthorityIndex
	dst.AuthoritySequence = src.AuthoritySequence
	dst.OwnershipSequence = src.OwnershipSequence
}

func fullUpdate(id int, cur quant.QuantizedCubeState) Update {
	u := Update{
		ID:                id,
		Kind:              KindFull,
		AuthorityIndex:    cur.AuthorityIndex,
		AuthoritySequence: cur.AuthoritySequence,
		OwnershipSequence: cur.OwnershipSequence,
		AtRest:            cur.AtRest,
		Position:          cur.Position,
		RotationAbsolute:  true,
		RotationLargest:   cur.RotationLargest,
		Rotation:          cur.Rotation,
	}
	if !cur.AtRest {
		u.LinearVelocity = cur.LinearVelocity
		u.AngularVelocity = cur.AngularVelocity
	}
	return u
}

func (e *Encoder) count(kind Kind) {
	switch kind {
	case KindFull:
		e.stats.Full++
	case KindUnchanged:
		e.stats.Unchanged++
	case KindDelta:
		e.stats.Delta++
	case KindPrediction:
		e.stats.Prediction++
	case KindPerfectPrediction:
		e.stats.PerfectPrediction++
	}
}
