package delta

import (
	"fmt"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// Resolved is a cube state reconstructed from an update.
type Resolved struct {
	ID    int
	State quant.QuantizedCubeState
}

// Result is the outcome of decoding one batch.
type Result struct {
	States []Resolved
	Failed []int
}

// Decoder is the receive side of one connection.
type Decoder struct {
	history *History
	epoch   uint16
}

// NewDecoder returns a decoder for reset epoch 0.
func NewDecoder() *Decoder {
	return &Decoder{history: NewHistory()}
}

// Epoch returns the reset epoch the decoder accepts.
func (d *Decoder) Epoch() uint16 {
	return d.epoch
}

// SetEpoch switches to a new reset epoch, discarding every stored baseline.
func (d *Decoder) SetEpoch(epoch uint16) {
	if epoch == d.epoch {
		return
	}
	d.history.Reset()
	d.epoch = epoch
}

// Reset forgets every stored baseline.
func (d *Decoder) Reset() {
	d.history.Reset()
}

// Decode resolves a batch received in packet sequence. Updates whose
// baselines are unknown are reported in Result.Failed and dropped; the rest
// are stored as baselines for later packets. A batch from another epoch is
// rejected whole.
func (d *Decoder) Decode(sequence, epoch uint16, frame uint32, updates []Update) (Result, error) {
	if epoch != d.epoch {
		return Result{}, fmt.Errorf("decode sequence %d: epoch %d, current %d: %w", sequence, epoch, d.epoch, ErrEpochMismatch)
	}
	d.history.Begin(sequence, epoch, frame)

	result := Result{States: make([]Resolved, 0, len(updates))}
	for _, u := range updates {
		if u.ID < 0 || u.ID >= quant.NumCubes {
			continue
		}
		if (u.Kind.UsesBaseline() && !validOffset(u.BaselineOffset)) || (u.Kind.UsesPrior() && !validOffset(u.PriorOffset)) {
			result.Failed = append(result.Failed, u.ID)
			continue
		}
		id := u.ID
		state, err := resolve(u, frame, func(offset uint16) (baseline, bool) {
			s, f, ok := d.history.Lookup(sequence-offset, epoch, id)
			return baseline{state: s, frame: f}, ok
		})
		if err != nil {
			result.Failed = append(result.Failed, id)
			continue
		}
		d.history.Store(sequence, id, state)
		result.States = append(result.States, Resolved{ID: id, State: state})
	}
	return result, nil
}
