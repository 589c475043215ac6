package delta

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/seq"
)

// HistorySize is the number of packets remembered per connection and
// direction.
const HistorySize = 256

type snapshot struct {
	epoch   uint16
	frame   uint32
	present [quant.NumCubes]bool
	states  [quant.NumCubes]quant.QuantizedCubeState
}

// History stores, per packet sequence, the reset epoch, sender frame and the
// quantized state of every cube included in that packet.
type History struct {
	ring *seq.Buffer[snapshot]
}

// NewHistory allocates an empty history ring.
func NewHistory() *History {
	return &History{ring: seq.NewBuffer[snapshot](HistorySize)}
}

// Begin starts a new entry for sequence, discarding whatever occupied its slot.
func (h *History) Begin(sequence, epoch uint16, frame uint32) {
	entry := h.ring.Insert(sequence)
	entry.epoch = epoch
	entry.frame = frame
}

// Store records the state of cube id inside the entry for sequence.
func (h *History) Store(sequence uint16, id int, state quant.QuantizedCubeState) bool {
	if id < 0 || id >= quant.NumCubes {
		return false
	}
	entry, ok := h.ring.Find(sequence)
	if !ok {
		return false
	}
	entry.present[id] = true
	entry.states[id] = state
	return true
}

// Lookup returns the state of cube id stored at sequence for epoch, together
// with the frame it was captured on.
func (h *History) Lookup(sequence, epoch uint16, id int) (quant.QuantizedCubeState, uint32, bool) {
	if id < 0 || id >= quant.NumCubes {
		return quant.QuantizedCubeState{}, 0, false
	}
	entry, ok := h.ring.Find(sequence)
	if !ok || entry.epoch != epoch || !entry.present[id] {
		return quant.QuantizedCubeState{}, 0, false
	}
	return entry.states[id], entry.frame, true
}

// Cubes returns the ids stored at sequence for epoch.
func (h *History) Cubes(sequence, epoch uint16) []int {
	entry, ok := h.ring.Find(sequence)
	if !ok || entry.epoch != epoch {
		return nil
	}
	var ids []int
	for id, present := range entry.present {
		if present {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset forgets every entry.
func (h *History) Reset() {
	h.ring.Reset()
}
