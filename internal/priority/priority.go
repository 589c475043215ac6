// Package priority decides which cubes fit into each outgoing packet.
//
// Every cube accumulates priority each tick and drops back to the baseline
// once it has been sent, so cubes left out of one packet climb until they win
// a slot in a later one.
package priority

import (
	"sort"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// Baseline is the accumulator value a cube returns to after it is sent.
const Baseline = 0

// Info describes a candidate cube for one tick.
type Info struct {
	ID                 int
	Held               bool
	RecentlyInteracted bool
	AtRest             bool
}

// Policy returns the per-tick increment for a candidate.
type Policy interface {
	Increment(info Info) float64
}

// WeightedPolicy boosts held and recently touched cubes. Every other cube
// gains the same increment whether moving or at rest, which keeps selection
// round-robin among them.
type WeightedPolicy struct {
	Held   float64
	Recent float64
	Moving float64
	Rest   float64
}

// DefaultPolicy returns the weights used by the relay.
func DefaultPolicy() WeightedPolicy {
	return WeightedPolicy{Held: 1000, Recent: 100, Moving: 1, Rest: 1}
}

// Increment implements Policy.
func (p WeightedPolicy) Increment(info Info) float64 {
	switch {
	case info.Held:
		return p.Held
	case info.RecentlyInteracted:
		return p.Recent
	case info.AtRest:
		return p.Rest
	default:
		return p.Moving
	}
}

// Scheduler holds the accumulators of one connection.
type Scheduler struct {
	policy   Policy
	priority [quant.NumCubes]float64
	order    []int
}

// NewScheduler creates a scheduler. A nil policy selects DefaultPolicy.
func NewScheduler(policy Policy) *Scheduler {
	if policy == nil {
		policy = DefaultPolicy()
	}
	s := &Scheduler{policy: policy, order: make([]int, 0, quant.NumCubes)}
	s.ResetAll()
	return s
}

// Update accumulates priority for every candidate and remembers them as the
// selection pool for the next Select.
func (s *Scheduler) Update(infos []Info) {
	s.order = s.order[:0]
	for _, info := range infos {
		if info.ID < 0 || info.ID >= quant.NumCubes {
			continue
		}
		s.priority[info.ID] += s.policy.Increment(info)
		s.order = append(s.order, info.ID)
	}
}

// Select returns up to max candidate ids by descending priority, ties broken
// by ascending id.
func (s *Scheduler) Select(max int) []int {
	ids := append([]int(nil), s.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := s.priority[ids[i]], s.priority[ids[j]]
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
	if max < 0 {
		max = 0
	}
	if len(ids) > max {
		ids = ids[:max]
	}
	return ids
}

// Priority returns the accumulator of id.
func (s *Scheduler) Priority(id int) float64 {
	if id < 0 || id >= quant.NumCubes {
		return 0
	}
	return s.priority[id]
}

// Reset returns id to the baseline. Call it once for every cube actually sent.
func (s *Scheduler) Reset(id int) {
	if id < 0 || id >= quant.NumCubes {
		return
	}
	s.priority[id] = Baseline
}

// ResetAll returns every cube to the baseline.
func (s *Scheduler) ResetAll() {
	for i := range s.priority {
		s.priority[i] = Baseline
	}
	s.order = s.order[:0]
}
