// Package jitter delays remote avatar samples by a fixed amount and plays
// them back interpolated, hiding uneven packet arrival.
package jitter

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
)

const (
	// DefaultCapacity is the number of samples kept.
	DefaultCapacity = 64
	// DefaultDelay is the playout delay in seconds.
	DefaultDelay = 0.1
)

// Config controls the buffer.
type Config struct {
	Capacity int
	Delay    float64
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, Delay: DefaultDelay}
}

type sample struct {
	valid  bool
	frame  uint32
	time   float64
	epoch  uint16
	states []avatar.State
}

// Buffer holds avatar samples keyed by sender frame.
type Buffer struct {
	cfg     Config
	samples []sample
	epoch   uint16
	started bool
	playout float64
}

// New creates a buffer. Non-positive capacity selects DefaultCapacity.
func New(cfg Config) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Buffer{cfg: cfg, samples: make([]sample, cfg.Capacity)}
}

// Epoch returns the reset epoch samples must carry.
func (b *Buffer) Epoch() uint16 {
	return b.epoch
}

// PlayoutTime returns the playout clock, and whether it has started.
func (b *Buffer) PlayoutTime() (float64, bool) {
	return b.playout, b.started
}

// AddSample stores the avatars captured on frame at sender time. Samples from
// another epoch, or older than the sample already holding their slot, are
// rejected.
func (b *Buffer) AddSample(frame uint32, time float64, epoch uint16, states []avatar.State) bool {
	if epoch != b.epoch {
		return false
	}
	slot := &b.samples[int(frame%uint32(len(b.samples)))]
	if slot.valid && slot.epoch == epoch && slot.frame >= frame {
		return false
	}
	if !b.started {
		b.started = true
		b.playout = time - b.cfg.Delay
	}
	*slot = sample{
		valid:  true,
		frame:  frame,
		time:   time,
		epoch:  epoch,
		states: append([]avatar.State(nil), states...),
	}
	return true
}

// AdvanceTime moves the playout clock forward by dt seconds.
func (b *Buffer) AdvanceTime(dt float64) {
	if b.started {
		b.playout += dt
	}
}

// Sample returns the avatars interpolated at the playout time. It reports
// false until two samples of the current epoch straddle the playout time.
func (b *Buffer) Sample() ([]avatar.State, uint16, bool) {
	if !b.started {
		return nil, b.epoch, false
	}
	var before, after *sample
	for i := range b.samples {
		s := &b.samples[i]
		if !s.valid || s.epoch != b.epoch {
			continue
		}
		if s.time <= b.playout {
			if before == nil || s.time > before.time {
				before = s
			}
		} else if after == nil || s.time < after.time {
			after = s
		}
	}
	if before == nil || after == nil {
		return nil, b.epoch, false
	}

	t := float32((b.playout - before.time) / (after.time - before.time))
	out := make([]avatar.State, 0, len(before.states))
	for _, a := range before.states {
		for _, c := range after.states {
			if c.ClientIndex == a.ClientIndex {
				out = append(out, avatar.Interpolate(a, c, t))
				break
			}
		}
	}
	return out, b.epoch, true
}

// SetEpoch moves to a new reset epoch and discards samples of any other.
func (b *Buffer) SetEpoch(epoch uint16) {
	b.epoch = epoch
	for i := range b.samples {
		if b.samples[i].epoch != epoch {
			b.samples[i] = sample{}
		}
	}
}

// Reset discards every sample and stops the playout clock.
func (b *Buffer) Reset() {
	for i := range b.samples {
		b.samples[i] = sample{}
	}
	b.started = false
	b.playout = 0
}
