// Package sim drives the relay with a fixed-step time accumulator.
//
// Every Advance adds the elapsed wall time to the accumulator, runs as many
// fixed ticks as fit and then one render tick. Commands queued from other
// goroutines are handed to the first fixed tick that runs after they arrive.
package sim

import (
	"context"
	"time"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

const (
	defaultTickRate        = 60
	defaultRenderRate      = 90
	defaultCommandCapacity = 32
)

// LoopConfig tunes the tick rates and catch-up behaviour.
type LoopConfig struct {
	TickRate        int
	RenderRate      int
	CatchupMaxTicks int
	CommandCapacity int
}

// FixedContext describes one fixed simulation tick.
type FixedContext struct {
	Frame    uint64
	Time     float64
	Delta    float64
	Commands []Command
}

// RenderContext describes one render tick.
type RenderContext struct {
	Time  float64
	Delta float64
	// Alpha is the fraction of a fixed step left in the accumulator.
	Alpha float64
}

// StepResult summarises one Advance call.
type StepResult struct {
	Frame        uint64
	FixedTicks   int
	Elapsed      time.Duration
	ClampedDelta bool
	Duration     time.Duration
}

// LoopHooks are invoked on the goroutine calling Advance or Run.
type LoopHooks struct {
	Fixed     func(FixedContext)
	Render    func(RenderContext)
	AfterStep func(StepResult)
}

// Loop owns the accumulator and the command queue.
type Loop struct {
	config LoopConfig
	hooks  LoopHooks
	buffer *CommandBuffer
	clock  logging.Clock
	logger telemetry.Logger

	step        time.Duration
	maxElapsed  time.Duration
	accumulator time.Duration
	frame       uint64
	elapsed     time.Duration
}

// NewLoop creates a loop. A nil clock uses wall time.
func NewLoop(cfg LoopConfig, hooks LoopHooks, clock logging.Clock, logger telemetry.Logger, metrics telemetry.Metrics) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.RenderRate <= 0 {
		cfg.RenderRate = defaultRenderRate
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = defaultCommandCapacity
	}
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	step := time.Second / time.Duration(cfg.TickRate)
	maxElapsed := step
	if cfg.CatchupMaxTicks > 1 {
		maxElapsed = step * time.Duration(cfg.CatchupMaxTicks)
	}
	return &Loop{
		config:     cfg,
		hooks:      hooks,
		buffer:     NewCommandBuffer(cfg.CommandCapacity, metrics),
		clock:      clock,
		logger:     logger,
		step:       step,
		maxElapsed: maxElapsed,
	}
}

// FixedStep reports the duration of one fixed tick.
func (l *Loop) FixedStep() time.Duration {
	return l.step
}

// Frame reports the number of fixed ticks run so far.
func (l *Loop) Frame() uint64 {
	return l.frame
}

// Enqueue stages a command for the next fixed tick. It is safe to call from
// any goroutine.
func (l *Loop) Enqueue(cmd Command) bool {
	if l == nil {
		return false
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.clock.Now()
	}
	if !l.buffer.Push(cmd) {
		l.logger.Printf("[backpressure] dropping command type=%s origin=%s", cmd.Type, cmd.Origin)
		return false
	}
	return true
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	return l.buffer.Len()
}

// Advance feeds elapsed wall time into the accumulator and runs the ticks it
// pays for. Elapsed time beyond CatchupMaxTicks fixed steps is discarded.
func (l *Loop) Advance(elapsed time.Duration) StepResult {
	result := StepResult{}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > l.maxElapsed {
		elapsed = l.maxElapsed
		result.ClampedDelta = true
	}
	result.Elapsed = elapsed
	l.accumulator += elapsed

	stepSeconds := l.step.Seconds()
	for l.accumulator >= l.step {
		l.accumulator -= l.step
		l.frame++
		l.elapsed += l.step
		if l.hooks.Fixed != nil {
			l.hooks.Fixed(FixedContext{
				Frame:    l.frame,
				Time:     l.elapsed.Seconds(),
				Delta:    stepSeconds,
				Commands: l.buffer.Drain(),
			})
		}
		result.FixedTicks++
	}
	if l.hooks.Render != nil {
		l.hooks.Render(RenderContext{
			Time:  (l.elapsed + l.accumulator).Seconds(),
			Delta: elapsed.Seconds(),
			Alpha: float64(l.accumulator) / float64(l.step),
		})
	}
	result.Frame = l.frame
	return result
}

// Run drives Advance from a render-rate ticker until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(l.config.RenderRate))
	defer ticker.Stop()

	last := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.clock.Now()
			elapsed := now.Sub(last)
			last = now

			start := l.clock.Now()
			result := l.Advance(elapsed)
			result.Duration = l.clock.Now().Sub(start)
			if result.ClampedDelta {
				l.logger.Printf("[loop] clamped elapsed %s to %s at frame %d", elapsed, l.maxElapsed, result.Frame)
			}
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}
