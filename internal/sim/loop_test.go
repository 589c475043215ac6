package sim

import (
	"testing"
	"time"
)

func TestAdvanceRunsWholeFixedSteps(t *testing.T) {
	var frames []uint64
	renders := 0
	loop := NewLoop(LoopConfig{TickRate: 50, CatchupMaxTicks: 10}, LoopHooks{
		Fixed:  func(ctx FixedContext) { frames = append(frames, ctx.Frame) },
		Render: func(RenderContext) { renders++ },
	}, nil, nil, nil)

	result := loop.Advance(30 * time.Millisecond)
	if result.FixedTicks != 1 {
		t.Fatalf("expected 1 fixed tick, got %d", result.FixedTicks)
	}
	result = loop.Advance(30 * time.Millisecond)
	if result.FixedTicks != 2 {
		t.Fatalf("expected 2 fixed ticks from the carried remainder, got %d", result.FixedTicks)
	}
	if renders != 2 {
		t.Fatalf("expected one render per advance, got %d", renders)
	}
	if len(frames) != 3 || frames[2] != 3 {
		t.Fatalf("expected frames 1..3, got %v", frames)
	}
}

func TestAdvanceClampsCatchup(t *testing.T) {
	loop := NewLoop(LoopConfig{TickRate: 10, CatchupMaxTicks: 3}, LoopHooks{}, nil, nil, nil)
	result := loop.Advance(5 * time.Second)
	if !result.ClampedDelta {
		t.Fatalf("expected clamped delta")
	}
	if result.FixedTicks != 3 {
		t.Fatalf("expected 3 catch-up ticks, got %d", result.FixedTicks)
	}
}

func TestRenderAlphaReportsRemainder(t *testing.T) {
	var alpha float64
	loop := NewLoop(LoopConfig{TickRate: 10, CatchupMaxTicks: 4}, LoopHooks{
		Render: func(ctx RenderContext) { alpha = ctx.Alpha },
	}, nil, nil, nil)
	loop.Advance(150 * time.Millisecond)
	if alpha < 0.49 || alpha > 0.51 {
		t.Fatalf("expected alpha near 0.5, got %v", alpha)
	}
}

func TestCommandsReachNextFixedTick(t *testing.T) {
	var got [][]Command
	loop := NewLoop(LoopConfig{TickRate: 10, CatchupMaxTicks: 4}, LoopHooks{
		Fixed: func(ctx FixedContext) { got = append(got, ctx.Commands) },
	}, nil, nil, nil)

	if !loop.Enqueue(Command{Type: CommandResetWorld, Origin: "test"}) {
		t.Fatalf("expected enqueue to succeed")
	}
	loop.Advance(50 * time.Millisecond)
	if loop.Pending() != 1 {
		t.Fatalf("expected command to wait for a fixed tick, pending=%d", loop.Pending())
	}
	loop.Advance(150 * time.Millisecond)
	if len(got) != 2 {
		t.Fatalf("expected 2 fixed ticks, got %d", len(got))
	}
	if len(got[0]) != 1 || got[0][0].Type != CommandResetWorld {
		t.Fatalf("expected reset command on first tick, got %+v", got[0])
	}
	if got[0][0].IssuedAt.IsZero() {
		t.Fatalf("expected issue time to be stamped")
	}
	if len(got[1]) != 0 {
		t.Fatalf("expected second tick to see no commands, got %+v", got[1])
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	loop := NewLoop(LoopConfig{CommandCapacity: 1}, LoopHooks{}, nil, nil, nil)
	if !loop.Enqueue(Command{Type: CommandResetWorld}) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if loop.Enqueue(Command{Type: CommandResetWorld}) {
		t.Fatalf("expected second enqueue to fail")
	}
}
