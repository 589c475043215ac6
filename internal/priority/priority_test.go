package priority

import (
	"testing"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

func candidates(n int) []Info {
	infos := make([]Info, n)
	for i := range infos {
		infos[i] = Info{ID: i, AtRest: i%2 == 0}
	}
	return infos
}

func TestFairnessOverConsecutiveSends(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{64, 8}, {64, 10}, {10, 3}, {5, 4}} {
		s := NewScheduler(nil)
		seen := make(map[int]bool)
		sends := (tc.n + tc.k - 1) / tc.k
		for i := 0; i < sends; i++ {
			s.Update(candidates(tc.n))
			selected := s.Select(tc.k)
			if len(selected) != tc.k {
				t.Fatalf("n=%d k=%d: expected %d ids, got %d", tc.n, tc.k, tc.k, len(selected))
			}
			for _, id := range selected {
				seen[id] = true
				s.Reset(id)
			}
		}
		if len(seen) != tc.n {
			t.Fatalf("n=%d k=%d: expected every cube within %d sends, saw %d", tc.n, tc.k, sends, len(seen))
		}
	}
}

func TestHeldCubesWinEveryPacket(t *testing.T) {
	s := NewScheduler(nil)
	for i := 0; i < 20; i++ {
		infos := candidates(quant.NumCubes)
		infos[42].Held = true
		s.Update(infos)
		selected := s.Select(4)
		if selected[0] != 42 {
			t.Fatalf("send %d: expected held cube first, got %v", i, selected)
		}
		for _, id := range selected {
			s.Reset(id)
		}
	}
}

func TestRecentInteractionOutranksIdleCubes(t *testing.T) {
	s := NewScheduler(nil)
	infos := candidates(8)
	infos[6].RecentlyInteracted = true
	s.Update(infos)
	if got := s.Select(1); got[0] != 6 {
		t.Fatalf("expected recently touched cube 6, got %v", got)
	}
}

func TestSelectBreaksTiesByID(t *testing.T) {
	s := NewScheduler(nil)
	s.Update([]Info{{ID: 9}, {ID: 3}, {ID: 5}})
	got := s.Select(10)
	want := []int{3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

type constantPolicy float64

func (c constantPolicy) Increment(Info) float64 { return float64(c) }

func TestCustomPolicyAndReset(t *testing.T) {
	s := NewScheduler(constantPolicy(2.5))
	s.Update([]Info{{ID: 1}})
	s.Update([]Info{{ID: 1}})
	if got := s.Priority(1); got != 5 {
		t.Fatalf("expected priority 5, got %v", got)
	}
	s.Reset(1)
	if got := s.Priority(1); got != Baseline {
		t.Fatalf("expected baseline after reset, got %v", got)
	}
}
