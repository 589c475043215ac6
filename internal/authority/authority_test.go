package authority

import (
	"math/rand"
	"testing"
)

func claimOf(owner int, own, auth, epoch uint16) Claim {
	return Claim{AuthorityIndex: uint8(owner + 1), OwnershipSequence: own, AuthoritySequence: auth, Epoch: epoch}
}

func TestGrabAdvanceRelease(t *testing.T) {
	a := New(1)
	if !a.Grab(3, 1) {
		t.Fatalf("expected grab of free cube to succeed")
	}
	if a.Grab(3, 1) {
		t.Fatalf("expected regrab by the same owner to fail")
	}
	a.Advance(1)
	a.Advance(1)
	r := a.Record(3)
	if r.Owner != 1 || r.OwnershipSequence != 1 || r.AuthoritySequence != 2 {
		t.Fatalf("unexpected record %+v", r)
	}
	if a.Release(3, 2) {
		t.Fatalf("expected release by non-owner to fail")
	}
	if !a.Release(3, 1) {
		t.Fatalf("expected release by owner to succeed")
	}
	r = a.Record(3)
	if r.Owner != Free || r.AuthoritySequence != 3 {
		t.Fatalf("expected free cube with bumped authority, got %+v", r)
	}
	a.Grab(3, 2)
	if r = a.Record(3); r.OwnershipSequence != 2 || r.AuthoritySequence != 0 {
		t.Fatalf("expected second grab to bump ownership, got %+v", r)
	}
}

func TestStaleAuthorityIsRejected(t *testing.T) {
	host := New(HostIndex)
	if d, reason := host.Apply(7, claimOf(1, 1, 5, 0), 1); d != Accept {
		t.Fatalf("expected first claim to be accepted, got %s", reason)
	}
	d, reason := host.Apply(7, claimOf(2, 1, 3, 0), 2)
	if d != Reject || reason != ReasonOlderAuthority {
		t.Fatalf("expected stale authority rejection, got %v %s", d, reason)
	}
	if r := host.Record(7); r.Owner != 1 || r.AuthoritySequence != 5 {
		t.Fatalf("record changed by stale claim: %+v", r)
	}

	client := New(2)
	client.Accept(7, claimOf(1, 1, 5, 0))
	if d, _ := client.ShouldApply(7, claimOf(1, 1, 3, 0), HostIndex); d != Reject {
		t.Fatalf("expected client to reject stale authority from host")
	}
}

func TestStaleEpochIsRejected(t *testing.T) {
	a := New(HostIndex)
	a.Reset(4)
	a.Reset(5)
	d, reason := a.ShouldApply(1, claimOf(1, 9, 9, 4), 1)
	if d != Reject || reason != ReasonStaleEpoch {
		t.Fatalf("expected epoch 4 claim to be rejected, got %v %s", d, reason)
	}
	if d, _ := a.ShouldApply(1, claimOf(1, 1, 0, 5), 1); d != Accept {
		t.Fatalf("expected epoch 5 claim to be accepted")
	}
}

func TestTieBreaking(t *testing.T) {
	t.Run("client accepts another client's ownership", func(t *testing.T) {
		a := New(1)
		a.Accept(0, claimOf(Free, 2, 4, 0))
		if d, _ := a.ShouldApply(0, claimOf(2, 2, 4, 0), HostIndex); d != Accept {
			t.Fatalf("expected accept")
		}
	})
	t.Run("client ignores confirmation of its own ownership", func(t *testing.T) {
		a := New(1)
		a.Accept(0, claimOf(1, 2, 4, 0))
		if d, _ := a.ShouldApply(0, claimOf(1, 2, 4, 0), HostIndex); d != Reject {
			t.Fatalf("expected ignore")
		}
	})
	t.Run("client ignores free claim for a cube it holds", func(t *testing.T) {
		a := New(1)
		a.Accept(0, claimOf(1, 2, 4, 0))
		if d, _ := a.ShouldApply(0, claimOf(Free, 2, 4, 0), HostIndex); d != Reject {
			t.Fatalf("expected ignore")
		}
	})
	t.Run("client accepts free claim for a free cube", func(t *testing.T) {
		a := New(1)
		a.Accept(0, claimOf(Free, 2, 4, 0))
		if d, _ := a.ShouldApply(0, claimOf(Free, 2, 4, 0), HostIndex); d != Accept {
			t.Fatalf("expected accept")
		}
	})
	t.Run("host accepts tie only from the recorded owner", func(t *testing.T) {
		a := New(HostIndex)
		a.Accept(0, claimOf(1, 2, 4, 0))
		if d, _ := a.ShouldApply(0, claimOf(1, 2, 4, 0), 1); d != Accept {
			t.Fatalf("expected accept from recorded owner")
		}
		if d, _ := a.ShouldApply(0, claimOf(2, 2, 4, 0), 2); d != Reject {
			t.Fatalf("expected tie from another client to be ignored")
		}
	})
	t.Run("host rejects claims naming a third party", func(t *testing.T) {
		a := New(HostIndex)
		if d, reason := a.ShouldApply(0, claimOf(2, 5, 0, 0), 1); d != Reject || reason != ReasonForeignClaim {
			t.Fatalf("expected foreign claim rejection, got %v %s", d, reason)
		}
	})
}

func TestNewerOwnershipWinsOverAuthority(t *testing.T) {
	a := New(HostIndex)
	a.Accept(0, claimOf(1, 3, 900, 0))
	if d, reason := a.ShouldApply(0, claimOf(2, 4, 0, 0), 2); d != Accept || reason != ReasonNewerOwnership {
		t.Fatalf("expected newer ownership to win, got %v %s", d, reason)
	}
	if d, _ := a.ShouldApply(0, claimOf(2, 2, 9999, 0), 2); d != Reject {
		t.Fatalf("expected older ownership to lose")
	}
}

func TestReleaseClient(t *testing.T) {
	a := New(HostIndex)
	a.Accept(1, claimOf(2, 1, 10, 0))
	a.Accept(5, claimOf(2, 1, 3, 0))
	a.Accept(6, claimOf(3, 1, 3, 0))
	released := a.ReleaseClient(2)
	if len(released) != 2 || released[0] != 1 || released[1] != 5 {
		t.Fatalf("expected cubes 1 and 5, got %v", released)
	}
	if r := a.Record(1); r.Owner != Free || r.AuthoritySequence != 11 {
		t.Fatalf("unexpected record after release %+v", r)
	}
	if a.Record(6).Owner != 3 {
		t.Fatalf("expected other client's cube to stay owned")
	}
}

func TestRecentlyInteracted(t *testing.T) {
	a := New(1)
	a.SetFrame(100)
	a.Grab(2, 1)
	a.SetFrame(130)
	if !a.RecentlyInteracted(2, 30) {
		t.Fatalf("expected interaction within window")
	}
	a.SetFrame(131)
	if a.RecentlyInteracted(2, 30) {
		t.Fatalf("expected interaction to expire")
	}
	if a.RecentlyInteracted(3, 30) {
		t.Fatalf("expected untouched cube to report no interaction")
	}
}

type event struct {
	from  int
	claim Claim
}

// clientClaims plays a random grab/hold/release script for one client and
// returns the claims it would send, in send order.
func clientClaims(rng *rand.Rand, client int) []event {
	a := New(client)
	var out []event
	for step := 0; step < 40; step++ {
		switch rng.Intn(5) {
		case 0:
			a.Grab(0, client)
		case 1:
			a.Release(0, client)
		default:
			a.Advance(client)
		}
		r := a.Record(0)
		if r.Owner == client || r.Interacted {
			out = append(out, event{from: client, claim: Claim{
				AuthorityIndex:    uint8(r.Owner + 1),
				AuthoritySequence: r.AuthoritySequence,
				OwnershipSequence: r.OwnershipSequence,
			}})
		}
	}
	return out
}

func greater(a, b Claim) bool {
	if a.OwnershipSequence != b.OwnershipSequence {
		return a.OwnershipSequence > b.OwnershipSequence
	}
	return a.AuthoritySequence > b.AuthoritySequence
}

func TestOwnershipConvergesUnderInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 200; trial++ {
		events := append(clientClaims(rng, 1), clientClaims(rng, 2)...)
		if len(events) == 0 {
			continue
		}

		best := events[0].claim
		for _, e := range events[1:] {
			if greater(e.claim, best) {
				best = e.claim
			}
		}
		owners := make(map[int]bool)
		for _, e := range events {
			if e.claim.OwnershipSequence == best.OwnershipSequence && e.claim.AuthoritySequence == best.AuthoritySequence {
				owners[e.claim.Owner()] = true
			}
		}

		var first Record
		for order := 0; order < 3; order++ {
			host := New(HostIndex)
			shuffled := append([]event(nil), events...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			for _, e := range shuffled {
				host.Apply(0, e.claim, e.from)
			}
			r := host.Record(0)
			if r.OwnershipSequence != best.OwnershipSequence || r.AuthoritySequence != best.AuthoritySequence {
				t.Fatalf("trial %d: expected host to settle on %+v, got %+v", trial, best, r)
			}
			if order == 0 {
				first = r
				continue
			}
			if len(owners) == 1 && r.Owner != first.Owner {
				t.Fatalf("trial %d: owner depends on arrival order: %d vs %d", trial, first.Owner, r.Owner)
			}
		}
	}
}
