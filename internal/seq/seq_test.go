package seq

import "testing"

func TestGreaterThanWrapsAround(t *testing.T) {
	cases := []struct {
		a, b uint16
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{0, 65535, true},
		{65535, 0, false},
		{32768, 0, false},
		{32767, 0, true},
		{32769, 0, false},
		{5, 5, false},
		{100, 65500, true},
	}
	for _, tc := range cases {
		if got := GreaterThan(tc.a, tc.b); got != tc.want {
			t.Fatalf("GreaterThan(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestGreaterThanIsShiftInvariant(t *testing.T) {
	samples := []uint16{0, 1, 2, 100, 1000, 16384, 32767, 32768, 32769, 40000, 65000, 65534, 65535}
	shifts := []uint16{0, 1, 7, 255, 4096, 32767, 32768, 50000, 65535}
	for _, a := range samples {
		for _, b := range samples {
			base := GreaterThan(a, b)
			for _, k := range shifts {
				if got := GreaterThan(a+k, b+k); got != base {
					t.Fatalf("GreaterThan(%d+%d, %d+%d) = %v, want %v", a, k, b, k, got, base)
				}
			}
		}
	}
}

func TestGreaterAndLessAreExclusive(t *testing.T) {
	for a := 0; a < 1<<16; a += 97 {
		for _, b := range []uint16{0, 12345, 32768, 65535} {
			ua := uint16(a)
			if GreaterThan(ua, b) && LessThan(ua, b) {
				t.Fatalf("%d and %d compare both greater and less", ua, b)
			}
			if ua != b && Difference(ua, b) != -HalfRange && !GreaterThan(ua, b) && !LessThan(ua, b) {
				t.Fatalf("%d and %d are distinct but neither greater nor less", ua, b)
			}
		}
	}
}

func TestDifference(t *testing.T) {
	if got := Difference(2, 65534); got != 4 {
		t.Fatalf("expected difference 4 across wrap, got %d", got)
	}
	if got := Difference(65534, 2); got != -4 {
		t.Fatalf("expected difference -4 across wrap, got %d", got)
	}
}

func TestBufferOverwritesOldestSlot(t *testing.T) {
	buf := NewBuffer[int](4)
	*buf.Insert(1) = 10
	*buf.Insert(2) = 20
	if v, ok := buf.Find(1); !ok || *v != 10 {
		t.Fatalf("expected sequence 1 to hold 10, got %v %v", v, ok)
	}
	*buf.Insert(5) = 50
	if buf.Exists(1) {
		t.Fatalf("expected sequence 1 to be overwritten by 5")
	}
	if v, ok := buf.Find(5); !ok || *v != 50 {
		t.Fatalf("expected sequence 5 to hold 50")
	}
	buf.Remove(2)
	if buf.Exists(2) {
		t.Fatalf("expected sequence 2 to be removed")
	}
}

func TestBufferRoundsCapacityToPowerOfTwo(t *testing.T) {
	if got := NewBuffer[int](200).Size(); got != 256 {
		t.Fatalf("expected capacity 256, got %d", got)
	}
}

func TestAckRoundTrip(t *testing.T) {
	received := NewReceivedPackets()
	sent := NewSentPackets(256)
	for s := uint16(65530); s != 6; s++ {
		sent.Record(s)
		if s%3 != 0 {
			received.Record(s)
		}
	}

	ack, bits, ok := received.Ack()
	if !ok {
		t.Fatalf("expected ack to be available")
	}
	if ack != 5 {
		t.Fatalf("expected latest ack 5, got %d", ack)
	}

	acked := sent.Process(ack, bits)
	want := map[uint16]bool{}
	for s := uint16(65530); s != 6; s++ {
		if s%3 != 0 {
			want[s] = true
		}
	}
	if len(acked) != len(want) {
		t.Fatalf("expected %d acked sequences, got %d (%v)", len(want), len(acked), acked)
	}
	for _, s := range acked {
		if !want[s] {
			t.Fatalf("sequence %d acknowledged but never received", s)
		}
	}

	if again := sent.Process(ack, bits); len(again) != 0 {
		t.Fatalf("expected repeated ack to report nothing new, got %v", again)
	}
}
