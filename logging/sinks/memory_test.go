package sinks

import (
	"testing"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

func TestMemorySinkStoresDetachedCopies(t *testing.T) {
	sink := NewMemorySink()
	event := logging.Event{
		Type:    "network.decode_failed",
		Targets: []logging.EntityRef{logging.SlotRef(1)},
		Extra:   map[string]any{"peer": uint64(3)},
	}
	if err := sink.Write(event); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	event.Targets[0] = logging.SlotRef(2)
	event.Extra["peer"] = uint64(9)

	stored := sink.Events()
	if len(stored) != 1 {
		t.Fatalf("expected 1 event, got %d", len(stored))
	}
	if stored[0].Targets[0] != logging.SlotRef(1) {
		t.Fatalf("expected stored target to be unchanged, got %+v", stored[0].Targets[0])
	}
	if stored[0].Extra["peer"] != uint64(3) {
		t.Fatalf("expected stored extra to be unchanged, got %v", stored[0].Extra["peer"])
	}

	sink.Reset()
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected reset to drop events, got %d", got)
	}
}
