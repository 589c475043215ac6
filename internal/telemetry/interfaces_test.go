package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WrapLogger(log.New(&buf, "", 0))
		logger.Printf("slot %d connected", 2)
		if got := buf.String(); got != "slot 2 connected\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})

	t.Run("discard", func(t *testing.T) {
		Discard().Printf("dropped %s", "line")
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add(MetricPacketsSent, 2)
	adapter.Store(MetricPacketsSent, 5)
	adapter.Add(MetricPacketsSent, 3)

	if got := metrics.Snapshot()[MetricPacketsSent]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Nil metrics must not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
	NopMetrics().Add("ignored", 1)
}
