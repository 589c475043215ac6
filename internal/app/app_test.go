package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/config"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

func TestBuildSinksFollowsConfig(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{logging.SinkConsole, logging.SinkJSON, logging.SinkMemory}
	cfg.JSON.FilePath = filepath.Join(t.TempDir(), "events.jsonl")

	sinks, closeSinks, err := buildSinks(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("buildSinks failed: %v", err)
	}
	defer closeSinks()

	if len(sinks) != 3 {
		t.Fatalf("expected 3 sinks, got %d", len(sinks))
	}
	for i, name := range cfg.EnabledSinks {
		if sinks[i].Name != name || sinks[i].Sink == nil {
			t.Fatalf("expected sink %q at %d, got %+v", name, i, sinks[i])
		}
	}
	if _, err := os.Stat(cfg.JSON.FilePath); err != nil {
		t.Fatalf("expected json log file to be created: %v", err)
	}
}

func TestBuildSinksReportsUnwritableJSONPath(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{logging.SinkJSON}
	cfg.JSON.FilePath = filepath.Join(t.TempDir(), "missing", "events.jsonl")

	if _, _, err := buildSinks(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}

func TestAdvertiseURL(t *testing.T) {
	if got := advertiseURL("192.168.1.20:8080"); got != "ws://192.168.1.20:8080/ws" {
		t.Fatalf("unexpected url: %s", got)
	}
	got := advertiseURL(":9000")
	if !strings.HasPrefix(got, "ws://") || !strings.HasSuffix(got, ":9000/ws") || strings.HasPrefix(got, "ws://:") {
		t.Fatalf("expected a named host for a wildcard address, got %s", got)
	}
}

func TestRelayConfigFromSettings(t *testing.T) {
	settings := config.Default()
	settings.Relay.TickRate = 30
	settings.Relay.Timeout = 2 * time.Second
	settings.Relay.InteractionWindow = 15
	settings.Identity.DisplayName = "quest"

	cfg := relayConfig(settings)
	if cfg.TickRate != 30 || cfg.Timeout != 2*time.Second || cfg.InteractionWindow != 15 {
		t.Fatalf("unexpected relay config: %+v", cfg)
	}
	if cfg.Identity.DisplayName != "quest" {
		t.Fatalf("expected identity to carry over, got %+v", cfg.Identity)
	}
}
