package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.TickRate != 60 {
		t.Fatalf("expected default tick rate 60, got %d", cfg.Relay.TickRate)
	}
	if cfg.Relay.Timeout != 5*time.Second {
		t.Fatalf("expected default timeout 5s, got %s", cfg.Relay.Timeout)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: client
hostUrl: ws://10.0.0.2:8080/ws
relay:
  tickRate: 30
  timeout: 2s
logging:
  sinks: [console, memory]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeClient {
		t.Fatalf("expected client mode, got %q", cfg.Mode)
	}
	if cfg.Relay.TickRate != 30 {
		t.Fatalf("expected tick rate 30, got %d", cfg.Relay.TickRate)
	}
	if cfg.Relay.Timeout != 2*time.Second {
		t.Fatalf("expected timeout 2s, got %s", cfg.Relay.Timeout)
	}
	if cfg.Relay.RenderRate != 90 {
		t.Fatalf("expected untouched render rate 90, got %d", cfg.Relay.RenderRate)
	}
	if len(cfg.Logging.Sinks) != 2 || cfg.Logging.Sinks[1] != logging.SinkMemory {
		t.Fatalf("unexpected sinks %v", cfg.Logging.Sinks)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "relay:\n  tickRate: 30\n")
	t.Setenv("RELAY_TICK_RATE", "45")
	t.Setenv("RELAY_DISCOVERY_ENABLED", "false")
	t.Setenv("RELAY_LOG_SINKS", "json,console")
	t.Setenv("RELAY_IDENTITY_DISPLAY_NAME", "ada")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.TickRate != 45 {
		t.Fatalf("expected env tick rate 45, got %d", cfg.Relay.TickRate)
	}
	if cfg.Discovery.Enabled {
		t.Fatalf("expected discovery disabled by env")
	}
	if len(cfg.Logging.Sinks) != 2 || cfg.Logging.Sinks[0] != logging.SinkJSON {
		t.Fatalf("unexpected sinks %v", cfg.Logging.Sinks)
	}
	if cfg.Identity.DisplayName != "ada" {
		t.Fatalf("expected display name ada, got %q", cfg.Identity.DisplayName)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("RELAY_TICK_RATE", "not-an-int")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Mode = "observer"
	cfg.Relay.MaxStateUpdates = 65
	cfg.Logging.Sinks = []string{"syslog"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"mode", "maxStateUpdates", "syslog"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoggingRouterConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.MinimumSeverity = "warn"
	cfg.Logging.JSONPath = "/tmp/relay.jsonl"

	out := cfg.LoggingRouterConfig()
	if out.MinimumSeverity != logging.SeverityWarn {
		t.Fatalf("expected warn severity, got %s", out.MinimumSeverity)
	}
	if out.JSON.FilePath != "/tmp/relay.jsonl" {
		t.Fatalf("expected json path to carry over, got %q", out.JSON.FilePath)
	}
	if !out.HasSink(logging.SinkConsole) {
		t.Fatalf("expected console sink enabled")
	}
	if out.Fields["mode"] != ModeHost {
		t.Fatalf("expected mode field, got %v", out.Fields)
	}
}
