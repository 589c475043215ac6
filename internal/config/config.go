// Package config loads relay process configuration.
//
// Values are layered: Default, then an optional YAML file, then RELAY_*
// environment variables. Command-line flags are applied by cmd/relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "RELAY_"

// Modes accepted in Config.Mode.
const (
	ModeHost   = "host"
	ModeClient = "client"
)

// Config is the full relay process configuration.
type Config struct {
	Mode     string `yaml:"mode" json:"mode" env:"MODE" jsonschema:"enum=host,enum=client"`
	HTTPAddr string `yaml:"httpAddr" json:"httpAddr" env:"HTTP_ADDR"`
	// HostURL is the websocket URL a client dials. Empty means discover on the LAN.
	HostURL string `yaml:"hostUrl,omitempty" json:"hostUrl,omitempty" env:"HOST_URL"`

	Identity  IdentityConfig  `yaml:"identity" json:"identity" envPrefix:"IDENTITY_"`
	Relay     RelayConfig     `yaml:"relay" json:"relay"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery" envPrefix:"DISCOVERY_"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" envPrefix:"LOG_"`
}

type IdentityConfig struct {
	UserID      uint64 `yaml:"userId" json:"userId" env:"USER_ID"`
	DisplayName string `yaml:"displayName" json:"displayName" env:"DISPLAY_NAME"`
}

// RelayConfig tunes the session core.
type RelayConfig struct {
	TickRate          int           `yaml:"tickRate" json:"tickRate" env:"TICK_RATE" jsonschema:"minimum=1"`
	RenderRate        int           `yaml:"renderRate" json:"renderRate" env:"RENDER_RATE" jsonschema:"minimum=1"`
	CatchupMaxTicks   int           `yaml:"catchupMaxTicks" json:"catchupMaxTicks" env:"CATCHUP_MAX_TICKS"`
	MaxStateUpdates   int           `yaml:"maxStateUpdates" json:"maxStateUpdates" env:"MAX_STATE_UPDATES" jsonschema:"minimum=1,maximum=64"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	JitterDelay       time.Duration `yaml:"jitterDelay" json:"jitterDelay" env:"JITTER_DELAY"`
	InteractionWindow int           `yaml:"interactionWindow" json:"interactionWindow" env:"INTERACTION_WINDOW"`
}

type DiscoveryConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Addr             string        `yaml:"addr" json:"addr" env:"ADDR"`
	ProbeTarget      string        `yaml:"probeTarget" json:"probeTarget" env:"PROBE_TARGET"`
	ProbeWait        time.Duration `yaml:"probeWait" json:"probeWait" env:"PROBE_WAIT"`
	RepliesPerSecond float64       `yaml:"repliesPerSecond" json:"repliesPerSecond" env:"REPLIES_PER_SECOND"`
	Burst            int           `yaml:"burst" json:"burst" env:"BURST"`
}

type LoggingConfig struct {
	Sinks           []string      `yaml:"sinks" json:"sinks" env:"SINKS" envSeparator:","`
	MinimumSeverity string        `yaml:"minimumSeverity" json:"minimumSeverity" env:"MIN_SEVERITY" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	BufferSize      int           `yaml:"bufferSize" json:"bufferSize" env:"BUFFER_SIZE"`
	JSONPath        string        `yaml:"jsonPath,omitempty" json:"jsonPath,omitempty" env:"JSON_PATH"`
	FlushInterval   time.Duration `yaml:"flushInterval" json:"flushInterval" env:"FLUSH_INTERVAL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Mode:     ModeHost,
		HTTPAddr: ":8080",
		Identity: IdentityConfig{
			DisplayName: "player",
		},
		Relay: RelayConfig{
			TickRate:          60,
			RenderRate:        90,
			CatchupMaxTicks:   4,
			MaxStateUpdates:   64,
			Timeout:           5 * time.Second,
			JitterDelay:       100 * time.Millisecond,
			InteractionWindow: 60,
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			Addr:             ":40000",
			ProbeTarget:      "255.255.255.255:40000",
			ProbeWait:        time.Second,
			RepliesPerSecond: 10,
			Burst:            5,
		},
		Logging: LoggingConfig{
			Sinks:           []string{logging.SinkConsole},
			MinimumSeverity: "info",
			BufferSize:      512,
			FlushInterval:   2 * time.Second,
		},
	}
}

// Load reads path over Default, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv applies RELAY_* environment variables to target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModeHost && c.Mode != ModeClient {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeHost, ModeClient, c.Mode))
	}
	if c.Mode == ModeHost && c.HTTPAddr == "" {
		errs = append(errs, errors.New("httpAddr is required in host mode"))
	}
	if c.HostURL != "" && !strings.HasPrefix(c.HostURL, "ws://") && !strings.HasPrefix(c.HostURL, "wss://") {
		errs = append(errs, fmt.Errorf("hostUrl must be a ws:// or wss:// url, got %q", c.HostURL))
	}
	if len(c.Identity.DisplayName) > 32 {
		errs = append(errs, fmt.Errorf("identity.displayName is longer than 32 bytes"))
	}
	if c.Relay.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("relay.tickRate must be positive, got %d", c.Relay.TickRate))
	}
	if c.Relay.RenderRate <= 0 {
		errs = append(errs, fmt.Errorf("relay.renderRate must be positive, got %d", c.Relay.RenderRate))
	}
	if c.Relay.MaxStateUpdates <= 0 || c.Relay.MaxStateUpdates > 64 {
		errs = append(errs, fmt.Errorf("relay.maxStateUpdates must be in [1, 64], got %d", c.Relay.MaxStateUpdates))
	}
	if c.Relay.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("relay.timeout must be positive, got %s", c.Relay.Timeout))
	}
	if c.Relay.JitterDelay < 0 {
		errs = append(errs, fmt.Errorf("relay.jitterDelay must not be negative, got %s", c.Relay.JitterDelay))
	}
	if c.Discovery.Enabled && c.Discovery.RepliesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("discovery.repliesPerSecond must be positive, got %v", c.Discovery.RepliesPerSecond))
	}
	for _, sink := range c.Logging.Sinks {
		switch sink {
		case logging.SinkConsole, logging.SinkJSON, logging.SinkMemory:
		default:
			errs = append(errs, fmt.Errorf("logging.sinks: unknown sink %q", sink))
		}
	}
	return errors.Join(errs...)
}

// LoggingRouterConfig converts the logging section for logging.NewRouter.
func (c Config) LoggingRouterConfig() logging.Config {
	out := logging.DefaultConfig()
	if len(c.Logging.Sinks) > 0 {
		out.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	}
	if c.Logging.BufferSize > 0 {
		out.BufferSize = c.Logging.BufferSize
	}
	if c.Logging.MinimumSeverity != "" {
		out.MinimumSeverity = logging.ParseSeverity(c.Logging.MinimumSeverity)
	}
	out.JSON.FilePath = c.Logging.JSONPath
	if c.Logging.FlushInterval > 0 {
		out.JSON.FlushInterval = c.Logging.FlushInterval
	}
	out.Fields = map[string]any{"mode": c.Mode}
	return out
}
