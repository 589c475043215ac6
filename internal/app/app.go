package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/authority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/config"
	servernet "github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/discovery"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/relay"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/world"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
	loggingSinks "github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Logger   telemetry.Logger
	Settings config.Config
	// Stdout receives the console sink. Defaults to os.Stdout.
	Stdout io.Writer
}

// node is the part of relay.Host and relay.Client the process drives.
type node interface {
	FixedTick(ctx context.Context, tick sim.FixedContext)
	RenderTick(tick sim.RenderContext)
	Snapshot() relay.Snapshot
	Grab(cube int) bool
	Release(cube int) bool
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	settings := cfg.Settings
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	logConfig := settings.LoggingRouterConfig()
	sinks, closeSinks, err := buildSinks(logConfig, stdout)
	if err != nil {
		return err
	}
	defer closeSinks()

	metrics := &logging.Metrics{}
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logConfig, metrics, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()
	telemetryMetrics := telemetry.WrapMetrics(metrics)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	transportCfg := transport.Config{Logger: telemetryLogger, Metrics: telemetryMetrics}
	var (
		tr        transport.Transport
		wsHandler http.Handler
	)
	switch settings.Mode {
	case config.ModeHost:
		host := transport.NewHost(transportCfg)
		tr, wsHandler = host, host
	case config.ModeClient:
		url, err := resolveHostURL(ctx, settings, telemetryLogger)
		if err != nil {
			return err
		}
		client, err := transport.Dial(ctx, url, transport.DialConfig{}, transportCfg)
		if err != nil {
			return err
		}
		telemetryLogger.Printf("connected to %s", url)
		tr = client
	default:
		return fmt.Errorf("unknown mode %q", settings.Mode)
	}
	defer tr.Close()

	cubes := world.NewCubes()
	rig := world.NewRig(cubes, authority.Free)
	deps := relay.Deps{
		Transport: tr,
		Physics:   cubes,
		Avatars:   rig,
		Animation: rig,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   telemetryMetrics,
	}
	relayCfg := relayConfig(settings)

	var (
		session   node
		client    *relay.Client
		rigClient = authority.Free
	)
	if settings.Mode == config.ModeHost {
		host, err := relay.NewHost(relayCfg, deps)
		if err != nil {
			return err
		}
		rigClient = authority.HostIndex
		rig.SetClient(rigClient)
		session = host
	} else {
		client, err = relay.NewClient(relayCfg, deps)
		if err != nil {
			return err
		}
		session = client
	}

	loop := sim.NewLoop(sim.LoopConfig{
		TickRate:        settings.Relay.TickRate,
		RenderRate:      settings.Relay.RenderRate,
		CatchupMaxTicks: settings.Relay.CatchupMaxTicks,
	}, sim.LoopHooks{
		Fixed: func(tick sim.FixedContext) {
			cubes.Step(tick.Delta)
			if client != nil {
				if slot := client.Slot(); slot != rigClient {
					rigClient = slot
					rig.SetClient(slot)
				}
			}
			if rigClient >= 0 {
				rig.Update(tick.Delta, session)
			}
			session.FixedTick(ctx, tick)
			if client != nil {
				if closed, reason := client.Closed(); closed {
					cancel(fmt.Errorf("connection to host closed: %s", reason))
				}
			}
		},
		Render: session.RenderTick,
	}, logging.ClockFunc(time.Now), telemetryLogger, telemetryMetrics)

	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Session:   session,
		Commands:  loop,
		Metrics:   metrics,
		Transport: wsHandler,
		TickRate:  settings.Relay.TickRate,
		Logger:    telemetryLogger,
	})
	srv := &http.Server{Addr: settings.HTTPAddr, Handler: handler}

	errs := make(chan error, 2)
	go func() {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server failed: %w", err)
		}
	}()

	if settings.Mode == config.ModeHost && settings.Discovery.Enabled {
		url := advertiseURL(settings.HTTPAddr)
		responder, err := discovery.Listen(settings.Discovery.Addr, url, discovery.Config{
			RepliesPerSecond: settings.Discovery.RepliesPerSecond,
			Burst:            settings.Discovery.Burst,
			Logger:           telemetryLogger,
			Metrics:          telemetryMetrics,
		})
		if err != nil {
			telemetryLogger.Printf("discovery disabled: %v", err)
		} else {
			defer responder.Close()
			telemetryLogger.Printf("advertising %s on %s", url, responder.Addr())
			go func() {
				if err := responder.Serve(ctx); err != nil {
					errs <- err
				}
			}()
		}
	}

	go loop.Run(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			runErr = cause
		}
	case runErr = <-errs:
		cancel(runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("http shutdown: %v", err)
	}
	return runErr
}

func relayConfig(settings config.Config) relay.Config {
	cfg := relay.DefaultConfig()
	cfg.TickRate = settings.Relay.TickRate
	cfg.MaxStateUpdates = settings.Relay.MaxStateUpdates
	cfg.Timeout = settings.Relay.Timeout
	cfg.JitterDelay = settings.Relay.JitterDelay
	if settings.Relay.InteractionWindow > 0 {
		cfg.InteractionWindow = uint32(settings.Relay.InteractionWindow)
	}
	cfg.Identity = relay.Identity{
		UserID:      settings.Identity.UserID,
		DisplayName: settings.Identity.DisplayName,
	}
	return cfg
}

func buildSinks(cfg logging.Config, stdout io.Writer) ([]logging.NamedSink, func(), error) {
	var (
		sinks   []logging.NamedSink
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	if cfg.HasSink(logging.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsoleSink(stdout, cfg.Console)})
	}
	if cfg.HasSink(logging.SinkJSON) {
		var w io.Writer = stdout
		if cfg.JSON.FilePath != "" {
			file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open json log %s: %w", cfg.JSON.FilePath, err)
			}
			closers = append(closers, file)
			w = file
		}
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewJSON(w, cfg.JSON.FlushInterval)})
	}
	if cfg.HasSink(logging.SinkMemory) {
		sinks = append(sinks, logging.NamedSink{Name: logging.SinkMemory, Sink: loggingSinks.NewMemorySink()})
	}
	return sinks, closeAll, nil
}

func resolveHostURL(ctx context.Context, settings config.Config, logger telemetry.Logger) (string, error) {
	if settings.HostURL != "" {
		return settings.HostURL, nil
	}
	if !settings.Discovery.Enabled {
		return "", errors.New("no host url configured and discovery is disabled")
	}
	logger.Printf("probing %s for hosts", settings.Discovery.ProbeTarget)
	urls, err := discovery.Probe(ctx, settings.Discovery.ProbeTarget, settings.Discovery.ProbeWait)
	if err != nil {
		return "", fmt.Errorf("discover host: %w", err)
	}
	if len(urls) == 0 {
		return "", errors.New("discover host: no host answered")
	}
	return urls[0], nil
}

// advertiseURL turns the HTTP listen address into the websocket URL clients
// dial. An empty listen host is replaced by the machine's hostname.
func advertiseURL(httpAddr string) string {
	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return "ws://" + httpAddr + "/ws"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if name, err := os.Hostname(); err == nil && name != "" {
			host = name
		} else {
			host = "localhost"
		}
	}
	return "ws://" + net.JoinHostPort(host, port) + "/ws"
}
