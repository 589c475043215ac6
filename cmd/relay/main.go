// Command relay runs one participant of a shared physics session, either as
// the host that relays state for everyone or as a client.
//
//	go run ./cmd/relay --config=relay.yaml
//	go run ./cmd/relay --mode=client --host-url=ws://192.168.1.20:8080/ws --addr=:8081
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/app"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/config"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		mode        = flag.String("mode", "", "host or client")
		addr        = flag.String("addr", "", "HTTP listen address")
		hostURL     = flag.String("host-url", "", "Websocket URL of the host (client mode)")
		displayName = flag.String("name", "", "Display name advertised in the roster")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if isFlagSet("mode") {
		cfg.Mode = *mode
	}
	if isFlagSet("addr") {
		cfg.HTTPAddr = *addr
	}
	if isFlagSet("host-url") {
		cfg.HostURL = *hostURL
	}
	if isFlagSet("name") {
		cfg.Identity.DisplayName = *displayName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{
		Logger:   telemetry.WrapLogger(log.Default()),
		Settings: cfg,
	}); err != nil {
		log.Fatalf("%v", err)
	}
}
