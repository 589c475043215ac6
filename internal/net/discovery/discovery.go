// Package discovery lets clients find hosts on the local network. A client
// broadcasts a challenge; every host answers with its websocket URL.
package discovery

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
)

// MagicSize is the length of the challenge and response markers.
const MagicSize = 8

var (
	challengeMagic = []byte("NPHYSREQ")
	responseMagic  = []byte("NPHYSACK")
)

const maxDatagram = 512

// Challenge returns the datagram a client broadcasts.
func Challenge() []byte {
	return append([]byte(nil), challengeMagic...)
}

// IsChallenge reports whether data starts with the challenge marker.
func IsChallenge(data []byte) bool {
	return len(data) >= MagicSize && subtle.ConstantTimeCompare(data[:MagicSize], challengeMagic) == 1
}

// Response builds the reply advertising url.
func Response(url string) []byte {
	out := make([]byte, 0, MagicSize+len(url))
	out = append(out, responseMagic...)
	return append(out, url...)
}

// ParseResponse extracts the advertised URL from a reply.
func ParseResponse(data []byte) (string, bool) {
	if len(data) <= MagicSize || subtle.ConstantTimeCompare(data[:MagicSize], responseMagic) != 1 {
		return "", false
	}
	return string(data[MagicSize:]), true
}

// Config tunes a Responder.
type Config struct {
	RepliesPerSecond float64
	Burst            int
	Logger           telemetry.Logger
	Metrics          telemetry.Metrics
}

// Responder answers discovery challenges on a UDP socket.
type Responder struct {
	conn    net.PacketConn
	url     string
	limiter *rate.Limiter
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Listen opens a UDP socket on addr that advertises url.
func Listen(addr, url string, cfg Config) (*Responder, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen discovery %s: %w", addr, err)
	}
	if cfg.RepliesPerSecond <= 0 {
		cfg.RepliesPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NopMetrics()
	}
	return &Responder{
		conn:    conn,
		url:     url,
		limiter: rate.NewLimiter(rate.Limit(cfg.RepliesPerSecond), cfg.Burst),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Addr returns the bound address.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Serve answers challenges until ctx ends or the socket is closed.
func (r *Responder) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()
	reply := Response(r.url)
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read discovery: %w", err)
		}
		if !IsChallenge(buf[:n]) {
			continue
		}
		if !r.limiter.Allow() {
			continue
		}
		if _, err := r.conn.WriteTo(reply, from); err != nil {
			r.logger.Printf("discovery reply to %s failed: %v", from, err)
			continue
		}
		r.metrics.Add(telemetry.MetricDiscoveryReplies, 1)
	}
}

// Close stops the responder.
func (r *Responder) Close() error {
	return r.conn.Close()
}

// Probe sends a challenge to target (usually a broadcast address such as
// 255.255.255.255:port) and collects distinct host URLs until ctx ends or
// wait elapses.
func Probe(ctx context.Context, target string, wait time.Duration) ([]string, error) {
	addr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open probe socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteTo(Challenge(), addr); err != nil {
		return nil, fmt.Errorf("send challenge: %w", err)
	}
	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var urls []string
	seen := make(map[string]bool)
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return urls, nil
			}
			return urls, fmt.Errorf("read probe reply: %w", err)
		}
		url, ok := ParseResponse(bytes.Clone(buf[:n]))
		if !ok || seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
}
