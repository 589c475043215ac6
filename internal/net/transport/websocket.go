package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
)

const (
	defaultEventBuffer = 1024
	defaultSendQueue   = 64
	writeWait          = 2 * time.Second
	maxMessageSize     = 16 * 1024
)

// Config tunes the websocket transports.
type Config struct {
	EventBuffer int
	SendQueue   int
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
}

func (c Config) withDefaults() Config {
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	if c.Logger == nil {
		c.Logger = telemetry.Discard()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NopMetrics()
	}
	return c
}

// endpoint is the state shared by the host and client websocket transports.
type endpoint struct {
	cfg    Config
	events chan Event
	done   chan struct{}
	closed atomic.Bool

	mu    sync.Mutex
	peers map[PeerID]*wsPeer
}

func newEndpoint(cfg Config) *endpoint {
	cfg = cfg.withDefaults()
	return &endpoint{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
		peers:  make(map[PeerID]*wsPeer),
	}
}

type wsPeer struct {
	id       PeerID
	conn     *websocket.Conn
	outbound chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func (p *wsPeer) shutdown() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.conn.Close()
	})
}

// lifecycle events must not be lost, packet events may be.
func (e *endpoint) emit(event Event) {
	if event.Kind == EventPacket {
		select {
		case e.events <- event:
		default:
			e.cfg.Metrics.Add(telemetry.MetricSendDrops, 1)
		}
		return
	}
	select {
	case e.events <- event:
	case <-e.done:
	}
}

func (e *endpoint) attach(id PeerID, conn *websocket.Conn) *wsPeer {
	peer := &wsPeer{
		id:       id,
		conn:     conn,
		outbound: make(chan []byte, e.cfg.SendQueue),
		stop:     make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	e.mu.Lock()
	e.peers[id] = peer
	e.mu.Unlock()

	e.emit(Event{Kind: EventConnected, Peer: id})
	go e.writeLoop(peer)
	go e.readLoop(peer)
	return peer
}

func (e *endpoint) readLoop(peer *wsPeer) {
	defer e.detach(peer, true)
	for {
		kind, payload, err := peer.conn.ReadMessage()
		if err != nil {
			select {
			case <-peer.stop:
			default:
				e.cfg.Logger.Printf("peer %d read failed: %v", peer.id, err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		e.emit(Event{Kind: EventPacket, Peer: peer.id, Data: payload})
	}
}

func (e *endpoint) writeLoop(peer *wsPeer) {
	for {
		select {
		case <-peer.stop:
			return
		case data := <-peer.outbound:
			peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := peer.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				e.cfg.Logger.Printf("peer %d write failed: %v", peer.id, err)
				peer.shutdown()
				return
			}
		}
	}
}

// detach forgets peer. notify reports the disconnect through Poll.
func (e *endpoint) detach(peer *wsPeer, notify bool) {
	e.mu.Lock()
	current, ok := e.peers[peer.id]
	if ok && current == peer {
		delete(e.peers, peer.id)
	}
	e.mu.Unlock()
	peer.shutdown()
	if ok && current == peer && notify && !e.closed.Load() {
		e.emit(Event{Kind: EventDisconnected, Peer: peer.id})
	}
}

func (e *endpoint) lookup(id PeerID) (*wsPeer, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	peer, ok := e.peers[id]
	if !ok {
		return nil, fmt.Errorf("peer %d: %w", id, ErrUnknownPeer)
	}
	return peer, nil
}

// Send queues data for peer. Unreliable packets are dropped when the peer's
// queue is full; reliable packets wait for room.
func (e *endpoint) Send(id PeerID, data []byte, reliability Reliability) error {
	peer, err := e.lookup(id)
	if err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	if reliability == Unreliable {
		select {
		case peer.outbound <- payload:
		default:
			e.cfg.Metrics.Add(telemetry.MetricSendDrops, 1)
		}
		return nil
	}
	select {
	case peer.outbound <- payload:
		return nil
	case <-peer.stop:
		return fmt.Errorf("peer %d: %w", id, ErrUnknownPeer)
	case <-e.done:
		return ErrClosed
	}
}

// Poll drains pending events without blocking.
func (e *endpoint) Poll() []Event {
	var out []Event
	for {
		select {
		case event := <-e.events:
			out = append(out, event)
		default:
			return out
		}
	}
}

// Disconnect closes the connection to peer. No disconnect event is reported
// for peers closed locally.
func (e *endpoint) Disconnect(id PeerID) error {
	peer, err := e.lookup(id)
	if err != nil {
		return err
	}
	peer.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"),
		time.Now().Add(writeWait))
	e.detach(peer, false)
	return nil
}

// Close disconnects every peer.
func (e *endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.done)
	e.mu.Lock()
	peers := make([]*wsPeer, 0, len(e.peers))
	for _, peer := range e.peers {
		peers = append(peers, peer)
	}
	e.peers = make(map[PeerID]*wsPeer)
	e.mu.Unlock()
	for _, peer := range peers {
		peer.shutdown()
	}
	return nil
}

// Host accepts client connections over websocket upgrades.
type Host struct {
	*endpoint
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewHost creates a host transport. Mount it with ServeHTTP.
func NewHost(cfg Config) *Host {
	return &Host{
		endpoint: newEndpoint(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request and registers the client as a peer.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "host closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	h.attach(PeerID(h.nextID.Add(1)), conn)
}

// Client is a single websocket connection to a host.
type Client struct {
	*endpoint
}

// DialConfig controls connection retries.
type DialConfig struct {
	Attempts int
	Backoff  time.Duration
}

// Dial connects to a host websocket URL, retrying until ctx ends or the
// attempts run out. The host appears as ServerPeer.
func Dial(ctx context.Context, url string, dial DialConfig, cfg Config) (*Client, error) {
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, fmt.Errorf("invalid ws url: %s", url)
	}
	if dial.Attempts <= 0 {
		dial.Attempts = 12
	}
	if dial.Backoff <= 0 {
		dial.Backoff = 180 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt < dial.Attempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			client := &Client{endpoint: newEndpoint(cfg)}
			client.attach(ServerPeer, conn)
			return client, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dial.Backoff):
		}
	}
	return nil, fmt.Errorf("dial %s: %w", url, lastErr)
}
