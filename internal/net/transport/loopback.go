package transport

import (
	"fmt"
	"sync"
)

// LossFunc decides whether an unreliable packet from one endpoint to another
// is dropped.
type LossFunc func(from, to *Loopback, data []byte) bool

// LoopbackNetwork connects in-process endpoints without goroutines. Packets
// are delivered to the receiver's queue immediately and read on its next Poll.
type LoopbackNetwork struct {
	mu     sync.Mutex
	host   *Loopback
	nextID PeerID
	loss   LossFunc
}

// NewLoopbackNetwork creates a network with one host endpoint.
func NewLoopbackNetwork() *LoopbackNetwork {
	n := &LoopbackNetwork{}
	n.host = newLoopback(n, "host")
	return n
}

// SetLoss installs a packet loss policy for unreliable sends.
func (n *LoopbackNetwork) SetLoss(loss LossFunc) {
	n.mu.Lock()
	n.loss = loss
	n.mu.Unlock()
}

// Host returns the host endpoint.
func (n *LoopbackNetwork) Host() *Loopback {
	return n.host
}

// Dial creates a client endpoint connected to the host.
func (n *LoopbackNetwork) Dial(name string) (*Loopback, error) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.mu.Unlock()

	client := newLoopback(n, name)
	if err := n.host.link(id, client, ServerPeer); err != nil {
		return nil, err
	}
	if err := client.link(ServerPeer, n.host, id); err != nil {
		return nil, err
	}
	return client, nil
}

func (n *LoopbackNetwork) dropped(from, to *Loopback, data []byte) bool {
	n.mu.Lock()
	loss := n.loss
	n.mu.Unlock()
	return loss != nil && loss(from, to, data)
}

type loopLink struct {
	remote *Loopback
	// remoteID is the id this endpoint has on the remote side.
	remoteID PeerID
}

// Loopback is one endpoint of a LoopbackNetwork.
type Loopback struct {
	Name string

	net    *LoopbackNetwork
	mu     sync.Mutex
	links  map[PeerID]loopLink
	queue  []Event
	closed bool
}

func newLoopback(n *LoopbackNetwork, name string) *Loopback {
	return &Loopback{Name: name, net: n, links: make(map[PeerID]loopLink)}
}

func (l *Loopback) link(id PeerID, remote *Loopback, remoteID PeerID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.links[id] = loopLink{remote: remote, remoteID: remoteID}
	l.queue = append(l.queue, Event{Kind: EventConnected, Peer: id})
	return nil
}

func (l *Loopback) deliver(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, event)
}

// unlink removes the link to id and reports whether it existed.
func (l *Loopback) unlink(id PeerID) (loopLink, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if ok {
		delete(l.links, id)
	}
	return link, ok
}

// Send implements Transport.
func (l *Loopback) Send(peer PeerID, data []byte, reliability Reliability) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	link, ok := l.links[peer]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer %d: %w", peer, ErrUnknownPeer)
	}
	if reliability == Unreliable && l.net.dropped(l, link.remote, data) {
		return nil
	}
	link.remote.deliver(Event{Kind: EventPacket, Peer: link.remoteID, Data: append([]byte(nil), data...)})
	return nil
}

// Poll implements Transport.
func (l *Loopback) Poll() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.queue
	l.queue = nil
	return out
}

// Disconnect implements Transport. The remote side sees EventDisconnected.
func (l *Loopback) Disconnect(peer PeerID) error {
	link, ok := l.unlink(peer)
	if !ok {
		return fmt.Errorf("peer %d: %w", peer, ErrUnknownPeer)
	}
	if _, ok := link.remote.unlink(link.remoteID); ok {
		link.remote.deliver(Event{Kind: EventDisconnected, Peer: link.remoteID})
	}
	return nil
}

// Close implements Transport.
func (l *Loopback) Close() error {
	l.mu.Lock()
	ids := make([]PeerID, 0, len(l.links))
	for id := range l.links {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	for _, id := range ids {
		l.Disconnect(id)
	}
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	return nil
}
