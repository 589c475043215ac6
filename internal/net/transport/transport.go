// Package transport moves opaque packets between the host and its clients.
//
// Transports run their own I/O goroutines and hand events to the session
// through Poll, which never blocks.
package transport

import "errors"

// PeerID identifies a remote endpoint on one transport.
type PeerID uint64

// ServerPeer is the id a client transport uses for the host.
const ServerPeer PeerID = 0

// Reliability selects the delivery guarantee of a send.
type Reliability int

const (
	// Unreliable packets may be dropped under backpressure.
	Unreliable Reliability = iota
	// Reliable packets are queued until delivered or the peer goes away.
	Reliable
)

// EventKind classifies transport events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventPacket
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// Event is one item handed to the session by Poll.
type Event struct {
	Kind EventKind
	Peer PeerID
	Data []byte
}

var (
	// ErrUnknownPeer reports a send or disconnect for a peer that is not connected.
	ErrUnknownPeer = errors.New("transport: unknown peer")
	// ErrClosed reports use of a closed transport.
	ErrClosed = errors.New("transport: closed")
)

// Transport is the byte pipe used by the relay.
type Transport interface {
	Send(peer PeerID, data []byte, reliability Reliability) error
	Poll() []Event
	Disconnect(peer PeerID) error
	Close() error
}
