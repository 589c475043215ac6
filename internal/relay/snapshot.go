package relay

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/delta"
)

// ConnectionSnapshot is the diagnostics view of one connection. Times are
// session seconds.
type ConnectionSnapshot struct {
	Slot            int                `json:"slot"`
	Peer            uint64             `json:"peer"`
	State           string             `json:"state"`
	StartedAt       float64            `json:"startedAt"`
	ConnectedAt     float64            `json:"connectedAt,omitempty"`
	LastSent        float64            `json:"lastSent"`
	LastReceived    float64            `json:"lastReceived"`
	NextSequence    uint16             `json:"nextSequence"`
	RemoteSequence  uint16             `json:"remoteSequence"`
	PacketsSent     uint64             `json:"packetsSent"`
	PacketsReceived uint64             `json:"packetsReceived"`
	BytesSent       uint64             `json:"bytesSent"`
	BytesReceived   uint64             `json:"bytesReceived"`
	DecodeFailures  uint64             `json:"decodeFailures"`
	StalePackets    uint64             `json:"stalePackets"`
	Encoder         delta.EncoderStats `json:"encoder"`
}

// RosterEntry is one occupied slot as advertised by the host.
type RosterEntry struct {
	Slot        int    `json:"slot"`
	UserID      uint64 `json:"userId"`
	DisplayName string `json:"displayName"`
	AnonymousID string `json:"anonymousId"`
}

// Snapshot is the diagnostics view of a session, published after every fixed
// tick.
type Snapshot struct {
	Role        string               `json:"role"`
	Slot        int                  `json:"slot"`
	Epoch       uint16               `json:"epoch"`
	Frame       uint32               `json:"frame"`
	Time        float64              `json:"time"`
	Owned       []int                `json:"owned,omitempty"`
	Connections []ConnectionSnapshot `json:"connections"`
	Roster      []RosterEntry        `json:"roster,omitempty"`
	Anchor      string               `json:"anchor,omitempty"`
}

// Snapshot returns the diagnostics published after the last fixed tick. It
// is safe to call from any goroutine.
func (s *session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := s.snapshot
	out.Owned = append([]int(nil), s.snapshot.Owned...)
	out.Connections = append([]ConnectionSnapshot(nil), s.snapshot.Connections...)
	out.Roster = append([]RosterEntry(nil), s.snapshot.Roster...)
	return out
}

func (s *session) publishSnapshot() {
	snap := Snapshot{
		Role:        s.role,
		Slot:        s.local(),
		Epoch:       s.epoch,
		Frame:       s.frame,
		Time:        s.now,
		Connections: make([]ConnectionSnapshot, 0, s.slots.Count()),
	}
	if s.local() >= 0 {
		snap.Owned = s.arb.Owned(s.local())
	}
	s.slots.Each(func(conn *connection) {
		remote, _, _ := conn.received.Ack()
		snap.Connections = append(snap.Connections, ConnectionSnapshot{
			Slot:            conn.slot,
			Peer:            uint64(conn.peer),
			State:           conn.state.String(),
			StartedAt:       conn.startedAt,
			ConnectedAt:     conn.connectedAt,
			LastSent:        conn.lastSent,
			LastReceived:    conn.lastReceived,
			NextSequence:    conn.sequence,
			RemoteSequence:  remote,
			PacketsSent:     conn.packetsSent,
			PacketsReceived: conn.packetsReceived,
			BytesSent:       conn.bytesSent,
			BytesReceived:   conn.bytesReceived,
			DecodeFailures:  conn.decodeFailures,
			StalePackets:    conn.stalePackets,
			Encoder:         conn.encoder.Stats(),
		})
	})
	if s.decorate != nil {
		s.decorate(&snap)
	}
	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()
}
