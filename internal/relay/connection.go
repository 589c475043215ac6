package relay

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/delta"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/jitter"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/priority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/seq"
)

// ConnectionState is the lifecycle state of a connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// connection is everything one side keeps about one remote participant.
// Times are session seconds.
type connection struct {
	slot  int
	peer  transport.PeerID
	state ConnectionState

	startedAt    float64
	connectedAt  float64
	lastSent     float64
	lastReceived float64

	encoder   *delta.Encoder
	decoder   *delta.Decoder
	sent      *seq.SentPackets
	received  *seq.ReceivedPackets
	scheduler *priority.Scheduler
	jitter    *jitter.Buffer

	// sequence is the next outbound packet sequence. It starts at 1 so an
	// empty ack header, which carries 0, acknowledges nothing.
	sequence uint16

	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	decodeFailures  uint64
	stalePackets    uint64
}

func newConnection(slot int, peer transport.PeerID, now float64, epoch uint16, cfg Config) *connection {
	c := &connection{
		slot:         slot,
		peer:         peer,
		state:        StateConnecting,
		startedAt:    now,
		lastReceived: now,
		encoder:      delta.NewEncoder(),
		decoder:      delta.NewDecoder(),
		sent:         seq.NewSentPackets(delta.HistorySize),
		received:     seq.NewReceivedPackets(),
		scheduler:    priority.NewScheduler(cfg.Policy),
		jitter:       jitter.New(jitter.Config{Capacity: jitter.DefaultCapacity, Delay: cfg.JitterDelay.Seconds()}),
		sequence:     1,
	}
	c.resetEpoch(epoch)
	return c
}

func (c *connection) nextSequence() uint16 {
	s := c.sequence
	c.sequence++
	return s
}

func (c *connection) markConnected(now float64) {
	if c.state == StateConnected {
		return
	}
	c.state = StateConnected
	c.connectedAt = now
}

// resetEpoch clears every piece of per-epoch state: baselines, priorities
// and buffered avatars. Packet acknowledgement continues across epochs.
func (c *connection) resetEpoch(epoch uint16) {
	c.encoder.Reset()
	c.encoder.SetEpoch(epoch)
	c.decoder.Reset()
	c.decoder.SetEpoch(epoch)
	c.scheduler.ResetAll()
	c.jitter.Reset()
	c.jitter.SetEpoch(epoch)
}

func (c *connection) expired(now, timeout float64) bool {
	return now-c.lastReceived > timeout
}
