package relay

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/authority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/proto"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/seq"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging/lifecycle"
)

// Client is a participant connected to a Host. It learns its slot from the
// first ServerInfo and follows the host's reset epoch.
type Client struct {
	*session

	info      proto.ServerInfo
	hasInfo   bool
	anchor    uuid.UUID
	hasAnchor bool

	// synced is set once the first state update fixed the epoch.
	synced      bool
	closed      bool
	closeReason string
}

// NewClient creates the client side of a session. The transport must be
// connected, or about to connect, to the host as transport.ServerPeer.
func NewClient(cfg Config, deps Deps) (*Client, error) {
	s, err := newSession(RoleClient, authority.Free, authority.HostIndex, cfg, deps)
	if err != nil {
		return nil, err
	}
	c := &Client{session: s}
	s.decorate = c.decorate
	s.present = c.present
	return c, nil
}

// Connected reports whether the host has assigned a slot.
func (c *Client) Connected() bool {
	conn := c.slots.Get(authority.HostIndex)
	return conn != nil && conn.state == StateConnected
}

// Slot returns the assigned slot, or authority.Free before ServerInfo arrived.
func (c *Client) Slot() int {
	return c.local()
}

// Closed reports whether the connection to the host is gone, and why.
func (c *Client) Closed() (bool, string) {
	return c.closed, c.closeReason
}

// Anchor returns the spatial anchor shared by the host.
func (c *Client) Anchor() (uuid.UUID, bool) {
	return c.anchor, c.hasAnchor
}

// Roster returns the last ServerInfo received.
func (c *Client) Roster() (proto.ServerInfo, bool) {
	return c.info, c.hasInfo
}

// FixedTick runs one simulation tick of the client.
func (c *Client) FixedTick(ctx context.Context, tick sim.FixedContext) {
	c.beginTick(tick)

	for _, cmd := range tick.Commands {
		c.deps.Logger.Printf("[relay] client ignores command %q", cmd.Type)
	}

	for _, event := range c.deps.Transport.Poll() {
		if event.Peer != transport.ServerPeer {
			continue
		}
		switch event.Kind {
		case transport.EventConnected:
			if c.slots.Get(authority.HostIndex) == nil && !c.closed {
				c.slots.Put(authority.HostIndex, newConnection(authority.HostIndex, transport.ServerPeer, c.now, c.epoch, c.cfg))
			}
		case transport.EventDisconnected:
			c.close(ctx, lifecycle.ReasonRemote)
		case transport.EventPacket:
			c.handlePacket(ctx, event.Data)
		}
	}

	if c.Connected() && c.local() >= 0 {
		c.arb.Advance(c.local())
		c.sendOwned()
	}

	if conn := c.slots.Get(authority.HostIndex); conn != nil && conn.expired(c.now, c.timeout) {
		if err := c.deps.Transport.Disconnect(transport.ServerPeer); err != nil && !errors.Is(err, transport.ErrUnknownPeer) {
			c.deps.Logger.Printf("[relay] disconnect host: %v", err)
		}
		c.close(ctx, lifecycle.ReasonTimeout)
	}

	c.finishTick()
}

func (c *Client) close(ctx context.Context, reason string) {
	conn := c.slots.Get(authority.HostIndex)
	if conn == nil {
		return
	}
	c.releaseSlot(ctx, conn, reason)
	c.closed = true
	c.closeReason = reason
	for slot := range c.info.Slots {
		if slot != c.local() {
			c.deps.Avatars.Forget(slot)
		}
	}
}

// present hides avatars of slots the roster no longer lists, including
// samples still queued in the jitter buffer when the slot emptied.
func (c *Client) present(slot int) bool {
	if c.closed {
		return false
	}
	if !c.hasInfo || slot < 0 || slot >= len(c.info.Slots) {
		return true
	}
	return c.info.Slots[slot].Connected
}

func (c *Client) handlePacket(ctx context.Context, data []byte) {
	conn := c.slots.Get(authority.HostIndex)
	if conn == nil {
		return
	}
	c.received(conn, data)

	kind, err := proto.Type(data)
	if err != nil {
		c.decodeFailed(ctx, conn, 0, nil, err)
		return
	}
	switch kind {
	case proto.PacketServerInfo:
		info, err := proto.DecodeServerInfo(data)
		if err != nil {
			c.decodeFailed(ctx, conn, 0, nil, err)
			return
		}
		conn.lastReceived = c.now
		c.applyServerInfo(ctx, conn, info)
	case proto.PacketAnchorGuid:
		id, err := proto.DecodeAnchorGuid(data)
		if err != nil {
			c.decodeFailed(ctx, conn, 0, nil, err)
			return
		}
		conn.lastReceived = c.now
		c.anchor = id
		c.hasAnchor = true
	case proto.PacketStateUpdate:
		if conn.state != StateConnected {
			return
		}
		msg, ok := c.decodeStateUpdate(ctx, conn, data)
		if !ok {
			return
		}
		switch {
		case !c.synced:
			c.synced = true
			if msg.ResetEpoch != c.epoch {
				c.resetWorld(ctx, msg.ResetEpoch)
			}
		case seq.GreaterThan(msg.ResetEpoch, c.epoch):
			c.resetWorld(ctx, msg.ResetEpoch)
		case msg.ResetEpoch != c.epoch:
			c.stale(ctx, conn, msg.Header)
			return
		}
		c.applyStateUpdate(ctx, conn, msg, authority.HostIndex)
	}
}

func (c *Client) applyServerInfo(ctx context.Context, conn *connection, info proto.ServerInfo) {
	first := !c.hasInfo
	for slot, entry := range c.info.Slots {
		if entry.Connected && !info.Slots[slot].Connected {
			c.deps.Avatars.Forget(slot)
		}
	}
	c.info = info
	c.hasInfo = true
	c.arb.SetLocal(info.ClientIndex)
	conn.markConnected(c.now)
	if first {
		lifecycle.ClientConnected(ctx, c.deps.Publisher, c.tick, logging.SlotRef(info.ClientIndex), lifecycle.ClientConnectedPayload{
			Slot: info.ClientIndex,
			Peer: uint64(transport.ServerPeer),
		}, nil)
	}
}

// sendOwned sends the local avatar with the cubes this client holds or
// recently let go of.
func (c *Client) sendOwned() {
	local := c.local()
	var candidates []int
	for id := 0; id < c.numCubes(); id++ {
		r := c.arb.Record(id)
		switch {
		case r.Owner == local:
			candidates = append(candidates, id)
		case r.Owner == authority.Free && c.arb.RecentlyInteracted(id, c.cfg.InteractionWindow):
			candidates = append(candidates, id)
		}
	}
	conn := c.slots.Get(authority.HostIndex)
	if err := c.sendStateUpdate(conn, candidates, []avatar.Quantized{c.localAvatar()}); err != nil {
		c.deps.Logger.Printf("[relay] %v", err)
	}
}

func (c *Client) decorate(snap *Snapshot) {
	if c.hasInfo {
		for slot, entry := range c.info.Slots {
			if !entry.Connected {
				continue
			}
			snap.Roster = append(snap.Roster, RosterEntry{
				Slot:        slot,
				UserID:      entry.UserID,
				DisplayName: entry.DisplayName,
				AnonymousID: entry.AnonymousID.String(),
			})
		}
	}
	if c.hasAnchor {
		snap.Anchor = c.anchor.String()
	}
}
