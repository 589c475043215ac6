package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/authority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/proto"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging/lifecycle"
)

// Host is the relaying participant in slot 0.
type Host struct {
	*session

	roster    [quant.MaxClients]proto.Slot
	avatars   [quant.MaxClients]*avatar.Quantized
	anchor    uuid.UUID
	hasAnchor bool
}

// NewHost creates the host side of a session.
func NewHost(cfg Config, deps Deps) (*Host, error) {
	s, err := newSession(RoleHost, authority.HostIndex, authority.HostIndex+1, cfg, deps)
	if err != nil {
		return nil, err
	}
	h := &Host{session: s}
	h.roster[authority.HostIndex] = proto.Slot{
		Connected:   true,
		UserID:      s.cfg.Identity.UserID,
		DisplayName: s.cfg.Identity.DisplayName,
		AnonymousID: s.cfg.Identity.AnonymousID,
	}
	s.decorate = h.decorate
	return h, nil
}

// Roster returns the current slot table as advertised to clients.
func (h *Host) Roster() proto.ServerInfo {
	return proto.ServerInfo{ClientIndex: authority.HostIndex, Slots: h.roster}
}

// FixedTick runs one simulation tick of the host.
func (h *Host) FixedTick(ctx context.Context, tick sim.FixedContext) {
	h.beginTick(tick)

	for _, cmd := range tick.Commands {
		switch cmd.Type {
		case sim.CommandResetWorld:
			h.ResetWorld(ctx)
		case sim.CommandShareAnchor:
			h.ShareAnchor(cmd.Anchor)
		default:
			h.deps.Logger.Printf("[relay] ignoring command %q", cmd.Type)
		}
	}

	for _, event := range h.deps.Transport.Poll() {
		switch event.Kind {
		case transport.EventConnected:
			h.accept(ctx, event.Peer)
		case transport.EventDisconnected:
			if conn := h.slots.ByPeer(event.Peer); conn != nil {
				h.drop(ctx, conn, lifecycle.ReasonRemote)
			}
		case transport.EventPacket:
			h.handlePacket(ctx, event.Peer, event.Data)
		}
	}

	h.arb.Advance(h.local())
	h.sendAll()

	h.slots.Each(func(conn *connection) {
		if !conn.expired(h.now, h.timeout) {
			return
		}
		if err := h.deps.Transport.Disconnect(conn.peer); err != nil && !errors.Is(err, transport.ErrUnknownPeer) {
			h.deps.Logger.Printf("[relay] disconnect slot %d: %v", conn.slot, err)
		}
		h.drop(ctx, conn, lifecycle.ReasonTimeout)
	})

	h.finishTick()
}

// ResetWorld advances the reset epoch and puts every cube back in its
// starting position.
func (h *Host) ResetWorld(ctx context.Context) {
	h.resetWorld(ctx, h.epoch+1)
	for slot := range h.avatars {
		h.avatars[slot] = nil
	}
}

// ShareAnchor sends the spatial anchor id to every client, now and on every
// later connect.
func (h *Host) ShareAnchor(id uuid.UUID) {
	h.anchor = id
	h.hasAnchor = true
	h.slots.Each(func(conn *connection) {
		h.sendAnchor(conn)
	})
}

func (h *Host) accept(ctx context.Context, peer transport.PeerID) {
	if h.slots.ByPeer(peer) != nil {
		return
	}
	slot := h.slots.Assign(func(slot int) *connection {
		return newConnection(slot, peer, h.now, h.epoch, h.cfg)
	})
	if slot < 0 {
		if err := h.deps.Transport.Disconnect(peer); err != nil && !errors.Is(err, transport.ErrUnknownPeer) {
			h.deps.Logger.Printf("[relay] reject peer %d: %v", peer, err)
		}
		lifecycle.ClientDisconnected(ctx, h.deps.Publisher, h.tick, logging.EntityRef{}, lifecycle.ClientDisconnectedPayload{
			Slot:   -1,
			Reason: lifecycle.ReasonFull,
		}, map[string]any{"peer": uint64(peer)})
		return
	}
	h.roster[slot] = proto.Slot{
		Connected:   true,
		UserID:      uint64(peer),
		DisplayName: fmt.Sprintf("client-%d", slot),
		AnonymousID: uuid.New(),
	}
	lifecycle.ClientConnected(ctx, h.deps.Publisher, h.tick, logging.SlotRef(slot), lifecycle.ClientConnectedPayload{
		Slot: slot,
		Peer: uint64(peer),
	}, nil)
	h.broadcastServerInfo()
	if h.hasAnchor {
		h.sendAnchor(h.slots.Get(slot))
	}
}

func (h *Host) drop(ctx context.Context, conn *connection, reason string) {
	slot := conn.slot
	h.releaseSlot(ctx, conn, reason)
	h.roster[slot] = proto.Slot{}
	h.avatars[slot] = nil
	h.broadcastServerInfo()
}

func (h *Host) handlePacket(ctx context.Context, peer transport.PeerID, data []byte) {
	conn := h.slots.ByPeer(peer)
	if conn == nil {
		return
	}
	h.received(conn, data)

	kind, err := proto.Type(data)
	if err != nil {
		h.decodeFailed(ctx, conn, 0, nil, err)
		return
	}
	if kind != proto.PacketStateUpdate {
		h.decodeFailed(ctx, conn, 0, nil, fmt.Errorf("%w: %s from client", proto.ErrUnexpectedType, kind))
		return
	}
	msg, ok := h.decodeStateUpdate(ctx, conn, data)
	if !ok {
		return
	}
	if msg.ResetEpoch != h.epoch {
		h.stale(ctx, conn, msg.Header)
		return
	}
	conn.markConnected(h.now)

	// A client only speaks for itself.
	own := msg.Avatars[:0]
	for _, a := range msg.Avatars {
		if int(a.ClientIndex) == conn.slot {
			own = append(own, a)
		}
	}
	msg.Avatars = own

	h.applyStateUpdate(ctx, conn, msg, conn.slot)
	if len(own) > 0 {
		latest := own[len(own)-1]
		h.avatars[conn.slot] = &latest
	}
}

// sendAll sends a state update to every client: the host avatar, the latest
// avatar of every other client and the cubes chosen by its scheduler.
func (h *Host) sendAll() {
	local := h.localAvatar()
	candidates := make([]int, h.numCubes())
	for id := range candidates {
		candidates[id] = id
	}
	h.slots.Each(func(conn *connection) {
		avatars := make([]avatar.Quantized, 0, proto.MaxAvatars)
		avatars = append(avatars, local)
		for slot, a := range h.avatars {
			if a != nil && slot != conn.slot {
				avatars = append(avatars, *a)
			}
		}
		if err := h.sendStateUpdate(conn, candidates, avatars); err != nil {
			h.deps.Logger.Printf("[relay] %v", err)
		}
	})
}

func (h *Host) broadcastServerInfo() {
	h.slots.Each(func(conn *connection) {
		data, err := proto.EncodeServerInfo(proto.ServerInfo{ClientIndex: conn.slot, Slots: h.roster})
		if err != nil {
			h.deps.Logger.Printf("[relay] encode server info for slot %d: %v", conn.slot, err)
			return
		}
		h.sendReliable(conn, data)
	})
}

func (h *Host) sendAnchor(conn *connection) {
	if conn == nil {
		return
	}
	data, err := proto.EncodeAnchorGuid(h.anchor)
	if err != nil {
		h.deps.Logger.Printf("[relay] encode anchor: %v", err)
		return
	}
	h.sendReliable(conn, data)
}

func (h *Host) sendReliable(conn *connection, data []byte) {
	if err := h.deps.Transport.Send(conn.peer, data, transport.Reliable); err != nil {
		h.deps.Logger.Printf("[relay] send to slot %d: %v", conn.slot, err)
		return
	}
	conn.packetsSent++
	conn.bytesSent += uint64(len(data))
	h.deps.Metrics.Add(telemetry.MetricPacketsSent, 1)
	h.deps.Metrics.Add(telemetry.MetricBytesSent, uint64(len(data)))
}

func (h *Host) decorate(snap *Snapshot) {
	for slot, entry := range h.roster {
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
	if h.hasAnchor {
		snap.Anchor = h.anchor.String()
	}
}
