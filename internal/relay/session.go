package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/authority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/delta"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/proto"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/priority"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging/lifecycle"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging/network"
)

// Roles reported in snapshots.
const (
	RoleHost   = "host"
	RoleClient = "client"
)

// session is the state shared by Host and Client. Everything except the
// published snapshot is owned by the goroutine calling the tick methods.
type session struct {
	cfg  Config
	deps Deps
	role string

	arb   *authority.Arbitrator
	slots slotTable

	epoch   uint16
	frame   uint32
	tick    uint64
	now     float64
	timeout float64

	avatarSample     avatar.State
	avatarSampleTime float64
	haveAvatar       bool

	decorate func(*Snapshot)
	// present reports whether remote avatars of a slot may still be shown.
	// Nil shows every slot.
	present  func(slot int) bool

	snapMu   sync.RWMutex
	snapshot Snapshot
}

func newSession(role string, local, firstSlot int, cfg Config, deps Deps) (*session, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &session{
		cfg:     cfg,
		deps:    deps,
		role:    role,
		arb:     authority.New(local),
		slots:   newSlotTable(firstSlot),
		timeout: cfg.Timeout.Seconds(),
	}, nil
}

func (s *session) local() int {
	return s.arb.Local()
}

// Epoch returns the current reset epoch.
func (s *session) Epoch() uint16 {
	return s.epoch
}

// Authority returns the arbitration record of cube.
func (s *session) Authority(cube int) authority.Record {
	return s.arb.Record(cube)
}

// Grab makes the local participant the owner of cube.
func (s *session) Grab(cube int) bool {
	if s.local() < 0 || !s.arb.Grab(cube, s.local()) {
		return false
	}
	s.syncPhysics(cube)
	return true
}

// Release hands cube back to the host simulation.
func (s *session) Release(cube int) bool {
	if s.local() < 0 || !s.arb.Release(cube, s.local()) {
		return false
	}
	s.syncPhysics(cube)
	return true
}

// RenderTick advances every jitter buffer and hands the interpolated remote
// avatars to the collaborators. It also samples the local avatar sent on the
// next fixed tick.
func (s *session) RenderTick(tick sim.RenderContext) {
	s.avatarSample = s.deps.Avatars.Local()
	s.avatarSampleTime = tick.Time
	s.haveAvatar = true

	var remote []avatar.State
	s.slots.Each(func(conn *connection) {
		conn.jitter.AdvanceTime(tick.Delta)
		states, _, ok := conn.jitter.Sample()
		if !ok {
			return
		}
		for _, st := range states {
			if s.present == nil || s.present(st.ClientIndex) {
				remote = append(remote, st)
			}
		}
	})
	if len(remote) == 0 {
		return
	}
	s.deps.Avatars.ApplyRemote(remote)
	for _, st := range remote {
		s.deps.Animation.Apply(st.ClientIndex, st.Animation)
	}
}

func (s *session) beginTick(tick sim.FixedContext) {
	s.tick = tick.Frame
	s.frame = uint32(tick.Frame)
	s.now = tick.Time
	s.arb.SetFrame(s.frame)
}

func (s *session) finishTick() {
	connected := 0
	s.slots.Each(func(conn *connection) {
		if conn.state == StateConnected {
			connected++
		}
	})
	s.deps.Metrics.Store(telemetry.MetricConnectedClients, uint64(connected))
	s.publishSnapshot()
}

// syncPhysics copies the arbitration record of cube into the physics state.
func (s *session) syncPhysics(cube int) {
	r := s.arb.Record(cube)
	st := s.deps.Physics.Cube(cube)
	st.Owner = r.Owner
	st.AuthoritySequence = r.AuthoritySequence
	st.OwnershipSequence = r.OwnershipSequence
	s.deps.Physics.SetCube(cube, st)
}

func (s *session) quantizedCube(cube int) quant.QuantizedCubeState {
	r := s.arb.Record(cube)
	st := s.deps.Physics.Cube(cube)
	st.Owner = r.Owner
	st.AuthoritySequence = r.AuthoritySequence
	st.OwnershipSequence = r.OwnershipSequence
	return quant.Quantize(st)
}

func (s *session) numCubes() int {
	n := s.deps.Physics.NumCubes()
	if n > quant.NumCubes {
		n = quant.NumCubes
	}
	return n
}

// localAvatar returns the wire form of the local avatar with the authority
// of every held cube stamped into its hand.
func (s *session) localAvatar() avatar.Quantized {
	st := s.avatarSample
	if !s.haveAvatar {
		st = s.deps.Avatars.Local()
	}
	st.ClientIndex = s.local()
	st.Animation = s.deps.Animation.Serialize()
	for i := range st.Hands {
		hand := &st.Hands[i]
		if !hand.Holding {
			continue
		}
		r := s.arb.Record(hand.CubeID)
		hand.AuthoritySequence = r.AuthoritySequence
		hand.OwnershipSequence = r.OwnershipSequence
	}
	return avatar.Quantize(st)
}

func (s *session) avatarOffset() float32 {
	if !s.haveAvatar {
		return 0
	}
	return float32(s.avatarSampleTime - s.now)
}

func (s *session) sampleTime(h proto.Header) float64 {
	return float64(h.Frame)/float64(s.cfg.TickRate) + float64(h.AvatarSampleTime)
}

// received accounts for an inbound packet of any kind.
func (s *session) received(conn *connection, data []byte) {
	conn.packetsReceived++
	conn.bytesReceived += uint64(len(data))
	s.deps.Metrics.Add(telemetry.MetricPacketsReceived, 1)
	s.deps.Metrics.Add(telemetry.MetricBytesReceived, uint64(len(data)))
}

func (s *session) decodeFailed(ctx context.Context, conn *connection, sequence uint16, cubes []int, err error) {
	conn.decodeFailures++
	s.deps.Metrics.Add(telemetry.MetricDecodeFailures, 1)
	network.DecodeFailed(ctx, s.deps.Publisher, s.tick, logging.SlotRef(conn.slot), network.DecodeFailedPayload{
		Sequence: sequence,
		Cubes:    cubes,
		Error:    err.Error(),
	}, nil)
}

func (s *session) stale(ctx context.Context, conn *connection, h proto.Header) {
	conn.stalePackets++
	s.deps.Metrics.Add(telemetry.MetricStalePackets, 1)
	network.StalePacket(ctx, s.deps.Publisher, s.tick, logging.SlotRef(conn.slot), network.StalePacketPayload{
		Sequence:     h.Sequence,
		PacketEpoch:  h.ResetEpoch,
		CurrentEpoch: s.epoch,
	}, nil)
}

// decodeStateUpdate parses data. Packets with a malformed header or a
// truncated body are dropped whole.
func (s *session) decodeStateUpdate(ctx context.Context, conn *connection, data []byte) (proto.StateUpdate, bool) {
	msg, err := proto.DecodeStateUpdate(data)
	if err != nil {
		s.decodeFailed(ctx, conn, msg.Sequence, nil, err)
		return proto.StateUpdate{}, false
	}
	return msg, true
}

// applyStateUpdate runs the receive pipeline for a packet of the current
// epoch: acks, cube decoding, arbitration, physics and the jitter buffer.
func (s *session) applyStateUpdate(ctx context.Context, conn *connection, msg proto.StateUpdate, fromClient int) {
	conn.lastReceived = s.now

	if acked := conn.sent.Process(msg.Ack, msg.AckBits); len(acked) > 0 {
		for _, sequence := range acked {
			conn.encoder.Ack(sequence)
		}
		network.AckAdvanced(ctx, s.deps.Publisher, s.tick, logging.SlotRef(conn.slot), network.AckPayload{
			Ack:   msg.Ack,
			Acked: acked,
		}, nil)
	}

	result, err := conn.decoder.Decode(msg.Sequence, msg.ResetEpoch, msg.Frame, msg.Cubes)
	if err != nil {
		s.decodeFailed(ctx, conn, msg.Sequence, nil, err)
		return
	}
	conn.received.Record(msg.Sequence)
	if len(result.Failed) > 0 {
		s.decodeFailed(ctx, conn, msg.Sequence, result.Failed, delta.ErrMissingBaseline)
	}
	for _, r := range result.States {
		s.applyCube(ctx, conn, r, fromClient, msg.ResetEpoch)
	}

	states := make([]avatar.State, 0, len(msg.Avatars))
	for _, q := range msg.Avatars {
		if int(q.ClientIndex) == s.local() {
			continue
		}
		states = append(states, avatar.Unquantize(q))
	}
	if len(states) > 0 {
		conn.jitter.AddSample(msg.Frame, s.sampleTime(msg.Header), msg.ResetEpoch, states)
	}
}

func (s *session) applyCube(ctx context.Context, conn *connection, r delta.Resolved, fromClient int, epoch uint16) {
	claim := authority.Claim{
		AuthorityIndex:    r.State.AuthorityIndex,
		AuthoritySequence: r.State.AuthoritySequence,
		OwnershipSequence: r.State.OwnershipSequence,
		Epoch:             epoch,
	}
	previous := s.arb.Record(r.ID).Owner
	decision, reason := s.arb.Apply(r.ID, claim, fromClient)
	if decision == authority.Reject {
		if reason == authority.ReasonForeignClaim {
			network.AuthorityRejected(ctx, s.deps.Publisher, s.tick, logging.SlotRef(conn.slot), network.AuthorityPayload{
				Cube:              r.ID,
				Reason:            string(reason),
				OwnershipSequence: claim.OwnershipSequence,
				AuthoritySequence: claim.AuthoritySequence,
			}, map[string]any{"claimedOwner": claim.Owner()})
		}
		return
	}
	if previous == s.local() && claim.Owner() != s.local() {
		s.deps.Physics.Detach(r.ID)
	}
	s.deps.Physics.SetCube(r.ID, quant.Unquantize(r.State))
}

// sendStateUpdate picks, encodes and sends the cubes candidates compete for,
// together with avatars.
func (s *session) sendStateUpdate(conn *connection, candidates []int, avatars []avatar.Quantized) error {
	infos := make([]priority.Info, 0, len(candidates))
	for _, id := range candidates {
		r := s.arb.Record(id)
		infos = append(infos, priority.Info{
			ID:                 id,
			Held:               r.Owner != authority.Free,
			RecentlyInteracted: s.arb.RecentlyInteracted(id, s.cfg.InteractionWindow),
			AtRest:             s.deps.Physics.Cube(id).AtRest,
		})
	}
	conn.scheduler.Update(infos)
	ids := conn.scheduler.Select(s.cfg.MaxStateUpdates)
	states := make([]quant.QuantizedCubeState, len(ids))
	for i, id := range ids {
		states[i] = s.quantizedCube(id)
	}

	sequence := conn.nextSequence()
	ack, bits, _ := conn.received.Ack()
	msg := proto.StateUpdate{
		Header: proto.Header{
			Sequence:         sequence,
			Ack:              ack,
			AckBits:          bits,
			Frame:            s.frame,
			ResetEpoch:       s.epoch,
			AvatarSampleTime: s.avatarOffset(),
		},
		Avatars: avatars,
		Cubes:   conn.encoder.Encode(sequence, s.epoch, s.frame, ids, states),
	}
	data, err := proto.EncodeStateUpdate(msg)
	if err != nil {
		return fmt.Errorf("slot %d: %w", conn.slot, err)
	}
	conn.sent.Record(sequence)
	if err := s.deps.Transport.Send(conn.peer, data, transport.Unreliable); err != nil {
		return fmt.Errorf("send state update to slot %d: %w", conn.slot, err)
	}
	for _, id := range ids {
		conn.scheduler.Reset(id)
	}
	conn.lastSent = s.now
	conn.packetsSent++
	conn.bytesSent += uint64(len(data))
	s.deps.Metrics.Add(telemetry.MetricPacketsSent, 1)
	s.deps.Metrics.Add(telemetry.MetricBytesSent, uint64(len(data)))
	return nil
}

// resetWorld moves every piece of per-epoch state to epoch.
func (s *session) resetWorld(ctx context.Context, epoch uint16) {
	previous := s.epoch
	s.epoch = epoch
	s.deps.Physics.Reset()
	s.arb.Reset(epoch)
	s.slots.Each(func(conn *connection) {
		conn.resetEpoch(epoch)
	})
	s.deps.Metrics.Store(telemetry.MetricResetEpoch, uint64(epoch))
	lifecycle.WorldReset(ctx, s.deps.Publisher, s.tick, logging.SlotRef(authority.HostIndex), lifecycle.WorldResetPayload{
		Previous: previous,
		Epoch:    epoch,
	}, nil)
}

// releaseSlot tears a connection down and empties its slot. On the host the
// cubes of the departed client go free and its avatar is withdrawn.
func (s *session) releaseSlot(ctx context.Context, conn *connection, reason string) {
	var released []int
	if s.role == RoleHost {
		released = s.arb.ReleaseClient(conn.slot)
		for _, id := range released {
			s.deps.Physics.Detach(id)
			s.syncPhysics(id)
		}
		s.deps.Avatars.Forget(conn.slot)
	}
	s.slots.Free(conn.slot)
	if reason == lifecycle.ReasonTimeout {
		s.deps.Metrics.Add(telemetry.MetricTimeouts, 1)
	}
	lifecycle.ClientDisconnected(ctx, s.deps.Publisher, s.tick, logging.SlotRef(conn.slot), lifecycle.ClientDisconnectedPayload{
		Slot:     conn.slot,
		Reason:   reason,
		Released: released,
	}, map[string]any{"peer": uint64(conn.peer)})
}
