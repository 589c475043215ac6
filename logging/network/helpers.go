package network

import (
	"context"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

const (
	// EventDecodeFailed is emitted when a packet or a cube update cannot be decoded.
	EventDecodeFailed logging.EventType = "network.decode_failed"
	// EventStalePacket is emitted when a packet tagged with an old reset epoch is discarded.
	EventStalePacket logging.EventType = "network.stale_packet"
	// EventAckAdvanced is emitted when a peer acknowledges newer packets.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAuthorityRejected is emitted when a remote claim loses arbitration.
	EventAuthorityRejected logging.EventType = "network.authority_rejected"
)

// DecodeFailedPayload describes what could not be decoded.
type DecodeFailedPayload struct {
	Sequence uint16 `json:"sequence"`
	Cubes    []int  `json:"cubes,omitempty"`
	Error    string `json:"error"`
}

// StalePacketPayload captures the epochs involved in a discard.
type StalePacketPayload struct {
	Sequence     uint16 `json:"sequence"`
	PacketEpoch  uint16 `json:"packetEpoch"`
	CurrentEpoch uint16 `json:"currentEpoch"`
}

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Ack   uint16   `json:"ack"`
	Acked []uint16 `json:"acked"`
}

// AuthorityPayload describes a rejected claim.
type AuthorityPayload struct {
	Cube              int    `json:"cube"`
	Reason            string `json:"reason"`
	OwnershipSequence uint16 `json:"ownershipSequence"`
	AuthoritySequence uint16 `json:"authoritySequence"`
}

// DecodeFailed publishes a warning when a packet or some of its cubes fail to decode.
func DecodeFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DecodeFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventDecodeFailed, logging.SeverityWarn, tick, actor, payload, extra)
}

// StalePacket publishes a debug event when a stale epoch packet is dropped.
func StalePacket(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StalePacketPayload, extra map[string]any) {
	publish(ctx, pub, EventStalePacket, logging.SeverityDebug, tick, actor, payload, extra)
}

// AckAdvanced publishes a debug event when a peer acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckAdvanced, logging.SeverityDebug, tick, actor, payload, extra)
}

// AuthorityRejected publishes a debug event when a remote claim loses.
func AuthorityRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AuthorityPayload, extra map[string]any) {
	publish(ctx, pub, EventAuthorityRejected, logging.SeverityDebug, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
