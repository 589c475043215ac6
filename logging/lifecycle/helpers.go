package lifecycle

import (
	"context"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

const (
	// EventClientConnected is emitted when a client is assigned a slot.
	EventClientConnected logging.EventType = "lifecycle.client_connected"
	// EventClientDisconnected is emitted when a client leaves or times out.
	EventClientDisconnected logging.EventType = "lifecycle.client_disconnected"
	// EventWorldReset is emitted when the reset epoch advances.
	EventWorldReset logging.EventType = "lifecycle.world_reset"
)

// Disconnect reasons.
const (
	ReasonTimeout  = "timeout"
	ReasonRemote   = "remote_closed"
	ReasonShutdown = "shutdown"
	ReasonFull     = "server_full"
)

// ClientConnectedPayload captures slot assignment metadata.
type ClientConnectedPayload struct {
	Slot int    `json:"slot"`
	Peer uint64 `json:"peer"`
}

// ClientDisconnectedPayload captures the reason a client left and the cubes it dropped.
type ClientDisconnectedPayload struct {
	Slot     int    `json:"slot"`
	Reason   string `json:"reason"`
	Released []int  `json:"released,omitempty"`
}

// WorldResetPayload captures the epoch transition.
type WorldResetPayload struct {
	Previous uint16 `json:"previous"`
	Epoch    uint16 `json:"epoch"`
}

// ClientConnected publishes a client connect event.
func ClientConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ClientConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventClientConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ClientDisconnected publishes a client disconnect event. Timeouts are warnings.
func ClientDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ClientDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if payload.Reason == ReasonTimeout {
		severity = logging.SeverityWarn
	}
	event := logging.Event{
		Type:     EventClientDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// WorldReset publishes a world reset event.
func WorldReset(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload WorldResetPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventWorldReset,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
