// Package proto defines the relay packet kinds and their bit-packed layout.
package proto

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/bitstream"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// PacketType is the leading byte of every packet.
type PacketType uint8

const (
	PacketServerInfo  PacketType = 1
	PacketStateUpdate PacketType = 2
	PacketAnchorGuid  PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case PacketServerInfo:
		return "server_info"
	case PacketStateUpdate:
		return "state_update"
	case PacketAnchorGuid:
		return "anchor_guid"
	default:
		return fmt.Sprintf("packet_type(%d)", uint8(t))
	}
}

const (
	// MaxStateUpdates bounds the cube updates carried by one packet.
	MaxStateUpdates = quant.NumCubes
	// MaxAvatars bounds the avatars carried by one packet.
	MaxAvatars = quant.MaxClients
	// MaxDisplayName bounds roster display names, in bytes.
	MaxDisplayName = 32
)

var (
	// ErrMalformedHeader reports a packet whose type or header cannot be read.
	ErrMalformedHeader = errors.New("proto: malformed header")
	// ErrTruncated reports a packet whose body ends early or holds
	// out-of-range values.
	ErrTruncated = errors.New("proto: truncated packet")
	// ErrUnexpectedType reports a decode call for the wrong packet kind.
	ErrUnexpectedType = errors.New("proto: unexpected packet type")
)

// Type returns the kind of data.
func Type(data []byte) (PacketType, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty packet: %w", ErrMalformedHeader)
	}
	t := PacketType(data[0])
	switch t {
	case PacketServerInfo, PacketStateUpdate, PacketAnchorGuid:
		return t, nil
	default:
		return t, fmt.Errorf("unknown packet type %d: %w", data[0], ErrMalformedHeader)
	}
}

func readType(r *bitstream.Reader, want PacketType) error {
	got := PacketType(r.Bits(8))
	if err := r.Err(); err != nil {
		return fmt.Errorf("read packet type: %w", ErrMalformedHeader)
	}
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, got, want)
	}
	return nil
}

// Slot is one roster entry.
type Slot struct {
	Connected   bool
	UserID      uint64
	DisplayName string
	AnonymousID uuid.UUID
}

// ServerInfo tells a client which slot it occupies and who else is present.
type ServerInfo struct {
	ClientIndex int
	Slots       [quant.MaxClients]Slot
}

// EncodeServerInfo serializes info. Display names longer than MaxDisplayName
// bytes are truncated.
func EncodeServerInfo(info ServerInfo) ([]byte, error) {
	w := bitstream.NewWriter()
	w.Bits(uint64(PacketServerInfo), 8)
	w.Int(int32(info.ClientIndex), 0, quant.MaxClients-1)
	for _, slot := range info.Slots {
		w.Bool(slot.Connected)
		if !slot.Connected {
			continue
		}
		name := []byte(slot.DisplayName)
		if len(name) > MaxDisplayName {
			name = name[:MaxDisplayName]
		}
		w.Uint64(slot.UserID)
		w.Int(int32(len(name)), 0, MaxDisplayName)
		w.Bytes(name)
		w.Bytes(slot.AnonymousID[:])
	}
	data, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("encode server info: %w", err)
	}
	return data, nil
}

// DecodeServerInfo parses a ServerInfo packet.
func DecodeServerInfo(data []byte) (ServerInfo, error) {
	var info ServerInfo
	r := bitstream.NewReader(data)
	if err := readType(r, PacketServerInfo); err != nil {
		return info, err
	}
	info.ClientIndex = int(r.Int(0, quant.MaxClients-1))
	for i := range info.Slots {
		slot := &info.Slots[i]
		slot.Connected = r.Bool()
		if !slot.Connected {
			continue
		}
		slot.UserID = r.Uint64()
		n := r.Int(0, MaxDisplayName)
		slot.DisplayName = string(r.Bytes(int(n)))
		copy(slot.AnonymousID[:], r.Bytes(16))
	}
	if err := r.Err(); err != nil {
		return info, fmt.Errorf("decode server info: %w: %v", ErrTruncated, err)
	}
	return info, nil
}

// EncodeAnchorGuid serializes a shared spatial anchor id.
func EncodeAnchorGuid(id uuid.UUID) ([]byte, error) {
	w := bitstream.NewWriter()
	w.Bits(uint64(PacketAnchorGuid), 8)
	w.Bytes(id[:])
	data, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("encode anchor guid: %w", err)
	}
	return data, nil
}

// DecodeAnchorGuid parses an AnchorGuid packet.
func DecodeAnchorGuid(data []byte) (uuid.UUID, error) {
	r := bitstream.NewReader(data)
	if err := readType(r, PacketAnchorGuid); err != nil {
		return uuid.Nil, err
	}
	raw := r.Bytes(16)
	if err := r.Err(); err != nil {
		return uuid.Nil, fmt.Errorf("decode anchor guid: %w: %v", ErrTruncated, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode anchor guid: %w: %v", ErrTruncated, err)
	}
	return id, nil
}
