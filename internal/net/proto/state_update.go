package proto

import (
	"fmt"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/avatar"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/bitstream"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/delta"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// Header leads every StateUpdate.
type Header struct {
	Sequence   uint16
	Ack        uint16
	AckBits    uint32
	Frame      uint32
	ResetEpoch uint16
	// AvatarSampleTime offsets the avatar sample from the frame boundary,
	// in seconds.
	AvatarSampleTime float32
}

// StateUpdate carries avatars and cube updates for one tick.
type StateUpdate struct {
	Header
	Avatars []avatar.Quantized
	Cubes   []delta.Update
}

// EncodeStateUpdate serializes msg.
func EncodeStateUpdate(msg StateUpdate) ([]byte, error) {
	if len(msg.Avatars) > MaxAvatars {
		return nil, fmt.Errorf("encode state update: %d avatars exceeds %d", len(msg.Avatars), MaxAvatars)
	}
	if len(msg.Cubes) > MaxStateUpdates {
		return nil, fmt.Errorf("encode state update: %d cubes exceeds %d", len(msg.Cubes), MaxStateUpdates)
	}
	w := bitstream.NewWriter()
	w.Bits(uint64(PacketStateUpdate), 8)
	writeHeader(w, msg.Header)
	w.Int(int32(len(msg.Avatars)), 0, MaxAvatars)
	for _, a := range msg.Avatars {
		writeAvatar(w, a)
	}
	w.Int(int32(len(msg.Cubes)), 0, MaxStateUpdates)
	for _, u := range msg.Cubes {
		writeCube(w, u)
	}
	data, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("encode state update: %w", err)
	}
	return data, nil
}

// DecodeStateUpdate parses a StateUpdate. A bad header fails with
// ErrMalformedHeader and nothing else is usable. A bad body fails with
// ErrTruncated; the header and every entry parsed before the failure are
// still returned.
func DecodeStateUpdate(data []byte) (StateUpdate, error) {
	var msg StateUpdate
	r := bitstream.NewReader(data)
	if err := readType(r, PacketStateUpdate); err != nil {
		return msg, err
	}
	msg.Header = readHeader(r)
	if err := r.Err(); err != nil {
		return msg, fmt.Errorf("decode state update header: %w: %v", ErrMalformedHeader, err)
	}

	avatars := int(r.Int(0, MaxAvatars))
	for i := 0; i < avatars && r.Err() == nil; i++ {
		a := readAvatar(r)
		if r.Err() == nil {
			msg.Avatars = append(msg.Avatars, a)
		}
	}
	cubes := 0
	if r.Err() == nil {
		cubes = int(r.Int(0, MaxStateUpdates))
	}
	for i := 0; i < cubes && r.Err() == nil; i++ {
		u := readCube(r)
		if r.Err() == nil {
			msg.Cubes = append(msg.Cubes, u)
		}
	}
	if err := r.Err(); err != nil {
		return msg, fmt.Errorf("decode state update %d body: %w: %v", msg.Sequence, ErrTruncated, err)
	}
	return msg, nil
}

func writeHeader(w *bitstream.Writer, h Header) {
	w.Uint16(h.Sequence)
	w.Uint16(h.Ack)
	w.Uint32(h.AckBits)
	w.Uint32(h.Frame)
	w.Uint16(h.ResetEpoch)
	w.Float32(h.AvatarSampleTime)
}

func readHeader(r *bitstream.Reader) Header {
	return Header{
		Sequence:         r.Uint16(),
		Ack:              r.Uint16(),
		AckBits:          r.Uint32(),
		Frame:            r.Uint32(),
		ResetEpoch:       r.Uint16(),
		AvatarSampleTime: r.Float32(),
	}
}

func writeAvatar(w *bitstream.Writer, a avatar.Quantized) {
	w.Int(int32(a.ClientIndex), 0, quant.MaxClients-1)
	for _, h := range a.Hands {
		w.Bool(h.Holding)
		if !h.Holding {
			continue
		}
		w.Int(int32(h.CubeID), 0, quant.NumCubes-1)
		w.Uint16(h.AuthoritySequence)
		w.Uint16(h.OwnershipSequence)
		for _, v := range h.LocalPosition {
			w.Int(v, -avatar.LocalPositionBound, avatar.LocalPositionBound)
		}
		writeRotation(w, h.RotationLargest, h.LocalRotation)
	}
	anim := a.Animation
	if len(anim) > avatar.MaxAnimationBytes {
		anim = anim[:avatar.MaxAnimationBytes]
	}
	w.Int(int32(len(anim)), 0, avatar.MaxAnimationBytes)
	w.Bytes(anim)
}

func readAvatar(r *bitstream.Reader) avatar.Quantized {
	a := avatar.Quantized{ClientIndex: uint8(r.Int(0, quant.MaxClients-1))}
	for i := range a.Hands {
		h := &a.Hands[i]
		h.Holding = r.Bool()
		if !h.Holding {
			continue
		}
		h.CubeID = uint8(r.Int(0, quant.NumCubes-1))
		h.AuthoritySequence = r.Uint16()
		h.OwnershipSequence = r.Uint16()
		for j := range h.LocalPosition {
			h.LocalPosition[j] = r.Int(-avatar.LocalPositionBound, avatar.LocalPositionBound)
		}
		h.RotationLargest, h.LocalRotation = readRotation(r)
	}
	n := r.Int(0, avatar.MaxAnimationBytes)
	a.Animation = r.Bytes(int(n))
	return a
}

func writeRotation(w *bitstream.Writer, largest uint8, values [3]int32) {
	w.Int(int32(largest), 0, 3)
	for _, v := range values {
		w.Int(v, 0, quant.RotationMax)
	}
}

func readRotation(r *bitstream.Reader) (uint8, [3]int32) {
	largest := uint8(r.Int(0, 3))
	var values [3]int32
	for i := range values {
		values[i] = r.Int(0, quant.RotationMax)
	}
	return largest, values
}

func writeVector(w *bitstream.Writer, v [3]int32, bound int32) {
	for _, c := range v {
		w.Int(c, -bound, bound)
	}
}

func readVector(r *bitstream.Reader, bound int32) [3]int32 {
	var v [3]int32
	for i := range v {
		v[i] = r.Int(-bound, bound)
	}
	return v
}

func writeResidual(w *bitstream.Writer, v [3]int32, full int32) {
	class := delta.ClassifyResidual(v)
	w.Int(int32(class), 0, int32(delta.ResidualFull))
	switch class {
	case delta.ResidualSmall:
		writeVector(w, v, delta.SmallResidual)
	case delta.ResidualLarge:
		writeVector(w, v, delta.LargeResidual)
	default:
		writeVector(w, v, full)
	}
}

func readResidual(r *bitstream.Reader, full int32) [3]int32 {
	switch delta.ResidualClass(r.Int(0, int32(delta.ResidualFull))) {
	case delta.ResidualSmall:
		return readVector(r, delta.SmallResidual)
	case delta.ResidualLarge:
		return readVector(r, delta.LargeResidual)
	default:
		return readVector(r, full)
	}
}

func writeCube(w *bitstream.Writer, u delta.Update) {
	w.Int(int32(u.ID), 0, quant.NumCubes-1)
	w.Int(int32(u.Kind), 0, int32(delta.MaxKind))
	w.Int(int32(u.AuthorityIndex), 0, quant.MaxClients)
	w.Uint16(u.AuthoritySequence)
	w.Uint16(u.OwnershipSequence)
	if u.Kind.UsesBaseline() {
		w.Int(int32(u.BaselineOffset), 1, delta.MaxBaselineOffset)
	}
	if u.Kind.UsesPrior() {
		w.Int(int32(u.PriorOffset), 1, delta.MaxBaselineOffset)
	}
	if !u.Kind.CarriesPhysics() {
		return
	}
	w.Bool(u.AtRest)
	if u.Kind == delta.KindFull {
		writeVector(w, u.Position, quant.PositionBound)
		writeRotation(w, u.RotationLargest, u.Rotation)
		if !u.AtRest {
			writeVector(w, u.LinearVelocity, quant.LinearVelocityBound)
			writeVector(w, u.AngularVelocity, quant.AngularVelocityBound)
		}
		return
	}
	writeResidual(w, u.Position, delta.PositionResidualBound)
	w.Bool(u.RotationAbsolute)
	if u.RotationAbsolute {
		writeRotation(w, u.RotationLargest, u.Rotation)
	} else {
		writeResidual(w, u.Rotation, delta.RotationResidualBound)
	}
	if !u.AtRest {
		writeResidual(w, u.LinearVelocity, delta.LinearVelocityResidualBound)
		writeResidual(w, u.AngularVelocity, delta.AngularVelocityResidualBound)
	}
}

func readCube(r *bitstream.Reader) delta.Update {
	u := delta.Update{
		ID:                int(r.Int(0, quant.NumCubes-1)),
		Kind:              delta.Kind(r.Int(0, int32(delta.MaxKind))),
		AuthorityIndex:    uint8(r.Int(0, quant.MaxClients)),
		AuthoritySequence: r.Uint16(),
		OwnershipSequence: r.Uint16(),
	}
	if u.Kind.UsesBaseline() {
		u.BaselineOffset = uint16(r.Int(1, delta.MaxBaselineOffset))
	}
	if u.Kind.UsesPrior() {
		u.PriorOffset = uint16(r.Int(1, delta.MaxBaselineOffset))
	}
	if !u.Kind.CarriesPhysics() {
		return u
	}
	u.AtRest = r.Bool()
	if u.Kind == delta.KindFull {
		u.Position = readVector(r, quant.PositionBound)
		u.RotationAbsolute = true
		u.RotationLargest, u.Rotation = readRotation(r)
		if !u.AtRest {
			u.LinearVelocity = readVector(r, quant.LinearVelocityBound)
			u.AngularVelocity = readVector(r, quant.AngularVelocityBound)
		}
		return u
	}
	u.Position = readResidual(r, delta.PositionResidualBound)
	u.RotationAbsolute = r.Bool()
	if u.RotationAbsolute {
		u.RotationLargest, u.Rotation = readRotation(r)
	} else {
		u.Rotation = readResidual(r, delta.RotationResidualBound)
	}
	if !u.AtRest {
		u.LinearVelocity = readResidual(r, delta.LinearVelocityResidualBound)
		u.AngularVelocity = readResidual(r, delta.AngularVelocityResidualBound)
	}
	return u
}
