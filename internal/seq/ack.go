package seq

// AckBits is the number of older sequences acknowledged alongside the most
// recent one.
const AckBits = 32

// ReceivedPackets records which remote sequences arrived so the next outbound
// header can acknowledge them.
type ReceivedPackets struct {
	received *Buffer[struct{}]
	latest   uint16
	any      bool
}

// NewReceivedPackets constructs a tracker sized for the ack window.
func NewReceivedPackets() *ReceivedPackets {
	return &ReceivedPackets{received: NewBuffer[struct{}](256)}
}

// Record marks sequence as received.
func (r *ReceivedPackets) Record(sequence uint16) {
	if !r.any || GreaterThan(sequence, r.latest) {
		r.latest = sequence
		r.any = true
	}
	r.received.Insert(sequence)
}

// Ack returns the most recent received sequence and a bitfield where bit i
// acknowledges sequence ack-1-i. ok is false before anything arrived.
func (r *ReceivedPackets) Ack() (ack uint16, bits uint32, ok bool) {
	if !r.any {
		return 0, 0, false
	}
	ack = r.latest
	for i := 0; i < AckBits; i++ {
		if r.received.Exists(ack - 1 - uint16(i)) {
			bits |= 1 << uint(i)
		}
	}
	return ack, bits, true
}

// Reset forgets every received sequence.
func (r *ReceivedPackets) Reset() {
	r.received.Reset()
	r.latest = 0
	r.any = false
}

type sentPacket struct {
	acked bool
}

// SentPackets tracks outbound sequences and turns incoming ack headers into
// the list of sequences that became acknowledged for the first time.
type SentPackets struct {
	sent *Buffer[sentPacket]
}

// NewSentPackets constructs a tracker with the same window as the delta
// history so every acknowledged packet still has its baseline stored.
func NewSentPackets(size int) *SentPackets {
	return &SentPackets{sent: NewBuffer[sentPacket](size)}
}

// Record marks sequence as sent and not yet acknowledged.
func (s *SentPackets) Record(sequence uint16) {
	s.sent.Insert(sequence)
}

// Process applies an ack header and returns newly acknowledged sequences,
// oldest first.
func (s *SentPackets) Process(ack uint16, bits uint32) []uint16 {
	var acked []uint16
	for i := AckBits - 1; i >= 0; i-- {
		if bits&(1<<uint(i)) == 0 {
			continue
		}
		acked = s.markAcked(ack-1-uint16(i), acked)
	}
	return s.markAcked(ack, acked)
}

// Reset forgets every sent sequence.
func (s *SentPackets) Reset() {
	s.sent.Reset()
}

func (s *SentPackets) markAcked(sequence uint16, acked []uint16) []uint16 {
	packet, ok := s.sent.Find(sequence)
	if !ok || packet.acked {
		return acked
	}
	packet.acked = true
	return append(acked, sequence)
}
