package relay

import (
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/net/transport"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/quant"
)

// slotTable holds one connection per session slot.
type slotTable struct {
	// first is the lowest slot Assign hands out.
	first int
	conns [quant.MaxClients]*connection
}

func newSlotTable(first int) slotTable {
	return slotTable{first: first}
}

// Assign builds a connection in the lowest free slot and returns the slot,
// or -1 when the table is full.
func (t *slotTable) Assign(build func(slot int) *connection) int {
	for slot := t.first; slot < len(t.conns); slot++ {
		if t.conns[slot] == nil {
			t.conns[slot] = build(slot)
			return slot
		}
	}
	return -1
}

// Put places conn in a specific slot, replacing whatever was there.
func (t *slotTable) Put(slot int, conn *connection) {
	if slot < 0 || slot >= len(t.conns) {
		return
	}
	t.conns[slot] = conn
}

// Free empties slot and returns the connection it held.
func (t *slotTable) Free(slot int) *connection {
	if slot < 0 || slot >= len(t.conns) {
		return nil
	}
	conn := t.conns[slot]
	t.conns[slot] = nil
	if conn != nil {
		conn.state = StateDisconnected
	}
	return conn
}

func (t *slotTable) Get(slot int) *connection {
	if slot < 0 || slot >= len(t.conns) {
		return nil
	}
	return t.conns[slot]
}

func (t *slotTable) ByPeer(peer transport.PeerID) *connection {
	for _, conn := range t.conns {
		if conn != nil && conn.peer == peer {
			return conn
		}
	}
	return nil
}

// Each visits connections in slot order.
func (t *slotTable) Each(fn func(*connection)) {
	for _, conn := range t.conns {
		if conn != nil {
			fn(conn)
		}
	}
}

func (t *slotTable) Count() int {
	n := 0
	for _, conn := range t.conns {
		if conn != nil {
			n++
		}
	}
	return n
}
