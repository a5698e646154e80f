package babel

import (
	"net/netip"
	"time"
)

// neighKey uniquely identifies a neighbour by (interface, address).
type neighKey struct {
	ifIndex int
	addr    netip.Addr
}

// neighbourTable owns every discovered neighbour, keyed by (interface,
// address).
type neighbourTable struct {
	byKey map[neighKey]*Neighbour
}

func newNeighbourTable() *neighbourTable {
	return &neighbourTable{byKey: make(map[neighKey]*Neighbour)}
}

// findOrCreate returns the existing neighbour for (address, ifc),
// creating it if absent.
func (t *neighbourTable) findOrCreate(addr netip.Addr, ifc *Interface, now time.Time) (n *Neighbour, created bool) {
	key := neighKey{ifIndex: ifc.Index, addr: addr}
	if existing, ok := t.byKey[key]; ok {
		return existing, false
	}
	n = newNeighbour(addr, ifc, now)
	t.byKey[key] = n
	return n, true
}

// find looks up a neighbour without creating it.
func (t *neighbourTable) find(addr netip.Addr, ifc *Interface) (*Neighbour, bool) {
	n, ok := t.byKey[neighKey{ifIndex: ifc.Index, addr: addr}]
	return n, ok
}

// remove drops a neighbour from the table (the caller is responsible
// for cascading route/resend cleanup.1 flush).
func (t *neighbourTable) remove(n *Neighbour) {
	delete(t.byKey, neighKey{ifIndex: n.Interface.Index, addr: n.Address})
}

// all returns every known neighbour, for snapshot reads and the
// maintenance tick sweep. Iteration order need not be insertion order.
func (t *neighbourTable) all() []*Neighbour {
	out := make([]*Neighbour, 0, len(t.byKey))
	for _, n := range t.byKey {
		out = append(out, n)
	}
	return out
}

func (t *neighbourTable) count() int { return len(t.byKey) }
