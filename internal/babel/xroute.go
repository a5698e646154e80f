package babel

import "net/netip"

// DestKey identifies a destination: a (prefix, src_prefix, tos) triple.
type DestKey struct {
	Prefix  netip.Prefix
	SrcPlen int
	SrcAddr netip.Addr
	TOS     TOS
}

// Xroute is a locally-originated, exported route contributed by the
// host — a kernel address or a statically configured prefix.
type Xroute struct {
	Dest    DestKey
	Metric  uint16
	IfIndex int
	Proto   uint8
}

// xrouteTable owns all locally-exported prefixes.
type xrouteTable struct {
	entries map[DestKey]*Xroute
}

func newXrouteTable() *xrouteTable {
	return &xrouteTable{entries: make(map[DestKey]*Xroute)}
}

// add installs or replaces an xroute, created from kernel/config.
func (t *xrouteTable) add(x *Xroute) (existed bool) {
	_, existed = t.entries[x.Dest]
	t.entries[x.Dest] = x
	return existed
}

// remove drops an xroute, e.g. when the kernel/config source withdraws
// it.
func (t *xrouteTable) remove(key DestKey) (*Xroute, bool) {
	x, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return x, ok
}

// find looks up an xroute by destination key.
func (t *xrouteTable) find(key DestKey) (*Xroute, bool) {
	x, ok := t.entries[key]
	return x, ok
}

// all returns every current xroute, for snapshot/management reads.
func (t *xrouteTable) all() []*Xroute {
	out := make([]*Xroute, 0, len(t.entries))
	for _, x := range t.entries {
		out = append(out, x)
	}
	return out
}

func (t *xrouteTable) count() int { return len(t.entries) }
