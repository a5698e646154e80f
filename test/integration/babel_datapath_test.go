//go:build integration

package integration_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/wire"
)

// TestDatapathTwoNodesConverge verifies that an xroute originated on one
// node reaches a peer's route table as a feasible route via the expected
// neighbour after a Hello exchange and an Update, round-tripped through
// the wire codec
// exactly as two real babeld processes would exchange them over UDP.
//
// Unlike a BFD session, babel.Core has no internal goroutine driving
// retransmission -- it is mutated synchronously by its caller -- so this
// test drives the exchange directly rather than bridging two live
// sockets under a virtual clock.
func TestDatapathTwoNodesConverge(t *testing.T) {
	now := time.Unix(1700000000, 0)

	ifcA := &babel.Interface{Name: "eth0", Index: 1, Up: true, Cost: 64, HelloInterval: 400, UpdateInterval: 6400, BufferSize: 512}
	ifcB := &babel.Interface{Name: "eth0", Index: 1, Up: true, Cost: 64, HelloInterval: 400, UpdateInterval: 6400, BufferSize: 512}

	addrA := netip.MustParseAddr("fe80::1")
	addrB := netip.MustParseAddr("fe80::2")

	ridA := babel.DeriveRouterID([]byte("node-a"))

	nodeA := babel.NewCore(ridA, babel.WithClock(fixedClock{now}))
	nodeB := babel.NewCore(babel.DeriveRouterID([]byte("node-b")), babel.WithClock(fixedClock{now}))

	prefix := netip.MustParsePrefix("2001:db8:1::/48")
	nodeA.AddXroute(&babel.Xroute{
		Dest:    babel.DestKey{Prefix: prefix, TOS: babel.DefaultTOS},
		Metric:  0,
		IfIndex: ifcA.Index,
	})

	// A and B exchange Hellos over a loopback "wire" -- encode on one
	// side, decode on the other, exactly like two interfaces' sockets.
	enc := wire.NewEncoder(wire.AuthConfig{})
	dec := wire.NewDecoder(wire.AuthConfig{})

	neighAonB := exchangeHello(t, enc, dec, nodeB, addrA, ifcB, 1, now)
	exchangeHello(t, enc, dec, nodeA, addrB, ifcA, 1, now)

	// Give B's view of A "two of three" reachability, so its rxcost is
	// finite, by exchanging a couple more Hellos at later times. No IHU is
	// exchanged, so txcost (and the route's metric) stays Infinity; the
	// checks below cover feasibility and next hop, not installation.
	now2 := now.Add(4 * time.Second)
	neighAonB = exchangeHello(t, enc, dec, nodeB, addrA, ifcB, 2, now2)
	now3 := now2.Add(4 * time.Second)
	neighAonB = exchangeHello(t, enc, dec, nodeB, addrA, ifcB, 3, now3)

	// A announces its xroute; B should learn a feasible route.
	updatePacket, err := enc.Encode([]wire.OutgoingEvent{{
		Kind: wire.KindUpdate,
		Update: wire.UpdateEvent{
			RouterID: [8]byte(ridA),
			Prefix:   prefix,
			TOS:      byte(babel.DefaultTOS),
			Seqno:    1,
			Metric:   0,
		},
	}})
	if err != nil {
		t.Fatalf("encode update: %v", err)
	}

	events, err := dec.Decode(updatePacket)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.KindUpdate {
		t.Fatalf("decoded events = %+v, want one update", events)
	}

	ev := events[0].Update
	dest := babel.DestKey{Prefix: ev.Prefix, SrcPlen: ev.SrcPlen, SrcAddr: ev.SrcAddr, TOS: babel.TOS(ev.TOS)}
	nodeB.HandleUpdate(neighAonB, babel.RouterID(ev.RouterID), dest, ev.Seqno, ev.Metric, now3)

	routes := nodeB.Routes()
	if len(routes) != 1 {
		t.Fatalf("B routes = %d, want 1 (routes=%+v)", len(routes), routes)
	}
	r := routes[0]
	if r.Dest.Prefix != prefix {
		t.Fatalf("route prefix = %v, want %v", r.Dest.Prefix, prefix)
	}
	if !r.Feasible() {
		t.Fatalf("route not feasible: %+v", r)
	}
	if r.Neighbour.Address != addrA {
		t.Fatalf("route neighbour = %v, want %v", r.Neighbour.Address, addrA)
	}
}

// exchangeHello round-trips a Hello TLV from a (simulated) peer through
// the wire codec into dst's core, returning the resulting neighbour.
func exchangeHello(t *testing.T, enc *wire.Encoder, dec *wire.Decoder, dst *babel.Core, peerAddr netip.Addr, ifc *babel.Interface, seqno uint16, now time.Time) *babel.Neighbour {
	t.Helper()

	packet, err := enc.Encode([]wire.OutgoingEvent{{
		Kind: wire.KindHello,
		Hello: wire.HelloEvent{
			Seqno:    seqno,
			Interval: ifc.HelloInterval,
		},
	}})
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}

	events, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.KindHello {
		t.Fatalf("decoded events = %+v, want one hello", events)
	}

	n := dst.FindOrCreateNeighbour(peerAddr, ifc)
	dst.HandleHello(n, events[0].Hello.Seqno, events[0].Hello.Interval, events[0].Hello.Unicast, now)
	return n
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
