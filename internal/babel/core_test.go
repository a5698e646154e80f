package babel

import (
	"testing"
	"time"
)

// TestCoreEndToEndSelection drives a full Hello -> IHU -> Update flow
// through Core and checks that a route ends up installed with a finite
// metric.
func TestCoreEndToEndSelection(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	clk := newManualClock(now)
	c := NewCore(routerIDFromUint64(1), WithClock(clk))

	ifc := testInterface(96, false)
	addr := testAddr("fe80::1")
	n := c.FindOrCreateNeighbour(addr, ifc)

	c.HandleHello(n, 0, 100, false, clk.Now())
	clk.Advance(1 * time.Second)
	c.HandleHello(n, 1, 100, false, clk.Now())
	c.HandleIHU(n, 50, 100, clk.Now())

	dest := testDest()
	peerID := routerIDFromUint64(2)
	decision := c.HandleUpdate(n, peerID, dest, 1, 0, clk.Now())
	if !decision.Accepted {
		t.Fatalf("HandleUpdate decision = %+v, want accepted", decision)
	}

	routes := c.Routes()
	if len(routes) != 1 {
		t.Fatalf("installed routes = %d, want 1", len(routes))
	}
	if routes[0].Dest != dest {
		t.Fatalf("installed route dest = %+v, want %+v", routes[0].Dest, dest)
	}
	if routes[0].Metric() >= Infinity {
		t.Fatalf("installed route metric = %d, want finite", routes[0].Metric())
	}
}

// TestCoreFlushNeighbourCascadesRoutes checks that dropping a neighbour
// withdraws every route it contributed.
func TestCoreFlushNeighbourCascadesRoutes(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	clk := newManualClock(now)
	c := NewCore(routerIDFromUint64(1), WithClock(clk))

	ifc := testInterface(96, false)
	n := c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)
	c.HandleHello(n, 0, 100, false, clk.Now())
	clk.Advance(1 * time.Second)
	c.HandleHello(n, 1, 100, false, clk.Now())
	c.HandleIHU(n, 50, 100, clk.Now())

	dest := testDest()
	c.HandleUpdate(n, routerIDFromUint64(2), dest, 1, 0, clk.Now())
	if len(c.Routes()) != 1 {
		t.Fatal("expected one installed route before flush")
	}

	c.FlushNeighbour(n)

	if len(c.Routes()) != 0 {
		t.Fatal("flushing the sole contributing neighbour should withdraw its route")
	}
	if len(c.Neighbours()) != 0 {
		t.Fatal("flushed neighbour should be gone from the table")
	}
}

func TestCoreNotifyCallbackFires(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	var got []Notification
	c := NewCore(routerIDFromUint64(1), WithClock(newManualClock(now)), WithNotify(func(n Notification) {
		got = append(got, n)
	}))

	ifc := testInterface(96, false)
	c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)

	if len(got) != 1 || got[0].Kind != NotifyAdd || got[0].Table != TableNeighbour {
		t.Fatalf("notifications = %+v, want a single neighbour NotifyAdd", got)
	}
}

// TestCoreSourcesSnapshot checks that an Update accepted into the
// source table is visible via Core.Sources().
func TestCoreSourcesSnapshot(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	clk := newManualClock(now)
	c := NewCore(routerIDFromUint64(1), WithClock(clk))

	ifc := testInterface(96, false)
	n := c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)
	c.HandleHello(n, 0, 100, false, clk.Now())
	clk.Advance(1 * time.Second)
	c.HandleHello(n, 1, 100, false, clk.Now())
	c.HandleIHU(n, 50, 100, clk.Now())

	dest := testDest()
	c.HandleUpdate(n, routerIDFromUint64(2), dest, 1, 0, clk.Now())

	sources := c.Sources()
	if len(sources) != 1 {
		t.Fatalf("Sources() = %d, want 1", len(sources))
	}
	if sources[0].Seqno() != 1 {
		t.Fatalf("Sources()[0].Seqno() = %d, want 1", sources[0].Seqno())
	}
}

func TestCoreAddRemoveXroute(t *testing.T) {
	t.Parallel()

	c := NewCore(routerIDFromUint64(1))
	dest := testDest()
	x := &Xroute{Dest: dest, Metric: 0}

	c.AddXroute(x)
	if len(c.Xroutes()) != 1 {
		t.Fatalf("xroutes = %d, want 1", len(c.Xroutes()))
	}

	c.RemoveXroute(dest)
	if len(c.Xroutes()) != 0 {
		t.Fatalf("xroutes after remove = %d, want 0", len(c.Xroutes()))
	}
}
