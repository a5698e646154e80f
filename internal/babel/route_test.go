package babel

import (
	"testing"
	"time"
)

func testDest() DestKey {
	return DestKey{Prefix: testPrefix("2001:db8::/32")}
}

func testRouteNeighbour(addr string, cost uint16, now time.Time) *Neighbour {
	ifc := testInterface(cost, false)
	n := newNeighbour(testAddr(addr), ifc, now)
	n.hello = HelloHistory{seqno: 1, reach: 0xFFFF, time: now}
	n.uhello.seqno = noSeqno
	n.txcost = cost
	return n
}

// TestApplyUpdateAcceptsFeasible checks that a fresh advertisement with
// a newer seqno is always feasible.
func TestApplyUpdateAcceptsFeasible(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()

	n := testRouteNeighbour("fe80::1", 96, now)
	dest := testDest()
	key := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}

	decision := rt.applyUpdate(st, n, key, dest, 10, 50, now)
	if !decision.Accepted || decision.NeedSeqnoRequest {
		t.Fatalf("decision = %+v, want Accepted with no seqno request", decision)
	}

	d := rt.dests[dest]
	r, ok := d.byNeighbour[n]
	if !ok {
		t.Fatal("route not stored after an accepted update")
	}
	if !r.Feasible() {
		t.Fatal("route should be feasible")
	}
}

// TestApplyUpdateRejectsInfeasible checks that a same-seqno,
// worse-metric update is infeasible and must request a seqno bump
// rather than silently winning.
func TestApplyUpdateRejectsInfeasible(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()

	n := testRouteNeighbour("fe80::1", 96, now)
	dest := testDest()
	key := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}

	// Establish a good baseline via the source table directly.
	st.find(key, now, true, 10)
	st.entries[key].metric = 50

	decision := rt.applyUpdate(st, n, key, dest, 10, 80, now)
	if !decision.Accepted {
		t.Fatal("an infeasible update should still be stored")
	}
	if !decision.NeedSeqnoRequest {
		t.Fatal("an infeasible, worse-metric update should request a seqno bump")
	}
	if decision.SeqnoRequest.Neighbour != n || decision.SeqnoRequest.Seqno != 11 {
		t.Fatalf("SeqnoRequest = %+v, want neighbour=%p seqno=11", decision.SeqnoRequest, n)
	}

	d := rt.dests[dest]
	r := d.byNeighbour[n]
	if r.Feasible() {
		t.Fatal("stored route should be marked infeasible")
	}
	if len(d.candidates()) != 0 {
		t.Fatal("an infeasible route must not be a selection candidate")
	}
}

// TestApplyUpdateRetractionAlwaysAccepted checks that a metric ==
// Infinity retraction is accepted unconditionally, bypassing
// feasibility.
func TestApplyUpdateRetractionAlwaysAccepted(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()

	n := testRouteNeighbour("fe80::1", 96, now)
	dest := testDest()
	key := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}

	st.find(key, now, true, 10)
	st.entries[key].metric = 50

	// Same seqno, metric Infinity: normally infeasible (not strictly
	// better), but retractions are always accepted.
	decision := rt.applyUpdate(st, n, key, dest, 10, Infinity, now)
	if !decision.Accepted || decision.NeedSeqnoRequest {
		t.Fatalf("retraction decision = %+v, want accepted with no seqno request", decision)
	}

	r := rt.dests[dest].byNeighbour[n]
	if !r.Feasible() {
		t.Fatal("a retraction's stored route is treated as feasible (so it can propagate)")
	}
}

// TestReselectPicksLowerMetric checks that among two feasible
// candidates, the lower end-to-end metric wins.
func TestReselectPicksLowerMetric(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()
	dest := testDest()

	cheap := testRouteNeighbour("fe80::1", 50, now)
	pricey := testRouteNeighbour("fe80::2", 500, now)

	keyCheap := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}
	keyPricey := SourceKey{RouterID: routerIDFromUint64(2), Prefix: dest.Prefix}

	rt.applyUpdate(st, cheap, keyCheap, dest, 1, 0, now)
	rt.applyUpdate(st, pricey, keyPricey, dest, 1, 0, now)

	res := rt.reselect(dest, now, nil)
	if !res.Changed || res.Current == nil {
		t.Fatalf("reselect result = %+v, want a changed selection", res)
	}
	if res.Current.Neighbour != cheap {
		t.Fatal("reselect should prefer the lower-metric neighbour")
	}
}

// TestReselectHysteresisSuppressesChurn checks that a challenger which
// doesn't clearly beat the installed route within the damping window
// does not displace it.
func TestReselectHysteresisSuppressesChurn(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()
	dest := testDest()

	installed := testRouteNeighbour("fe80::1", 100, now)
	keyInstalled := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}
	rt.applyUpdate(st, installed, keyInstalled, dest, 1, 0, now)
	first := rt.reselect(dest, now, nil)
	if first.Current == nil || first.Current.Neighbour != installed {
		t.Fatalf("initial selection = %+v, want %v installed", first, installed)
	}

	// A marginally-better challenger (within the 1.2x hysteresis band)
	// arrives well inside the damping window.
	challenger := testRouteNeighbour("fe80::2", 95, now)
	keyChallenger := SourceKey{RouterID: routerIDFromUint64(2), Prefix: dest.Prefix}
	rt.applyUpdate(st, challenger, keyChallenger, dest, 1, 0, now)

	soon := now.Add(1 * time.Second)
	res := rt.reselect(dest, soon, nil)
	if res.Changed {
		t.Fatal("hysteresis should have suppressed this marginal challenger")
	}
	if res.Current.Neighbour != installed {
		t.Fatal("installed route should remain selected under hysteresis")
	}
}

// TestReselectAllowsClearWinOutsideHysteresis reproduces the counterpart
// of the hysteresis test: a challenger clearly below the 1.2x threshold
// always wins, even inside the damping window.
func TestReselectAllowsClearWinOutsideHysteresis(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()
	dest := testDest()

	installed := testRouteNeighbour("fe80::1", 100, now)
	keyInstalled := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}
	rt.applyUpdate(st, installed, keyInstalled, dest, 1, 0, now)
	rt.reselect(dest, now, nil)

	better := testRouteNeighbour("fe80::2", 10, now)
	keyBetter := SourceKey{RouterID: routerIDFromUint64(2), Prefix: dest.Prefix}
	rt.applyUpdate(st, better, keyBetter, dest, 1, 0, now)

	soon := now.Add(1 * time.Second)
	res := rt.reselect(dest, soon, nil)
	if !res.Changed || res.Current.Neighbour != better {
		t.Fatalf("reselect = %+v, want the clearly-better neighbour selected", res)
	}
}

// TestRemoveNeighbourRoutesCascades checks that losing a neighbour
// drops every route it advertised and releases the source refs.
func TestRemoveNeighbourRoutesCascades(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()
	dest := testDest()

	n := testRouteNeighbour("fe80::1", 96, now)
	key := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}
	rt.applyUpdate(st, n, key, dest, 1, 0, now)
	rt.reselect(dest, now, nil)

	affected := rt.removeNeighbourRoutes(n, st, now)
	if len(affected) != 1 || affected[0] != dest {
		t.Fatalf("removeNeighbourRoutes = %v, want [%v]", affected, dest)
	}
	if _, ok := rt.dests[dest].byNeighbour[n]; ok {
		t.Fatal("route should have been removed")
	}
	if rt.dests[dest].installed != nil {
		t.Fatal("installed pointer should be cleared when its route is removed")
	}
}

func TestExpireRoutesRemovesStaleEntries(t *testing.T) {
	t.Parallel()

	st := newSourceTable()
	rt := newRouteTable()
	now := fixedNow()
	dest := testDest()

	n := testRouteNeighbour("fe80::1", 96, now)
	key := SourceKey{RouterID: routerIDFromUint64(1), Prefix: dest.Prefix}
	rt.applyUpdate(st, n, key, dest, 1, 0, now)

	past := now.Add(routeExpiry + time.Second)
	affected := rt.expireRoutes(st, past)
	if len(affected) != 1 || affected[0] != dest {
		t.Fatalf("expireRoutes = %v, want [%v]", affected, dest)
	}
	if len(rt.dests[dest].byNeighbour) != 0 {
		t.Fatal("expired route should have been removed")
	}
}
