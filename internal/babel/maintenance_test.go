package babel

import (
	"testing"
	"time"
)

func TestTickNoNeighboursReturnsCappedWakeup(t *testing.T) {
	t.Parallel()

	c := NewCore(routerIDFromUint64(1))
	got := c.Tick(fixedNow())
	if got != maxWakeup {
		t.Fatalf("Tick with no neighbours = %v, want the capped %v", got, maxWakeup)
	}
}

// TestTickFlushesSilentNeighbour checks the neighbour idle -> flush
// condition via an exhausted reach bitmap.
func TestTickFlushesSilentNeighbour(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	c := NewCore(routerIDFromUint64(1))
	ifc := testInterface(96, false)
	n := c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)
	n.hello = HelloHistory{seqno: noSeqno, reach: 0, time: now}
	n.uhello = HelloHistory{seqno: noSeqno, reach: 0, time: now}

	c.Tick(now)

	if len(c.Neighbours()) != 0 {
		t.Fatal("a neighbour with zero reach should be flushed")
	}
}

// TestTickFlushesStaleNeighbour checks the 300s hard idle ceiling,
// independent of the reach bitmap's own content.
func TestTickFlushesStaleNeighbour(t *testing.T) {
	t.Parallel()

	start := fixedNow()
	c := NewCore(routerIDFromUint64(1))
	ifc := testInterface(96, false)
	n := c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)
	n.hello = HelloHistory{seqno: 1, reach: 0xFFFF, time: start, interval: 45000}
	n.uhello = HelloHistory{seqno: noSeqno, reach: 0}

	later := start.Add(301 * time.Second)
	c.Tick(later)

	if len(c.Neighbours()) != 0 {
		t.Fatal("a neighbour silent for over 300s should be flushed")
	}
}

// TestTickKeepsActiveNeighbourAndComputesWakeup checks that a live
// neighbour survives and that its hello interval bounds the returned
// wakeup.
func TestTickKeepsActiveNeighbourAndComputesWakeup(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	c := NewCore(routerIDFromUint64(1))
	ifc := testInterface(96, false)
	n := c.FindOrCreateNeighbour(testAddr("fe80::1"), ifc)
	n.hello = HelloHistory{seqno: 1, reach: 0xFFFF, time: now, interval: 400} // 4s in centiseconds
	n.uhello = HelloHistory{seqno: noSeqno, reach: 0}
	n.ihuTime = now
	n.ihuInterval = 0
	n.txcost = 50

	got := c.Tick(now)

	if len(c.Neighbours()) != 1 {
		t.Fatal("an active neighbour should survive the tick")
	}
	want := 4 * time.Second
	if got != want {
		t.Fatalf("Tick wakeup = %v, want %v (bounded by the hello interval)", got, want)
	}
}
