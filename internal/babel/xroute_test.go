package babel

import "testing"

func TestXrouteTableAddRemove(t *testing.T) {
	t.Parallel()

	xt := newXrouteTable()
	dest := testDest()
	x := &Xroute{Dest: dest, Metric: 0, IfIndex: 1, Proto: 2}

	if existed := xt.add(x); existed {
		t.Fatal("add should report no prior entry on first insert")
	}
	if xt.count() != 1 {
		t.Fatalf("count = %d, want 1", xt.count())
	}

	got, ok := xt.find(dest)
	if !ok || got != x {
		t.Fatal("find should return the inserted xroute")
	}

	replacement := &Xroute{Dest: dest, Metric: 5, IfIndex: 1, Proto: 2}
	if existed := xt.add(replacement); !existed {
		t.Fatal("add should report the prior entry on replace")
	}
	if xt.count() != 1 {
		t.Fatalf("count after replace = %d, want 1", xt.count())
	}

	removed, ok := xt.remove(dest)
	if !ok || removed != replacement {
		t.Fatal("remove should return the removed xroute")
	}
	if xt.count() != 0 {
		t.Fatalf("count after remove = %d, want 0", xt.count())
	}
	if _, ok := xt.remove(dest); ok {
		t.Fatal("removing twice should report no entry the second time")
	}
}
