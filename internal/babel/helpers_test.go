package babel

import (
	"net/netip"
	"time"
)

// fixedNow returns a fixed reference time so tests are independent of
// wall-clock time.
func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

// testAddr parses a literal IPv6 address, panicking on malformed test
// input (never on real input, since these are hardcoded test literals).
func testAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func testPrefix(s string) netip.Prefix {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}
