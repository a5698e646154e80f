package babel

import (
	"errors"
	"net/netip"
	"time"
)

// Sentinel errors for neighbour-table operations.
var (
	// ErrInvalidNeighbourAddr indicates the neighbour's link-local address
	// is not a valid IPv6 address.
	ErrInvalidNeighbourAddr = errors.New("neighbour address must be a valid link-local address")
)

// reachWindow is the width, in bits, of a hello history's reach bitmap.
const reachWindow = 16

// HelloHistory tracks one of a neighbour's two hello streams (multicast
// or unicast). The MSB of reach corresponds to the most recently received
// hello.
type HelloHistory struct {
	seqno    int32 // noSeqno ("never") until the first hello arrives
	reach    uint16
	time     time.Time
	interval int // centiseconds, as carried on the wire
}

// seen reports whether this history has ever recorded a hello.
func (h *HelloHistory) seen() bool { return h.seqno != noSeqno }

// Neighbour is a peer discovered on an interface, identified by its
// link-local address.
type Neighbour struct {
	Address   netip.Addr
	Interface *Interface

	hello  HelloHistory
	uhello HelloHistory

	txcost      uint16
	ihuTime     time.Time
	ihuInterval int // centiseconds

	rtt     time.Duration
	rttTime time.Time

	// challengeDeadline is the only authentication challenge state kept
	// here; authentication itself is a wire-layer concern (see package
	// wire), and the maintenance tick does not read or age this field.
	challengeDeadline time.Time

	sendBuf []byte
}

// newNeighbour constructs a Neighbour in its just-created state: both
// hello histories start with seqno "never" and txcost at Infinity.
func newNeighbour(addr netip.Addr, ifc *Interface, now time.Time) *Neighbour {
	n := &Neighbour{
		Address:   addr,
		Interface: ifc,
		txcost:    Infinity,
		ihuTime:   now,
	}
	n.hello.seqno = noSeqno
	n.uhello.seqno = noSeqno
	if ifc != nil {
		n.sendBuf = make([]byte, 0, ifc.BufferSize)
	}
	return n
}

// RTT returns the most recent round-trip sample recorded by
// SetRTTSample; no smoothing is applied.
func (n *Neighbour) RTT() time.Duration { return n.rtt }

// SetRTTSample records a fresh RTT measurement (e.g. from an echo probe
// or a timestamped hello/IHU exchange) along with the time it was taken.
func (n *Neighbour) SetRTTSample(rtt time.Duration, now time.Time) {
	n.rtt = rtt
	n.rttTime = now
}

// validRTT reports whether the neighbour's RTT sample is still fresh,
// grounded on neighbour.c's valid_rtt.
func (n *Neighbour) validRTT(now time.Time) bool {
	return msSince(now, n.rttTime) < 180000
}

// updateHistory applies one reachability update to a hello history,
// grounded on neighbour.c's update_neighbour. helloSeqno == -1 models
// the tick-sweep call with no concrete seqno ("hello_seqno = None").
func updateHistory(h *HelloHistory, now time.Time, helloSeqno int32, helloInterval int) (changed bool) {
	var missed int

	if helloSeqno < 0 {
		if h.interval > 0 {
			missed = (int(msSince(now, h.time)) - h.interval*7) / (h.interval * 10)
		} else {
			missed = reachWindow
		}
		if missed <= 0 {
			return false
		}
		h.time = h.time.Add(time.Duration(missed*h.interval*10) * time.Millisecond)
	} else {
		if h.seen() && h.reach > 0 {
			missed = seqnoDiff(uint16(helloSeqno), uint16(h.seqno)) - 1
			switch {
			case missed < -8:
				// Peer reboot: it lost its seqno state. "Reboot the
				// universe."
				h.reach = 0
				missed = 0
				changed = true
			case missed < 0:
				// Late hello: link-layer bufferbloat reordered delivery.
				h.reach <<= uint(-missed)
				missed = 0
				changed = true
			}
		} else {
			missed = 0
		}
		if helloInterval != 0 {
			h.time = now
			h.interval = helloInterval
		}
	}

	if missed > 0 {
		if missed >= reachWindow {
			h.reach = 0
		} else {
			h.reach >>= uint(missed)
		}
		h.seqno = int32(seqnoPlus(uint16(h.seqno), missed))
		changed = true
	}

	if helloSeqno >= 0 {
		h.seqno = helloSeqno
		h.reach >>= 1
		h.reach |= 0x8000
		if h.reach&0xFC00 != 0xFC00 {
			changed = true
		}
	}

	return changed
}

// updateMulticast applies a reachability update to the multicast hello
// history. helloSeqno == -1 models a tick-sweep call.
func (n *Neighbour) updateMulticast(now time.Time, helloSeqno int32, helloInterval int) bool {
	return updateHistory(&n.hello, now, helloSeqno, helloInterval)
}

// updateUnicast applies a reachability update to the unicast hello
// history.
func (n *Neighbour) updateUnicast(now time.Time, helloSeqno int32, helloInterval int) bool {
	return updateHistory(&n.uhello, now, helloSeqno, helloInterval)
}

// resetIHUInterval restarts the IHU deadline clock at the given interval
// (centiseconds), as carried by an incoming IHU TLV.
func (n *Neighbour) resetIHUInterval(now time.Time, interval int) {
	n.ihuTime = now
	n.ihuInterval = interval
}

// setTxcost records a freshly received txcost (i.e. the peer's measured
// rxcost for us, carried in an IHU).
func (n *Neighbour) setTxcost(txcost uint16, now time.Time) {
	n.txcost = txcost
	n.ihuTime = now
}

// resetTxcost ages out a stale txcost, grounded on neighbour.c's
// reset_txcost.
func (n *Neighbour) resetTxcost(now time.Time) (changed bool) {
	delay := msSince(now, n.ihuTime)

	if n.ihuInterval > 0 && delay < int64(n.ihuInterval*10*3) {
		return false
	}

	if delay >= 180000 ||
		(n.hello.reach&0xFFF0) == 0 ||
		(n.ihuInterval > 0 && delay >= int64(n.ihuInterval*10*10)) {
		n.txcost = Infinity
		n.ihuTime = now
		return true
	}

	return false
}

// twoThree implements the "2 of 3 recent hellos received" reachability
// rule, grounded on
// neighbour.c's two_three: "To lose one hello is a misfortune, to lose
// two is carelessness."
func twoThree(reach uint16) bool {
	switch {
	case reach&0xC000 == 0xC000:
		return true
	case reach&0xC000 == 0:
		return false
	default:
		return reach&0x2000 != 0
	}
}

// RXCost returns this neighbour's receive cost as of now -- the value a
// Babel speaker reports back to the neighbour in an IHU so the neighbour
// can use it as its txcost for this link.
func (n *Neighbour) RXCost(now time.Time) uint16 { return n.rxcost(now) }

// rxcost computes the neighbour's receive cost, grounded on
// neighbour.c's neighbour_rxcost.
func (n *Neighbour) rxcost(now time.Time) uint16 {
	reach := n.hello.reach
	ureach := n.uhello.reach

	delay := msSince(now, n.hello.time)
	udelay := msSince(now, n.uhello.time)

	bothStale := (reach&0xFFF0 == 0 || delay >= 180000) &&
		(ureach&0xFFF0 == 0 || udelay >= 180000)
	if bothStale {
		return Infinity
	}

	if n.Interface != nil && n.Interface.LinkQuality {
		sreach := int((reach&0x8000)>>2) + int((reach&0x4000)>>1) + int(reach&0x3FFF)
		cost := (0x8000 * int(n.Interface.Cost)) / (sreach + 1)
		if delay >= 40000 {
			cost = (cost*(int(delay)-20000) + 10000) / 20000
		}
		if cost < 0 {
			cost = 0
		}
		if cost >= int(Infinity) {
			return Infinity
		}
		return uint16(cost)
	}

	if twoThree(reach) || twoThree(ureach) {
		return n.Interface.Cost
	}
	return Infinity
}

// rttcost computes the RTT-derived additive penalty for a given TOS
// class, grounded on neighbour.c's neighbour_rttcost.
func (n *Neighbour) rttcost(now time.Time, tos TOS) uint32 {
	ifc := n.Interface
	base := RTTProfile{RTTMin: ifc.RTTMin, RTTMax: ifc.RTTMax, MaxRTTPenalty: ifc.MaxRTTPenalty}

	if base.MaxRTTPenalty == 0 || !n.validRTT(now) {
		return 0
	}

	profile := classify(base, tos)
	if profile.MaxRTTPenalty == 0 {
		return 0
	}

	rtt := uint32(n.rtt.Milliseconds())
	switch {
	case rtt <= profile.RTTMin:
		return 0
	case rtt <= profile.RTTMax:
		if profile.RTTMax == profile.RTTMin {
			return profile.MaxRTTPenalty
		}
		return uint32((uint64(profile.MaxRTTPenalty) * uint64(rtt-profile.RTTMin)) / uint64(profile.RTTMax-profile.RTTMin))
	default:
		return profile.MaxRTTPenalty
	}
}

// cost computes the neighbour's overall link cost for a given TOS
// class, grounded on neighbour.c's neighbour_cost.
func (n *Neighbour) cost(now time.Time, tos TOS) uint16 {
	if n.Interface == nil || !n.Interface.Up {
		return Infinity
	}

	tx := uint32(n.txcost)
	if tx >= uint32(Infinity) {
		return Infinity
	}

	rx := uint32(n.rxcost(now))
	if rx >= uint32(Infinity) {
		return Infinity
	}

	var base uint32
	if !n.Interface.LinkQuality || (tx < 256 && rx < 256) {
		base = tx
	} else {
		a, b := tx, rx
		if a < 256 {
			a = 256
		}
		if b < 256 {
			b = 256
		}
		base = (a*b + 128) >> 8
	}

	return saturatingAdd(base, n.rttcost(now, tos))
}
