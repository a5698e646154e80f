package babel

import (
	"sort"
	"time"
)

// churnHysteresisNumerator/Denominator implement the 1.2x threshold as
// integer arithmetic (avoids float metric comparisons): a challenger
// must beat the installed route's metric by more than
// churnHysteresisNumerator/churnHysteresisDenominator to immediately
// displace it.
const (
	churnHysteresisNumerator   = 12
	churnHysteresisDenominator = 10
)

// churnDampingWindow bounds how long a metric regression on the
// installed route is tolerated before a better challenger is allowed to
// take over regardless of hysteresis.
const churnDampingWindow = 4 * time.Second

// routeExpiry is how long a route survives with no refreshing Update
// before the maintenance tick expires it — a route cannot usefully
// outlive the neighbour that advertises it, so this mirrors the
// neighbour idle ceiling.
const routeExpiry = 300 * time.Second

// Route is one neighbour's candidate for a destination.
type Route struct {
	Dest      DestKey
	Neighbour *Neighbour
	Source    *Source

	seqno     uint16
	refmetric uint16
	metric    uint16
	expiry    time.Time
	installed bool
	feasible  bool
}

// Metric returns the route's last-computed metric (refmetric + cost).
func (r *Route) Metric() uint16 { return r.metric }

// Feasible reports whether the route currently satisfies the Babel
// feasibility condition.
func (r *Route) Feasible() bool { return r.feasible }

// Installed reports whether this route is the one currently mirrored
// into the FIB.
func (r *Route) Installed() bool { return r.installed }

// destRoutes holds every currently-known route for one destination,
// keyed by the advertising neighbour.
type destRoutes struct {
	byNeighbour map[*Neighbour]*Route
	installed   *Route
	lastChurn   time.Time
}

// routeTable owns every destination's candidate-route set and drives
// selection.
type routeTable struct {
	dests map[DestKey]*destRoutes
}

func newRouteTable() *routeTable {
	return &routeTable{dests: make(map[DestKey]*destRoutes)}
}

// UpdateDecision is returned by routeTable.applyUpdate, telling the
// caller (Core) what to do about the wire protocol and the source table.
type UpdateDecision struct {
	// Accepted is true if the route was stored. applyUpdate stores every
	// Update: feasible ones, retractions, and infeasible ones (kept with
	// feasible=false so they cannot be selected).
	Accepted bool
	// NeedSeqnoRequest is true if a non-retraction update failed
	// feasibility, whatever its metric, requiring a seqno request
	// upstream before it can be installed.
	NeedSeqnoRequest bool
	// SeqnoRequest is populated when NeedSeqnoRequest is true: the
	// request to send the advertising neighbour, asking it to bump its
	// seqno past the source table's current value.
	SeqnoRequest SeqnoRequest
}

// SeqnoRequest is a pending Seqno Request TLV to emit, asking Neighbour
// to re-advertise RouterID/Dest with a seqno no less than Seqno.
type SeqnoRequest struct {
	RouterID  RouterID
	Dest      DestKey
	Seqno     uint16
	Neighbour *Neighbour
}

// applyUpdate records a neighbour's advertisement for a destination,
// enforcing the feasibility condition against the shared Source entry.
func (rt *routeTable) applyUpdate(st *sourceTable, neigh *Neighbour, key SourceKey, dest DestKey, seqno, refmetric uint16, now time.Time) UpdateDecision {
	src := st.find(key, now, true, seqno)

	d := rt.dests[dest]
	if d == nil {
		d = &destRoutes{byNeighbour: make(map[*Neighbour]*Route)}
		rt.dests[dest] = d
	}

	existing, had := d.byNeighbour[neigh]

	if refmetric == Infinity {
		// Retractions are always accepted.
		src.updateIfFeasible(seqno, refmetric, now)
		if had {
			existing.seqno = seqno
			existing.refmetric = refmetric
			existing.feasible = true
			existing.expiry = now.Add(routeExpiry)
		} else {
			st.retain(src, now)
			r := &Route{Dest: dest, Neighbour: neigh, Source: src, seqno: seqno, refmetric: refmetric, feasible: true, expiry: now.Add(routeExpiry)}
			d.byNeighbour[neigh] = r
		}
		return UpdateDecision{Accepted: true}
	}

	feasibleNow := feasible(seqno, refmetric, src.seqno, src.metric)
	if feasibleNow {
		src.updateIfFeasible(seqno, refmetric, now)
	}

	if !had {
		if !feasibleNow {
			// Stored but not installed; upstream must be asked to bump
			// its seqno before this can ever be selected.
			r := &Route{Dest: dest, Neighbour: neigh, Source: src, seqno: seqno, refmetric: refmetric, feasible: false, expiry: now.Add(routeExpiry)}
			st.retain(src, now)
			d.byNeighbour[neigh] = r
			return UpdateDecision{Accepted: true, NeedSeqnoRequest: true, SeqnoRequest: seqnoRequestFor(key, src, neigh)}
		}
		st.retain(src, now)
		r := &Route{Dest: dest, Neighbour: neigh, Source: src, seqno: seqno, refmetric: refmetric, feasible: true, expiry: now.Add(routeExpiry)}
		d.byNeighbour[neigh] = r
		return UpdateDecision{Accepted: true}
	}

	existing.seqno = seqno
	existing.refmetric = refmetric
	existing.feasible = feasibleNow
	existing.expiry = now.Add(routeExpiry)
	if !feasibleNow {
		return UpdateDecision{Accepted: true, NeedSeqnoRequest: true, SeqnoRequest: seqnoRequestFor(key, src, neigh)}
	}
	return UpdateDecision{Accepted: true}
}

// seqnoRequestFor builds the Seqno Request to send neigh, asking it to
// re-advertise key's destination with a seqno past the source table's
// current record — the smallest bump that could make the rejected
// update feasible.
func seqnoRequestFor(key SourceKey, src *Source, neigh *Neighbour) SeqnoRequest {
	dest := DestKey{Prefix: key.Prefix, SrcPlen: key.SrcPlen, SrcAddr: key.SrcAddr, TOS: key.TOS}
	return SeqnoRequest{RouterID: key.RouterID, Dest: dest, Seqno: seqnoPlus(src.seqno, 1), Neighbour: neigh}
}

// recomputeMetrics refreshes metric = refmetric + cost(neighbour, tos)
// for every route at a destination.
func (d *destRoutes) recomputeMetrics(now time.Time) {
	for _, r := range d.byNeighbour {
		r.metric = saturatingAdd(uint32(r.refmetric), uint32(r.Neighbour.cost(now, r.Dest.TOS)))
	}
}

// candidates returns the routes eligible for selection: feasible and
// reachable. Filter-denial is applied by the caller since it needs
// FilterSet access Core owns.
func (d *destRoutes) candidates() []*Route {
	out := make([]*Route, 0, len(d.byNeighbour))
	for _, r := range d.byNeighbour {
		if r.feasible && r.metric < Infinity {
			out = append(out, r)
		}
	}
	return out
}

// selectBest picks the minimum-metric route among candidates, applying
// a tie-break order: (a) currently-installed route (hysteresis), (b)
// lower refmetric, (c) stable ordering by neighbour address.
func selectBest(candidates []*Route, installed *Route) *Route {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.metric != b.metric {
			return a.metric < b.metric
		}
		if (a == installed) != (b == installed) {
			return a == installed
		}
		if a.refmetric != b.refmetric {
			return a.refmetric < b.refmetric
		}
		return a.Neighbour.Address.Compare(b.Neighbour.Address) < 0
	})
	return candidates[0]
}

// SelectionOutcome classifies a reselect() result for metrics: whether a
// route was newly installed, changed to a different neighbour, retracted
// entirely, or held in place by the churn hysteresis.
type SelectionOutcome int

const (
	OutcomeChanged SelectionOutcome = iota
	OutcomeInstalled
	OutcomeRetracted
	OutcomeSuppressed
)

// SelectionResult describes the outcome of reselecting a destination's
// best route.
type SelectionResult struct {
	Dest     DestKey
	Previous *Route
	Current  *Route
	Changed  bool
	// Suppressed is true when a better challenger existed but the churn
	// hysteresis held the previously-installed route instead.
	Suppressed bool
}

// reselect recomputes metrics, filters candidates, and re-runs selection
// for one destination, applying the churn-suppression hysteresis.
func (rt *routeTable) reselect(dest DestKey, now time.Time, filters *FilterSet) SelectionResult {
	d := rt.dests[dest]
	if d == nil {
		return SelectionResult{Dest: dest}
	}

	d.recomputeMetrics(now)

	cands := d.candidates()
	if filters != nil {
		filtered := cands[:0:0]
		for _, r := range cands {
			c := Candidate{
				IfName:    r.Neighbour.Interface.Name,
				RouterID:  r.Source.Key.RouterID,
				Prefix:    r.Dest.Prefix,
				SrcPlen:   r.Dest.SrcPlen,
				SrcAddr:   r.Dest.SrcAddr,
				TOS:       r.Dest.TOS,
				Neighbour: r.Neighbour.Address,
			}
			if m, ok := filters.evaluate(SiteInput, c, r.metric); ok {
				r.metric = m
				filtered = append(filtered, r)
			}
		}
		cands = filtered
	}

	best := selectBest(cands, d.installed)

	prev := d.installed
	if best == prev {
		return SelectionResult{Dest: dest, Previous: prev, Current: best}
	}

	// Hysteresis: the challenger must beat the installed route's metric by
	// more than the 1.2x margin to immediately displace it; otherwise,
	// within the damping window, keep the installed route.
	// best.metric*12 < prev.metric*10 is best < prev/1.2, cross-multiplied
	// to avoid integer-division rounding.
	if prev != nil && best != nil && prev.metric < Infinity {
		clearlyBetter := uint32(best.metric)*churnHysteresisNumerator < uint32(prev.metric)*churnHysteresisDenominator
		if !clearlyBetter && now.Sub(d.lastChurn) < churnDampingWindow {
			return SelectionResult{Dest: dest, Previous: prev, Current: prev, Suppressed: true}
		}
	}

	for _, r := range d.byNeighbour {
		r.installed = r == best
	}
	d.installed = best
	d.lastChurn = now

	return SelectionResult{Dest: dest, Previous: prev, Current: best, Changed: true}
}

// removeNeighbourRoutes drops every route advertised by neigh across all
// destinations, releasing their source references.
func (rt *routeTable) removeNeighbourRoutes(neigh *Neighbour, st *sourceTable, now time.Time) []DestKey {
	var affected []DestKey
	for key, d := range rt.dests {
		if r, ok := d.byNeighbour[neigh]; ok {
			delete(d.byNeighbour, neigh)
			st.release(r.Source, now)
			if d.installed == r {
				d.installed = nil
			}
			affected = append(affected, key)
		}
	}
	return affected
}

// expireRoutes removes routes whose expiry has passed, releasing their
// source references, and returns the affected destination keys so the
// caller can reselect them.
func (rt *routeTable) expireRoutes(st *sourceTable, now time.Time) []DestKey {
	var affected []DestKey
	for key, d := range rt.dests {
		for n, r := range d.byNeighbour {
			if now.After(r.expiry) {
				delete(d.byNeighbour, n)
				st.release(r.Source, now)
				if d.installed == r {
					d.installed = nil
				}
				affected = append(affected, key)
			}
		}
	}
	return affected
}

// allInstalled returns every currently-installed route, for FIB sync and
// snapshot reads.
func (rt *routeTable) allInstalled() []*Route {
	out := make([]*Route, 0, len(rt.dests))
	for _, d := range rt.dests {
		if d.installed != nil {
			out = append(out, d.installed)
		}
	}
	return out
}

func (rt *routeTable) count() int {
	n := 0
	for _, d := range rt.dests {
		n += len(d.byNeighbour)
	}
	return n
}
