package babel

import (
	"log/slog"
	"net/netip"
	"sync"
	"time"
)

// MetricsSink receives counters the core cannot itself expose without
// depending on a metrics library; wiring is left to the caller via
// this seam.
type MetricsSink interface {
	NeighbourCount(n int)
	SourceCount(n int)
	RouteCount(n int)
	XrouteCount(n int)
	FeasibilityRejected()
	RouteSelected(outcome SelectionOutcome)
}

type noopMetrics struct{}

func (noopMetrics) NeighbourCount(int)                     {}
func (noopMetrics) SourceCount(int)                        {}
func (noopMetrics) RouteCount(int)                         {}
func (noopMetrics) XrouteCount(int)                        {}
func (noopMetrics) FeasibilityRejected()                   {}
func (noopMetrics) RouteSelected(outcome SelectionOutcome) {}

// Core owns the neighbour, source, route, and xroute tables and drives
// selection and maintenance.
//
// Core is constructed once and then driven by exactly one goroutine
// calling its mutating methods (HandleHello, HandleUpdate, Tick, ...);
// this matches a single-threaded, cooperative core. The internal
// mutex exists only so read-only snapshot methods (Neighbours, Routes,
// Xroutes) can be called concurrently from a management socket or
// metrics scrape goroutine without tearing a read.
type Core struct {
	mu sync.RWMutex

	clock  Clock
	logger *slog.Logger

	routerID RouterID

	neighbours *neighbourTable
	sources    *sourceTable
	routes     *routeTable
	xroutes    *xrouteTable

	filters *FilterSet
	notify  NotifyFunc
	metrics MetricsSink

	pendingSeqnoRequests []SeqnoRequest
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithClock overrides the default SystemClock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(core *Core) { core.clock = c }
}

// WithLogger sets the structured logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(core *Core) { core.logger = l }
}

// WithFilters installs the filter chains evaluated at input/output/
// redistribute/install sites.
func WithFilters(fs *FilterSet) Option {
	return func(core *Core) { core.filters = fs }
}

// WithNotify registers the callback invoked on every ADD/CHANGE/FLUSH
// event.
func WithNotify(f NotifyFunc) Option {
	return func(core *Core) { core.notify = f }
}

// WithMetrics wires a MetricsSink the core reports table sizes and
// selection events to.
func WithMetrics(m MetricsSink) Option {
	return func(core *Core) { core.metrics = m }
}

// NewCore constructs a Core with the given router-id and options.
func NewCore(routerID RouterID, opts ...Option) *Core {
	c := &Core{
		clock:      SystemClock{},
		logger:     slog.Default(),
		routerID:   routerID,
		neighbours: newNeighbourTable(),
		sources:    newSourceTable(),
		routes:     newRouteTable(),
		xroutes:    newXrouteTable(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RouterID returns this node's advertised router-id.
func (c *Core) RouterID() RouterID { return c.routerID }

// Filters returns the configured filter chains, for callers (e.g. the
// daemon's Update emission path) that need to evaluate the output or
// redistribute sites themselves. The returned set is fixed at
// construction and safe to read concurrently; it may be nil if no
// filters were configured.
func (c *Core) Filters() *FilterSet { return c.filters }

// Now returns the core's current clock reading.
func (c *Core) Now() time.Time { return c.clock.Now() }

func (c *Core) emit(n Notification) {
	if c.notify != nil {
		c.notify(n)
	}
}

// FindOrCreateNeighbour returns the neighbour for (addr, ifc), creating
// it (and emitting NotifyAdd) if this is the first time it's been seen.
func (c *Core) FindOrCreateNeighbour(addr netip.Addr, ifc *Interface) *Neighbour {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, created := c.neighbours.findOrCreate(addr, ifc, c.clock.Now())
	if created {
		c.logger.Debug("neighbour created", slog.String("address", addr.String()), slog.String("interface", ifc.Name))
		c.emit(Notification{Kind: NotifyAdd, Table: TableNeighbour, Neighbour: n})
		c.metrics.NeighbourCount(c.neighbours.count())
	}
	return n
}

// flushNeighbour cascades the removal of a neighbour: its routes are
// dropped, its source references released, and a NotifyFlush event is
// emitted.
func (c *Core) flushNeighbour(n *Neighbour, now time.Time) {
	affected := c.routes.removeNeighbourRoutes(n, c.sources, now)
	c.neighbours.remove(n)
	c.logger.Debug("neighbour flushed", slog.String("address", n.Address.String()))
	c.emit(Notification{Kind: NotifyFlush, Table: TableNeighbour, Neighbour: n})
	c.metrics.NeighbourCount(c.neighbours.count())

	for _, key := range affected {
		c.reselectDest(key, now)
	}
}

// FlushNeighbour publicly removes a neighbour, e.g. when the wire layer
// reports a hard failure (not just hello silence).
func (c *Core) FlushNeighbour(n *Neighbour) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushNeighbour(n, c.clock.Now())
}

func (c *Core) notifyNeighbourChanged(n *Neighbour) {
	c.emit(Notification{Kind: NotifyChange, Table: TableNeighbour, Neighbour: n})
}

// HandleHello applies an incoming Hello TLV to a neighbour's appropriate
// hello history and reselects any destination whose cost may have
// changed as a result.
func (c *Core) HandleHello(n *Neighbour, seqno uint16, intervalCentisec int, unicast bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed bool
	if unicast {
		changed = n.updateUnicast(now, int32(seqno), intervalCentisec)
	} else {
		changed = n.updateMulticast(now, int32(seqno), intervalCentisec)
	}
	if changed {
		c.notifyNeighbourChanged(n)
		c.reselectNeighbourDests(n, now)
	}
}

// HandleIHU applies an incoming IHU TLV: the peer's measured rxcost
// becomes our txcost for that neighbour.
func (c *Core) HandleIHU(n *Neighbour, txcost uint16, intervalCentisec int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n.setTxcost(txcost, now)
	n.resetIHUInterval(now, intervalCentisec)
	c.notifyNeighbourChanged(n)
	c.reselectNeighbourDests(n, now)
}

// HandleUpdate applies an incoming Update TLV, enforcing feasibility and
// re-running selection for the affected destination.
func (c *Core) HandleUpdate(n *Neighbour, rid RouterID, dest DestKey, seqno, refmetric uint16, now time.Time) UpdateDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	srcKey := SourceKey{RouterID: rid, Prefix: dest.Prefix, SrcPlen: dest.SrcPlen, SrcAddr: dest.SrcAddr, TOS: dest.TOS}
	decision := c.routes.applyUpdate(c.sources, n, srcKey, dest, seqno, refmetric, now)
	if decision.NeedSeqnoRequest {
		c.metrics.FeasibilityRejected()
		c.pendingSeqnoRequests = append(c.pendingSeqnoRequests, decision.SeqnoRequest)
	}
	c.reselectDest(dest, now)
	return decision
}

// DrainSeqnoRequests returns every Seqno Request queued by an infeasible
// (non-retraction) Update since the last call, clearing the queue.
// The caller (the daemon's sender) is responsible for actually
// transmitting them.
func (c *Core) DrainSeqnoRequests() []SeqnoRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pendingSeqnoRequests) == 0 {
		return nil
	}
	out := c.pendingSeqnoRequests
	c.pendingSeqnoRequests = nil
	return out
}

// reselectNeighbourDests re-runs selection for every destination that
// currently has a candidate route from n.
func (c *Core) reselectNeighbourDests(n *Neighbour, now time.Time) {
	for key, d := range c.routes.dests {
		if _, ok := d.byNeighbour[n]; ok {
			c.reselect(key, now)
		}
	}
}

func (c *Core) reselectDest(dest DestKey, now time.Time) {
	c.reselect(dest, now)
}

func (c *Core) reselect(dest DestKey, now time.Time) SelectionResult {
	res := c.routes.reselect(dest, now, c.filters)
	if res.Suppressed {
		c.metrics.RouteSelected(OutcomeSuppressed)
		return res
	}
	if res.Changed {
		kind := NotifyChange
		outcome := OutcomeChanged
		route := res.Current
		if res.Current == nil {
			// Nothing is installed anymore; report the route that was
			// withdrawn so consumers (e.g. the FIB mirror) know what to
			// retract.
			kind = NotifyFlush
			outcome = OutcomeRetracted
			route = res.Previous
		} else if res.Previous == nil {
			kind = NotifyAdd
			outcome = OutcomeInstalled
		}
		c.emit(Notification{Kind: kind, Table: TableRoute, Route: route})
		c.metrics.RouteSelected(outcome)
		c.metrics.RouteCount(c.routes.count())
	}
	return res
}

// expireSourcesAndRoutes runs the parallel GC sweep that drives source
// expiry, route expiry, retraction finalisation, and scheduled
// retransmits.
func (c *Core) expireSourcesAndRoutes(now time.Time) {
	affected := c.routes.expireRoutes(c.sources, now)
	for _, key := range affected {
		c.reselect(key, now)
	}
	c.sources.expire(now)
	c.metrics.SourceCount(c.sources.count())
}

// AddXroute installs a locally-exported prefix, created from
// kernel/config.
func (c *Core) AddXroute(x *Xroute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existed := c.xroutes.add(x)
	kind := NotifyAdd
	if existed {
		kind = NotifyChange
	}
	c.emit(Notification{Kind: kind, Table: TableXroute, Xroute: x})
	c.metrics.XrouteCount(c.xroutes.count())
}

// RemoveXroute withdraws a locally-exported prefix.
func (c *Core) RemoveXroute(key DestKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if x, ok := c.xroutes.remove(key); ok {
		c.emit(Notification{Kind: NotifyFlush, Table: TableXroute, Xroute: x})
		c.metrics.XrouteCount(c.xroutes.count())
	}
}

// Tick runs the maintenance sweep. See maintenance.go for the algorithm.

// Neighbours returns a snapshot of every known neighbour.
func (c *Core) Neighbours() []*Neighbour {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.neighbours.all()
}

// Routes returns a snapshot of every currently-installed route.
func (c *Core) Routes() []*Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routes.allInstalled()
}

// Xroutes returns a snapshot of every exported route.
func (c *Core) Xroutes() []*Xroute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.xroutes.all()
}

// Sources returns a snapshot of every live source-table entry.
func (c *Core) Sources() []*Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sources.all()
}
