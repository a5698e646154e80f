package babel

// Interface is an enabled link the core sends and receives Babel traffic
// on.
type Interface struct {
	Name  string
	Index int

	// Up reports whether the underlying link is currently usable; when
	// false, cost(neigh, tos) is forced to Infinity regardless of any
	// neighbour's measured cost.
	Up bool

	// Cost is the configured base cost of this interface.
	Cost uint16

	// LinkQuality enables ETX-style cost estimation (the "LQ flag");
	// when false the two-three reachability rule is used instead.
	LinkQuality bool

	// HelloInterval and UpdateInterval are in centiseconds, matching the
	// wire encoding of Babel's Hello/Update intervals.
	HelloInterval  int
	UHelloInterval int
	UpdateInterval int

	// RTTMin, RTTMax are in milliseconds; MaxRTTPenalty is an abstract
	// additive cost unit. Together these form the interface's default
	// RTT profile, adjusted per DSCP class by classify.
	RTTMin        uint32
	RTTMax        uint32
	MaxRTTPenalty uint32

	// BufferSize sizes a neighbour's per-peer send buffer, allocated
	// when the neighbour is first created.
	BufferSize int
}
