// Package babel implements the core of a Babel-family distance-vector
// routing engine (RFC 8966), extended with source-specific prefixes
// (RFC 9229) and DSCP/TOS-qualified link cost.
//
// This includes the neighbour table and link-cost estimator, the source
// table and feasibility condition, the route table and selector, the
// exported-route ("xroute") table, the filter engine, the DSCP classifier,
// and the maintenance tick that ages all of the above.
//
// The package is deliberately single-threaded: exactly one goroutine,
// owned by the caller, is expected to drive a Core through its mutating
// methods. Read-only snapshot methods are safe to call concurrently with
// that goroutine.
package babel
