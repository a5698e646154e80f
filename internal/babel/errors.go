package babel

import "errors"

// Sentinel errors shared across the core.
var (
	// ErrNeighbourNotFound indicates no neighbour exists for the given
	// (address, interface) pair.
	ErrNeighbourNotFound = errors.New("neighbour not found")

	// ErrSourceNotFound indicates no source-table entry exists for the
	// given key.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInfeasible indicates a candidate update failed the feasibility
	// condition and was stored but not installed.
	ErrInfeasible = errors.New("update is not feasible")

	// ErrFilterDenied indicates a filter rule explicitly denied a
	// candidate route or advertisement.
	ErrFilterDenied = errors.New("denied by filter")

	// ErrRouteNotFound indicates no route exists for the given
	// destination key and neighbour.
	ErrRouteNotFound = errors.New("route not found")

	// ErrXrouteNotFound indicates no exported-route entry exists for the
	// given destination key.
	ErrXrouteNotFound = errors.New("xroute not found")

	// ErrInvalidRouterID indicates a router-id is not the required
	// 8-byte length.
	ErrInvalidRouterID = errors.New("router-id must be 8 bytes")
)
