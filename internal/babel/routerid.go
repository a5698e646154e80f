package babel

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// RouterID is the 8-byte identity a node advertises in its Updates.
// Nothing in this package persists it or derives it from an interface
// identity: DeriveRouterID hashes a caller-supplied seed, and
// RandomRouterID draws a fresh id that differs on every call.
type RouterID [8]byte

// IsZero reports whether id is the unset zero value.
func (id RouterID) IsZero() bool { return id == RouterID{} }

// DeriveRouterID computes a stable router-id from a seed identifying the
// node (e.g. the lowest MAC address among its interfaces, or a
// configured string), so that repeated starts without persisted state
// still produce the same id so long as the seed is stable.
func DeriveRouterID(seed []byte) RouterID {
	sum := sha256.Sum256(seed)
	var id RouterID
	copy(id[:], sum[:8])
	return id
}

// RandomRouterID generates a random router-id using crypto/rand. Used
// when no stable seed is available; callers that need seqno monotonicity
// across restarts should persist the result.
func RandomRouterID() (RouterID, error) {
	var id RouterID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate random router-id: %w", err)
	}
	return id, nil
}

// routerIDFromUint64 is a test/debug helper for building a predictable
// RouterID.
func routerIDFromUint64(v uint64) RouterID {
	var id RouterID
	binary.BigEndian.PutUint64(id[:], v)
	return id
}
