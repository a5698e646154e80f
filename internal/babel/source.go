package babel

import (
	"net/netip"
	"time"
)

// SourceGCTime is the grace period after a source's reference count
// drops to zero before it is garbage-collected, grounded on source.h's
// SOURCE_GC_TIME.
const SourceGCTime = 200 * time.Second

// SourceKey uniquely identifies a source-table entry: the tuple
// (router-id, prefix, plen, src_prefix, src_plen, tos).
type SourceKey struct {
	RouterID RouterID
	Prefix   netip.Prefix
	SrcPlen  int
	SrcAddr  netip.Addr
	TOS      TOS
}

// Source records the best (seqno, metric) any router has advertised for
// a destination key, and is shared (by strong reference) by every route
// that currently cites it.
type Source struct {
	Key SourceKey

	seqno  uint16
	metric uint16

	refCount int
	touched  time.Time
}

// sourceTable owns all Source entries, keyed by SourceKey.
type sourceTable struct {
	entries map[SourceKey]*Source
}

func newSourceTable() *sourceTable {
	return &sourceTable{entries: make(map[SourceKey]*Source)}
}

// find looks up a source entry, optionally creating it with the given
// seqno and metric == Infinity when missing.
func (t *sourceTable) find(key SourceKey, now time.Time, create bool, seqno uint16) *Source {
	if s, ok := t.entries[key]; ok {
		return s
	}
	if !create {
		return nil
	}
	s := &Source{Key: key, seqno: seqno, metric: Infinity, touched: now}
	t.entries[key] = s
	return s
}

// retain increments a source's reference count; called when a route
// starts citing it.
func (t *sourceTable) retain(s *Source, now time.Time) {
	s.refCount++
	s.touched = now
}

// release decrements a source's reference count; called when a route
// stops citing it. A refcount reaching zero arms GC but does not itself
// remove the entry.
func (t *sourceTable) release(s *Source, now time.Time) {
	s.refCount--
	s.touched = now
}

// updateIfFeasible applies a candidate (seqno, metric) to the source
// entry if it is feasible. It returns whether the update was feasible
// (and thus applied).
func (s *Source) updateIfFeasible(seqno, metric uint16, now time.Time) bool {
	if !feasible(seqno, metric, s.seqno, s.metric) {
		return false
	}
	s.seqno = seqno
	s.metric = metric
	s.touched = now
	return true
}

// Seqno returns the source's last recorded seqno.
func (s *Source) Seqno() uint16 { return s.seqno }

// Metric returns the source's last recorded metric.
func (s *Source) Metric() uint16 { return s.metric }

// expire removes every source entry whose reference count is zero and
// whose last-touch time is older than SourceGCTime.
func (t *sourceTable) expire(now time.Time) []SourceKey {
	var removed []SourceKey
	for k, s := range t.entries {
		if s.refCount <= 0 && now.Sub(s.touched) > SourceGCTime {
			delete(t.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// count returns the number of live source entries, for metrics.
func (t *sourceTable) count() int { return len(t.entries) }

// all returns a snapshot of every live source entry, for the management
// interface.
func (t *sourceTable) all() []*Source {
	out := make([]*Source, 0, len(t.entries))
	for _, s := range t.entries {
		out = append(out, s)
	}
	return out
}
