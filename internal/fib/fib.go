// Package fib mirrors babeld's selected routes into a local longest-
// prefix-match trie and forwards install/remove calls to an Installer,
// which owns the platform-specific kernel-FIB write.
package fib

import (
	"log/slog"
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"
)

// InstalledRoute is the FIB-facing view of a selected route: enough to
// program a kernel route and to tell two installations of the same
// destination/source-prefix/TOS triple apart.
type InstalledRoute struct {
	Prefix    netip.Prefix
	SrcPrefix netip.Prefix // zero value means "no source qualifier"
	TOS       byte

	NextHop netip.Addr
	IfIndex int
	Metric  uint16
}

// srcKey identifies one FIB entry inside a destination's source-specific
// sub-map (bart's own key space is a single netip.Prefix, so source
// specificity is layered on top).
type srcKey struct {
	srcPrefix netip.Prefix
	tos       byte
}

// Installer programs the kernel (or any other consumer) with FIB
// changes. NoopInstaller below satisfies this for platforms or tests
// without root.
type Installer interface {
	Install(r InstalledRoute) error
	Remove(r InstalledRoute) error
	ListLocalAddresses() ([]netip.Addr, error)
}

// EventKind distinguishes link/address change notifications the FIB
// layer surfaces to the daemon.
type EventKind int

const (
	EventInterfaceUp EventKind = iota
	EventInterfaceDown
	EventAddressAdded
	EventAddressRemoved
)

// Event is pushed onto Mirror's event channel when the underlying
// platform reports a link or address change.
type Event struct {
	Kind    EventKind
	IfIndex int
	IfName  string
	Addr    netip.Addr
}

// Mirror owns the local LPM mirror of every installed route and
// delegates the actual kernel write to an Installer.
type Mirror struct {
	mu        sync.RWMutex
	table     *bart.Table[map[srcKey]InstalledRoute]
	installer Installer
	logger    *slog.Logger

	events chan Event
}

// New constructs a Mirror backed by the given Installer. A nil
// installer defaults to NoopInstaller.
func New(installer Installer, logger *slog.Logger) *Mirror {
	if installer == nil {
		installer = NoopInstaller{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		table:     new(bart.Table[map[srcKey]InstalledRoute]),
		installer: installer,
		logger:    logger,
		events:    make(chan Event, 64),
	}
}

// Events returns the channel the daemon selects on for link/address
// change notifications.
func (m *Mirror) Events() <-chan Event { return m.events }

// PushEvent is called by the platform-specific link-watcher goroutine;
// it never blocks the caller beyond the channel's buffer.
func (m *Mirror) PushEvent(e Event) {
	select {
	case m.events <- e:
	default:
		m.logger.Warn("fib event channel full, dropping", slog.Any("event", e))
	}
}

// Install mirrors r into the local trie and programs it via the
// Installer. Replacing an existing (prefix, src-prefix, tos) entry
// first removes the old kernel route.
func (m *Mirror) Install(r InstalledRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := srcKey{srcPrefix: r.SrcPrefix, tos: r.TOS}
	sub, _ := m.table.Get(r.Prefix)
	if sub == nil {
		sub = make(map[srcKey]InstalledRoute)
	}
	if old, ok := sub[key]; ok {
		if err := m.installer.Remove(old); err != nil {
			m.logger.Warn("remove superseded route failed", slog.Any("error", err))
		}
	}

	if err := m.installer.Install(r); err != nil {
		return err
	}
	sub[key] = r
	m.table.Insert(r.Prefix, sub)
	return nil
}

// Remove withdraws a previously installed route, if present.
func (m *Mirror) Remove(prefix, srcPrefix netip.Prefix, tos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.table.Get(prefix)
	if !ok {
		return nil
	}
	key := srcKey{srcPrefix: srcPrefix, tos: tos}
	old, ok := sub[key]
	if !ok {
		return nil
	}
	delete(sub, key)
	if len(sub) == 0 {
		m.table.Delete(prefix)
	} else {
		m.table.Insert(prefix, sub)
	}
	return m.installer.Remove(old)
}

// Lookup returns the most specific installed route covering addr, if
// any — useful for diagnostics and tests, mirroring what the kernel
// forwarding path would select.
func (m *Mirror) Lookup(addr netip.Addr) (InstalledRoute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.table.Lookup(addr)
	if !ok {
		return InstalledRoute{}, false
	}
	for _, r := range sub {
		return r, true
	}
	return InstalledRoute{}, false
}

// All returns a snapshot of every installed route across every
// destination and source-specific sub-entry.
func (m *Mirror) All() []InstalledRoute {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []InstalledRoute
	for _, sub := range m.table.All() {
		for _, r := range sub {
			out = append(out, r)
		}
	}
	return out
}

// NoopInstaller logs install/remove calls without touching the kernel,
// for platforms or tests without the privilege to program routes.
type NoopInstaller struct {
	Logger *slog.Logger
}

func (n NoopInstaller) log() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n NoopInstaller) Install(r InstalledRoute) error {
	n.log().Debug("fib install (noop)", slog.String("prefix", r.Prefix.String()), slog.Uint64("metric", uint64(r.Metric)))
	return nil
}

func (n NoopInstaller) Remove(r InstalledRoute) error {
	n.log().Debug("fib remove (noop)", slog.String("prefix", r.Prefix.String()))
	return nil
}

func (n NoopInstaller) ListLocalAddresses() ([]netip.Addr, error) {
	return nil, nil
}
