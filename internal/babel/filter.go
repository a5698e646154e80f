package babel

import "net/netip"

// FilterSite identifies where a filter chain is invoked: input, output,
// redistribute, or install.
type FilterSite int

const (
	SiteInput FilterSite = iota
	SiteOutput
	SiteRedistribute
	SiteInstall
)

// FilterAction is the outcome a matching rule applies.
type FilterAction int

const (
	ActionAllow FilterAction = iota
	ActionDeny
	ActionMetric
)

// FilterMatch is the set of criteria a rule tests against a candidate.
// Zero-valued (pointer-nil / empty) fields mean "absent", and absent
// criteria match anything.
type FilterMatch struct {
	IfName    string
	RouterID  *RouterID
	Prefix    *netip.Prefix
	PlenGE    int // 0 means "not set"
	PlenLE    int // 0 means "not set"
	SrcPrefix *netip.Prefix
	SrcPlenGE int
	SrcPlenLE int
	TOS       *TOS
	Neighbour *netip.Addr
	Proto     *uint8
}

// FilterResult carries a rule's action and optional install-time
// side-effects: source routing table id, preferred source, TOS
// override.
type FilterResult struct {
	Action    FilterAction
	AddMetric uint16

	TableID     int
	PrefSrc     netip.Addr
	TOSOverride *TOS
}

// Rule is one (match, action) pair in a filter chain.
type Rule struct {
	Match  FilterMatch
	Result FilterResult
}

// Filter is an ordered list of rules evaluated in order; the first
// matching rule decides.
type Filter struct {
	Rules []Rule
}

// Candidate is the subject offered to a filter chain for evaluation: a
// route or xroute under consideration at one of the four sites.
type Candidate struct {
	IfName    string
	RouterID  RouterID
	Prefix    netip.Prefix
	SrcPlen   int
	SrcAddr   netip.Addr
	TOS       TOS
	Neighbour netip.Addr
	Proto     uint8
}

// matches reports whether every present criterion in m matches c.
func (m FilterMatch) matches(c Candidate) bool {
	if m.IfName != "" && m.IfName != c.IfName {
		return false
	}
	if m.RouterID != nil && *m.RouterID != c.RouterID {
		return false
	}
	if m.Prefix != nil && !m.Prefix.Contains(c.Prefix.Addr()) {
		return false
	}
	if m.PlenGE > 0 && c.Prefix.Bits() < m.PlenGE {
		return false
	}
	if m.PlenLE > 0 && c.Prefix.Bits() > m.PlenLE {
		return false
	}
	if m.SrcPrefix != nil && !m.SrcPrefix.Contains(c.SrcAddr) {
		return false
	}
	if m.SrcPlenGE > 0 && c.SrcPlen < m.SrcPlenGE {
		return false
	}
	if m.SrcPlenLE > 0 && c.SrcPlen > m.SrcPlenLE {
		return false
	}
	if m.TOS != nil && *m.TOS != c.TOS {
		return false
	}
	if m.Neighbour != nil && *m.Neighbour != c.Neighbour {
		return false
	}
	if m.Proto != nil && *m.Proto != c.Proto {
		return false
	}
	return true
}

// Evaluate runs the filter chain against a candidate and returns the
// first matching rule's result, or an implicit allow with no side
// effects if nothing matches.
func (f *Filter) Evaluate(c Candidate) FilterResult {
	for _, r := range f.Rules {
		if r.Match.matches(c) {
			return r.Result
		}
	}
	return FilterResult{Action: ActionAllow}
}

// apply folds a FilterResult's action into a metric: allow passes with
// add_metric = 0, deny drops, metric <0..INF> adds a penalty (INF is
// equivalent to deny). ok is false when the candidate is denied.
func (r FilterResult) apply(metric uint16) (result uint16, ok bool) {
	switch r.Action {
	case ActionDeny:
		return Infinity, false
	case ActionMetric:
		if r.AddMetric >= Infinity {
			return Infinity, false
		}
		return saturatingAdd(uint32(metric), uint32(r.AddMetric)), true
	default:
		return metric, true
	}
}

// FilterSet holds the four filter chains a configuration loads: input,
// output, and redistribute are invoked at their respective sites. The
// install chain is loaded and stored, but nothing evaluates it: route
// selection and FIB installation do not consult it.
type FilterSet struct {
	Input        *Filter
	Output       *Filter
	Redistribute *Filter
	Install      *Filter
}

func (fs *FilterSet) chain(site FilterSite) *Filter {
	if fs == nil {
		return nil
	}
	switch site {
	case SiteInput:
		return fs.Input
	case SiteOutput:
		return fs.Output
	case SiteRedistribute:
		return fs.Redistribute
	case SiteInstall:
		return fs.Install
	default:
		return nil
	}
}

// evaluate runs the named site's chain, defaulting to an unconditional
// allow when no chain is configured.
func (fs *FilterSet) evaluate(site FilterSite, c Candidate, metric uint16) (uint16, bool) {
	chain := fs.chain(site)
	if chain == nil {
		return metric, true
	}
	return chain.Evaluate(c).apply(metric)
}

// Apply runs the named site's filter chain against a candidate, for
// callers outside package babel (e.g. the daemon's Update emission
// path, which needs the output and redistribute sites route.go's
// reselect does not itself evaluate).
func (fs *FilterSet) Apply(site FilterSite, c Candidate, metric uint16) (uint16, bool) {
	return fs.evaluate(site, c, metric)
}
