package babel

import (
	"net/netip"
	"testing"
)

func testCandidate() Candidate {
	return Candidate{
		IfName:    "eth0",
		RouterID:  routerIDFromUint64(1),
		Prefix:    testPrefix("2001:db8::/32"),
		TOS:       DSCPEF,
		Neighbour: testAddr("fe80::1"),
	}
}

func TestFilterEvaluateFirstMatchWins(t *testing.T) {
	t.Parallel()

	f := &Filter{Rules: []Rule{
		{Match: FilterMatch{IfName: "wg0"}, Result: FilterResult{Action: ActionDeny}},
		{Match: FilterMatch{IfName: "eth0"}, Result: FilterResult{Action: ActionMetric, AddMetric: 50}},
		{Match: FilterMatch{}, Result: FilterResult{Action: ActionDeny}},
	}}

	got := f.Evaluate(testCandidate())
	if got.Action != ActionMetric || got.AddMetric != 50 {
		t.Fatalf("Evaluate = %+v, want the eth0 metric rule", got)
	}
}

func TestFilterNoMatchImplicitlyAllows(t *testing.T) {
	t.Parallel()

	f := &Filter{Rules: []Rule{
		{Match: FilterMatch{IfName: "wg0"}, Result: FilterResult{Action: ActionDeny}},
	}}

	got := f.Evaluate(testCandidate())
	if got.Action != ActionAllow {
		t.Fatalf("Evaluate with no match = %+v, want implicit allow", got)
	}
}

func TestFilterResultApply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		result     FilterResult
		metric     uint16
		wantMetric uint16
		wantOK     bool
	}{
		{"allow passes through", FilterResult{Action: ActionAllow}, 100, 100, true},
		{"deny drops", FilterResult{Action: ActionDeny}, 100, Infinity, false},
		{"metric adds", FilterResult{Action: ActionMetric, AddMetric: 25}, 100, 125, true},
		{"metric of infinity denies", FilterResult{Action: ActionMetric, AddMetric: Infinity}, 100, Infinity, false},
		{"metric saturates", FilterResult{Action: ActionMetric, AddMetric: 60000}, 60000, Infinity, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tc.result.apply(tc.metric)
			if got != tc.wantMetric || ok != tc.wantOK {
				t.Fatalf("apply(%d) = (%d, %v), want (%d, %v)", tc.metric, got, ok, tc.wantMetric, tc.wantOK)
			}
		})
	}
}

func TestFilterMatchCriteria(t *testing.T) {
	t.Parallel()

	c := testCandidate()

	cases := []struct {
		name  string
		match FilterMatch
		want  bool
	}{
		{"empty match always matches", FilterMatch{}, true},
		{"ifname match", FilterMatch{IfName: "eth0"}, true},
		{"ifname mismatch", FilterMatch{IfName: "wg0"}, false},
		{"prefix contains", FilterMatch{Prefix: prefixPtr(testPrefix("2001:db8::/16"))}, true},
		{"prefix excludes", FilterMatch{Prefix: prefixPtr(testPrefix("2001:dead::/32"))}, false},
		{"plen lower bound satisfied", FilterMatch{PlenGE: 16}, true},
		{"plen lower bound violated", FilterMatch{PlenGE: 64}, false},
		{"plen upper bound satisfied", FilterMatch{PlenLE: 64}, true},
		{"plen upper bound violated", FilterMatch{PlenLE: 16}, false},
		{"tos match", FilterMatch{TOS: tosPtr(DSCPEF)}, true},
		{"tos mismatch", FilterMatch{TOS: tosPtr(DSCPAF11)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.match.matches(c); got != tc.want {
				t.Fatalf("matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterSetEvaluateNilChainAllows(t *testing.T) {
	t.Parallel()

	var fs *FilterSet
	metric, ok := fs.evaluate(SiteInput, testCandidate(), 42)
	if !ok || metric != 42 {
		t.Fatalf("nil FilterSet evaluate = (%d, %v), want (42, true)", metric, ok)
	}

	fs = &FilterSet{}
	metric, ok = fs.evaluate(SiteOutput, testCandidate(), 42)
	if !ok || metric != 42 {
		t.Fatalf("FilterSet with no output chain = (%d, %v), want (42, true)", metric, ok)
	}
}

func prefixPtr(p netip.Prefix) *netip.Prefix { return &p }
func tosPtr(t TOS) *TOS                      { return &t }
