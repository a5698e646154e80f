package main

import (
	"fmt"
	"net/netip"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/config"
)

// buildFilterSet compiles the configured filter rules into a
// babel.FilterSet, bucketed by site.
func buildFilterSet(rules []config.FilterConfig) (*babel.FilterSet, error) {
	fs := &babel.FilterSet{
		Input:        &babel.Filter{},
		Output:       &babel.Filter{},
		Redistribute: &babel.Filter{},
		Install:      &babel.Filter{},
	}

	for i, rc := range rules {
		rule, err := buildRule(rc)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}

		switch rc.Site {
		case "input":
			fs.Input.Rules = append(fs.Input.Rules, rule)
		case "output":
			fs.Output.Rules = append(fs.Output.Rules, rule)
		case "redistribute":
			fs.Redistribute.Rules = append(fs.Redistribute.Rules, rule)
		case "install":
			fs.Install.Rules = append(fs.Install.Rules, rule)
		default:
			return nil, fmt.Errorf("filters[%d]: unknown site %q", i, rc.Site)
		}
	}

	return fs, nil
}

func buildRule(rc config.FilterConfig) (babel.Rule, error) {
	match := babel.FilterMatch{
		IfName:    rc.IfName,
		PlenGE:    rc.PlenGE,
		PlenLE:    rc.PlenLE,
		SrcPlenGE: rc.SrcPlenGE,
		SrcPlenLE: rc.SrcPlenLE,
	}

	if rc.Prefix != "" {
		p, err := netip.ParsePrefix(rc.Prefix)
		if err != nil {
			return babel.Rule{}, fmt.Errorf("parse prefix %q: %w", rc.Prefix, err)
		}
		match.Prefix = &p
	}
	if rc.SrcPrefix != "" {
		p, err := netip.ParsePrefix(rc.SrcPrefix)
		if err != nil {
			return babel.Rule{}, fmt.Errorf("parse src_prefix %q: %w", rc.SrcPrefix, err)
		}
		match.SrcPrefix = &p
	}
	if rc.TOS != "" {
		tos, err := parseTOS(rc.TOS)
		if err != nil {
			return babel.Rule{}, err
		}
		match.TOS = &tos
	}
	if rc.Neighbour != "" {
		addr, err := netip.ParseAddr(rc.Neighbour)
		if err != nil {
			return babel.Rule{}, fmt.Errorf("parse neighbour %q: %w", rc.Neighbour, err)
		}
		match.Neighbour = &addr
	}

	var action babel.FilterAction
	switch rc.Action {
	case "allow":
		action = babel.ActionAllow
	case "deny":
		action = babel.ActionDeny
	case "metric":
		action = babel.ActionMetric
	default:
		return babel.Rule{}, fmt.Errorf("unknown action %q", rc.Action)
	}

	return babel.Rule{
		Match: match,
		Result: babel.FilterResult{
			Action:    action,
			AddMetric: rc.AddMetric,
		},
	}, nil
}

// dscpNames maps the named DSCP classes a filter or interface config may
// reference to their wire codepoints.
var dscpNames = map[string]babel.TOS{
	"df":   babel.DSCPDF,
	"cs1":  babel.DSCPCS1,
	"af11": babel.DSCPAF11,
	"af12": babel.DSCPAF12,
	"af13": babel.DSCPAF13,
	"cs2":  babel.DSCPCS2,
	"af21": babel.DSCPAF21,
	"af22": babel.DSCPAF22,
	"af23": babel.DSCPAF23,
	"cs3":  babel.DSCPCS3,
	"af31": babel.DSCPAF31,
	"af32": babel.DSCPAF32,
	"af33": babel.DSCPAF33,
	"cs4":  babel.DSCPCS4,
	"af41": babel.DSCPAF41,
	"af42": babel.DSCPAF42,
	"af43": babel.DSCPAF43,
	"cs5":  babel.DSCPCS5,
	"ef":   babel.DSCPEF,
	"cs6":  babel.DSCPCS6,
	"le":   babel.DSCPLE,
}

func parseTOS(name string) (babel.TOS, error) {
	tos, ok := dscpNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown DSCP class %q", name)
	}
	return tos, nil
}
