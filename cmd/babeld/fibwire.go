package main

import (
	"log/slog"
	"net/netip"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/fib"
)

// mirrorRouteNotification translates a TableRoute babel.Notification
// into the corresponding fib.Mirror call, installing the winning route
// or retracting it.
func mirrorRouteNotification(mirror *fib.Mirror, n babel.Notification, logger *slog.Logger) {
	if n.Table != babel.TableRoute || n.Route == nil {
		return
	}

	route := n.Route
	srcPrefix := srcPrefixFor(route.Dest)

	switch n.Kind {
	case babel.NotifyFlush:
		if err := mirror.Remove(route.Dest.Prefix, srcPrefix, byte(route.Dest.TOS)); err != nil {
			logger.Warn("fib remove failed", slog.String("prefix", route.Dest.Prefix.String()), slog.String("error", err.Error()))
		}

	case babel.NotifyAdd, babel.NotifyChange:
		if !route.Installed() || route.Neighbour == nil || route.Neighbour.Interface == nil {
			return
		}
		ir := fib.InstalledRoute{
			Prefix:    route.Dest.Prefix,
			SrcPrefix: srcPrefix,
			TOS:       byte(route.Dest.TOS),
			NextHop:   route.Neighbour.Address,
			IfIndex:   route.Neighbour.Interface.Index,
			Metric:    route.Metric(),
		}
		if err := mirror.Install(ir); err != nil {
			logger.Warn("fib install failed", slog.String("prefix", route.Dest.Prefix.String()), slog.String("error", err.Error()))
		}
	}
}

// srcPrefixFor builds the source-specific prefix qualifier for a
// destination key, or the zero netip.Prefix when the route carries no
// source qualifier (SrcPlen == 0).
func srcPrefixFor(dest babel.DestKey) netip.Prefix {
	if dest.SrcPlen == 0 || !dest.SrcAddr.IsValid() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(dest.SrcAddr, dest.SrcPlen)
}
