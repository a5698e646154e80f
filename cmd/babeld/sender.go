package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/babeldcore/babeld/internal/babel"
	babelmetrics "github.com/babeldcore/babeld/internal/metrics"
	"github.com/babeldcore/babeld/internal/netio"
	"github.com/babeldcore/babeld/internal/wire"
)

// ifaceRuntime bundles one configured interface's babel.Interface view
// with the socket it sends and receives on and its own Hello sequence
// counter.
type ifaceRuntime struct {
	ifc        *babel.Interface
	listener   *netio.Listener
	helloSeqno uint16
}

// sender periodically emits Hello/IHU traffic and full route dumps on
// every configured interface.
type sender struct {
	core      *babel.Core
	encoder   *wire.Encoder
	selfSeqno uint16
	collector *babelmetrics.Collector
	logger    *slog.Logger
}

// seqnoRequestInterval bounds how long an infeasible (non-retraction)
// Update waits before its Seqno Request actually goes out.
const seqnoRequestInterval = time.Second

// seqnoRequestHopCount is the hop count on a Seqno Request we originate
// ourselves, as opposed to one forwarded on another router's behalf.
const seqnoRequestHopCount = 1

func newSender(core *babel.Core, auth wire.AuthConfig, collector *babelmetrics.Collector, logger *slog.Logger) *sender {
	return &sender{
		core:      core,
		encoder:   wire.NewEncoder(auth),
		selfSeqno: 1,
		collector: collector,
		logger:    logger.With(slog.String("component", "sender")),
	}
}

// run drives one interface's Hello and Update timers until ctx is done.
func (s *sender) run(ctx context.Context, name string, rt *ifaceRuntime) {
	helloPeriod := time.Duration(rt.ifc.HelloInterval*10) * time.Millisecond
	updatePeriod := time.Duration(rt.ifc.UpdateInterval*10) * time.Millisecond

	helloTicker := time.NewTicker(helloPeriod)
	updateTicker := time.NewTicker(updatePeriod)
	defer helloTicker.Stop()
	defer updateTicker.Stop()

	// Send an initial full update immediately so a freshly-joined
	// neighbour doesn't wait a full period to learn our routes.
	s.sendUpdate(name, rt)

	for {
		select {
		case <-ctx.Done():
			return
		case <-helloTicker.C:
			s.sendHello(name, rt)
		case <-updateTicker.C:
			s.sendUpdate(name, rt)
		}
	}
}

// runSeqnoRequests drains Core's pending Seqno Request queue on a fixed
// interval and unicasts each one out the interface its target neighbour
// was discovered on.
func (s *sender) runSeqnoRequests(ctx context.Context, runtimes map[string]*ifaceRuntime) {
	ticker := time.NewTicker(seqnoRequestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendPendingSeqnoRequests(runtimes)
		}
	}
}

func (s *sender) sendPendingSeqnoRequests(runtimes map[string]*ifaceRuntime) {
	for _, req := range s.core.DrainSeqnoRequests() {
		if req.Neighbour == nil || req.Neighbour.Interface == nil {
			continue
		}
		name := req.Neighbour.Interface.Name
		rt, ok := runtimes[name]
		if !ok {
			continue
		}

		packet, err := s.encoder.Encode([]wire.OutgoingEvent{{
			Kind: wire.KindSeqnoRequest,
			SeqnoRequest: wire.SeqnoRequestEvent{
				RouterID: [8]byte(req.RouterID),
				Prefix:   req.Dest.Prefix,
				Seqno:    req.Seqno,
				HopCount: seqnoRequestHopCount,
			},
		}})
		if err != nil {
			s.logger.Warn("encode seqno request failed", slog.String("interface", name), slog.String("error", err.Error()))
			continue
		}
		if err := rt.listener.SendUnicast(packet, req.Neighbour.Address); err != nil {
			s.logger.Warn("send seqno request failed", slog.String("interface", name), slog.String("neighbour", req.Neighbour.Address.String()), slog.String("error", err.Error()))
			continue
		}
		s.collector.IncSeqnoRequestsSent(name)
	}
}

func (s *sender) sendHello(name string, rt *ifaceRuntime) {
	rt.helloSeqno++
	now := s.core.Now()

	helloPacket, err := s.encoder.Encode([]wire.OutgoingEvent{{
		Kind: wire.KindHello,
		Hello: wire.HelloEvent{
			Seqno:    rt.helloSeqno,
			Interval: rt.ifc.HelloInterval,
		},
	}})
	if err != nil {
		s.logger.Warn("encode hello failed", slog.String("interface", name), slog.String("error", err.Error()))
		return
	}
	if err := rt.listener.SendMulticast(helloPacket); err != nil {
		s.logger.Warn("send hello failed", slog.String("interface", name), slog.String("error", err.Error()))
		return
	}

	for _, n := range s.core.Neighbours() {
		if n.Interface != rt.ifc {
			continue
		}
		ihuPacket, err := s.encoder.Encode([]wire.OutgoingEvent{{
			Kind: wire.KindIHU,
			IHU: wire.IHUEvent{
				RXCost:   n.RXCost(now),
				Interval: rt.ifc.UHelloInterval,
			},
		}})
		if err != nil {
			s.logger.Warn("encode ihu failed", slog.String("interface", name), slog.String("error", err.Error()))
			continue
		}
		if err := rt.listener.SendUnicast(ihuPacket, n.Address); err != nil {
			s.logger.Warn("send ihu failed", slog.String("interface", name), slog.String("neighbour", n.Address.String()), slog.String("error", err.Error()))
		}
	}
}

// sendUpdate emits every locally-exported xroute and every installed
// route as Update TLVs, split across packets of at most 32 TLVs each to
// stay well clear of the 64KiB datagram ceiling. Xroutes pass the
// redistribute filter before the output filter; learned routes pass the
// output filter only.
func (s *sender) sendUpdate(name string, rt *ifaceRuntime) {
	rid := s.core.RouterID()
	filters := s.core.Filters()
	events := make([]wire.OutgoingEvent, 0, 64)

	for _, x := range s.core.Xroutes() {
		if ev, ok := s.buildXrouteEvent(name, rid, x, filters); ok {
			events = append(events, ev)
		}
	}
	for _, r := range s.core.Routes() {
		if ev, ok := s.buildRouteEvent(name, rid, r, filters); ok {
			events = append(events, ev)
		}
	}

	if len(events) == 0 {
		return
	}

	const batchSize = 32
	for i := 0; i < len(events); i += batchSize {
		end := min(i+batchSize, len(events))
		packet, err := s.encoder.Encode(events[i:end])
		if err != nil {
			s.logger.Warn("encode update failed", slog.String("interface", name), slog.String("error", err.Error()))
			return
		}
		if err := rt.listener.SendMulticast(packet); err != nil {
			s.logger.Warn("send update failed", slog.String("interface", name), slog.String("error", err.Error()))
			return
		}
	}

	s.collector.IncUpdatesSent(name)
}

// buildXrouteEvent applies the redistribute filter (does this
// locally-exported prefix get announced into Babel at all?) and then
// the output filter, returning the Update event to send and whether it
// survived both.
func (s *sender) buildXrouteEvent(name string, rid babel.RouterID, x *babel.Xroute, filters *babel.FilterSet) (wire.OutgoingEvent, bool) {
	c := outputCandidate(name, rid, x.Dest)
	metric, ok := filters.Apply(babel.SiteRedistribute, c, x.Metric)
	if !ok {
		return wire.OutgoingEvent{}, false
	}
	metric, ok = filters.Apply(babel.SiteOutput, c, metric)
	if !ok {
		return wire.OutgoingEvent{}, false
	}
	return updateEventFor(rid, x.Dest, s.selfSeqno, metric), true
}

// buildRouteEvent applies the output filter to a learned route being
// re-advertised, returning the Update event to send and whether it
// survived filtering. The filter matches against the route's actual
// originating router-id (r.Source.Key.RouterID), not our own.
func (s *sender) buildRouteEvent(name string, rid babel.RouterID, r *babel.Route, filters *babel.FilterSet) (wire.OutgoingEvent, bool) {
	c := outputCandidate(name, r.Source.Key.RouterID, r.Dest)
	metric, ok := filters.Apply(babel.SiteOutput, c, r.Metric())
	if !ok {
		return wire.OutgoingEvent{}, false
	}
	return updateEventFor(rid, r.Dest, s.selfSeqno, metric), true
}

// outputCandidate builds the Candidate an output/redistribute filter
// chain evaluates against, for a destination being announced out name.
func outputCandidate(name string, rid babel.RouterID, dest babel.DestKey) babel.Candidate {
	return babel.Candidate{
		IfName:   name,
		RouterID: rid,
		Prefix:   dest.Prefix,
		SrcPlen:  dest.SrcPlen,
		SrcAddr:  dest.SrcAddr,
		TOS:      dest.TOS,
	}
}

// triggerUpdate emits an immediate single-destination Update on every
// interface in response to a route-table change notification, rather
// than waiting for the next periodic full dump. A retraction
// (NotifyFlush) is announced with metric == Infinity.
func (s *sender) triggerUpdate(n babel.Notification, runtimes map[string]*ifaceRuntime) {
	if n.Table != babel.TableRoute || n.Route == nil {
		return
	}

	rid := s.core.RouterID()
	filters := s.core.Filters()

	metric := n.Route.Metric()
	if n.Kind == babel.NotifyFlush {
		metric = babel.Infinity
	}

	for name, rt := range runtimes {
		c := outputCandidate(name, n.Route.Source.Key.RouterID, n.Route.Dest)
		m, ok := filters.Apply(babel.SiteOutput, c, metric)
		if !ok {
			continue
		}

		packet, err := s.encoder.Encode([]wire.OutgoingEvent{updateEventFor(rid, n.Route.Dest, s.selfSeqno, m)})
		if err != nil {
			s.logger.Warn("encode triggered update failed", slog.String("interface", name), slog.String("error", err.Error()))
			continue
		}
		if err := rt.listener.SendMulticast(packet); err != nil {
			s.logger.Warn("send triggered update failed", slog.String("interface", name), slog.String("error", err.Error()))
			continue
		}
		s.collector.IncUpdatesSent(name)
	}
}

func updateEventFor(rid babel.RouterID, dest babel.DestKey, seqno, metric uint16) wire.OutgoingEvent {
	tos := byte(dest.TOS)
	return wire.OutgoingEvent{
		Kind: wire.KindUpdate,
		Update: wire.UpdateEvent{
			RouterID: [8]byte(rid),
			Prefix:   dest.Prefix,
			SrcPlen:  dest.SrcPlen,
			SrcAddr:  dest.SrcAddr,
			TOS:      tos,
			Seqno:    seqno,
			Metric:   metric,
		},
	}
}
