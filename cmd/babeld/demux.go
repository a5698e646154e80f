package main

import (
	"errors"
	"log/slog"
	"net/netip"

	"github.com/babeldcore/babeld/internal/babel"
	babelmetrics "github.com/babeldcore/babeld/internal/metrics"
	"github.com/babeldcore/babeld/internal/wire"
)

// packetDemuxer implements netio.Demuxer: it decodes a received datagram
// into wire.Events and drives the matching babel.Core method, looking up
// (or creating) the sending neighbour by address and interface.
type packetDemuxer struct {
	core      *babel.Core
	ifaces    map[string]*babel.Interface
	decoder   *wire.Decoder
	collector *babelmetrics.Collector
	dscp      map[babel.TOS]bool
	logger    *slog.Logger
}

func newPacketDemuxer(core *babel.Core, ifaces map[string]*babel.Interface, auth wire.AuthConfig, dscp map[babel.TOS]bool, collector *babelmetrics.Collector, logger *slog.Logger) *packetDemuxer {
	return &packetDemuxer{
		core:      core,
		ifaces:    ifaces,
		decoder:   wire.NewDecoder(auth),
		collector: collector,
		dscp:      dscp,
		logger:    logger.With(slog.String("component", "demux")),
	}
}

// HandlePacket implements netio.Demuxer.
func (d *packetDemuxer) HandlePacket(raw []byte, src netip.Addr, ifaceName string) error {
	ifc, ok := d.ifaces[ifaceName]
	if !ok {
		return nil
	}

	events, err := d.decoder.Decode(raw)
	if err != nil {
		if errors.Is(err, wire.ErrAuthFailed) {
			d.collector.IncAuthFailures(ifaceName)
			d.logger.Debug("dropping packet with bad authentication", slog.String("interface", ifaceName), slog.String("src", src.String()))
			return nil
		}
		return err
	}

	n := d.core.FindOrCreateNeighbour(src.WithZone(""), ifc)
	now := d.core.Now()

	for _, ev := range events {
		switch ev.Kind {
		case wire.KindHello:
			d.core.HandleHello(n, ev.Hello.Seqno, ev.Hello.Interval, ev.Hello.Unicast, now)
			d.collector.IncHelloReceived(ifaceName)

		case wire.KindIHU:
			d.core.HandleIHU(n, ev.IHU.RXCost, ev.IHU.Interval, now)

		case wire.KindUpdate:
			dest := d.destKeyFromUpdate(ev.Update)
			rid := babel.RouterID(ev.Update.RouterID)
			d.core.HandleUpdate(n, rid, dest, ev.Update.Seqno, ev.Update.Metric, now)
			d.collector.IncUpdatesReceived(ifaceName)

		case wire.KindRouteRequest, wire.KindSeqnoRequest:
			// The core does not yet model triggered retransmission in
			// response to a request TLV; log for visibility only.
			d.logger.Debug("received request TLV, no triggered retransmit implemented",
				slog.String("interface", ifaceName), slog.Any("kind", ev.Kind))
		}
	}

	return nil
}

// destKeyFromUpdate builds a DestKey from a received Update TLV,
// collapsing the TOS field to DefaultTOS unless it names a codepoint
// the configuration asked to keep source/TOS-qualified.
func (d *packetDemuxer) destKeyFromUpdate(u wire.UpdateEvent) babel.DestKey {
	tos := babel.TOS(u.TOS)
	if !d.dscp[tos] {
		tos = babel.DefaultTOS
	}
	return babel.DestKey{
		Prefix:  u.Prefix,
		SrcPlen: u.SrcPlen,
		SrcAddr: u.SrcAddr,
		TOS:     tos,
	}
}
