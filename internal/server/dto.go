package server

import (
	"github.com/babeldcore/babeld/internal/babel"
)

// NeighbourDTO is the JSON shape returned for "GET /neighbours".
type NeighbourDTO struct {
	Address   string `json:"address"`
	Interface string `json:"interface"`
	RTTMS     int64  `json:"rtt_ms"`
}

func neighbourDTOs(ns []*babel.Neighbour) []NeighbourDTO {
	out := make([]NeighbourDTO, 0, len(ns))
	for _, n := range ns {
		ifName := ""
		if n.Interface != nil {
			ifName = n.Interface.Name
		}
		out = append(out, NeighbourDTO{
			Address:   n.Address.String(),
			Interface: ifName,
			RTTMS:     n.RTT().Milliseconds(),
		})
	}
	return out
}

// RouteDTO is the JSON shape returned for "GET /routes".
type RouteDTO struct {
	Prefix    string `json:"prefix"`
	SrcPlen   int    `json:"src_plen,omitempty"`
	SrcAddr   string `json:"src_addr,omitempty"`
	TOS       int    `json:"tos"`
	Neighbour string `json:"neighbour"`
	Metric    int    `json:"metric"`
	Feasible  bool   `json:"feasible"`
	Installed bool   `json:"installed"`
}

func routeDTOs(rs []*babel.Route) []RouteDTO {
	out := make([]RouteDTO, 0, len(rs))
	for _, r := range rs {
		dto := RouteDTO{
			Prefix:    r.Dest.Prefix.String(),
			SrcPlen:   r.Dest.SrcPlen,
			TOS:       int(r.Dest.TOS),
			Metric:    int(r.Metric()),
			Feasible:  r.Feasible(),
			Installed: r.Installed(),
		}
		if r.Dest.SrcAddr.IsValid() {
			dto.SrcAddr = r.Dest.SrcAddr.String()
		}
		if r.Neighbour != nil {
			dto.Neighbour = r.Neighbour.Address.String()
		}
		out = append(out, dto)
	}
	return out
}

// XrouteDTO is the JSON shape returned for "GET /xroutes".
type XrouteDTO struct {
	Prefix  string `json:"prefix"`
	SrcPlen int    `json:"src_plen,omitempty"`
	TOS     int    `json:"tos"`
	Metric  int    `json:"metric"`
	IfIndex int    `json:"if_index"`
}

func xrouteDTOs(xs []*babel.Xroute) []XrouteDTO {
	out := make([]XrouteDTO, 0, len(xs))
	for _, x := range xs {
		out = append(out, XrouteDTO{
			Prefix:  x.Dest.Prefix.String(),
			SrcPlen: x.Dest.SrcPlen,
			TOS:     int(x.Dest.TOS),
			Metric:  int(x.Metric),
			IfIndex: x.IfIndex,
		})
	}
	return out
}

// SourceDTO is the JSON shape returned for "GET /sources".
type SourceDTO struct {
	Prefix  string `json:"prefix"`
	SrcPlen int    `json:"src_plen,omitempty"`
	TOS     int    `json:"tos"`
	Seqno   int    `json:"seqno"`
	Metric  int    `json:"metric"`
}

func sourceDTOs(ss []*babel.Source) []SourceDTO {
	out := make([]SourceDTO, 0, len(ss))
	for _, s := range ss {
		out = append(out, SourceDTO{
			Prefix:  s.Key.Prefix.String(),
			SrcPlen: s.Key.SrcPlen,
			TOS:     int(s.Key.TOS),
			Seqno:   int(s.Seqno()),
			Metric:  int(s.Metric()),
		})
	}
	return out
}

// NotificationEventDTO is the JSON shape pushed over a WATCH connection.
type NotificationEventDTO struct {
	Kind  string `json:"kind"`
	Table string `json:"table"`

	Neighbour *NeighbourDTO `json:"neighbour,omitempty"`
	Route     *RouteDTO     `json:"route,omitempty"`
	Xroute    *XrouteDTO    `json:"xroute,omitempty"`
}

func notificationDTO(n babel.Notification) NotificationEventDTO {
	dto := NotificationEventDTO{Kind: n.Kind.String(), Table: tableName(n.Table)}
	switch n.Table {
	case babel.TableNeighbour:
		if n.Neighbour != nil {
			d := neighbourDTOs([]*babel.Neighbour{n.Neighbour})[0]
			dto.Neighbour = &d
		}
	case babel.TableRoute:
		if n.Route != nil {
			d := routeDTOs([]*babel.Route{n.Route})[0]
			dto.Route = &d
		}
	case babel.TableXroute:
		if n.Xroute != nil {
			d := xrouteDTOs([]*babel.Xroute{n.Xroute})[0]
			dto.Xroute = &d
		}
	}
	return dto
}

func tableName(t babel.Table) string {
	switch t {
	case babel.TableNeighbour:
		return "neighbour"
	case babel.TableRoute:
		return "route"
	case babel.TableXroute:
		return "xroute"
	default:
		return "unknown"
	}
}
