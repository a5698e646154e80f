// Package wire implements the on-the-wire TLV codec babeld peers use to
// exchange Hello, IHU, Update, Route Request, and Seqno Request events,
// plus an HMAC trailer for packet authentication.
//
// Framing follows standard Babel: a packet is a sequence of
// {1-byte type, 1-byte body length, body} TLVs, all multi-byte fields
// big-endian (encoding/binary).
package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/crypto/blake2s"
)

// TLV type octets.
const (
	TypeHello        byte = 4
	TypeIHU          byte = 5
	TypeUpdate       byte = 8
	TypeRouteRequest byte = 9
	TypeSeqnoRequest byte = 10
	TypeHMAC         byte = 16
)

// Address-encoding octets, distinguishing the two prefix families an
// Update/RouteRequest TLV can carry.
const (
	AEv4 byte = 1
	AEv6 byte = 2
)

// AuthType selects the packet-trailer authentication scheme.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthHMACSHA256
	AuthHMACBLAKE2s128
)

// AuthConfig parametrizes Encoder/Decoder's HMAC trailer handling.
type AuthConfig struct {
	Type  AuthType
	KeyID byte
	Key   []byte
}

// EventKind discriminates the Event sum type.
type EventKind int

const (
	KindHello EventKind = iota
	KindIHU
	KindUpdate
	KindRouteRequest
	KindSeqnoRequest
)

// Event is a decoded TLV, tagged by Kind; exactly one of the typed
// fields is meaningful for a given Kind.
type Event struct {
	Kind EventKind

	Hello        HelloEvent
	IHU          IHUEvent
	Update       UpdateEvent
	RouteRequest RouteRequestEvent
	SeqnoRequest SeqnoRequestEvent
}

// HelloEvent mirrors a received Hello TLV.
type HelloEvent struct {
	Seqno    uint16
	Interval int // centiseconds
	Unicast  bool
}

// IHUEvent mirrors a received IHU TLV.
type IHUEvent struct {
	RXCost   uint16
	Interval int // centiseconds
}

// UpdateEvent mirrors a received Update TLV.
type UpdateEvent struct {
	RouterID [8]byte
	Prefix   netip.Prefix
	SrcPlen  int
	SrcAddr  netip.Addr
	TOS      byte
	Seqno    uint16
	Metric   uint16
}

// RouteRequestEvent mirrors a received Route Request TLV (a request for
// a full, or prefix-scoped, Update in reply).
type RouteRequestEvent struct {
	Prefix  netip.Prefix
	HasPfx  bool
	SrcPlen int
	SrcAddr netip.Addr
}

// SeqnoRequestEvent mirrors a received Seqno Request TLV.
type SeqnoRequestEvent struct {
	RouterID [8]byte
	Prefix   netip.Prefix
	Seqno    uint16
	HopCount uint8
}

// OutgoingEvent is the encode-side counterpart of Event; callers build
// these from Core state and hand them to Encoder.Encode.
type OutgoingEvent = Event

// Encoder serializes a batch of outgoing events into one packet body,
// appending an HMAC trailer TLV if auth is configured.
type Encoder struct {
	auth AuthConfig
}

// NewEncoder returns an Encoder using the given authentication config.
func NewEncoder(auth AuthConfig) *Encoder { return &Encoder{auth: auth} }

// Encode serializes events into a single packet. Each TLV body is
// limited to 255 bytes (the length octet's range) and a longer one is an
// error; the packet as a whole is not size-limited, so callers are
// responsible for splitting a batch across packets if needed.
func (e *Encoder) Encode(events []OutgoingEvent) ([]byte, error) {
	var buf []byte
	for _, ev := range events {
		body, typ, err := encodeBody(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %v: %w", ev.Kind, err)
		}
		if len(body) > 255 {
			return nil, fmt.Errorf("encode %v: body too long (%d bytes)", ev.Kind, len(body))
		}
		buf = append(buf, typ, byte(len(body)))
		buf = append(buf, body...)
	}

	if e.auth.Type != AuthNone {
		mac := e.computeMAC(buf)
		buf = append(buf, TypeHMAC, byte(1+len(mac)), e.auth.KeyID)
		buf = append(buf, mac...)
	}

	return buf, nil
}

func (e *Encoder) computeMAC(body []byte) []byte {
	switch e.auth.Type {
	case AuthHMACSHA256:
		h := hmac.New(sha256.New, e.auth.Key)
		h.Write(body)
		return h.Sum(nil)
	case AuthHMACBLAKE2s128:
		h, _ := blake2s.New128(e.auth.Key)
		h.Write(body)
		return h.Sum(nil)
	default:
		return nil
	}
}

func encodeBody(ev OutgoingEvent) (body []byte, typ byte, err error) {
	switch ev.Kind {
	case KindHello:
		h := ev.Hello
		body = make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], h.Seqno)
		binary.BigEndian.PutUint16(body[2:4], uint16(h.Interval))
		if h.Unicast {
			body = append(body, 1)
		} else {
			body = append(body, 0)
		}
		return body, TypeHello, nil

	case KindIHU:
		h := ev.IHU
		body = make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], h.RXCost)
		binary.BigEndian.PutUint16(body[2:4], uint16(h.Interval))
		return body, TypeIHU, nil

	case KindUpdate:
		u := ev.Update
		body = append(body, u.RouterID[:]...)
		ae, addrBytes := encodeAddr(u.Prefix.Addr())
		body = append(body, ae, byte(u.Prefix.Bits()))
		body = append(body, byte(u.SrcPlen), u.TOS)
		seqnoMetric := make([]byte, 4)
		binary.BigEndian.PutUint16(seqnoMetric[0:2], u.Seqno)
		binary.BigEndian.PutUint16(seqnoMetric[2:4], u.Metric)
		body = append(body, seqnoMetric...)
		body = append(body, addrBytes...)
		if u.SrcPlen > 0 {
			_, srcBytes := encodeAddr(u.SrcAddr)
			body = append(body, srcBytes...)
		}
		return body, TypeUpdate, nil

	case KindRouteRequest:
		r := ev.RouteRequest
		if !r.HasPfx {
			return nil, TypeRouteRequest, nil
		}
		ae, addrBytes := encodeAddr(r.Prefix.Addr())
		body = append(body, ae, byte(r.Prefix.Bits()), byte(r.SrcPlen))
		body = append(body, addrBytes...)
		return body, TypeRouteRequest, nil

	case KindSeqnoRequest:
		s := ev.SeqnoRequest
		body = append(body, s.RouterID[:]...)
		ae, addrBytes := encodeAddr(s.Prefix.Addr())
		seqnoHop := make([]byte, 2)
		binary.BigEndian.PutUint16(seqnoHop, s.Seqno)
		body = append(body, seqnoHop...)
		body = append(body, s.HopCount, ae, byte(s.Prefix.Bits()))
		body = append(body, addrBytes...)
		return body, TypeSeqnoRequest, nil

	default:
		return nil, 0, fmt.Errorf("unknown event kind %v", ev.Kind)
	}
}

func encodeAddr(a netip.Addr) (ae byte, b []byte) {
	if a.Is4() {
		a4 := a.As4()
		return AEv4, a4[:]
	}
	a16 := a.As16()
	return AEv6, a16[:]
}

func decodeAddr(ae byte, b []byte) (netip.Addr, error) {
	switch ae {
	case AEv4:
		if len(b) < 4 {
			return netip.Addr{}, fmt.Errorf("short IPv4 address")
		}
		var a [4]byte
		copy(a[:], b[:4])
		return netip.AddrFrom4(a), nil
	case AEv6:
		if len(b) < 16 {
			return netip.Addr{}, fmt.Errorf("short IPv6 address")
		}
		var a [16]byte
		copy(a[:], b[:16])
		return netip.AddrFrom16(a), nil
	default:
		return netip.Addr{}, fmt.Errorf("unknown address encoding %d", ae)
	}
}

// Decoder parses a received packet body into a sequence of Events,
// verifying the trailing HMAC TLV (if any is configured) before
// returning anything decoded from the TLVs preceding it.
type Decoder struct {
	auth AuthConfig
}

// NewDecoder returns a Decoder using the given authentication config.
func NewDecoder(auth AuthConfig) *Decoder { return &Decoder{auth: auth} }

// ErrAuthFailed is returned when a packet's HMAC trailer does not verify
// against the configured key. Per the protocol, this is a drop-and-count
// condition, not a hard decode error; callers should treat it as such
// rather than surfacing a crash.
var ErrAuthFailed = fmt.Errorf("wire: authentication failed")

// Decode parses buf into a slice of Events.
func (d *Decoder) Decode(buf []byte) ([]Event, error) {
	var events []Event
	var macOffset = -1
	var mac []byte
	var keyID byte

	i := 0
	for i < len(buf) {
		if i+2 > len(buf) {
			return nil, fmt.Errorf("truncated TLV header at offset %d", i)
		}
		typ := buf[i]
		length := int(buf[i+1])
		i += 2
		if i+length > len(buf) {
			return nil, fmt.Errorf("truncated TLV body at offset %d", i)
		}
		body := buf[i : i+length]
		i += length

		if typ == TypeHMAC {
			if length < 1 {
				return nil, fmt.Errorf("short HMAC TLV")
			}
			macOffset = i - length - 2
			keyID = body[0]
			mac = body[1:]
			continue
		}

		ev, err := decodeBody(typ, body)
		if err != nil {
			return nil, fmt.Errorf("decode TLV type %d: %w", typ, err)
		}
		events = append(events, ev)
	}

	if d.auth.Type != AuthNone {
		if macOffset < 0 || keyID != d.auth.KeyID {
			return nil, ErrAuthFailed
		}
		want := d.computeMAC(buf[:macOffset])
		if !hmac.Equal(mac, want) {
			return nil, ErrAuthFailed
		}
	}

	return events, nil
}

func (d *Decoder) computeMAC(body []byte) []byte {
	switch d.auth.Type {
	case AuthHMACSHA256:
		h := hmac.New(sha256.New, d.auth.Key)
		h.Write(body)
		return h.Sum(nil)
	case AuthHMACBLAKE2s128:
		h, _ := blake2s.New128(d.auth.Key)
		h.Write(body)
		return h.Sum(nil)
	default:
		return nil
	}
}

func decodeBody(typ byte, body []byte) (Event, error) {
	switch typ {
	case TypeHello:
		if len(body) < 5 {
			return Event{}, fmt.Errorf("short Hello TLV")
		}
		return Event{Kind: KindHello, Hello: HelloEvent{
			Seqno:    binary.BigEndian.Uint16(body[0:2]),
			Interval: int(binary.BigEndian.Uint16(body[2:4])),
			Unicast:  body[4] != 0,
		}}, nil

	case TypeIHU:
		if len(body) < 4 {
			return Event{}, fmt.Errorf("short IHU TLV")
		}
		return Event{Kind: KindIHU, IHU: IHUEvent{
			RXCost:   binary.BigEndian.Uint16(body[0:2]),
			Interval: int(binary.BigEndian.Uint16(body[2:4])),
		}}, nil

	case TypeUpdate:
		if len(body) < 16 {
			return Event{}, fmt.Errorf("short Update TLV")
		}
		var rid [8]byte
		copy(rid[:], body[0:8])
		ae := body[8]
		plen := int(body[9])
		srcPlen := int(body[10])
		tos := body[11]
		seqno := binary.BigEndian.Uint16(body[12:14])
		metric := binary.BigEndian.Uint16(body[14:16])
		rest := body[16:]

		addrLen := 4
		if ae == AEv6 {
			addrLen = 16
		}
		if len(rest) < addrLen {
			return Event{}, fmt.Errorf("short Update prefix")
		}
		addr, err := decodeAddr(ae, rest[:addrLen])
		if err != nil {
			return Event{}, err
		}
		prefix := netip.PrefixFrom(addr, plen)
		rest = rest[addrLen:]

		u := UpdateEvent{RouterID: rid, Prefix: prefix, SrcPlen: srcPlen, TOS: tos, Seqno: seqno, Metric: metric}
		if srcPlen > 0 {
			if len(rest) < addrLen {
				return Event{}, fmt.Errorf("short Update src-prefix")
			}
			srcAddr, err := decodeAddr(ae, rest[:addrLen])
			if err != nil {
				return Event{}, err
			}
			u.SrcAddr = srcAddr
		}
		return Event{Kind: KindUpdate, Update: u}, nil

	case TypeRouteRequest:
		if len(body) == 0 {
			return Event{Kind: KindRouteRequest, RouteRequest: RouteRequestEvent{HasPfx: false}}, nil
		}
		if len(body) < 3 {
			return Event{}, fmt.Errorf("short Route Request TLV")
		}
		ae := body[0]
		plen := int(body[1])
		srcPlen := int(body[2])
		addrLen := 4
		if ae == AEv6 {
			addrLen = 16
		}
		if len(body) < 3+addrLen {
			return Event{}, fmt.Errorf("short Route Request prefix")
		}
		addr, err := decodeAddr(ae, body[3:3+addrLen])
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindRouteRequest, RouteRequest: RouteRequestEvent{
			HasPfx: true, Prefix: netip.PrefixFrom(addr, plen), SrcPlen: srcPlen,
		}}, nil

	case TypeSeqnoRequest:
		if len(body) < 13 {
			return Event{}, fmt.Errorf("short Seqno Request TLV")
		}
		var rid [8]byte
		copy(rid[:], body[0:8])
		seqno := binary.BigEndian.Uint16(body[8:10])
		hopCount := body[10]
		ae := body[11]
		plen := int(body[12])
		addrLen := 4
		if ae == AEv6 {
			addrLen = 16
		}
		if len(body) < 13+addrLen {
			return Event{}, fmt.Errorf("short Seqno Request prefix")
		}
		addr, err := decodeAddr(ae, body[13:13+addrLen])
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindSeqnoRequest, SeqnoRequest: SeqnoRequestEvent{
			RouterID: rid, Prefix: netip.PrefixFrom(addr, plen), Seqno: seqno, HopCount: hopCount,
		}}, nil

	default:
		return Event{}, fmt.Errorf("unsupported TLV type %d", typ)
	}
}
