package babel

// TOS is a single-byte DSCP codepoint (the upper six bits of the IPv6
// traffic-class / IPv4 ToS octet, stored unshifted, e.g. EF = 0x2E). DefaultTOS
// ("unclassified") is the Babel-local sentinel meaning "no TOS qualifier
// was carried on this route", distinct from DSCP_DF which is a concrete
// classified codepoint.
type TOS byte

// DefaultTOS means "unclassified": no source-specific / TOS qualifier
// applies. It is carried in an Update's TOS octet as 0xFF, a value outside
// the six-bit DSCP range, so it never collides with a real codepoint.
const DefaultTOS TOS = 0xFF

// DSCP codepoints, named after RFC 4594 / RFC 8325 traffic classes.
const (
	DSCPDF   TOS = 0x00
	DSCPCS1  TOS = 0x08
	DSCPAF11 TOS = 0x0A
	DSCPAF12 TOS = 0x0C
	DSCPAF13 TOS = 0x0E
	DSCPCS2  TOS = 0x10
	DSCPAF21 TOS = 0x12
	DSCPAF22 TOS = 0x14
	DSCPAF23 TOS = 0x16
	DSCPCS3  TOS = 0x18
	DSCPAF31 TOS = 0x1A
	DSCPAF32 TOS = 0x1C
	DSCPAF33 TOS = 0x1E
	DSCPCS4  TOS = 0x20
	DSCPAF41 TOS = 0x22
	DSCPAF42 TOS = 0x24
	DSCPAF43 TOS = 0x26
	DSCPCS5  TOS = 0x28
	DSCPEF   TOS = 0x2E
	DSCPCS6  TOS = 0x30
	DSCPLE   TOS = 0x01
)

// RTTProfile is the (rtt_min, rtt_max, max_rtt_penalty) triple an
// interface configures, in milliseconds for the two RTT bounds and an
// abstract cost unit for the penalty.
type RTTProfile struct {
	RTTMin        uint32
	RTTMax        uint32
	MaxRTTPenalty uint32
}

// classify adjusts an interface's RTT profile for a DSCP class. Classes
// not named here (DF, LE, and anything unrecognised) use the interface
// defaults unchanged.
func classify(base RTTProfile, tos TOS) RTTProfile {
	if tos == DefaultTOS {
		tos = DSCPDF
	}

	switch tos {
	case DSCPCS1, DSCPAF11, DSCPAF12, DSCPAF13:
		// High-throughput: no RTT penalty at all (short-circuited by the
		// caller via MaxRTTPenalty == 0, see rttcost).
		return RTTProfile{RTTMin: base.RTTMin, RTTMax: base.RTTMax, MaxRTTPenalty: 0}

	case DSCPCS2, DSCPAF21, DSCPAF22, DSCPAF23:
		// Low-latency.
		return RTTProfile{
			RTTMin:        base.RTTMin / 4,
			RTTMax:        base.RTTMax / 2,
			MaxRTTPenalty: base.MaxRTTPenalty * 2,
		}

	case DSCPCS3, DSCPAF31, DSCPAF32, DSCPAF33:
		// Video.
		return RTTProfile{
			RTTMin:        base.RTTMin / 2,
			RTTMax:        base.RTTMax,
			MaxRTTPenalty: base.MaxRTTPenalty,
		}

	case DSCPCS4, DSCPAF41, DSCPAF42, DSCPAF43:
		// Real-time.
		return RTTProfile{
			RTTMin:        base.RTTMin / 4,
			RTTMax:        base.RTTMax / 2,
			MaxRTTPenalty: base.MaxRTTPenalty,
		}

	case DSCPCS5, DSCPEF, DSCPCS6:
		// Audio/control.
		return RTTProfile{
			RTTMin:        base.RTTMin / 2,
			RTTMax:        base.RTTMax,
			MaxRTTPenalty: base.MaxRTTPenalty * 2,
		}

	default:
		// DSCPDF, DSCPLE, and any unrecognised codepoint.
		return base
	}
}
