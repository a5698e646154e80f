// Package netio provides the UDP multicast/unicast transport babeld's
// wire codec runs over. Babel (RFC 8966) needs no raw sockets or GTSM TTL
// checks the way BFD does -- a single link-local multicast socket per
// interface both receives Hellos/Updates and sends unicast IHUs/Updates
// -- so this package is a deliberately small stdlib net.UDPConn wrapper
// rather than the raw-socket machinery a GTSM-checked transport needs.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// AllRoutersLinkLocal is the Babel protocol's standard multicast group
// (RFC 8966 Section 4.1, "ff02:0:0:0:0:0:1:6").
const AllRoutersLinkLocal = "ff02::1:6"

// Port is the standard Babel UDP port (RFC 8966 Section 4.1).
const Port = 6696

// ListenerConfig configures one interface's Babel socket.
type ListenerConfig struct {
	// IfaceName is the network interface to join the multicast group on
	// and bind the socket to.
	IfaceName string
	// Port overrides the default Babel UDP port; zero means Port.
	Port int
}

// Listener is a joined multicast UDP socket for one interface. The same
// socket both receives multicast/unicast packets and sends them --
// Babel unlike BFD has no notion of a separate ephemeral source port per
// peer.
type Listener struct {
	conn  *net.UDPConn
	iface *net.Interface
	port  int
}

// NewListener joins the Babel multicast group on iface and returns a
// Listener ready to Recv/Send.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	iface, err := net.InterfaceByName(cfg.IfaceName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", cfg.IfaceName, err)
	}

	port := cfg.Port
	if port == 0 {
		port = Port
	}

	group := net.UDPAddr{IP: net.ParseIP(AllRoutersLinkLocal), Port: port}
	conn, err := net.ListenMulticastUDP("udp6", iface, &group)
	if err != nil {
		return nil, fmt.Errorf("join multicast group on %s: %w", cfg.IfaceName, err)
	}

	return &Listener{conn: conn, iface: iface, port: port}, nil
}

// pollInterval bounds how long a single Read blocks when ctx carries no
// deadline, so Recv notices context cancellation promptly.
const pollInterval = time.Second

// Recv blocks until a packet is received or ctx is cancelled, returning
// the payload and the sender's link-local address.
func (l *Listener) Recv(ctx context.Context) ([]byte, netip.Addr, error) {
	buf := make([]byte, 1500)

	for {
		if err := ctx.Err(); err != nil {
			return nil, netip.Addr{}, err
		}

		if deadline, ok := ctx.Deadline(); ok {
			l.conn.SetReadDeadline(deadline)
		} else {
			l.conn.SetReadDeadline(time.Now().Add(pollInterval))
		}

		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, netip.Addr{}, fmt.Errorf("read from %s: %w", l.iface.Name, err)
		}

		src, ok := netip.AddrFromSlice(addr.IP)
		if !ok {
			return nil, netip.Addr{}, fmt.Errorf("invalid source address %s", addr.IP)
		}
		if src.Is4In6() {
			src = src.Unmap()
		}
		src = src.WithZone(l.iface.Name)

		return buf[:n], src, nil
	}
}

// SendMulticast writes payload to the Babel all-routers multicast group
// on this interface (periodic Hellos, periodic/triggered Updates).
func (l *Listener) SendMulticast(payload []byte) error {
	group := &net.UDPAddr{IP: net.ParseIP(AllRoutersLinkLocal), Port: l.port, Zone: l.iface.Name}
	if _, err := l.conn.WriteToUDP(payload, group); err != nil {
		return fmt.Errorf("send multicast on %s: %w", l.iface.Name, err)
	}
	return nil
}

// SendUnicast writes payload to a specific neighbour (unicast Hellos,
// IHUs, unicast Updates).
func (l *Listener) SendUnicast(payload []byte, dst netip.Addr) error {
	addr := &net.UDPAddr{IP: net.IP(dst.AsSlice()), Port: l.port, Zone: l.iface.Name}
	if _, err := l.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("send unicast to %s on %s: %w", dst, l.iface.Name, err)
	}
	return nil
}

// Interface returns the network interface this listener is bound to.
func (l *Listener) Interface() *net.Interface { return l.iface }

// InterfaceName implements Source.
func (l *Listener) InterfaceName() string { return l.iface.Name }

// Close releases the underlying socket.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener on %s: %w", l.iface.Name, err)
	}
	return nil
}
