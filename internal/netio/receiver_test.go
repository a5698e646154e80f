package netio

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"
)

// fakeSource is a Source whose Recv plays back a fixed packet once, then
// blocks until ctx is cancelled -- there being no multicast-capable
// loopback interface to join in a test sandbox.
type fakeSource struct {
	ifaceName string
	payload   []byte
	src       netip.Addr

	mu   sync.Mutex
	sent bool
}

func (f *fakeSource) InterfaceName() string { return f.ifaceName }

func (f *fakeSource) Recv(ctx context.Context) ([]byte, netip.Addr, error) {
	f.mu.Lock()
	if !f.sent {
		f.sent = true
		f.mu.Unlock()
		return f.payload, f.src, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, netip.Addr{}, ctx.Err()
}

type recordingDemuxer struct {
	mu      sync.Mutex
	packets [][]byte
	srcs    []netip.Addr
	ifaces  []string
}

func (d *recordingDemuxer) HandlePacket(raw []byte, src netip.Addr, ifaceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packets = append(d.packets, raw)
	d.srcs = append(d.srcs, src)
	d.ifaces = append(d.ifaces, ifaceName)
	return nil
}

func TestReceiverRunDispatchesToDemuxer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	demux := &recordingDemuxer{}
	r := NewReceiver(demux, slog.Default())

	src := &fakeSource{
		ifaceName: "eth0",
		payload:   []byte{0x2A, 0x02, 0x01, 0x00},
		src:       netip.MustParseAddr("fe80::1"),
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, src) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		demux.mu.Lock()
		n := len(demux.packets)
		demux.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	demux.mu.Lock()
	defer demux.mu.Unlock()
	if len(demux.packets) != 1 {
		t.Fatalf("packets received = %d, want 1", len(demux.packets))
	}
	if demux.ifaces[0] != "eth0" {
		t.Fatalf("iface = %q, want eth0", demux.ifaces[0])
	}
	if demux.srcs[0] != netip.MustParseAddr("fe80::1") {
		t.Fatalf("src = %v, want fe80::1", demux.srcs[0])
	}
}

func TestReceiverRunRequiresSources(t *testing.T) {
	t.Parallel()

	r := NewReceiver(&recordingDemuxer{}, slog.Default())
	err := r.Run(t.Context())
	if !errors.Is(err, ErrNoListeners) {
		t.Fatalf("Run() error = %v, want ErrNoListeners", err)
	}
}
