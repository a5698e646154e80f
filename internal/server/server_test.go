package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/server"
)

func testInterface() *babel.Interface {
	return &babel.Interface{Name: "eth0", Index: 1, Cost: 96}
}

func newTestCore(t *testing.T, notify babel.NotifyFunc) *babel.Core {
	t.Helper()
	opts := []babel.Option{}
	if notify != nil {
		opts = append(opts, babel.WithNotify(notify))
	}
	return babel.NewCore(babel.RouterID{1, 2, 3, 4, 5, 6, 7, 8}, opts...)
}

func dialAndRequest(t *testing.T, path, request string) string {
	t.Helper()

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(request + "\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response to %q: %v", request, scanner.Err())
	}
	return scanner.Text()
}

func startServer(t *testing.T, srv *server.Server) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "babeld.sock")
	if err := srv.Listen(path); err != nil {
		t.Fatalf("Listen(%q): %v", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})

	return path
}

func TestGetNeighboursEmpty(t *testing.T) {
	t.Parallel()

	core := newTestCore(t, nil)
	srv := server.New(core, nil)
	path := startServer(t, srv)

	resp := dialAndRequest(t, path, "GET /neighbours")
	var got []server.NeighbourDTO
	if err := json.Unmarshal([]byte(resp), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", resp, err)
	}
	if len(got) != 0 {
		t.Fatalf("neighbours = %+v, want empty", got)
	}
}

func TestGetNeighboursReturnsCreated(t *testing.T) {
	t.Parallel()

	core := newTestCore(t, nil)
	core.FindOrCreateNeighbour(netip.MustParseAddr("fe80::1"), testInterface())

	srv := server.New(core, nil)
	path := startServer(t, srv)

	resp := dialAndRequest(t, path, "GET /neighbours")
	var got []server.NeighbourDTO
	if err := json.Unmarshal([]byte(resp), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", resp, err)
	}
	if len(got) != 1 || got[0].Address != "fe80::1" || got[0].Interface != "eth0" {
		t.Fatalf("neighbours = %+v, want one fe80::1/eth0 entry", got)
	}
}

func TestUnknownRequestReturnsError(t *testing.T) {
	t.Parallel()

	core := newTestCore(t, nil)
	srv := server.New(core, nil)
	path := startServer(t, srv)

	resp := dialAndRequest(t, path, "GET /bogus")
	if resp == "" {
		t.Fatal("expected a non-empty error response")
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(resp), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", resp, err)
	}
	if m["error"] == "" {
		t.Fatalf("response = %+v, want an error field", m)
	}
}

func TestWatchReceivesNotification(t *testing.T) {
	t.Parallel()

	var srv *server.Server
	core := newTestCore(t, func(n babel.Notification) { srv.HandleNotification(n) })
	srv = server.New(core, nil)
	path := startServer(t, srv)

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("WATCH\n")); err != nil {
		t.Fatalf("write WATCH: %v", err)
	}

	// Give the server a moment to register the watcher before the
	// triggering event fires.
	time.Sleep(50 * time.Millisecond)

	core.FindOrCreateNeighbour(netip.MustParseAddr("fe80::2"), testInterface())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no event received: %v", scanner.Err())
	}

	var evt server.NotificationEventDTO
	if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
		t.Fatalf("unmarshal event %q: %v", scanner.Text(), err)
	}
	if evt.Kind != "ADD" || evt.Table != "neighbour" {
		t.Fatalf("event = %+v, want ADD/neighbour", evt)
	}
	if evt.Neighbour == nil || evt.Neighbour.Address != "fe80::2" {
		t.Fatalf("event.Neighbour = %+v, want fe80::2", evt.Neighbour)
	}
}
