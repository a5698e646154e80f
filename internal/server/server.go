// Package server implements the babeld management interface: a Unix
// domain socket speaking a line-oriented JSON protocol (see DESIGN.md
// for why this, not connect-go/protobuf).
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/babeldcore/babeld/internal/babel"
)

// ErrPanicRecovered indicates a connection handler panicked and was
// recovered without taking the whole daemon down.
var ErrPanicRecovered = errors.New("panic recovered in management connection handler")

// Server serves snapshot reads and a live event stream over a Unix
// domain socket.
type Server struct {
	core   *babel.Core
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[chan []byte]struct{}

	listener net.Listener
}

// New constructs a Server over core. Wire Server.HandleNotification into
// babel.WithNotify so WATCH connections see live events.
func New(core *babel.Core, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		core:     core,
		logger:   logger,
		watchers: make(map[chan []byte]struct{}),
	}
}

// Listen binds the Unix domain socket at path, removing a stale socket
// file left behind by an unclean shutdown.
func (s *Server) Listen(path string) error {
	if fi, err := os.Stat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	s.listener = l
	return nil
}

// Serve accepts connections until ctx is canceled or Listen's listener
// is closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server: Listen must be called before Serve")
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.logger.Error("panic recovered in management connection",
				slog.Any("panic", r), slog.String("stack", string(buf[:n])),
				slog.Any("error", ErrPanicRecovered))
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		start := time.Now()

		if line == "WATCH" {
			s.watch(ctx, conn)
			s.logger.Info("management connection watching", slog.Duration("duration", time.Since(start)))
			return
		}

		resp, err := s.dispatch(line)
		if err != nil {
			errResp, _ := json.Marshal(map[string]string{"error": err.Error()})
			s.writeLine(conn, errResp)
		} else {
			s.writeLine(conn, resp)
		}
		s.logger.Info("management request", slog.String("request", line), slog.Duration("duration", time.Since(start)))
	}
}

func (s *Server) dispatch(request string) ([]byte, error) {
	switch request {
	case "GET /neighbours":
		return json.Marshal(neighbourDTOs(s.core.Neighbours()))
	case "GET /routes":
		return json.Marshal(routeDTOs(s.core.Routes()))
	case "GET /xroutes":
		return json.Marshal(xrouteDTOs(s.core.Xroutes()))
	case "GET /sources":
		return json.Marshal(sourceDTOs(s.core.Sources()))
	default:
		return nil, fmt.Errorf("unknown request %q", request)
	}
}

func (s *Server) writeLine(conn net.Conn, b []byte) {
	conn.Write(b)
	conn.Write([]byte("\n"))
}

// watch registers conn as a live event subscriber until the connection
// closes or ctx is canceled, fanning out notifications over a per-client
// channel.
func (s *Server) watch(ctx context.Context, conn net.Conn) {
	ch := make(chan []byte, 64)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
	}()

	// Detect the peer closing its half of the connection.
	closed := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		conn.Read(buf)
		close(closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case msg := <-ch:
			if _, err := conn.Write(append(msg, '\n')); err != nil {
				return
			}
		}
	}
}

// HandleNotification is a babel.NotifyFunc wired via babel.WithNotify;
// it fans an ADD/CHANGE/FLUSH event out to every active WATCH
// connection, never blocking the core's single mutating goroutine.
func (s *Server) HandleNotification(n babel.Notification) {
	dto := notificationDTO(n)
	encoded, err := json.Marshal(dto)
	if err != nil {
		s.logger.Warn("encode notification failed", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- encoded:
		default:
			s.logger.Warn("watch channel full, dropping notification")
		}
	}
}

// Close releases the listener. Safe to call even if Listen was never
// called.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
