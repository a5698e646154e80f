package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Demuxer routes a decoded payload from one interface's socket to the
// core. Decoupling the receiver from the babel/wire packages the way the
// teacher decouples netio from bfd avoids an import cycle and keeps this
// package ignorant of wire-format details.
type Demuxer interface {
	HandlePacket(raw []byte, src netip.Addr, ifaceName string) error
}

// Source is what Receiver reads from: a joined Listener in production,
// or a fake in tests that don't have a real multicast-capable interface
// to join.
type Source interface {
	Recv(ctx context.Context) ([]byte, netip.Addr, error)
	InterfaceName() string
}

// Receiver reads packets from one or more Sources and routes them to
// a Demuxer, one goroutine per source, until ctx is cancelled.
type Receiver struct {
	demuxer Demuxer
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that routes packets to the given Demuxer.
func NewReceiver(demuxer Demuxer, logger *slog.Logger) *Receiver {
	return &Receiver{
		demuxer: demuxer,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled.
// Errors from individual packet reads are logged but do not stop the
// receiver; only context cancellation terminates the loop.
func (r *Receiver) Run(ctx context.Context, sources ...Source) error {
	if len(sources) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		go func(s Source) {
			r.recvLoop(ctx, s)
			done <- struct{}{}
		}(src)
	}

	for range len(sources) {
		<-done
	}
	return nil
}

func (r *Receiver) recvLoop(ctx context.Context, ln Source) {
	ifaceName := ln.InterfaceName()
	for {
		if ctx.Err() != nil {
			return
		}

		raw, src, err := ln.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("interface", ifaceName), slog.String("error", err.Error()))
			continue
		}

		if err := r.demuxer.HandlePacket(raw, src, ifaceName); err != nil {
			r.logger.Debug("handle packet failed",
				slog.String("interface", ifaceName),
				slog.String("src", src.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
