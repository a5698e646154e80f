package main

import (
	"log/slog"
	"net"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/config"
)

// buildInterface converts one configured interface into the babel.Interface
// the core keys neighbours against, resolving its kernel ifindex when the
// named link actually exists on this host (it may not, e.g. under test).
func buildInterface(ic config.InterfaceConfig, logger *slog.Logger) *babel.Interface {
	index := 0
	if iface, err := net.InterfaceByName(ic.Name); err != nil {
		logger.Warn("interface not found on host, using index 0",
			slog.String("interface", ic.Name), slog.String("error", err.Error()))
	} else {
		index = iface.Index
	}

	hello := ic.HelloIntervalMS / 10
	if hello == 0 {
		hello = defaultHelloIntervalCS
	}
	update := ic.UpdateIntervalMS / 10
	if update == 0 {
		update = defaultUpdateIntervalCS
	}

	return &babel.Interface{
		Name:           ic.Name,
		Index:          index,
		Up:             true,
		Cost:           defaultCost(ic.Cost),
		LinkQuality:    ic.LinkQuality,
		HelloInterval:  hello,
		UHelloInterval: hello,
		UpdateInterval: update,
		RTTMin:         ic.RTTMinMS,
		RTTMax:         ic.RTTMaxMS,
		MaxRTTPenalty:  ic.MaxRTTPenalty,
		BufferSize:     defaultBufferSize(ic.BufferSize),
	}
}

// defaultHelloIntervalCS and defaultUpdateIntervalCS are babeld's stock
// interval defaults, in centiseconds (4s Hello, 64s full Update).
const (
	defaultHelloIntervalCS  = 400
	defaultUpdateIntervalCS = 6400
)

func defaultCost(c uint16) uint16 {
	if c == 0 {
		return 96
	}
	return c
}

func defaultBufferSize(n int) int {
	if n == 0 {
		return 512
	}
	return n
}
