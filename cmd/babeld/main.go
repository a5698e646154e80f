// babeld is a Babel (RFC 8966/6126) distance-vector routing daemon with
// source-specific prefixes (RFC 9229) and DSCP/TOS-qualified cost.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/babeldcore/babeld/internal/babel"
	"github.com/babeldcore/babeld/internal/config"
	"github.com/babeldcore/babeld/internal/fib"
	babelmetrics "github.com/babeldcore/babeld/internal/metrics"
	"github.com/babeldcore/babeld/internal/netio"
	"github.com/babeldcore/babeld/internal/server"
	appversion "github.com/babeldcore/babeld/internal/version"
	"github.com/babeldcore/babeld/internal/wire"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// tickFloor is the delay before the maintenance loop's first Tick, and
// the wait it uses whenever Tick returns a non-positive wakeup.
const tickFloor = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("babeld starting",
		slog.String("version", appversion.Version),
		slog.String("management_socket", cfg.Management.SocketPath),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := babelmetrics.NewCollector(reg)

	if err := runDaemon(cfg, collector, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("babeld exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("babeld stopped")
	return 0
}

// runDaemon builds the routing core and every supporting component, then
// runs them under a signal-aware errgroup until shutdown.
func runDaemon(
	cfg *config.Config,
	collector *babelmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	routerID, err := resolveRouterID(cfg.RouterID)
	if err != nil {
		return fmt.Errorf("resolve router-id: %w", err)
	}

	filterSet, err := buildFilterSet(cfg.Filters)
	if err != nil {
		return fmt.Errorf("build filters: %w", err)
	}

	auth, err := buildAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	dscp := buildDSCPSet(cfg.DSCP)

	mgmt := &fanoutNotify{logger: logger}

	core := babel.NewCore(routerID,
		babel.WithLogger(logger),
		babel.WithFilters(filterSet),
		babel.WithMetrics(collector),
		babel.WithNotify(mgmt.handle),
	)

	mirror := fib.New(fib.NoopInstaller{Logger: logger}, logger)

	mgmtSrv := server.New(core, logger)
	if err := mgmtSrv.Listen(cfg.Management.SocketPath); err != nil {
		return fmt.Errorf("listen on management socket: %w", err)
	}
	defer mgmtSrv.Close()

	mgmt.server = mgmtSrv
	mgmt.mirror = mirror

	ifaces := make(map[string]*babel.Interface, len(cfg.Interfaces))
	runtimes := make(map[string]*ifaceRuntime, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		ifc := buildInterface(ic, logger)
		ifaces[ic.Name] = ifc

		ln, err := netio.NewListener(netio.ListenerConfig{IfaceName: ic.Name})
		if err != nil {
			closeListeners(runtimes, logger)
			return fmt.Errorf("create listener on %s: %w", ic.Name, err)
		}
		runtimes[ic.Name] = &ifaceRuntime{ifc: ifc, listener: ln}

		for _, addr := range localAddressXroutes(ic.Name, ifc) {
			core.AddXroute(addr)
		}
	}
	defer closeListeners(runtimes, logger)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	demux := newPacketDemuxer(core, ifaces, auth, dscp, collector, logger)
	recv := netio.NewReceiver(demux, logger)
	sources := make([]netio.Source, 0, len(runtimes))
	for _, rt := range runtimes {
		sources = append(sources, rt.listener)
	}
	if len(sources) > 0 {
		g.Go(func() error { return recv.Run(gCtx, sources...) })
	}

	snd := newSender(core, auth, collector, logger)
	mgmt.sender = snd
	mgmt.runtimes = runtimes
	for name, rt := range runtimes {
		g.Go(func() error {
			snd.run(gCtx, name, rt)
			return nil
		})
	}
	g.Go(func() error {
		snd.runSeqnoRequests(gCtx, runtimes)
		return nil
	})

	g.Go(func() error { return runMaintenanceLoop(gCtx, core, logger) })
	g.Go(func() error { return fibEventLoop(gCtx, mirror, logger) })

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error { return mgmtSrv.Serve(gCtx) })
	g.Go(func() error { return runWatchdog(gCtx, logger) })

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

func closeListeners(runtimes map[string]*ifaceRuntime, logger *slog.Logger) {
	for name, rt := range runtimes {
		if err := rt.listener.Close(); err != nil {
			logger.Warn("failed to close listener", slog.String("interface", name), slog.String("error", err.Error()))
		}
	}
}

// runMaintenanceLoop drives Core.Tick on the schedule Tick itself
// requests (up to its 50 s ceiling), returning as soon as ctx is
// cancelled.
func runMaintenanceLoop(ctx context.Context, core *babel.Core, logger *slog.Logger) error {
	timer := time.NewTimer(tickFloor)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			wakeup := core.Tick(core.Now())
			if wakeup <= 0 {
				wakeup = tickFloor
			}
			timer.Reset(wakeup)
		}
	}
}

// fibEventLoop drains the FIB mirror's link/address change channel so it
// never fills and blocks the platform watcher goroutine that feeds it.
func fibEventLoop(ctx context.Context, mirror *fib.Mirror, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-mirror.Events():
			logger.Debug("fib event", slog.Any("kind", ev.Kind), slog.String("interface", ev.IfName))
		}
	}
}

// fanoutNotify fans a single babel.NotifyFunc callback out to the
// management socket, the FIB mirror, and a triggered Update on every
// interface when a route's selection changes.
type fanoutNotify struct {
	server   *server.Server
	mirror   *fib.Mirror
	sender   *sender
	runtimes map[string]*ifaceRuntime
	logger   *slog.Logger
}

func (f *fanoutNotify) handle(n babel.Notification) {
	if f.server != nil {
		f.server.HandleNotification(n)
	}
	if f.mirror != nil {
		mirrorRouteNotification(f.mirror, n, f.logger)
	}
	if f.sender != nil {
		f.sender.triggerUpdate(n, f.runtimes)
	}
}

// -------------------------------------------------------------------------
// Systemd Integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled", slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig re-reads configuration for its log-level directive.
// Interface/filter topology changes require a restart; reconciling them
// live is out of scope (see DESIGN.md).
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	if configPath == "" {
		logger.Debug("no config file in use, skipping reload")
		return
	}

	newCfg, result, err := config.Reload(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("result", result.String()), slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("result", result.String()),
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, fr *trace.FlightRecorder, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started", slog.Duration("min_age", flightRecorderMinAge), slog.Uint64("max_bytes", flightRecorderMaxBytes))
	return fr
}

// -------------------------------------------------------------------------
// HTTP Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Config Loading
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// resolveRouterID derives the node's router-id by hashing the configured
// string as a seed (babel.DeriveRouterID; a hex string is hashed too, not
// decoded), or generates a random one if unset.
func resolveRouterID(configured string) (babel.RouterID, error) {
	if configured == "" {
		id, err := babel.RandomRouterID()
		if err != nil {
			return babel.RouterID{}, err
		}
		return id, nil
	}
	return babel.DeriveRouterID([]byte(configured)), nil
}

// buildDSCPSet expands the configured list of DSCP class names into the
// set of codepoints that keep their own source/TOS-qualified route
// entries rather than collapsing to DefaultTOS.
func buildDSCPSet(cfg config.DSCPConfig) map[babel.TOS]bool {
	set := make(map[babel.TOS]bool, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		if tos, err := parseTOS(name); err == nil {
			set[tos] = true
		}
	}
	return set
}

// localAddressXroutes exports this interface's own addresses as /128
// xroutes. No real addresses
// are available when the interface doesn't exist on the host (e.g. a
// test sandbox), so it simply returns nothing in that case.
func localAddressXroutes(name string, ifc *babel.Interface) []*babel.Xroute {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}

	var xroutes []*babel.Xroute
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.To4() != nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		xroutes = append(xroutes, &babel.Xroute{
			Dest: babel.DestKey{
				Prefix: netip.PrefixFrom(addr, addr.BitLen()),
				TOS:    babel.DefaultTOS,
			},
			Metric:  0,
			IfIndex: ifc.Index,
			Proto:   0,
		})
	}
	return xroutes
}
