// goschcd is the SCHC compression daemon: it loads a set of declarative
// contexts (parser stack + ruleset), serves them over an admin HTTP/JSON
// API and a Prometheus metrics endpoint, and starts an internal/netio
// Gateway for every context that configures tunnel endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goschc/internal/config"
	"github.com/dantte-lp/goschc/internal/engine"
	schcmetrics "github.com/dantte-lp/goschc/internal/metrics"
	"github.com/dantte-lp/goschc/internal/netio"
	"github.com/dantte-lp/goschc/internal/parser"
	"github.com/dantte-lp/goschc/internal/rulestore"
	"github.com/dantte-lp/goschc/internal/server"
	appversion "github.com/dantte-lp/goschc/internal/version"
)

// shutdownTimeout bounds how long graceful shutdown waits for HTTP servers
// to drain active connections.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("goschcd starting",
		slog.String("version", appversion.Version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("contexts", len(cfg.Contexts)),
	)

	reg := prometheus.NewRegistry()
	collector := schcmetrics.NewCollector(reg)

	engines, gateways, err := buildEngines(cfg, logger)
	if err != nil {
		logger.Error("failed to build engines from configured contexts",
			slog.String("error", err.Error()),
		)
		return 1
	}

	if err := runServers(cfg, engines, gateways, reg, collector, logger, *configPath, logLevel); err != nil {
		logger.Error("goschcd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("goschcd stopped")
	return 0
}

// buildEngines resolves every configured context into an engine.Engine by
// loading its ruleset from internal/rulestore and its parser stack from
// internal/parser's named-stack registry. Contexts that configure tunnel
// endpoints also get a netio.Gateway, bound but not yet started.
func buildEngines(cfg *config.Config, logger *slog.Logger) (map[string]engine.Engine, []*netio.Gateway, error) {
	engines := make(map[string]engine.Engine, len(cfg.Contexts))
	var gateways []*netio.Gateway

	for _, cc := range cfg.Contexts {
		rulePath := cc.RuleFile
		if !filepath.IsAbs(rulePath) {
			rulePath = filepath.Join(cfg.Engine.RuleDir, rulePath)
		}

		ctx, err := rulestore.LoadContext(rulePath)
		if err != nil {
			return nil, nil, fmt.Errorf("context %s: %w", cc.ID, err)
		}

		ruleIDLength := cc.RuleIDLength
		if ruleIDLength == 0 {
			ruleIDLength = cfg.Engine.DefaultRuleIDLength
		}
		if ctx.RuleIDLength == 0 {
			ctx.RuleIDLength = ruleIDLength
		}

		stack, err := parser.BuildStack(ctx.ParserID)
		if err != nil {
			return nil, nil, fmt.Errorf("context %s: %w", cc.ID, err)
		}

		eng := engine.New(stack, ctx)
		engines[ctx.ID] = eng

		logger.Info("context loaded",
			slog.String("context_id", ctx.ID),
			slog.String("interface_id", ctx.InterfaceID),
			slog.String("parser", ctx.ParserID),
			slog.Int("rule_count", len(ctx.Ruleset)),
		)

		if cc.Tunnel.Enabled() {
			gw, err := buildGateway(eng, cc.Tunnel, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("context %s: gateway: %w", cc.ID, err)
			}
			gateways = append(gateways, gw)

			logger.Info("gateway configured",
				slog.String("context_id", ctx.ID),
				slog.String("capture_addr", cc.Tunnel.CaptureAddr),
				slog.String("tunnel_addr", cc.Tunnel.TunnelAddr),
				slog.String("peer_addr", cc.Tunnel.PeerAddr),
			)
		}
	}

	return engines, gateways, nil
}

// buildGateway opens the capture and tunnel UDP sockets for tc and binds
// them to a netio.Gateway for eng.
func buildGateway(eng engine.Engine, tc config.TunnelConfig, logger *slog.Logger) (*netio.Gateway, error) {
	capture, err := net.ListenPacket("udp", tc.CaptureAddr)
	if err != nil {
		return nil, fmt.Errorf("listen capture_addr %s: %w", tc.CaptureAddr, err)
	}

	tunnel, err := net.ListenPacket("udp", tc.TunnelAddr)
	if err != nil {
		_ = capture.Close()
		return nil, fmt.Errorf("listen tunnel_addr %s: %w", tc.TunnelAddr, err)
	}

	peer, err := net.ResolveUDPAddr("udp", tc.PeerAddr)
	if err != nil {
		_ = capture.Close()
		_ = tunnel.Close()
		return nil, fmt.Errorf("resolve peer_addr %s: %w", tc.PeerAddr, err)
	}

	return &netio.Gateway{
		Engine:  eng,
		Logger:  logger,
		Capture: capture,
		Tunnel:  tunnel,
		Peer:    peer,
	}, nil
}

// runServers sets up and runs the admin HTTP and metrics servers, the
// configured gateways, and the daemon goroutines, using an errgroup with
// signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	engines map[string]engine.Engine,
	gateways []*netio.Gateway,
	reg *prometheus.Registry,
	collector *schcmetrics.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	adminSrv := newAdminServer(cfg.HTTP, engines, collector, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)
	startGateways(gCtx, g, gateways)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startGateways registers one errgroup goroutine per configured
// netio.Gateway.
func startGateways(ctx context.Context, g *errgroup.Group, gateways []*netio.Gateway) {
	for _, gw := range gateways {
		g.Go(func() error { return gw.Run(ctx) })
	}
}

// startHTTPServers registers the admin API and metrics HTTP server
// goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin HTTP server listening", slog.String("addr", cfg.HTTP.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.HTTP.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the systemd watchdog and SIGHUP reload
// goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd integration -- sd_notify + watchdog
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

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. Exits immediately if no watchdog is set.
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
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

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
// SIGHUP reload -- log level only; context/ruleset reload is a rolling
// restart today (see DESIGN.md).
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
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

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

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
// Server construction
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

func newAdminServer(
	cfg config.HTTPConfig,
	engines map[string]engine.Engine,
	collector *schcmetrics.Collector,
	logger *slog.Logger,
) *http.Server {
	srv := server.New(engines, logger).WithMetrics(collector)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

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
