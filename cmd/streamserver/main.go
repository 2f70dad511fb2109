// Command streamserver is the composition root for the multi-tenant
// remote-browser streaming server: it builds the Browser Pool, Session
// Binder, and Socket Router once, wires them to the configured transport,
// and runs until told to shut down. No package holds a process-wide
// singleton for any of these — everything is constructed here and threaded
// down, per spec.md §9's "process-wide state" design note.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loool999/browser-test-2/internal/browser"
	"github.com/loool999/browser-test-2/internal/clock"
	"github.com/loool999/browser-test-2/internal/config"
	"github.com/loool999/browser-test-2/internal/logging"
	"github.com/loool999/browser-test-2/internal/metrics"
	"github.com/loool999/browser-test-2/internal/session"
	"github.com/loool999/browser-test-2/internal/socketrouter"
)

const version = "0.1.0"

// cliConfig holds the flag values layered on top of env/file config, per
// SPEC_FULL.md's "CLI flag > environment variable > config file > default"
// precedence rule.
type cliConfig struct {
	ConfigPath   string
	BootstrapYML string
	LogDir       string
	LogLevel     string
	DumpConfig   bool
	ShowVersion  bool

	Port       int
	Host       string
	MaxBrowsers int
	DefaultURL string
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("streamserver v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		fmt.Fprintf(os.Stderr, "streamserver: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}

	flag.StringVar(&cli.ConfigPath, "config-path", "", "path to the persisted JSON config file (default ./data/config.json)")
	flag.StringVar(&cli.BootstrapYML, "config", "", "optional YAML bootstrap file seeding the config store on first run")
	flag.StringVar(&cli.LogDir, "log-dir", "", "directory for rotated log files (overrides the storage config section)")
	flag.StringVar(&cli.LogLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flag.BoolVar(&cli.DumpConfig, "dump-config", false, "print the resolved configuration as JSON and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "print the version and exit")

	flag.IntVar(&cli.Port, "port", 0, "listen port (overrides PORT/config)")
	flag.StringVar(&cli.Host, "host", "", "bind address (overrides HOST/config)")
	flag.IntVar(&cli.MaxBrowsers, "max-browsers", 0, "browser pool capacity (overrides MAX_BROWSERS/config)")
	flag.StringVar(&cli.DefaultURL, "default-url", "", "initial navigation target (overrides DEFAULT_URL/config)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "streamserver - multi-tenant remote browser streaming server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: streamserver [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *cliConfig) error {
	store, err := config.NewFileStore(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	mgr, err := config.NewDefaultManager(store)
	if err != nil {
		return fmt.Errorf("register config sections: %w", err)
	}

	if err := mgr.LoadAll(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cli.BootstrapYML != "" {
		if err := config.SeedFromYAML(mgr, cli.BootstrapYML); err != nil {
			return fmt.Errorf("seed bootstrap config: %w", err)
		}
	}

	if err := config.ApplyEnv(mgr); err != nil {
		return fmt.Errorf("apply env overrides: %w", err)
	}

	applyFlagOverrides(mgr, cli)

	if cli.DumpConfig {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mgr.Snapshot())
	}

	serverSec, _ := mgr.GetSection(config.SectionIDServer)
	srv := serverSec.(*config.ServerSection)
	browserSec, _ := mgr.GetSection(config.SectionIDBrowser)
	brw := browserSec.(*config.BrowserSection)
	streamingSec, _ := mgr.GetSection(config.SectionIDStreaming)
	stm := streamingSec.(*config.StreamingSection)
	securitySec, _ := mgr.GetSection(config.SectionIDSecurity)
	sec := securitySec.(*config.SecuritySection)
	storageSec, _ := mgr.GetSection(config.SectionIDStorage)
	stg := storageSec.(*config.StorageSection)
	featuresSec, _ := mgr.GetSection(config.SectionIDFeatures)
	feat := featuresSec.(*config.FeaturesSection)

	logDir := stg.LogDir
	if cli.LogDir != "" {
		logDir = cli.LogDir
	}

	logger, closeLog, err := logging.New(logDir, parseLevel(cli.LogLevel))
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	logger.Info("starting streamserver",
		slog.String("version", version),
		slog.Int("max_browsers", brw.MaxBrowsers),
		slog.String("default_url", brw.DefaultURL),
	)

	registry := prometheus.NewRegistry()
	sink := metrics.NewPrometheus(registry)

	clk := clock.Real{}

	launcher, err := browser.NewPlaywrightLauncher()
	if err != nil {
		return fmt.Errorf("start browser launcher: %w", err)
	}

	pool, err := browser.New(
		launcher,
		brw.MaxBrowsers,
		time.Duration(brw.IdleTimeoutMs)*time.Millisecond,
		clk,
		sink,
		logger.With(slog.String("component", "browser_pool")),
	)
	if err != nil {
		return fmt.Errorf("build browser pool: %w", err)
	}

	sessions := session.New(clk, time.Duration(sec.SessionTimeoutMs)*time.Millisecond)

	router := socketrouter.New(socketrouter.Config{
		Pool:              pool,
		Sessions:          sessions,
		Clock:             clk,
		Logger:            logger.With(slog.String("component", "socket_router")),
		Metrics:           sink,
		CORSOrigin:        sec.CORSOrigin,
		DefaultURL:        brw.DefaultURL,
		ScreenshotFormat:  stm.ScreenshotType,
		ScreenshotQuality: stm.ScreenshotQuality,
	})

	reaperCtx, stopReapers := context.WithCancel(ctx)
	go pool.RunReaper(reaperCtx)
	go sessions.RunReaper(reaperCtx)

	mux := http.NewServeMux()
	mux.Handle("/ws", router)
	if feat.HealthEndpoint {
		mux.HandleFunc("/healthz", healthHandler(pool, sessions))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", srv.Host, srv.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(sec.CORSOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		stopReapers()
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	router.Shutdown()
	stopReapers()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.Any("error", err))
	}
	if err := pool.Shutdown(); err != nil {
		logger.Warn("browser pool shutdown error", slog.Any("error", err))
	}
	if err := mgr.SaveAll(); err != nil {
		logger.Warn("config save on shutdown failed", slog.Any("error", err))
	}

	logger.Info("streamserver stopped cleanly")
	return nil
}

// applyFlagOverrides layers explicit CLI flags over whatever env/file
// config already produced — the topmost tier of the precedence chain.
func applyFlagOverrides(mgr *config.Manager, cli *cliConfig) {
	if cli.Port != 0 {
		if s, ok := mgr.GetSection(config.SectionIDServer); ok {
			_ = s.SetData(map[string]interface{}{"port": cli.Port})
		}
	}
	if cli.Host != "" {
		if s, ok := mgr.GetSection(config.SectionIDServer); ok {
			_ = s.SetData(map[string]interface{}{"host": cli.Host})
		}
	}
	if cli.MaxBrowsers != 0 {
		if s, ok := mgr.GetSection(config.SectionIDBrowser); ok {
			_ = s.SetData(map[string]interface{}{"max_browsers": cli.MaxBrowsers})
		}
	}
	if cli.DefaultURL != "" {
		if s, ok := mgr.GetSection(config.SectionIDBrowser); ok {
			_ = s.SetData(map[string]interface{}{"default_url": cli.DefaultURL})
		}
	}
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// healthHandler reports liveness plus a thin snapshot of pool/session
// counts, for container orchestration probes — additive per
// SPEC_FULL.md's SUPPLEMENTED FEATURES section, not part of the wire
// protocol in spec.md §4.5.
func healthHandler(pool *browser.Pool, sessions *session.Binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"activeBrowsers": pool.Count(),
			"activeSessions": sessions.Count(),
		})
	}
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if r.Header.Get("Origin") == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
