// Speed Monitor Server collects speed-test results from devices and serves
// fleet-wide network statistics to dashboards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/hyperkishore/home-internet/config"
	"github.com/hyperkishore/home-internet/livefeed"
	"github.com/hyperkishore/home-internet/logger"
	"github.com/hyperkishore/home-internet/monitor"
	"github.com/hyperkishore/home-internet/observability"
	"github.com/hyperkishore/home-internet/stats"
	"github.com/hyperkishore/home-internet/storage"
)

// Build information (set via -ldflags)
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const configFileName = "server.toml"

var serverLogger *logger.Logger

func main() {
	configFlag := flag.String("config", "", "Configuration file path (default: search standard locations)")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to this path and exit")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, restart, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Speed Monitor Server %s\n", monitor.Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *writeConfig != "" {
		if err := WriteDefaultConfig(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at %s\n", *writeConfig)
		return
	}

	configPath := resolveConfigPath(*configFlag)

	if *serviceCmd != "" {
		if err := handleServiceCommand(*serviceCmd, configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if !service.Interactive() {
		if err := handleServiceCommand("run", configPath); err != nil {
			logFatal("Service run failed", "error", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, configPath, false); err != nil {
		logFatal("Server failed", "error", err)
	}
}

// resolveConfigPath prefers an explicit flag, then the first existing file
// in the standard search paths. An empty result means defaults only.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path, _, err := config.FindConfigFile(configFileName); err == nil {
		return path
	}
	return ""
}

// runServer wires the store, engine, live feed and HTTP API, then serves
// until ctx is cancelled.
func runServer(ctx context.Context, configPath string, isService bool) error {
	cfg, tracker, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logDir := cfg.Logging.Dir
	if logDir == "" {
		if dataDir, err := config.GetDataDirectory(isService); err == nil {
			logDir = filepath.Join(dataDir, "logs")
		}
	}
	serverLogger = logger.New(logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	defer serverLogger.Close()
	serverLog.Attach(serverLogger)
	storage.SetLogger(serverLogger)
	monitor.SetLogger(serverLogger)
	livefeed.SetLogger(serverLogger)

	logInfo("Server starting",
		"version", monitor.Version,
		"commit", GitCommit,
		"config", configPath,
		"env_overrides", len(tracker.EnvKeys))

	if cfg.Database.EffectiveDriver() == "sqlite" && cfg.Database.Path == "" && cfg.Database.DSN == "" {
		if isService {
			if dataDir, err := config.GetDataDirectory(true); err == nil {
				cfg.Database.Path = filepath.Join(dataDir, "speed_monitor.db")
			}
		} else {
			cfg.Database.Path = storage.GetDefaultDBPath()
		}
	}

	store, err := storage.NewStore(&cfg.Database, cfg.ListLimits())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logInfo("Database ready", "driver", store.Dialect().Name())

	providers, err := observability.NewProviders(ctx, cfg.Telemetry.OTLPEndpoint, "speedmonitor-server", monitor.Version, cfg.Telemetry.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logWarn("Telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := observability.NewMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	engine, err := stats.NewEngine(store, cfg.EngineOptions())
	if err != nil {
		return fmt.Errorf("init stats engine: %w", err)
	}

	hub, liveHandler := newLiveFeed(cfg.Server.CORSAllowOrigin)
	defer hub.Stop()

	svc, err := monitor.New(store, engine, monitor.Options{Metrics: metrics, Feed: hub})
	if err != nil {
		return err
	}

	api := &apiServer{svc: svc, cfg: cfg, logs: serverLogger, live: liveHandler}
	if cfg.Server.RateLimitEnabled {
		api.limiter = NewIPRateLimiter(cfg.Server.RateLimitRequests, cfg.RateLimitWindow())
		defer api.limiter.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(logBridgeWriter{level: logger.WARN}, "", 0),
	}

	errCh := make(chan error, 1)
	go func() {
		logInfo("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logInfo("Shutting down")
	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logWarn("HTTP shutdown incomplete", "error", err)
	}
	return nil
}
