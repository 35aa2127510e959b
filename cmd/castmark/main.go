// Package main implements the castmark service entry point. Castmark is a
// registry that maps identifier digests to bookmark records (name, URL,
// owner) with owner-gated mutation, a global pause switch, and a NATS event
// feed for every successful change.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/0xSardius/castmark/config"
	"github.com/0xSardius/castmark/event"
	"github.com/0xSardius/castmark/markstore"
	"github.com/0xSardius/castmark/metric"
	"github.com/0xSardius/castmark/natsclient"
	"github.com/0xSardius/castmark/registry"
	"github.com/0xSardius/castmark/service"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "castmark"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override configured log settings
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting castmark",
		"version", Version,
		"config_path", cliCfg.ConfigPath,
		"nats_url", cfg.NATS.URL,
		"listen", cfg.HTTP.Listen)

	ctx := context.Background()

	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMetrics(metricsRegistry.CoreMetrics()),
		natsclient.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = natsClient.Close(ctx) }()

	store, err := markstore.NewStore(ctx, natsClient, cfg.Registry.Bucket)
	if err != nil {
		return fmt.Errorf("create mark store: %w", err)
	}

	seed, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load persisted marks: %w", err)
	}
	logger.Info("loaded persisted marks", "count", len(seed))

	publisher := event.NewNATSPublisher(natsClient.Conn(), cfg.Registry.EventSubjectPrefix, logger)

	reg, err := registry.New(registry.Principal(cfg.Registry.Administrator),
		registry.WithSeed(seed),
		registry.WithStore(store),
		registry.WithPublisher(publisher),
		registry.WithMetrics(metricsRegistry.CoreMetrics()),
		registry.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	svc, err := service.New(reg,
		service.WithLogger(logger),
		service.WithMetricsRegistry(metricsRegistry),
		service.WithEventTap(natsClient.Conn(), cfg.Registry.EventSubjectPrefix))
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	return serveWithSignalHandling(svc, cfg.HTTP.Listen, cliCfg.ShutdownTimeout)
}

// serveWithSignalHandling runs the HTTP server until SIGINT/SIGTERM, then
// shuts it down within the given timeout.
func serveWithSignalHandling(svc *service.Service, listen string, shutdownTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- svc.Start(listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Shutdown complete")
	return <-serveErr
}
