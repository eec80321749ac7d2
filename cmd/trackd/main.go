package main

import (
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SpanFreight/tracking/internal/api"
	"github.com/SpanFreight/tracking/internal/config"
	"github.com/SpanFreight/tracking/internal/health"
	"github.com/SpanFreight/tracking/internal/metrics"
	"github.com/SpanFreight/tracking/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/trackd.yaml", "path to configuration file")
	flag.Parse()

	slog.Info("tracking admin panel starting...")

	// Load configuration; a missing file means defaults
	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if cfg.Security.Generated {
		slog.Warn("no CSRF token configured, generated one for this process")
	}
	slog.Info("configuration loaded",
		"path", *configPath,
		"storage", cfg.Storage.Driver,
		"bulk_max_ids", cfg.Bulk.MaxIDs,
		"security", cfg.Security.Redacted())

	// Initialize components
	st, err := store.Open(cfg.Storage)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}

	m := metrics.New()
	hc := health.NewChecker(m, cfg.HealthCheck)
	hc.Register("store", st)

	// Start health checker
	hc.Start()

	// Start admin panel
	apiServer := api.NewServer(st, hc, m, cfg)
	if err := apiServer.Start(cfg.Listen.APIPort); err != nil {
		slog.Error("failed to start admin panel", "err", err)
		os.Exit(1)
	}

	// Set up config hot-reload
	current := cfg
	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		slog.Info("reloading configuration...")
		if newCfg.Security.Generated {
			// Keep the token pages were already rendered with.
			newCfg.Security = current.Security
		}
		if newCfg.Storage != current.Storage || newCfg.Listen != current.Listen {
			slog.Warn("listen and storage changes require a restart")
		}
		slog.Info("applying configuration", "bulk_max_ids", newCfg.Bulk.MaxIDs, "security", newCfg.Security.Redacted())
		apiServer.UpdateConfig(newCfg)
		hc.UpdateConfig(newCfg.HealthCheck)
		current = newCfg
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "err", err)
	}

	slog.Info("tracking admin panel ready",
		"api_port", cfg.Listen.APIPort,
		"tls", cfg.Listen.TLSEnabled())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)

	// Graceful shutdown with timeout
	done := make(chan struct{})
	go func() {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		apiServer.Stop()
		hc.Stop()
		if err := st.Close(); err != nil {
			slog.Error("closing store", "err", err)
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("tracking admin panel stopped")
	case <-time.After(shutdownTimeout):
		slog.Error("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	}
}
