// Command orchestrator runs the Orchestrator daemon: mirrors user task
// rows into admin-owned rows and round-robin assigns them across a
// hot-reloadable worker pool (spec §4.4).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/directory"
	otelPkg "github.com/basket/shraga/internal/otel"
	"github.com/basket/shraga/internal/orchestrator"
	"github.com/basket/shraga/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: config: %v\n", err)
		os.Exit(1)
	}

	if err := audit.Init(cfg.HomeDir); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: audit init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, "orchestrator", "info", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: logger init: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{ServiceName: "shraga-orchestrator"})
	if err != nil {
		logger.Warn("otel init failed, continuing without telemetry", "error", err)
	} else {
		defer func() { _ = otelProvider.Shutdown(context.Background()) }()
	}

	tokens := directory.NewDefaultTokenSource(cfg.Directory.BaseURL, cfg.Directory.Token)
	client := directory.New(directory.Config{
		BaseURL: cfg.Directory.BaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	store := directory.NewStore(client, cfg.Directory.Tables())

	poolPath := cfg.PoolFile
	if !filepath.IsAbs(poolPath) {
		poolPath = filepath.Join(cfg.HomeDir, poolPath)
	}
	pool, err := config.LoadWorkerPool(poolPath)
	if err != nil {
		logger.Error("orchestrator: load worker pool failed", "path", poolPath, "error", err)
		os.Exit(1)
	}

	mgr := orchestrator.New(orchestrator.Config{
		Store:        store,
		Logger:       logger,
		AdminEmail:   cfg.AdminEmail,
		PollInterval: cfg.PollInterval,
	}, pool)

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("orchestrator: config watcher failed to start, pool changes require a restart", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				reloaded, err := config.LoadWorkerPool(poolPath)
				if err != nil {
					logger.Error("orchestrator: reload worker pool failed", "error", err)
					continue
				}
				mgr.SetPool(reloaded)
				logger.Info("orchestrator: worker pool reloaded", "workers", reloaded.Workers)
			}
		}()
	}

	logger.Info("orchestrator starting", "poll_interval", cfg.PollInterval, "pool_file", poolPath)
	if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("orchestrator shut down")
}
