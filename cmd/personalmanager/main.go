// Command personalmanager runs one Personal Manager process per onboarded
// user: a thin conversational adapter over a stateful LLM subprocess
// (spec §4.3).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/basket/shraga/internal/agentengine"
	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/bus"
	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/cron"
	"github.com/basket/shraga/internal/directory"
	otelPkg "github.com/basket/shraga/internal/otel"
	"github.com/basket/shraga/internal/personalmanager"
	"github.com/basket/shraga/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadPersonalManagerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "personal manager: config: %v\n", err)
		os.Exit(1)
	}

	if err := audit.Init(cfg.WorkBaseDir); err != nil {
		fmt.Fprintf(os.Stderr, "personal manager: audit init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.WorkBaseDir, "personalmanager", "info", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "personal manager: logger init: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger = logger.With("user_email", cfg.UserEmail)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{ServiceName: "shraga-personalmanager"})
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

	if err := os.MkdirAll(filepath.Dir(cfg.SessionsFile), 0o700); err != nil {
		logger.Error("personal manager: prepare sessions dir failed", "error", err)
		os.Exit(1)
	}
	sessions, err := personalmanager.LoadSessionStore(cfg.SessionsFile)
	if err != nil {
		logger.Error("personal manager: load session store failed", "path", cfg.SessionsFile, "error", err)
		os.Exit(1)
	}

	eventBus := bus.New()

	workingDir := cfg.WorkingDir
	if workingDir == "" {
		workingDir = cfg.WorkBaseDir
	}

	mgr := personalmanager.New(personalmanager.Config{
		Store:            store,
		Runner:           agentengine.NewRunner(),
		Sessions:         sessions,
		Logger:           logger,
		Bus:              eventBus,
		UserEmail:        cfg.UserEmail,
		WorkingDir:       workingDir,
		SystemPromptFile: cfg.SystemPromptFile,
		LLMCLIPath:       cfg.LLMCLIPath,
		PollInterval:     cfg.PollInterval,
		InvokeTimeout:    120 * time.Second,
	}, "personalmanager-"+cfg.UserEmail)

	sweepScheduler := cron.NewScheduler(logger, time.Second)
	if err := sweepScheduler.AddJob("stale-running-tasks", "*/5 * * * *", func(ctx context.Context) error {
		mgr.StaleRunningSweep(ctx, 30*time.Minute)
		return nil
	}); err != nil {
		logger.Error("personal manager: register stale-running sweep failed", "error", err)
	}
	if err := sweepScheduler.AddJob("stale-outbound-rows", "*/30 * * * *", func(ctx context.Context) error {
		mgr.StaleOutboundSweep(ctx, 10*time.Minute)
		return nil
	}); err != nil {
		logger.Error("personal manager: register stale-outbound sweep failed", "error", err)
	}
	sweepScheduler.Start(ctx)
	defer sweepScheduler.Stop()

	logger.Info("personal manager starting", "poll_interval", cfg.PollInterval)
	if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("personal manager exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("personal manager shut down")
}
