// Command worker runs the Task Worker daemon: one process per compute
// environment, executing the worker/verifier/summarizer loop against
// assigned task rows and checking for self-updates while idle (spec §4.5,
// §4.6).
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
	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/cron"
	"github.com/basket/shraga/internal/directory"
	otelPkg "github.com/basket/shraga/internal/otel"
	"github.com/basket/shraga/internal/telemetry"
	"github.com/basket/shraga/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: config: %v\n", err)
		os.Exit(1)
	}

	if err := audit.Init(cfg.WorkBaseDir); err != nil {
		fmt.Fprintf(os.Stderr, "worker: audit init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.WorkBaseDir, "worker", "info", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: logger init: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger = logger.With("devbox", cfg.DevBoxName)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{ServiceName: "shraga-worker"})
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

	workingDir := cfg.WorkingDir
	if workingDir == "" {
		workingDir = cfg.WorkBaseDir
	}
	sessionsRoot := filepath.Join(workingDir, "sessions")

	mgr := worker.New(worker.Config{
		Store:                store,
		Runner:               agentengine.NewRunner(),
		Logger:               logger,
		WorkerID:             "worker-" + cfg.DevBoxName,
		SelfUser:             envOr("SELF_USER", ""),
		AdminUser:            envOr("ADMIN_USER", ""),
		DevBox:               cfg.DevBoxName,
		SessionsRoot:         sessionsRoot,
		LLMCLIPath:           cfg.LLMCLIPath,
		WorkerPromptFile:     envOr("WORKER_PROMPT_FILE", ""),
		VerifierPromptFile:   envOr("VERIFIER_PROMPT_FILE", ""),
		SummarizerPromptFile: envOr("SUMMARIZER_PROMPT_FILE", ""),
		PollInterval:         cfg.PollInterval,
	})

	updater := worker.NewSelfUpdater(workingDir, cfg.UpdateBranch)
	localVersion := updater.LocalVersion()
	updateScheduler := cron.NewScheduler(logger, 30*time.Second)
	if err := updateScheduler.AddJob("self-update-check", everyNMinutes(cfg.UpdateCheckInterval), func(ctx context.Context) error {
		if !updater.CheckForUpdate(ctx, localVersion) {
			return nil
		}
		logger.Info("worker: update available, pulling and exiting for supervisor restart")
		if err := updater.ApplyUpdate(ctx); err != nil {
			logger.Warn("worker: self-update pull failed", "error", err)
			return nil
		}
		stop()
		return nil
	}); err != nil {
		logger.Error("worker: register self-update job failed", "error", err)
	}
	updateScheduler.Start(ctx)
	defer updateScheduler.Stop()

	go func() {
		<-ctx.Done()
		mgr.HandleCrash(context.Background(), "worker process interrupted")
	}()

	logger.Info("worker starting", "poll_interval", cfg.PollInterval, "local_version", localVersion)
	if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker shut down")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func everyNMinutes(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("*/%d * * * *", minutes)
}
