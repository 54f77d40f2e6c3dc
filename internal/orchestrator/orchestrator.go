// Package orchestrator implements the Orchestrator daemon: turns
// user-submitted task rows into admin-owned mirrors and round-robin
// assigns them to a configured worker pool (spec §4.4).
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/directory"
)

// Config configures a Manager.
type Config struct {
	Store        *directory.Store
	Logger       *slog.Logger
	AdminEmail   string
	PollInterval time.Duration
	MirrorPacing time.Duration
}

// Manager runs the Orchestrator poll loop.
type Manager struct {
	cfg    Config
	pool   atomic.Pointer[config.WorkerPool]
	cursor atomic.Uint64
}

// New builds a Manager with an initial worker pool. The pool can be swapped
// at runtime via SetPool (wired to a config.Watcher by the caller).
func New(cfg Config, initialPool config.WorkerPool) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MirrorPacing == 0 {
		cfg.MirrorPacing = 500 * time.Millisecond
	}
	m := &Manager{cfg: cfg}
	m.pool.Store(&initialPool)
	return m
}

// SetPool hot-swaps the worker pool, called when the pool file changes.
func (m *Manager) SetPool(pool config.WorkerPool) {
	m.pool.Store(&pool)
}

// nextWorker returns the next worker id by modular round-robin, or "" if the
// pool is empty.
func (m *Manager) nextWorker() string {
	pool := m.pool.Load()
	if pool == nil || len(pool.Workers) == 0 {
		return ""
	}
	idx := m.cursor.Add(1) - 1
	return pool.Workers[int(idx)%len(pool.Workers)]
}

// RunOnce discovers pending user tasks, mirrors each to an admin-owned row,
// and assigns the mirror to the next worker in the pool (§4.4).
func (m *Manager) RunOnce(ctx context.Context) error {
	tasks, err := m.cfg.Store.PendingUserTasks(ctx, m.cfg.AdminEmail, 20)
	if err != nil {
		if directory.IsTransient(err) {
			m.cfg.Logger.Warn("orchestrator: discover failed, will retry", "error", err)
			return nil
		}
		return err
	}

	if pool := m.pool.Load(); len(tasks) > 0 && (pool == nil || len(pool.Workers) == 0) {
		m.cfg.Logger.Warn("orchestrator: worker pool is empty, tasks will wait", "pending_count", len(tasks))
	}

	for i, task := range tasks {
		m.mirrorAndAssign(ctx, task)
		if i < len(tasks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.MirrorPacing):
			}
		}
	}
	return nil
}

func (m *Manager) mirrorAndAssign(ctx context.Context, task directory.Task) {
	mirror, err := m.cfg.Store.CreateMirrorTask(ctx, task, m.cfg.AdminEmail)
	if err != nil {
		m.cfg.Logger.Error("orchestrator: create mirror failed", "task_id", task.ID, "error", err)
		return
	}
	audit.Record("orchestrator", "task.mirrored", "tasks", task.ID, mirror.ID)

	if err := m.cfg.Store.LinkMirror(ctx, task.ID, mirror.ID); err != nil {
		m.cfg.Logger.Error("orchestrator: link mirror failed", "task_id", task.ID, "mirror_id", mirror.ID, "error", err)
	}

	workerID := m.nextWorker()
	if workerID == "" {
		return
	}
	if err := m.cfg.Store.AssignTask(ctx, mirror.ID, workerID); err != nil {
		m.cfg.Logger.Error("orchestrator: assign failed", "mirror_id", mirror.ID, "worker_id", workerID, "error", err)
		return
	}
	audit.Record("orchestrator", "task.assigned", "tasks", mirror.ID, workerID)
}

// Run drives the poll loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.RunOnce(ctx); err != nil {
			m.cfg.Logger.Error("orchestrator: poll iteration failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * m.cfg.PollInterval):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
