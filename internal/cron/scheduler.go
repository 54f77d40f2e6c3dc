// Package cron provides a lightweight cron-expression job scheduler used by
// the Personal Manager's periodic sweeps (§4.3) and the Task Worker's
// self-update ticker (§4.5), turning an interval into named,
// independently-scheduled jobs instead of a hand-ticked time.Sleep loop.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Job is one named unit of periodic work.
type Job struct {
	Name     string
	Schedule cronlib.Schedule
	Run      func(ctx context.Context) error
	next     time.Time
}

// Scheduler ticks at a fixed resolution and fires any Job whose computed
// next-run time has passed. A failing Run is logged but never aborts the
// scheduler, matching §7's "each daemon's outermost loop must catch every
// exception, log it, and continue" propagation policy applied to sweeps.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*Job
	logger *slog.Logger
	tick   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler that checks for due jobs every tick
// (default 1s when zero).
func NewScheduler(logger *slog.Logger, tick time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{logger: logger, tick: tick}
}

// AddJob registers a named job on a 5-field cron expression. It may be
// called before or after Start.
func (s *Scheduler) AddJob(name, cronExpr string, run func(ctx context.Context) error) error {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &Job{
		Name:     name,
		Schedule: sched,
		Run:      run,
		next:     sched.Next(time.Now()),
	})
	return nil
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.next.After(now) {
			due = append(due, j)
			j.next = j.Schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if err := j.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", j.Name, "error", err)
		}
	}
}
