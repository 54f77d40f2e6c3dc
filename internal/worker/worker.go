// Package worker implements the Task Worker daemon: one process per
// compute environment, polling for assigned tasks and executing them via
// the worker/verifier/summarizer loop (spec §4.5, §4.6).
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/shraga/internal/agentengine"
	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/directory"
)

// MaxIterations bounds the worker/verifier loop (§4.5).
const MaxIterations = 10

// Config configures a Manager.
type Config struct {
	Store                *directory.Store
	Runner               *agentengine.Runner
	Logger               *slog.Logger
	WorkerID             string
	SelfUser             string
	AdminUser            string
	DevBox               string
	SessionsRoot         string
	LLMCLIPath           string
	WorkerPromptFile     string
	VerifierPromptFile   string
	SummarizerPromptFile string
	PhaseTimeout         time.Duration
	PollInterval         time.Duration
}

// Manager runs the worker poll/claim/execute loop.
type Manager struct {
	cfg           Config
	currentTaskID string
}

// New builds a Manager.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PhaseTimeout == 0 {
		cfg.PhaseTimeout = 3600 * time.Second
	}
	return &Manager{cfg: cfg}
}

// RunOnce performs one poll/claim/execute iteration (§4.5 steps 1-4).
func (m *Manager) RunOnce(ctx context.Context) error {
	if n, err := m.cfg.Store.PromoteQueuedTasks(ctx, m.cfg.DevBox); err != nil {
		m.cfg.Logger.Warn("worker: promote queued tasks failed", "error", err)
	} else if n > 0 {
		m.cfg.Logger.Info("worker: promoted queued tasks", "count", n)
	}

	tasks, err := m.cfg.Store.ClaimableTasks(ctx, m.cfg.WorkerID, m.cfg.SelfUser, m.cfg.AdminUser, m.cfg.DevBox, 1)
	if err != nil {
		if directory.IsTransient(err) {
			m.cfg.Logger.Warn("worker: poll failed, will retry", "error", err)
			return nil
		}
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[0]

	running, err := m.cfg.Store.HasRunningTaskOnDevBox(ctx, m.cfg.DevBox)
	if err != nil {
		m.cfg.Logger.Warn("worker: check running task failed", "error", err)
		return nil
	}
	if running {
		if err := m.cfg.Store.QueueTask(ctx, task.ID); err != nil {
			m.cfg.Logger.Warn("worker: queue task failed", "task_id", task.ID, "error", err)
		}
		return nil
	}

	res, err := m.cfg.Store.ClaimTaskRunning(ctx, task, m.cfg.DevBox)
	if err != nil {
		m.cfg.Logger.Warn("worker: claim task failed", "task_id", task.ID, "error", err)
		return nil
	}
	if res == directory.UpdateConflict {
		return nil
	}
	audit.Record("worker", "task.claimed", "tasks", task.ID, m.cfg.WorkerID)

	m.currentTaskID = task.ID
	m.Execute(ctx, task)
	m.currentTaskID = ""

	if n, err := m.cfg.Store.PromoteQueuedTasks(ctx, m.cfg.DevBox); err != nil {
		m.cfg.Logger.Warn("worker: promote queued tasks after completion failed", "error", err)
	} else if n > 0 {
		m.cfg.Logger.Info("worker: promoted queued tasks after completion", "count", n)
	}
	return nil
}

func (m *Manager) sessionDir(task directory.Task) string {
	return filepath.Join(m.cfg.SessionsRoot, task.ID)
}

// Execute runs the worker/verifier/summarizer loop for one claimed task
// (§4.5 "Task execution", §4.6). Exported so tests and `adminctl` can drive
// a single task synchronously without the poll loop.
func (m *Manager) Execute(ctx context.Context, task directory.Task) {
	sessionDir := m.sessionDir(task)
	stats := &agentengine.AccumulatedStats{ModelUsage: map[string]agentengine.ModelUsage{}}
	transcript := &strings.Builder{}
	var feedback string
	var lastResult string

	for iteration := 1; iteration <= MaxIterations; iteration++ {
		canceled, err := m.cfg.Store.IsCanceled(ctx, task.ID)
		if err != nil {
			m.cfg.Logger.Warn("worker: is_canceled check failed", "task_id", task.ID, "error", err)
		} else if canceled {
			m.finishCanceled(ctx, task, sessionDir, stats, transcript, "canceled by user", lastResult)
			return
		}

		workerStats, outcome, err := m.runWorkerPhase(ctx, task, sessionDir, feedback, iteration)
		if err != nil {
			m.fail(ctx, task, sessionDir, stats, transcript, fmt.Sprintf("worker phase failed: %v", err))
			return
		}
		agentengine.MergeInto(stats, workerStats)
		appendTranscript(transcript, "worker", iteration, workerStats.Transcript)
		lastResult = workerStats.Result

		if !outcome.Done {
			m.finish(ctx, task, sessionDir, stats, transcript, directory.TaskStatusWaitingForInput, outcome.Reason, lastResult)
			return
		}

		verdict, verifierStats, err := m.runVerifierPhase(ctx, task, sessionDir, iteration)
		if err != nil {
			m.fail(ctx, task, sessionDir, stats, transcript, fmt.Sprintf("verifier phase failed: %v", err))
			return
		}
		agentengine.MergeInto(stats, verifierStats)
		appendTranscript(transcript, "verifier", iteration, verifierStats.Transcript)

		if verdict.Approved {
			m.finishApproved(ctx, task, sessionDir, stats, transcript, verdict, iteration)
			return
		}
		feedback = verdict.Feedback
	}

	m.fail(ctx, task, sessionDir, stats, transcript, "Max iterations reached")
}

// appendTranscript labels one phase iteration's raw transcript text with a
// markdown heading before folding it into the task's running transcript.
func appendTranscript(transcript *strings.Builder, phase string, iteration int, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(transcript, "## %s (iteration %d)\n\n%s\n", phase, iteration, text)
}

func (m *Manager) runWorkerPhase(ctx context.Context, task directory.Task, sessionDir, feedback string, iteration int) (agentengine.PhaseStats, agentengine.WorkerOutcome, error) {
	prompt := buildWorkerPrompt(task, sessionDir, feedback)
	stats, err := m.cfg.Runner.Run(ctx, agentengine.RunOptions{
		CLIPath:          m.cfg.LLMCLIPath,
		Prompt:           prompt,
		WorkDir:          sessionDir,
		SystemPromptFile: m.cfg.WorkerPromptFile,
		OutputFormat:     agentengine.OutputFormatStreamJSON,
		Timeout:          m.cfg.PhaseTimeout,
		PhaseName:        "worker",
		TaskID:           task.ID,
	})
	if err != nil {
		return stats, agentengine.WorkerOutcome{}, err
	}
	return stats, agentengine.ParseWorkerStatus(stats.Result), nil
}

func (m *Manager) runVerifierPhase(ctx context.Context, task directory.Task, sessionDir string, iteration int) (agentengine.Verdict, agentengine.PhaseStats, error) {
	prompt := buildVerifierPrompt(task, sessionDir, iteration)
	stats, err := m.cfg.Runner.Run(ctx, agentengine.RunOptions{
		CLIPath:          m.cfg.LLMCLIPath,
		Prompt:           prompt,
		WorkDir:          sessionDir,
		SystemPromptFile: m.cfg.VerifierPromptFile,
		OutputFormat:     agentengine.OutputFormatStreamJSON,
		Timeout:          m.cfg.PhaseTimeout,
		PhaseName:        "verifier",
		TaskID:           task.ID,
	})
	if err != nil {
		return agentengine.Verdict{}, stats, err
	}
	return agentengine.ParseVerdict(sessionDir), stats, nil
}

// runSummarizerPhase invokes the summarizer phase and folds its cost and
// transcript into the task-level accumulators before returning the summary
// text.
func (m *Manager) runSummarizerPhase(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder) string {
	prompt := buildSummarizerPrompt(task, sessionDir)
	summarizerStats, err := m.cfg.Runner.Run(ctx, agentengine.RunOptions{
		CLIPath:          m.cfg.LLMCLIPath,
		Prompt:           prompt,
		WorkDir:          sessionDir,
		SystemPromptFile: m.cfg.SummarizerPromptFile,
		OutputFormat:     agentengine.OutputFormatStreamJSON,
		Timeout:          m.cfg.PhaseTimeout,
		PhaseName:        "summarizer",
		TaskID:           task.ID,
	})
	reason := ""
	if err != nil {
		reason = err.Error()
	} else {
		agentengine.MergeInto(stats, summarizerStats)
		appendTranscript(transcript, "summarizer", 0, summarizerStats.Transcript)
	}
	return agentengine.ReadOrFallbackSummary(sessionDir, reason)
}

func (m *Manager) finishApproved(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder, verdict agentengine.Verdict, iteration int) {
	summary := m.runSummarizerPhase(ctx, task, sessionDir, stats, transcript)
	m.persistAndTransition(ctx, task, sessionDir, stats, transcript, directory.TaskStatusCompleted, map[string]any{
		"cr_result": summary,
	})
}

// finishCanceled transitions a canceled task to Canceled directly, skipping
// the summarizer phase: a cancellation is a user-initiated stop, not a
// terminal state the summarizer should narrate with another LLM call (§8
// scenario 5).
func (m *Manager) finishCanceled(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder, reason, lastResult string) {
	result := reason
	if lastResult != "" {
		result = lastResult
	}
	m.persistAndTransition(ctx, task, sessionDir, stats, transcript, directory.TaskStatusCanceled, map[string]any{
		"cr_result": result,
	})
}

func (m *Manager) finish(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder, status directory.TaskStatus, reason, result string) {
	summary := m.runSummarizerPhase(ctx, task, sessionDir, stats, transcript)
	if summary == "" {
		summary = reason
	}
	m.persistAndTransition(ctx, task, sessionDir, stats, transcript, status, map[string]any{
		"cr_result": summary,
	})
}

func (m *Manager) fail(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder, reason string) {
	m.persistAndTransition(ctx, task, sessionDir, stats, transcript, directory.TaskStatusFailed, map[string]any{
		"cr_result": reason,
	})
}

func (m *Manager) persistAndTransition(ctx context.Context, task directory.Task, sessionDir string, stats *agentengine.AccumulatedStats, transcript *strings.Builder, status directory.TaskStatus, extra map[string]any) {
	transcriptText := transcript.String()
	gitLog := gitHistory(sessionDir)

	if errs := Persist(sessionDir, SessionArtifacts{
		TaskPrompt:      task.Prompt,
		SuccessCriteria: task.ShortDescription,
		SessionLog:      fmt.Sprintf("task %s reached terminal status %s", task.ID, status),
		Result:          fmt.Sprintf("%v", extra["cr_result"]),
		Transcript:      transcriptText,
		GitHistory:      gitLog,
		Stats:           stats,
	}); len(errs) > 0 {
		for _, e := range errs {
			m.cfg.Logger.Warn("worker: artifact persistence error", "task_id", task.ID, "error", e)
		}
	}

	extra["cr_transcript"] = transcriptText

	if summaryCol, err := SessionSummaryColumn(stats); err != nil {
		m.cfg.Logger.Warn("worker: render session summary failed", "task_id", task.ID, "error", err)
	} else if summaryCol != "" {
		extra["cr_session_summary"] = summaryCol
	}

	if err := m.cfg.Store.UpdateTaskStatus(ctx, task, status, extra); err != nil {
		m.cfg.Logger.Error("worker: persisting terminal status failed", "task_id", task.ID, "status", status, "error", err)
	}
	audit.Record("worker", "task."+status.String(), "tasks", task.ID, m.cfg.WorkerID)
}

func buildWorkerPrompt(task directory.Task, sessionDir, feedback string) string {
	prompt := fmt.Sprintf("Task file: TASK_PROMPT.md\nWork directory: %s\n\n%s", sessionDir, task.Prompt)
	if feedback != "" {
		prompt += "\n\nVerifier feedback from the previous attempt:\n" + feedback
	}
	return prompt
}

func buildVerifierPrompt(task directory.Task, sessionDir string, iteration int) string {
	return fmt.Sprintf("Verify the work done in %s for task %q (iteration %d). Write VERDICT.json with your findings.", sessionDir, task.Name, iteration)
}

func buildSummarizerPrompt(task directory.Task, sessionDir string) string {
	return fmt.Sprintf("Summarize the work done in %s for task %q as SUMMARY.md.", sessionDir, task.Name)
}

// HandleCrash patches the in-flight task to Failed on an uncaught panic or
// SIGINT (§4.5 "Crash and cancellation").
func (m *Manager) HandleCrash(ctx context.Context, reason string) {
	if m.currentTaskID == "" {
		return
	}
	task, err := m.cfg.Store.GetTask(ctx, m.currentTaskID)
	if err != nil {
		m.cfg.Logger.Error("worker: get task on crash failed", "task_id", m.currentTaskID, "error", err)
		return
	}
	if err := m.cfg.Store.UpdateTaskStatus(ctx, task, directory.TaskStatusFailed, map[string]any{
		"cr_result": reason,
	}); err != nil {
		m.cfg.Logger.Error("worker: mark failed on crash failed", "task_id", m.currentTaskID, "error", err)
	}
}

// Run drives the poll loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.RunOnce(ctx); err != nil {
			m.cfg.Logger.Error("worker: poll iteration failed", "error", err)
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
