// Package personalmanager implements the Personal Manager daemon: one
// process per onboarded user, a thin conversational adapter over a
// stateful LLM subprocess (spec §4.3).
package personalmanager

import (
	"context"
	"log/slog"
	"time"

	"github.com/basket/shraga/internal/agentengine"
	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/bus"
	"github.com/basket/shraga/internal/directory"
)

// Config configures a Manager.
type Config struct {
	Store            *directory.Store
	Runner           *agentengine.Runner
	Sessions         *SessionStore
	Logger           *slog.Logger
	Bus              *bus.Bus
	UserEmail        string
	WorkingDir       string
	SystemPromptFile string
	LLMCLIPath       string
	PollInterval     time.Duration
	InvokeTimeout    time.Duration
}

// Manager runs the Personal Manager poll loop for a single user.
type Manager struct {
	cfg Config
	id  string
}

// New builds a Manager.
func New(cfg Config, id string) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.InvokeTimeout == 0 {
		cfg.InvokeTimeout = 120 * time.Second
	}
	return &Manager{cfg: cfg, id: id}
}

// RunOnce claims and processes one inbound row for this user, if any.
func (m *Manager) RunOnce(ctx context.Context) error {
	rows, err := m.cfg.Store.UnclaimedInbound(ctx, m.cfg.UserEmail, time.Time{}, 1)
	if err != nil {
		if directory.IsTransient(err) {
			m.cfg.Logger.Warn("personal manager: poll failed, will retry", "error", err)
			return nil
		}
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	m.processRow(ctx, rows[0])
	return nil
}

func (m *Manager) processRow(ctx context.Context, conv directory.Conversation) {
	res, err := m.cfg.Store.ClaimConversation(ctx, conv, m.id)
	if err != nil {
		m.cfg.Logger.Warn("personal manager: claim failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if res == directory.UpdateConflict {
		return
	}

	reply, followupExpected := m.converse(ctx, conv)

	if _, err := m.cfg.Store.CreateOutbound(ctx, conv.UserEmail, conv.ExternalConversationID, reply, conv.ID, followupExpected); err != nil {
		m.cfg.Logger.Error("personal manager: write outbound failed", "error", err)
	}
	if err := m.cfg.Store.MarkProcessed(ctx, conv.ID); err != nil {
		m.cfg.Logger.Error("personal manager: mark processed failed", "error", err)
	}
}

// converse invokes the LLM subprocess for one inbound message, handling
// session-id persistence and the session-lost retry (spec §4.3 steps 2-5).
func (m *Manager) converse(ctx context.Context, conv directory.Conversation) (reply string, followupExpected bool) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.Error("personal manager: panic handling message", "panic", r)
			reply = "Something went wrong processing your message. Please try again."
		}
	}()

	sessionID := m.cfg.Sessions.Get(conv.ExternalConversationID)

	stats, err := m.invoke(ctx, conv.Message, sessionID)
	if err != nil || stats.IsError {
		if sessionID != "" {
			_ = m.cfg.Sessions.Discard(conv.ExternalConversationID)
			stats, err = m.invoke(ctx, conv.Message, "")
			if err == nil && !stats.IsError {
				if saveErr := m.cfg.Sessions.Set(conv.ExternalConversationID, stats.SessionID); saveErr != nil {
					m.cfg.Logger.Error("personal manager: persist session id failed", "error", saveErr)
				}
				return "We lost context from before, so this reply starts fresh.\n\n" + stats.Result, false
			}
		}
		m.cfg.Logger.Error("personal manager: llm invocation failed", "error", err)
		return "Sorry, I couldn't process that message. Please try again.", false
	}

	if saveErr := m.cfg.Sessions.Set(conv.ExternalConversationID, stats.SessionID); saveErr != nil {
		m.cfg.Logger.Error("personal manager: persist session id failed", "error", saveErr)
	}
	audit.Record("personal-manager", "message.processed", "conversations", conv.ID, m.cfg.UserEmail)
	return stats.Result, false
}

func (m *Manager) invoke(ctx context.Context, message, sessionID string) (agentengine.PhaseStats, error) {
	return m.cfg.Runner.Run(ctx, agentengine.RunOptions{
		CLIPath:          m.cfg.LLMCLIPath,
		Prompt:           message,
		WorkDir:          m.cfg.WorkingDir,
		SystemPromptFile: m.cfg.SystemPromptFile,
		ResumeSessionID:  sessionID,
		OutputFormat:     agentengine.OutputFormatJSON,
		Timeout:          m.cfg.InvokeTimeout,
		Bus:              m.cfg.Bus,
		PhaseName:        "conversation",
		TaskID:           conversationTaskLabel(m.cfg.UserEmail),
	})
}

func conversationTaskLabel(email string) string { return "conversation:" + email }

// StaleRunningSweep fails Running tasks for this user that have not
// progressed in staleAfter (spec §4.3, "every 5 min sweep").
func (m *Manager) StaleRunningSweep(ctx context.Context, staleAfter time.Duration) {
	tasks, err := m.cfg.Store.StaleRunningTasks(ctx, m.cfg.UserEmail, staleAfter)
	if err != nil {
		m.cfg.Logger.Warn("personal manager: stale-running sweep query failed", "error", err)
		return
	}
	for _, task := range tasks {
		if err := m.cfg.Store.UpdateTaskStatus(ctx, task, directory.TaskStatusFailed, map[string]any{
			"cr_result": "no progress detected",
		}); err != nil {
			m.cfg.Logger.Warn("personal manager: stale-running sweep update failed", "task_id", task.ID, "error", err)
		}
	}
}

// StaleOutboundSweep expires Unclaimed Outbound rows older than maxAge
// (spec §4.3, "every 30 min sweep").
func (m *Manager) StaleOutboundSweep(ctx context.Context, maxAge time.Duration) {
	if _, err := m.cfg.Store.SweepStaleOutbound(ctx, maxAge); err != nil {
		m.cfg.Logger.Warn("personal manager: stale-outbound sweep failed", "error", err)
	}
}

// Run drives the poll loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.RunOnce(ctx); err != nil {
			m.cfg.Logger.Error("personal manager: poll iteration failed", "error", err)
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
