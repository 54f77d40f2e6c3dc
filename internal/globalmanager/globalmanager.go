// Package globalmanager implements the Global Manager daemon: fallback
// handling of inbound messages whose personal manager is absent or slow,
// and the new-user onboarding state machine that drives compute-environment
// provisioning (spec §4.2).
package globalmanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/basket/shraga/internal/audit"
	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/provisioning"
)

// DirectoryResolver maps a user email to the identity provider's AAD object
// id. It is the "external directory lookup" §4.2 step 1 delegates to; kept
// as an interface so tests can stub it without a real tenant.
type DirectoryResolver interface {
	ResolveAzureADID(ctx context.Context, email string) (string, error)
}

// Config configures a Manager.
type Config struct {
	Store              *directory.Store
	Provisioning       *provisioning.Client
	Directory          DirectoryResolver
	Logger             *slog.Logger
	PollInterval       time.Duration
	ClaimDelay         time.Duration
	DevBoxPool         string
	CustomizationGroup string
}

// Manager runs the Global Manager poll loop.
type Manager struct {
	cfg Config
	id  string
}

// New builds a Manager. id identifies this process as a conversation
// claimant (hostname or pid-derived string).
func New(cfg Config, id string) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, id: id}
}

// RunOnce processes one poll iteration: claim eligible unclaimed-inbound
// rows and drive onboarding for each.
func (m *Manager) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-m.cfg.ClaimDelay)
	rows, err := m.cfg.Store.UnclaimedInbound(ctx, "", cutoff, 20)
	if err != nil {
		if directory.IsTransient(err) {
			m.cfg.Logger.Warn("global manager: poll failed, will retry", "error", err)
			return nil
		}
		return err
	}

	for _, conv := range rows {
		m.processRow(ctx, conv)
	}
	return nil
}

func (m *Manager) processRow(ctx context.Context, conv directory.Conversation) {
	res, err := m.cfg.Store.ClaimConversation(ctx, conv, m.id)
	if err != nil {
		m.cfg.Logger.Warn("global manager: claim failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if res == directory.UpdateConflict {
		return
	}
	audit.Record("global-manager", "claim.won", "conversations", conv.ID, "")

	reply := m.handleMessage(ctx, conv)

	if _, err := m.cfg.Store.CreateOutbound(ctx, conv.UserEmail, conv.ExternalConversationID, reply, conv.ID, false); err != nil {
		m.cfg.Logger.Error("global manager: failed to write outbound reply", "error", err)
	}
	if err := m.cfg.Store.MarkProcessed(ctx, conv.ID); err != nil {
		m.cfg.Logger.Error("global manager: failed to mark processed", "error", err)
	}
}

// handleMessage drives the onboarding state machine for one inbound
// message and returns the text to send back.
func (m *Manager) handleMessage(ctx context.Context, conv directory.Conversation) string {
	user, found, err := m.cfg.Store.GetUser(ctx, conv.UserEmail)
	if err != nil {
		m.cfg.Logger.Error("global manager: get user failed", "error", err)
		return "Something went wrong on our side. Please try again shortly."
	}

	if !found || user.OnboardingStep == "" {
		return m.startProvisioning(ctx, conv.UserEmail)
	}

	_ = m.cfg.Store.TouchLastSeen(ctx, conv.UserEmail)

	switch user.OnboardingStep {
	case directory.OnboardingProvisioning, directory.OnboardingWaitingProvisioning:
		return m.pollProvisioning(ctx, user)
	case directory.OnboardingCustomizing:
		return m.pollCustomization(ctx, user)
	case directory.OnboardingAuthPending:
		return m.sendAuthInstructions(ctx, user)
	case directory.OnboardingAuthPendingRDP:
		return m.checkAuthAck(ctx, user, conv.Message)
	case directory.OnboardingProvisioningFailed:
		return m.startProvisioning(ctx, conv.UserEmail)
	case directory.OnboardingCompleted:
		return "Your personal assistant is already set up. Message it directly to get started."
	default:
		return m.startProvisioning(ctx, conv.UserEmail)
	}
}

func (m *Manager) startProvisioning(ctx context.Context, email string) string {
	azureADID, err := m.cfg.Directory.ResolveAzureADID(ctx, email)
	if err != nil {
		m.cfg.Logger.Error("global manager: resolve aad id failed", "email", email, "error", err)
		return "We couldn't verify your account right now. Please try again shortly."
	}

	devBoxName := fmt.Sprintf("shraga-%s", strings.SplitN(email, "@", 2)[0])

	if _, err := m.cfg.Provisioning.CreateDevBox(ctx, azureADID, devBoxName, m.cfg.DevBoxPool); err != nil {
		m.cfg.Logger.Error("global manager: create devbox failed", "email", email, "error", err)
		return fmt.Sprintf("We hit an error provisioning your environment: %v. We'll retry automatically.", err)
	}

	user, found, err := m.cfg.Store.GetUser(ctx, email)
	if err != nil {
		m.cfg.Logger.Error("global manager: get user after provision failed", "error", err)
	}
	fields := map[string]any{
		"cr_devbox_name":   devBoxName,
		"cr_azure_ad_id":   azureADID,
	}
	if !found {
		if _, err := m.cfg.Store.CreateUser(ctx, email); err != nil {
			m.cfg.Logger.Error("global manager: create user failed", "error", err)
		}
		user, _, _ = m.cfg.Store.GetUser(ctx, email)
	}
	if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingProvisioning, fields); err != nil {
		m.cfg.Logger.Error("global manager: persist provisioning start failed", "error", err)
	}
	audit.Record("global-manager", "onboarding.started", "users", email, devBoxName)

	return "Welcome! We're setting up your personal coding environment now. This usually takes a few minutes."
}

func (m *Manager) pollProvisioning(ctx context.Context, user directory.User) string {
	status, err := m.cfg.Provisioning.GetDevBox(ctx, user.AzureADID, user.DevboxName)
	if err != nil {
		m.cfg.Logger.Warn("global manager: poll provisioning failed", "error", err)
		return "Still working on your environment. We'll let you know when it's ready."
	}

	switch status.ProvisioningState {
	case provisioning.StateSucceeded:
		conn, connErr := m.cfg.Provisioning.GetRemoteConnection(ctx, user.AzureADID, user.DevboxName)
		fields := map[string]any{}
		if connErr == nil {
			fields["cr_connection_url"] = conn.WebURL
		}
		if _, err := m.cfg.Provisioning.RequestCustomization(ctx, user.AzureADID, user.DevboxName, m.cfg.CustomizationGroup); err != nil {
			m.cfg.Logger.Error("global manager: request customization failed", "error", err)
		}
		if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingCustomizing, fields); err != nil {
			m.cfg.Logger.Error("global manager: advance to customizing failed", "error", err)
		}
		return "Your environment is ready. Installing the coding assistant now..."
	case provisioning.StateFailed:
		if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingProvisioningFailed, nil); err != nil {
			m.cfg.Logger.Error("global manager: persist provisioning failure failed", "error", err)
		}
		return "Environment setup failed. Please message us again to retry."
	default:
		if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingWaitingProvisioning, nil); err != nil {
			m.cfg.Logger.Error("global manager: persist waiting state failed", "error", err)
		}
		return "Still setting up your environment. We'll check again shortly."
	}
}

func (m *Manager) pollCustomization(ctx context.Context, user directory.User) string {
	status, err := m.cfg.Provisioning.GetCustomization(ctx, user.AzureADID, user.DevboxName, m.cfg.CustomizationGroup)
	if err != nil {
		m.cfg.Logger.Warn("global manager: poll customization failed", "error", err)
		return "Still installing your coding assistant."
	}

	if !status.ProvisioningState.IsTerminal() {
		return "Still installing your coding assistant."
	}
	if status.ProvisioningState == provisioning.StateFailed {
		m.cfg.Logger.Warn("global manager: customization failed, proceeding anyway", "user", user.Email)
	}
	if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingAuthPending, nil); err != nil {
		m.cfg.Logger.Error("global manager: advance to auth_pending failed", "error", err)
	}
	return m.sendAuthInstructions(ctx, user)
}

func (m *Manager) sendAuthInstructions(ctx context.Context, user directory.User) string {
	if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingAuthPendingRDP, nil); err != nil {
		m.cfg.Logger.Error("global manager: advance to auth_pending_rdp failed", "error", err)
	}
	return fmt.Sprintf(
		"Connect to your environment here: %s\n\n"+
			"Once connected, open a terminal and run the sign-in command for the coding assistant. "+
			"Reply 'done' here once you've finished.",
		user.ConnectionURL,
	)
}

var authAckWords = map[string]bool{
	"done": true, "yes": true, "completed": true, "finished": true, "ready": true, "ok": true,
}

func (m *Manager) checkAuthAck(ctx context.Context, user directory.User, message string) string {
	if authAckWords[strings.ToLower(strings.TrimSpace(message))] {
		if _, err := m.cfg.Store.AdvanceOnboarding(ctx, user, directory.OnboardingCompleted, nil); err != nil {
			m.cfg.Logger.Error("global manager: advance to completed failed", "error", err)
		}
		audit.Record("global-manager", "onboarding.completed", "users", user.Email, "")
		return "Your personal assistant is ready! Message it directly with what you'd like to build."
	}
	return m.sendAuthInstructions(ctx, user)
}

// Run drives the poll loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.RunOnce(ctx); err != nil {
			m.cfg.Logger.Error("global manager: poll iteration failed", "error", err)
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
