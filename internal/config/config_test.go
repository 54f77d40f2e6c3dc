package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/shraga/internal/config"
)

func clearDirectoryEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATAVERSE_URL", "DATAVERSE_TOKEN", "TABLE_NAME", "CONVERSATIONS_TABLE",
		"USERS_TABLE", "TASKS_TABLE", "MESSAGES_TABLE", "USER_EMAIL",
		"POLL_INTERVAL", "CLAIM_DELAY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadGlobalManagerConfig_RequiresDataverseURL(t *testing.T) {
	clearDirectoryEnv(t)
	_, err := config.LoadGlobalManagerConfig()
	if err == nil {
		t.Fatal("expected error when DATAVERSE_URL is unset")
	}
}

func TestLoadGlobalManagerConfig_Defaults(t *testing.T) {
	clearDirectoryEnv(t)
	t.Setenv("DATAVERSE_URL", "https://org.crm.dynamics.com")

	cfg, err := config.LoadGlobalManagerConfig()
	if err != nil {
		t.Fatalf("LoadGlobalManagerConfig: %v", err)
	}
	if cfg.PollInterval.Seconds() != 10 {
		t.Fatalf("expected default poll interval 10s, got %v", cfg.PollInterval)
	}
	if cfg.ClaimDelay.Seconds() != 15 {
		t.Fatalf("expected default claim delay 15s, got %v", cfg.ClaimDelay)
	}
}

func TestLoadPersonalManagerConfig_RequiresUserEmail(t *testing.T) {
	clearDirectoryEnv(t)
	t.Setenv("DATAVERSE_URL", "https://org.crm.dynamics.com")

	_, err := config.LoadPersonalManagerConfig()
	if err == nil {
		t.Fatal("expected error when USER_EMAIL is unset")
	}
}

func TestLoadPersonalManagerConfig_OK(t *testing.T) {
	clearDirectoryEnv(t)
	t.Setenv("DATAVERSE_URL", "https://org.crm.dynamics.com")
	t.Setenv("USER_EMAIL", "alice@example.com")

	cfg, err := config.LoadPersonalManagerConfig()
	if err != nil {
		t.Fatalf("LoadPersonalManagerConfig: %v", err)
	}
	if cfg.UserEmail != "alice@example.com" {
		t.Fatalf("expected UserEmail alice@example.com, got %s", cfg.UserEmail)
	}
}

func TestDirectory_Tables_OverridesDefaults(t *testing.T) {
	d := config.Directory{Tasks: "custom_tasks"}
	tables := d.Tables()
	if tables.Tasks != "custom_tasks" {
		t.Fatalf("expected custom_tasks, got %s", tables.Tasks)
	}
	if tables.Users == "" {
		t.Fatal("expected default Users table to remain set")
	}
}

func TestLoadWorkerPool_MissingFileIsEmpty(t *testing.T) {
	pool, err := config.LoadWorkerPool(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadWorkerPool: %v", err)
	}
	if len(pool.Workers) != 0 {
		t.Fatalf("expected empty pool, got %v", pool.Workers)
	}
}

func TestLoadWorkerPool_ParsesWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte("workers:\n  - shraga-box-01\n  - shraga-box-02\n"), 0o644); err != nil {
		t.Fatalf("write pool file: %v", err)
	}
	pool, err := config.LoadWorkerPool(path)
	if err != nil {
		t.Fatalf("LoadWorkerPool: %v", err)
	}
	if len(pool.Workers) != 2 || pool.Workers[0] != "shraga-box-01" {
		t.Fatalf("unexpected pool: %#v", pool)
	}
}
