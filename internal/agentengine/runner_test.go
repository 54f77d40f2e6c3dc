package agentengine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/basket/shraga/internal/bus"
)

// fakeCLI writes a small fake "claude" executable that emits a canned
// stream-json transcript, mimicking the real CLI closely enough to
// exercise Runner.Run end-to-end.
func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func TestRunner_ParsesStreamingResultChunk(t *testing.T) {
	cli := fakeCLI(t, `
cat <<'EOF'
{"type":"system"}
{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"result.md"}}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}
{"type":"result","is_error":false,"result":"STATUS: done","session_id":"sess-123","total_cost_usd":0.05,"num_turns":2}
EOF
`)
	b := bus.New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	runner := NewRunner()
	stats, err := runner.Run(context.Background(), RunOptions{
		CLIPath:      cli,
		Prompt:       "do the task",
		WorkDir:      t.TempDir(),
		OutputFormat: OutputFormatStreamJSON,
		Timeout:      5 * time.Second,
		Bus:          b,
		PhaseName:    "worker",
		TaskID:       "t1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.SessionID != "sess-123" {
		t.Fatalf("expected session id sess-123, got %s", stats.SessionID)
	}
	if stats.CostUSD != 0.05 {
		t.Fatalf("expected cost 0.05, got %f", stats.CostUSD)
	}
	out := ParseWorkerStatus(stats.Result)
	if !out.Done {
		t.Fatal("expected worker status done")
	}
	if !strings.Contains(stats.Transcript, "working on it") {
		t.Fatalf("expected transcript to capture assistant text, got %q", stats.Transcript)
	}
	if !strings.Contains(stats.Transcript, "tool_use") {
		t.Fatalf("expected transcript to capture tool_use, got %q", stats.Transcript)
	}
}

func TestRunner_TimesOutAndKillsProcess(t *testing.T) {
	cli := fakeCLI(t, `sleep 5`)
	runner := NewRunner()
	_, err := runner.Run(context.Background(), RunOptions{
		CLIPath:      cli,
		Prompt:       "hang",
		WorkDir:      t.TempDir(),
		OutputFormat: OutputFormatStreamJSON,
		Timeout:      200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunner_StripsClaudeCodeEnv(t *testing.T) {
	out := stripClaudeCode([]string{"PATH=/usr/bin", "CLAUDECODE=1", "HOME=/root"})
	for _, kv := range out {
		if kv == "CLAUDECODE=1" {
			t.Fatal("expected CLAUDECODE to be stripped")
		}
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 remaining env vars, got %d", len(out))
	}
}
