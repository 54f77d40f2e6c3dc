package worker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/basket/shraga/internal/agentengine"
	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/worker"
)

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

func newTestStore(t *testing.T, handler http.HandlerFunc) *directory.Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := directory.New(directory.Config{
		BaseURL: srv.URL,
		Tokens:  directory.NewStaticTokenSource("test-token"),
	})
	return directory.NewStore(client, directory.DefaultTables())
}

// TestExecute_ApprovedOnFirstIteration drives a task through one
// worker-done / verifier-approved pass and expects a Completed transition.
func TestExecute_ApprovedOnFirstIteration(t *testing.T) {
	var finalStatus int
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"cr_shraga_taskid": "task-1",
				"cr_status":        5,
				"cr_name":          "do a thing",
				"cr_prompt":        "please do the thing",
			})
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if s, ok := body["cr_status"].(float64); ok {
				finalStatus = int(s)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	task, err := store.GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	sessionsRoot := t.TempDir()
	verdictDir := filepath.Join(sessionsRoot, "task-1")
	if err := os.MkdirAll(verdictDir, 0o755); err != nil {
		t.Fatalf("mkdir session dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(verdictDir, "VERDICT.json"), []byte(`{"approved":true,"feedback":"looks good"}`), 0o644); err != nil {
		t.Fatalf("write verdict: %v", err)
	}

	cli := fakeCLI(t, `
cat <<'EOF'
{"type":"result","is_error":false,"result":"STATUS: done","session_id":"sess-1"}
EOF
`)

	mgr := worker.New(worker.Config{
		Store:        store,
		Runner:       agentengine.NewRunner(),
		WorkerID:     "worker-1",
		DevBox:       "box-1",
		SessionsRoot: sessionsRoot,
		LLMCLIPath:   cli,
		PhaseTimeout: 5 * time.Second,
		PollInterval: time.Second,
	})

	mgr.Execute(context.Background(), task)

	if finalStatus != int(directory.TaskStatusCompleted) {
		t.Fatalf("expected Completed (%d), got %d", directory.TaskStatusCompleted, finalStatus)
	}

	if _, err := os.Stat(filepath.Join(verdictDir, "session_summary.json")); err != nil {
		t.Fatalf("expected session_summary.json to be persisted: %v", err)
	}
}

// TestExecute_CanceledSkipsSummarizer drives a task that is already
// Canceled before the first worker phase runs and expects a direct
// Canceled transition with no CLI invocation at all (no worker phase, no
// summarizer phase).
func TestExecute_CanceledSkipsSummarizer(t *testing.T) {
	var finalStatus int
	var transcriptField string
	var getCount int
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			getCount++
			status := 5
			if getCount > 1 {
				// The task starts out Running (claimed); a user cancels it
				// before Execute's first is_canceled check runs.
				status = 9
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"cr_shraga_taskid": "task-3",
				"cr_status":        status,
			})
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if s, ok := body["cr_status"].(float64); ok {
				finalStatus = int(s)
			}
			if ts, ok := body["cr_transcript"].(string); ok {
				transcriptField = ts
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	task, err := store.GetTask(context.Background(), "task-3")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	sessionsRoot := t.TempDir()
	invokedMarker := filepath.Join(sessionsRoot, "cli-invoked")

	cli := fakeCLI(t, `
touch `+invokedMarker+`
cat <<'EOF'
{"type":"result","is_error":false,"result":"STATUS: done","session_id":"sess-3"}
EOF
`)

	mgr := worker.New(worker.Config{
		Store:        store,
		Runner:       agentengine.NewRunner(),
		WorkerID:     "worker-1",
		DevBox:       "box-1",
		SessionsRoot: sessionsRoot,
		LLMCLIPath:   cli,
		PhaseTimeout: 5 * time.Second,
		PollInterval: time.Second,
	})

	mgr.Execute(context.Background(), task)

	if finalStatus != int(directory.TaskStatusCanceled) {
		t.Fatalf("expected Canceled (%d), got %d", directory.TaskStatusCanceled, finalStatus)
	}
	if _, err := os.Stat(invokedMarker); err == nil {
		t.Fatal("expected the CLI to never run for an already-canceled task")
	}
	if transcriptField != "" {
		t.Fatalf("expected empty transcript for a task canceled before any phase ran, got %q", transcriptField)
	}
}

func TestExecute_BlockedWritesWaitingForInput(t *testing.T) {
	var finalStatus int
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"cr_shraga_taskid": "task-2",
				"cr_status":        5,
			})
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if s, ok := body["cr_status"].(float64); ok {
				finalStatus = int(s)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	task, _ := store.GetTask(context.Background(), "task-2")
	sessionsRoot := t.TempDir()

	cli := fakeCLI(t, `
cat <<'EOF'
{"type":"result","is_error":false,"result":"STATUS: blocked - need credentials","session_id":"sess-2"}
EOF
`)

	mgr := worker.New(worker.Config{
		Store:        store,
		Runner:       agentengine.NewRunner(),
		WorkerID:     "worker-1",
		DevBox:       "box-1",
		SessionsRoot: sessionsRoot,
		LLMCLIPath:   cli,
		PhaseTimeout: 5 * time.Second,
		PollInterval: time.Second,
	})

	mgr.Execute(context.Background(), task)

	if finalStatus != int(directory.TaskStatusWaitingForInput) {
		t.Fatalf("expected WaitingForInput (%d), got %d", directory.TaskStatusWaitingForInput, finalStatus)
	}
}
