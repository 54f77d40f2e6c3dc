package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/directory"
	"github.com/basket/shraga/internal/orchestrator"
)

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

func TestRunOnce_MirrorsAndAssignsPendingTask(t *testing.T) {
	var patchCount, createCount int32

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{{
					"cr_shraga_taskid": "task-1",
					"cr_name":          "do a thing",
					"cr_status":        0,
					"cr_user_email":    "alice@example.com",
					"cr_is_mirror":     false,
				}},
			})
		case r.Method == http.MethodPost:
			atomic.AddInt32(&createCount, 1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("OData-EntityId", "https://example.org/tasks(mirror-1)")
			_ = json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodPatch:
			atomic.AddInt32(&patchCount, 1)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mgr := orchestrator.New(orchestrator.Config{
		Store:        store,
		AdminEmail:   "admin@example.com",
		PollInterval: time.Second,
		MirrorPacing: time.Millisecond,
	}, config.WorkerPool{Workers: []string{"box-1", "box-2"}})

	if err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if atomic.LoadInt32(&createCount) != 1 {
		t.Fatalf("expected 1 mirror created, got %d", createCount)
	}
	if atomic.LoadInt32(&patchCount) < 2 {
		t.Fatalf("expected at least 2 patches (link + assign), got %d", patchCount)
	}
}

func TestRunOnce_EmptyPoolStillMirrorsButWarns(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{{
					"cr_shraga_taskid": "task-1",
					"cr_user_email":    "alice@example.com",
				}},
			})
		case http.MethodPost:
			w.Header().Set("OData-EntityId", "https://example.org/tasks(mirror-1)")
			_ = json.NewEncoder(w).Encode(map[string]any{})
		case http.MethodPatch:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mgr := orchestrator.New(orchestrator.Config{
		Store:        store,
		AdminEmail:   "admin@example.com",
		PollInterval: time.Second,
		MirrorPacing: time.Millisecond,
	}, config.WorkerPool{})

	if err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected empty pool to be handled without error, got %v", err)
	}
}

func TestRunOnce_RoundRobinsAssignmentAcrossWorkers(t *testing.T) {
	var assigned []string
	callCount := 0

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			callCount++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"cr_shraga_taskid": "task-1", "cr_user_email": "alice@example.com"},
					{"cr_shraga_taskid": "task-2", "cr_user_email": "alice@example.com"},
				},
			})
		case http.MethodPost:
			w.Header().Set("OData-EntityId", "https://example.org/tasks(mirror)")
			_ = json.NewEncoder(w).Encode(map[string]any{})
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if workerID, ok := body["cr_assigned_worker_id"].(string); ok {
				assigned = append(assigned, workerID)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})

	mgr := orchestrator.New(orchestrator.Config{
		Store:        store,
		AdminEmail:   "admin@example.com",
		PollInterval: time.Second,
		MirrorPacing: time.Millisecond,
	}, config.WorkerPool{Workers: []string{"box-1", "box-2"}})

	if err := mgr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(assigned) != 2 {
		t.Fatalf("expected 2 assignments, got %d (%v)", len(assigned), assigned)
	}
	if assigned[0] == assigned[1] {
		t.Fatalf("expected round robin to alternate workers, got %v", assigned)
	}
}
