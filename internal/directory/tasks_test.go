package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/basket/shraga/internal/directory"
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

func TestClaimTaskRunning_ReturnsConflictOn412(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
	})
	task := directory.Task{ID: "t1", ETag: `W/"1"`}
	res, err := store.ClaimTaskRunning(context.Background(), task, "box-1")
	if err != nil {
		t.Fatalf("ClaimTaskRunning: %v", err)
	}
	if res != directory.UpdateConflict {
		t.Fatalf("expected UpdateConflict, got %v", res)
	}
}

func TestClaimTaskRunning_OKOnSuccess(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	task := directory.Task{ID: "t1", ETag: `W/"1"`}
	res, err := store.ClaimTaskRunning(context.Background(), task, "box-1")
	if err != nil {
		t.Fatalf("ClaimTaskRunning: %v", err)
	}
	if res != directory.UpdateOK {
		t.Fatalf("expected UpdateOK, got %v", res)
	}
}

func TestUpdateTaskStatus_RejectsIllegalTransition(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should never reach the server for an illegal transition")
	})
	task := directory.Task{ID: "t1", Status: directory.TaskStatusCompleted}
	err := store.UpdateTaskStatus(context.Background(), task, directory.TaskStatusRunning, nil)
	if err == nil {
		t.Fatal("expected error for illegal transition Completed->Running")
	}
}

func TestUpdateTaskStatus_AllowsLegalTransition(t *testing.T) {
	called := false
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	task := directory.Task{ID: "t1", Status: directory.TaskStatusPending}
	if err := store.UpdateTaskStatus(context.Background(), task, directory.TaskStatusQueued, nil); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if !called {
		t.Fatal("expected the server to be called for a legal transition")
	}
}

func TestIsCanceled(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"cr_status": float64(directory.TaskStatusCanceled)})
	})
	canceled, err := store.IsCanceled(context.Background(), "t1")
	if err != nil {
		t.Fatalf("IsCanceled: %v", err)
	}
	if !canceled {
		t.Fatal("expected canceled=true")
	}
}

func TestHasRunningTaskOnDevBox(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{"cr_shraga_taskid": "t1", "cr_status": float64(directory.TaskStatusRunning)}},
		})
	})
	has, err := store.HasRunningTaskOnDevBox(context.Background(), "box-1")
	if err != nil {
		t.Fatalf("HasRunningTaskOnDevBox: %v", err)
	}
	if !has {
		t.Fatal("expected a running task to be found")
	}
}
