package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func taskFromRow(r Row) Task {
	f := r.Fields
	return Task{
		ID:               fieldString(f, "cr_shraga_taskid"),
		ETag:             r.ETag,
		Name:             fieldString(f, "cr_name"),
		Prompt:           fieldString(f, "cr_prompt"),
		Result:           fieldString(f, "cr_result"),
		Transcript:       fieldString(f, "cr_transcript"),
		Status:           TaskStatus(fieldInt(f, "cr_status")),
		IsMirror:         fieldBool(f, "cr_is_mirror"),
		MirrorOf:         fieldString(f, "cr_mirror_of"),
		MirrorTaskID:     fieldString(f, "cr_mirror_task_id"),
		AssignedWorkerID: fieldString(f, "cr_assigned_worker_id"),
		WorkerStatus:     fieldString(f, "cr_worker_status"),
		UserEmail:        fieldString(f, "cr_user_email"),
		DevBox:           fieldString(f, "cr_dev_box"),
		WorkingDir:       fieldString(f, "cr_working_dir"),
		SessionSummary:   fieldString(f, "cr_session_summary"),
		ShortDescription: fieldString(f, "cr_short_description"),
		CreatedAt:        fieldTime(f, "createdon"),
		ModifiedAt:       fieldTime(f, "modifiedon"),
	}
}

// GetTask fetches a single task row by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	row, err := s.Client.GetRow(ctx, s.Tables.Tasks, id, nil)
	if err != nil {
		return Task{}, err
	}
	return taskFromRow(row), nil
}

// PendingUserTasks lists rows the Orchestrator should mirror (§4.4):
// status=Pending AND is_mirror=false AND mirror_task_id IS NULL AND
// owner != adminEmail.
func (s *Store) PendingUserTasks(ctx context.Context, adminEmail string, top int) ([]Task, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Tasks, Query{
		Filter: AndFilters(
			fmt.Sprintf("cr_status eq %d", TaskStatusPending),
			"cr_is_mirror eq false",
			"cr_mirror_task_id eq null",
		),
		OrderBy: "createdon asc",
		Top:     top,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		t := taskFromRow(r)
		if t.UserEmail == adminEmail {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CreateMirrorTask creates the admin-owned mirror of a user task (§4.4).
func (s *Store) CreateMirrorTask(ctx context.Context, src Task, adminEmail string) (Task, error) {
	fields := map[string]any{
		"cr_shraga_taskid": uuid.NewString(),
		"cr_name":          src.Name,
		"cr_prompt":        src.Prompt,
		"cr_user_email":    src.UserEmail,
		"cr_is_mirror":     true,
		"cr_mirror_of":     src.ID,
		"cr_status":        int(TaskStatusPending),
		"cr_transcript":    "",
		"cr_result":        "",
	}
	row, err := s.Client.CreateRow(ctx, s.Tables.Tasks, fields, true)
	if err != nil {
		return Task{}, err
	}
	return taskFromRow(row), nil
}

// LinkMirror patches the original user task's mirror_task_id, retrying up to
// 3 times on ConcurrencyConflict (§4.4).
func (s *Store) LinkMirror(ctx context.Context, userTaskID, mirrorTaskID string) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		task, err := s.GetTask(ctx, userTaskID)
		if err != nil {
			return err
		}
		res, err := s.Client.UpdateRow(ctx, s.Tables.Tasks, userTaskID, map[string]any{
			"cr_mirror_task_id": mirrorTaskID,
		}, task.ETag)
		if err != nil {
			lastErr = err
			continue
		}
		if res == UpdateOK {
			return nil
		}
		lastErr = &Error{Kind: KindConcurrencyConflict, Op: "LinkMirror"}
	}
	return lastErr
}

// AssignTask patches a mirror task to Running with the given worker id
// (§4.4's orchestrator assignment step).
func (s *Store) AssignTask(ctx context.Context, taskID, workerID string) error {
	_, err := s.Client.UpdateRow(ctx, s.Tables.Tasks, taskID, map[string]any{
		"cr_status":             int(TaskStatusRunning),
		"cr_assigned_worker_id": workerID,
		"cr_worker_status":      "assigned",
	}, "")
	return err
}

// ClaimableTasks lists Pending tasks a worker may claim: assigned to it, or
// owned by either its own user or the admin user, and either on its dev box
// or unassigned to any (§4.5 step 1).
func (s *Store) ClaimableTasks(ctx context.Context, workerID, selfUser, adminUser, devBox string, top int) ([]Task, error) {
	ownerClause := fmt.Sprintf("(%s or %s or %s)",
		EqFilter("cr_assigned_worker_id", workerID),
		EqFilter("cr_user_email", selfUser),
		EqFilter("cr_user_email", adminUser),
	)
	devBoxClause := fmt.Sprintf("(%s or cr_dev_box eq null)", EqFilter("cr_dev_box", devBox))
	rows, err := s.Client.GetRows(ctx, s.Tables.Tasks, Query{
		Filter: AndFilters(
			fmt.Sprintf("cr_status eq %d", TaskStatusPending),
			ownerClause,
			devBoxClause,
		),
		OrderBy: "createdon asc",
		Top:     top,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, taskFromRow(r))
	}
	return out, nil
}

// HasRunningTaskOnDevBox reports whether a Running task already exists on
// devBox, enforcing single-flight per dev box (invariant 5, §3.2).
func (s *Store) HasRunningTaskOnDevBox(ctx context.Context, devBox string) (bool, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Tasks, Query{
		Filter: AndFilters(
			fmt.Sprintf("cr_status eq %d", TaskStatusRunning),
			EqFilter("cr_dev_box", devBox),
		),
		Top: 1,
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// QueueTask transitions a Pending task to Queued (no ETag required; caller
// already owns the decision not to run it yet).
func (s *Store) QueueTask(ctx context.Context, taskID string) error {
	_, err := s.Client.UpdateRow(ctx, s.Tables.Tasks, taskID, map[string]any{
		"cr_status": int(TaskStatusQueued),
	}, "")
	return err
}

// ClaimTaskRunning ETag-PATCHes a task to Running, assigning the dev box.
// Returns UpdateConflict when another worker already won the claim.
func (s *Store) ClaimTaskRunning(ctx context.Context, task Task, devBox string) (UpdateResult, error) {
	return s.Client.UpdateRow(ctx, s.Tables.Tasks, task.ID, map[string]any{
		"cr_status":  int(TaskStatusRunning),
		"cr_dev_box": devBox,
	}, task.ETag)
}

// PromoteQueuedTasks transitions Queued tasks on devBox back to Pending,
// oldest first (§4.5 step 4).
func (s *Store) PromoteQueuedTasks(ctx context.Context, devBox string) (int, error) {
	rows, err := s.Client.GetRows(ctx, s.Tables.Tasks, Query{
		Filter: AndFilters(
			fmt.Sprintf("cr_status eq %d", TaskStatusQueued),
			EqFilter("cr_dev_box", devBox),
		),
		OrderBy: "createdon asc",
	})
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, r := range rows {
		t := taskFromRow(r)
		if _, err := s.Client.UpdateRow(ctx, s.Tables.Tasks, t.ID, map[string]any{
			"cr_status": int(TaskStatusPending),
		}, ""); err == nil {
			promoted++
		}
	}
	return promoted, nil
}

// UpdateTaskStatus applies an invariant-3-checked status transition.
// Returns a KindLogicError if the transition is illegal.
func (s *Store) UpdateTaskStatus(ctx context.Context, task Task, to TaskStatus, extra map[string]any) error {
	if !CanTransition(task.Status, to) {
		return &Error{Kind: KindLogicError, Op: "UpdateTaskStatus", Err: fmt.Errorf("illegal transition %s -> %s", task.Status, to)}
	}
	fields := map[string]any{"cr_status": int(to)}
	for k, v := range extra {
		fields[k] = v
	}
	_, err := s.Client.UpdateRow(ctx, s.Tables.Tasks, task.ID, fields, "")
	return err
}

// IsCanceled reports whether the task's current status is Canceled, per
// §4.5's is_canceled check (a GET that treats 9 or "Canceled" as truthy).
func (s *Store) IsCanceled(ctx context.Context, taskID string) (bool, error) {
	row, err := s.Client.GetRow(ctx, s.Tables.Tasks, taskID, []string{"cr_status"})
	if err != nil {
		return false, err
	}
	switch v := row.Fields["cr_status"].(type) {
	case float64:
		return TaskStatus(int(v)) == TaskStatusCanceled, nil
	case string:
		return v == TaskStatusCanceled.String() || v == strconv.Itoa(int(TaskStatusCanceled)), nil
	}
	return false, nil
}

// StaleRunningTasks lists Running tasks whose modified_at is older than
// staleAfter (§4.3's 30-min no-progress sweep), optionally scoped to
// userEmail.
func (s *Store) StaleRunningTasks(ctx context.Context, userEmail string, staleAfter time.Duration) ([]Task, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	clauses := []string{fmt.Sprintf("cr_status eq %d", TaskStatusRunning)}
	if userEmail != "" {
		clauses = append(clauses, EqFilter("cr_user_email", userEmail))
	}
	rows, err := s.Client.GetRows(ctx, s.Tables.Tasks, Query{
		Filter: AndFilters(clauses...) + " and modifiedon le " + cutoff.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, taskFromRow(r))
	}
	return out, nil
}
