package shared

import "context"

type runKey struct{}
type taskKey struct{}
type agentKey struct{}

// WithRunID attaches a run_id (one poll-iteration's worth of work) to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunID extracts run_id from context. Returns "-" if absent.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewRunID generates a new run_id.
func NewRunID() string {
	return NewTraceID()
}

// WithTaskID attaches the task row id being processed to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskKey{}, taskID)
}

// TaskID extracts the task id from context. Returns "-" if absent.
func TaskID(ctx context.Context) string {
	if v, ok := ctx.Value(taskKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// WithAgentID attaches the owning daemon/worker identity to the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentKey{}, agentID)
}

// AgentID extracts the agent id from context. Returns "-" if absent.
func AgentID(ctx context.Context) string {
	if v, ok := ctx.Value(agentKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}
