package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.PollIterations == nil {
		t.Error("PollIterations is nil")
	}
	if m.ClaimsWon == nil {
		t.Error("ClaimsWon is nil")
	}
	if m.ClaimsLost == nil {
		t.Error("ClaimsLost is nil")
	}
	if m.TaskDuration == nil {
		t.Error("TaskDuration is nil")
	}
	if m.PhaseDuration == nil {
		t.Error("PhaseDuration is nil")
	}
	if m.TokensUsed == nil {
		t.Error("TokensUsed is nil")
	}
	if m.WorkerIterations == nil {
		t.Error("WorkerIterations is nil")
	}
	if m.TasksCompleted == nil {
		t.Error("TasksCompleted is nil")
	}
	if m.TasksFailed == nil {
		t.Error("TasksFailed is nil")
	}
	if m.OnboardingStarted == nil {
		t.Error("OnboardingStarted is nil")
	}
	if m.SweepRowsAffected == nil {
		t.Error("SweepRowsAffected is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	// Disabled OTel returns noop meter — metrics should still create without error.
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}
