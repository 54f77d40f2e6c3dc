package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the coordination plane's metric instruments: poll/claim
// counters and phase-duration histograms (§2 "poll/claim/conflict counters,
// phase-duration histograms").
type Metrics struct {
	PollIterations    metric.Int64Counter
	ClaimsWon         metric.Int64Counter
	ClaimsLost        metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	PhaseDuration     metric.Float64Histogram
	TokensUsed        metric.Int64Counter
	WorkerIterations  metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksFailed       metric.Int64Counter
	OnboardingStarted metric.Int64Counter
	SweepRowsAffected metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PollIterations, err = meter.Int64Counter("shraga.poll.iterations",
		metric.WithDescription("Poll-loop iterations executed by a daemon"),
	)
	if err != nil {
		return nil, err
	}

	m.ClaimsWon, err = meter.Int64Counter("shraga.claim.won",
		metric.WithDescription("Row claims this daemon won (204)"),
	)
	if err != nil {
		return nil, err
	}

	m.ClaimsLost, err = meter.Int64Counter("shraga.claim.lost",
		metric.WithDescription("Row claims this daemon lost (412)"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("shraga.task.duration",
		metric.WithDescription("Task wall-clock duration from Running to terminal, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("shraga.phase.duration",
		metric.WithDescription("Worker/verifier/summarizer phase duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("shraga.llm.tokens",
		metric.WithDescription("Total tokens consumed across all LLM CLI phases"),
	)
	if err != nil {
		return nil, err
	}

	m.WorkerIterations, err = meter.Int64Counter("shraga.task.worker_iterations",
		metric.WithDescription("Worker/verifier iterations executed across all tasks"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("shraga.task.completed",
		metric.WithDescription("Tasks that reached Completed"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("shraga.task.failed",
		metric.WithDescription("Tasks that reached Failed"),
	)
	if err != nil {
		return nil, err
	}

	m.OnboardingStarted, err = meter.Int64Counter("shraga.onboarding.started",
		metric.WithDescription("New-user onboarding state machines started"),
	)
	if err != nil {
		return nil, err
	}

	m.SweepRowsAffected, err = meter.Int64Counter("shraga.sweep.rows_affected",
		metric.WithDescription("Rows transitioned by a periodic cleanup sweep"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
