// Package agentengine executes one phase of the worker/verifier/summarizer
// loop (spec §4.6) by invoking the external LLM CLI as a subprocess in
// streaming JSON mode, parsing its newline-delimited event protocol, and
// normalizing the terminal "result" chunk into a PhaseStats record.
package agentengine

// ModelUsage is one model's per-phase cost/token breakdown, taken from the
// CLI's `modelUsage` map (exposes sub-agent fan-out).
type ModelUsage struct {
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
}

// TokenUsage is the `usage` block of a result chunk.
type TokenUsage struct {
	Input          int64 `json:"input"`
	Output         int64 `json:"output"`
	CacheRead      int64 `json:"cache_read"`
	CacheCreation  int64 `json:"cache_creation"`
}

// PhaseStats is extractPhaseStats's normalized view of one phase's result
// chunk. Every field defaults to its zero value rather than requiring
// callers to guard against missing JSON keys.
type PhaseStats struct {
	CostUSD       float64               `json:"cost_usd"`
	DurationMs    int64                 `json:"duration_ms"`
	DurationAPIMs int64                 `json:"duration_api_ms"`
	NumTurns      int64                 `json:"num_turns"`
	SessionID     string                `json:"session_id"`
	Tokens        TokenUsage            `json:"tokens"`
	ModelUsage    map[string]ModelUsage `json:"model_usage"`
	IsError       bool                  `json:"is_error"`
	Result        string                `json:"-"`
	Transcript    string                `json:"-"`
}

// AccumulatedStats totals PhaseStats across the worker/verifier/summarizer
// iterations of a single task (mergePhaseStats's accumulator).
type AccumulatedStats struct {
	TotalCostUSD      float64               `json:"total_cost_usd"`
	TotalDurationMs   int64                 `json:"total_duration_ms"`
	TotalAPIDuration  int64                 `json:"total_api_duration_ms"`
	TotalTurns        int64                 `json:"total_turns"`
	Tokens            TokenUsage            `json:"tokens"`
	ModelUsage        map[string]ModelUsage `json:"model_usage"`
}

// extractPhaseStats normalizes a decoded `result` chunk (or a flat
// `--output-format json` response) into a PhaseStats record.
func extractPhaseStats(chunk ResultChunk) PhaseStats {
	stats := PhaseStats{
		SessionID: chunk.SessionID,
		IsError:   chunk.IsError,
		Result:    chunk.Result,
		CostUSD:   chunk.TotalCostUSD,
		DurationMs:    chunk.DurationMs,
		DurationAPIMs: chunk.DurationAPIMs,
		NumTurns:      int64(chunk.NumTurns),
		Tokens: TokenUsage{
			Input:         chunk.Usage.InputTokens,
			Output:        chunk.Usage.OutputTokens,
			CacheRead:     chunk.Usage.CacheReadInputTokens,
			CacheCreation: chunk.Usage.CacheCreationInputTokens,
		},
		ModelUsage: make(map[string]ModelUsage, len(chunk.ModelUsage)),
	}
	for model, mu := range chunk.ModelUsage {
		stats.ModelUsage[model] = ModelUsage{
			CostUSD:      mu.CostUSD,
			InputTokens:  mu.InputTokens,
			OutputTokens: mu.OutputTokens,
		}
	}
	return stats
}

// MergeInto accumulates phase into accumulated, mutating it in place. It is
// the package's public entry point for callers outside agentengine (the
// worker's per-iteration loop) that need to fold each phase's PhaseStats
// into a task-level AccumulatedStats as it completes.
func MergeInto(accumulated *AccumulatedStats, phase PhaseStats) {
	mergePhaseStats(accumulated, phase)
}

// mergePhaseStats accumulates phase into accumulated, mutating and
// returning it, mirroring extract_phase_stats/merge_phase_stats's
// dict-accumulation semantics.
func mergePhaseStats(accumulated *AccumulatedStats, phase PhaseStats) *AccumulatedStats {
	if accumulated.ModelUsage == nil {
		accumulated.ModelUsage = make(map[string]ModelUsage)
	}
	accumulated.TotalCostUSD += phase.CostUSD
	accumulated.TotalDurationMs += phase.DurationMs
	accumulated.TotalAPIDuration += phase.DurationAPIMs
	accumulated.TotalTurns += phase.NumTurns

	accumulated.Tokens.Input += phase.Tokens.Input
	accumulated.Tokens.Output += phase.Tokens.Output
	accumulated.Tokens.CacheRead += phase.Tokens.CacheRead
	accumulated.Tokens.CacheCreation += phase.Tokens.CacheCreation

	for model, mu := range phase.ModelUsage {
		acc := accumulated.ModelUsage[model]
		acc.CostUSD += mu.CostUSD
		acc.InputTokens += mu.InputTokens
		acc.OutputTokens += mu.OutputTokens
		accumulated.ModelUsage[model] = acc
	}
	return accumulated
}
