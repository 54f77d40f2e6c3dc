package agentengine

import "testing"

func TestExtractPhaseStats_ZeroValueDefaults(t *testing.T) {
	stats := extractPhaseStats(ResultChunk{})
	if stats.CostUSD != 0 || stats.NumTurns != 0 || stats.SessionID != "" {
		t.Fatalf("expected zero-value stats, got %+v", stats)
	}
	if stats.ModelUsage == nil {
		t.Fatal("expected non-nil ModelUsage map")
	}
}

func TestExtractPhaseStats_PopulatesFromChunk(t *testing.T) {
	chunk := ResultChunk{
		IsError:       false,
		Result:        "done",
		SessionID:     "sess-1",
		TotalCostUSD:  0.42,
		DurationMs:    1000,
		DurationAPIMs: 800,
		NumTurns:      3,
		Usage: Usage{
			InputTokens:          100,
			OutputTokens:         50,
			CacheReadInputTokens: 10,
		},
		ModelUsage: map[string]RawModelUse{
			"claude-opus": {CostUSD: 0.42, InputTokens: 100, OutputTokens: 50},
		},
	}
	stats := extractPhaseStats(chunk)
	if stats.SessionID != "sess-1" {
		t.Fatalf("expected sess-1, got %s", stats.SessionID)
	}
	if stats.Tokens.Input != 100 || stats.Tokens.Output != 50 {
		t.Fatalf("unexpected tokens: %+v", stats.Tokens)
	}
	if stats.ModelUsage["claude-opus"].CostUSD != 0.42 {
		t.Fatalf("unexpected model usage: %+v", stats.ModelUsage)
	}
}

func TestMergePhaseStats_AccumulatesAcrossPhases(t *testing.T) {
	acc := &AccumulatedStats{}
	phase1 := extractPhaseStats(ResultChunk{TotalCostUSD: 0.1, NumTurns: 2, Usage: Usage{InputTokens: 10}})
	phase2 := extractPhaseStats(ResultChunk{TotalCostUSD: 0.2, NumTurns: 3, Usage: Usage{InputTokens: 20}})

	mergePhaseStats(acc, phase1)
	mergePhaseStats(acc, phase2)

	if acc.TotalCostUSD != 0.1+0.2 {
		t.Fatalf("expected accumulated cost 0.3, got %f", acc.TotalCostUSD)
	}
	if acc.TotalTurns != 5 {
		t.Fatalf("expected 5 turns, got %d", acc.TotalTurns)
	}
	if acc.Tokens.Input != 30 {
		t.Fatalf("expected 30 input tokens, got %d", acc.Tokens.Input)
	}
}

func TestMergePhaseStats_MergesModelUsagePerModel(t *testing.T) {
	acc := &AccumulatedStats{}
	phase1 := extractPhaseStats(ResultChunk{ModelUsage: map[string]RawModelUse{"m1": {CostUSD: 1, InputTokens: 10}}})
	phase2 := extractPhaseStats(ResultChunk{ModelUsage: map[string]RawModelUse{"m1": {CostUSD: 2, InputTokens: 20}, "m2": {CostUSD: 5}}})

	mergePhaseStats(acc, phase1)
	mergePhaseStats(acc, phase2)

	if acc.ModelUsage["m1"].CostUSD != 3 {
		t.Fatalf("expected m1 cost 3, got %f", acc.ModelUsage["m1"].CostUSD)
	}
	if acc.ModelUsage["m1"].InputTokens != 30 {
		t.Fatalf("expected m1 input tokens 30, got %d", acc.ModelUsage["m1"].InputTokens)
	}
	if _, ok := acc.ModelUsage["m2"]; !ok {
		t.Fatal("expected m2 entry to be present")
	}
}
