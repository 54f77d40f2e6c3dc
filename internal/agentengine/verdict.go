package agentengine

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Verdict is the schema the verifier phase's VERDICT.json file must match
// (spec §4.6).
type Verdict struct {
	Approved         bool     `json:"approved"`
	Feedback         string   `json:"feedback"`
	TestingDone      string   `json:"testing_done"`
	Results          string   `json:"results"`
	CriteriaMet      []string `json:"criteria_met"`
	CriteriaFailed   []string `json:"criteria_failed"`
	ExpertComparison string   `json:"expert_comparison"`
}

// ParseVerdict reads VERDICT.json from sessionDir. A missing file or
// invalid JSON is reported as an unapproved Verdict carrying diagnostic
// feedback rather than an error, matching the original's "absence or
// invalid JSON => not-approved with diagnostic feedback" contract.
func ParseVerdict(sessionDir string) Verdict {
	path := filepath.Join(sessionDir, "VERDICT.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Verdict{Approved: false, Feedback: "Verifier did not create VERDICT.json file"}
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return Verdict{Approved: false, Feedback: "Invalid JSON in VERDICT.json: " + err.Error()}
	}
	return v
}

// ReadOrFallbackSummary reads SUMMARY.md from sessionDir, falling back to a
// minimal generated summary when the summarizer phase didn't produce one.
func ReadOrFallbackSummary(sessionDir, fallbackReason string) string {
	path := filepath.Join(sessionDir, "SUMMARY.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return "# Summary\n\n- " + fallbackReason + "\n"
	}
	return string(data)
}
