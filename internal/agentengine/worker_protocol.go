package agentengine

import "strings"

// WorkerOutcome is the worker phase's parsed terminal signal.
type WorkerOutcome struct {
	Done   bool
	Reason string // set when !Done
}

// ParseWorkerStatus scans the worker phase's result text for a terminating
// "STATUS: done" or "STATUS: blocked - <reason>" line. Any other ending is
// treated as blocked with reason "Status unclear" (spec §4.6).
func ParseWorkerStatus(resultText string) WorkerOutcome {
	if strings.Contains(resultText, "STATUS: done") {
		return WorkerOutcome{Done: true}
	}
	if strings.Contains(resultText, "STATUS: blocked") {
		for _, line := range strings.Split(resultText, "\n") {
			if strings.Contains(line, "STATUS: blocked") {
				reason := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "STATUS: blocked"))
				reason = strings.TrimLeft(reason, "- ")
				if reason == "" {
					reason = "Status unclear"
				}
				return WorkerOutcome{Done: false, Reason: reason}
			}
		}
	}
	return WorkerOutcome{Done: false, Reason: "Status unclear"}
}
