package bus

import "testing"

func TestEventTopics_Constants(t *testing.T) {
	topics := map[string]bool{
		TopicClaimWon:             true,
		TopicClaimLost:            true,
		TopicSweepExpiredOutbound: true,
		TopicSweepStalledTask:     true,
	}
	for name, present := range topics {
		if name == "" || !present {
			t.Fatalf("expected non-empty topic constant, got %q", name)
		}
	}
	if len(topics) != 4 {
		t.Fatalf("expected 4 unique topics, got %d", len(topics))
	}
}

func TestClaimEvent_Fields(t *testing.T) {
	ev := ClaimEvent{
		Daemon: "personal:alice@ex.com:p1",
		Table:  "conversations",
		RowID:  "conv-1",
		Won:    true,
	}
	if ev.Daemon == "" || ev.Table == "" || ev.RowID == "" {
		t.Fatalf("expected all ClaimEvent fields populated: %#v", ev)
	}
	if !ev.Won {
		t.Fatalf("expected Won=true")
	}

	lost := ClaimEvent{Daemon: "global", Table: "conversations", RowID: "conv-1", Won: false}
	if lost.Won {
		t.Fatalf("expected Won=false")
	}
}

func TestSweepEvent_Fields(t *testing.T) {
	ev := SweepEvent{Sweep: TopicSweepExpiredOutbound, Count: 3}
	if ev.Sweep == "" {
		t.Fatal("Sweep must not be empty")
	}
	if ev.Count != 3 {
		t.Fatalf("expected Count=3, got %d", ev.Count)
	}
}
