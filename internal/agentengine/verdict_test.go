package agentengine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseVerdict_MissingFile(t *testing.T) {
	v := ParseVerdict(t.TempDir())
	if v.Approved {
		t.Fatal("expected not approved")
	}
	if v.Feedback == "" {
		t.Fatal("expected diagnostic feedback")
	}
}

func TestParseVerdict_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "VERDICT.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write VERDICT.json: %v", err)
	}
	v := ParseVerdict(dir)
	if v.Approved {
		t.Fatal("expected not approved for invalid JSON")
	}
}

func TestParseVerdict_Approved(t *testing.T) {
	dir := t.TempDir()
	content := `{"approved": true, "feedback": "looks good", "criteria_met": ["a", "b"]}`
	if err := os.WriteFile(filepath.Join(dir, "VERDICT.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write VERDICT.json: %v", err)
	}
	v := ParseVerdict(dir)
	if !v.Approved {
		t.Fatal("expected approved")
	}
	if len(v.CriteriaMet) != 2 {
		t.Fatalf("expected 2 criteria met, got %d", len(v.CriteriaMet))
	}
}

func TestReadOrFallbackSummary_Missing(t *testing.T) {
	got := ReadOrFallbackSummary(t.TempDir(), "max iterations reached")
	if got == "" {
		t.Fatal("expected fallback content")
	}
}

func TestReadOrFallbackSummary_Present(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "SUMMARY.md"), []byte("# Done\n- all good\n"), 0o644); err != nil {
		t.Fatalf("write SUMMARY.md: %v", err)
	}
	got := ReadOrFallbackSummary(dir, "unused")
	if got != "# Done\n- all good\n" {
		t.Fatalf("unexpected summary: %s", got)
	}
}
