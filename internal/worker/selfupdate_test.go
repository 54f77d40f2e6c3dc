package worker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelfUpdater_LocalVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "VERSION"), []byte("1.2.3\n"), 0o644); err != nil {
		t.Fatalf("write VERSION: %v", err)
	}
	s := NewSelfUpdater(dir, "main")
	if got := s.LocalVersion(); got != "1.2.3" {
		t.Fatalf("expected 1.2.3, got %q", got)
	}
}

func TestSelfUpdater_LocalVersion_MissingFile(t *testing.T) {
	s := NewSelfUpdater(t.TempDir(), "main")
	if got := s.LocalVersion(); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
