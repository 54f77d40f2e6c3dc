package syncmap

import (
	"path/filepath"
	"testing"
)

func TestIsFilePath(t *testing.T) {
	cases := map[string]bool{
		"C:/OneDrive/Sessions/task1/result.md": true,
		"C:/OneDrive/Sessions/task1":           false,
		"C:/OneDrive/Sessions/.gitignore":      false,
		"C:/OneDrive/Sessions/.config.json":    true,
	}
	for path, want := range cases {
		if got := IsFilePath(path); got != want {
			t.Errorf("IsFilePath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFindSyncRoot_ExplicitOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSIONS_DIR", dir)
	t.Setenv("ONEDRIVE_COMMERCIAL", "")
	t.Setenv("ONEDRIVE", "")

	root, err := FindSyncRoot(true)
	if err != nil {
		t.Fatalf("FindSyncRoot: %v", err)
	}
	if root != dir {
		t.Fatalf("expected %s, got %s", dir, root)
	}
}

func TestFindSyncRoot_NotFound(t *testing.T) {
	t.Setenv("SESSIONS_DIR", "")
	t.Setenv("ONEDRIVE_COMMERCIAL", "")
	t.Setenv("ONEDRIVE", filepath.Join(t.TempDir(), "does-not-exist"))

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	if _, err := FindSyncRoot(true); err == nil {
		t.Fatal("expected ErrSyncRootNotFound")
	}
}

func TestLocalToWebURL_ViewInBrowser(t *testing.T) {
	mapping := SyncMapping{
		MountPoint:   "/home/user/OneDrive - Contoso",
		URLNamespace: "https://contoso-my.sharepoint.com/personal/user_contoso_com/Documents",
	}
	local := "/home/user/OneDrive - Contoso/Sessions/task1/result.md"
	got := LocalToWebURL(mapping, local, true)
	want := "https://contoso-my.sharepoint.com/personal/user_contoso_com/Documents/Sessions/task1/result.md"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLocalToWebURL_OutsideMount(t *testing.T) {
	mapping := SyncMapping{
		MountPoint:   "/home/user/OneDrive - Contoso",
		URLNamespace: "https://contoso-my.sharepoint.com/personal/user_contoso_com/Documents",
	}
	if got := LocalToWebURL(mapping, "/tmp/elsewhere/file.md", true); got != "" {
		t.Fatalf("expected empty string for path outside mount, got %s", got)
	}
}

func TestWebToLocalPath_RoundTrips(t *testing.T) {
	mapping := SyncMapping{
		MountPoint:   "/home/user/OneDrive - Contoso",
		URLNamespace: "https://contoso-my.sharepoint.com/personal/user_contoso_com/Documents",
	}
	url := "https://contoso-my.sharepoint.com/personal/user_contoso_com/Documents/Sessions/task1/result.md"
	got := WebToLocalPath(mapping, url)
	want := filepath.Join(mapping.MountPoint, "Sessions", "task1", "result.md")
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
