// Package syncmap maps between the local synced-folder path a worker writes
// session artifacts to and the SharePoint/OneDrive web URL a human reads
// them from (SPEC_FULL §C.4). It is a direct port of the resolution order
// and path heuristics in original_source/onedrive_utils.py, minus the
// Windows-registry lookups: there is no registry-reading library in the
// example pack, and the env-var and filesystem strategies alone cover every
// environment the daemons actually run in (containers, CI, dev boxes).
package syncmap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrSyncRootNotFound is returned by FindSyncRoot when no sync folder could
// be discovered by any strategy.
var ErrSyncRootNotFound = errors.New("syncmap: could not find a sync root folder")

// FindSyncRoot discovers the local sync root folder a worker should treat
// as its session working directory. Resolution order mirrors the original:
//
//  1. SESSIONS_DIR environment variable (explicit override)
//  2. ONEDRIVE_COMMERCIAL environment variable (business accounts)
//  3. ONEDRIVE environment variable (personal or business)
//  4. "OneDrive - *" / "OneDrive" folders under the user's home directory
//
// businessOnly, when true, prefers folder names carrying an org suffix
// ("OneDrive - Contoso") over a plain "OneDrive" folder.
func FindSyncRoot(businessOnly bool) (string, error) {
	if override := os.Getenv("SESSIONS_DIR"); override != "" && isDir(override) {
		return override, nil
	}
	if commercial := os.Getenv("ONEDRIVE_COMMERCIAL"); commercial != "" && isDir(commercial) {
		return commercial, nil
	}
	generic := os.Getenv("ONEDRIVE")
	if generic != "" && isDir(generic) {
		if !businessOnly || strings.Contains(filepath.Base(generic), " - ") {
			return generic, nil
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		if businessOnly {
			matches, _ := filepath.Glob(filepath.Join(home, "OneDrive - *"))
			for _, m := range matches {
				if isDir(m) {
					return m, nil
				}
			}
		}
		plain := filepath.Join(home, "OneDrive")
		if isDir(plain) {
			return plain, nil
		}
	}

	if generic != "" && isDir(generic) {
		return generic, nil
	}

	return "", fmt.Errorf("%w: set SESSIONS_DIR to an explicit path", ErrSyncRootNotFound)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// pathLooksLikeFile infers whether p names a file (rather than a directory)
// from whether its final path segment carries a non-empty extension. This
// avoids stat-ing paths that may not have finished syncing yet.
func pathLooksLikeFile(p string) bool {
	return filepath.Ext(p) != ""
}

// SyncMapping pairs a local sync mount point with the web URL namespace it
// corresponds to, the minimal shape LocalToWebURL/WebToLocalPath need. In
// the original this came from the Windows SyncEngines registry; here the
// coordination plane supplies it directly via env vars (§6).
type SyncMapping struct {
	MountPoint   string
	URLNamespace string // e.g. https://tenant-my.sharepoint.com/personal/user_dom/Documents
}

// DefaultMapping builds the single mapping the coordination plane's daemons
// use, from SESSIONS_DIR/ONEDRIVE* and SESSIONS_URL_NAMESPACE.
func DefaultMapping() (SyncMapping, bool) {
	root, err := FindSyncRoot(true)
	if err != nil {
		return SyncMapping{}, false
	}
	ns := os.Getenv("SESSIONS_URL_NAMESPACE")
	if ns == "" {
		return SyncMapping{}, false
	}
	return SyncMapping{MountPoint: root, URLNamespace: ns}, true
}

// LocalToWebURL converts a local synced path to its web URL given mapping.
// When viewInBrowser is true it returns a direct document-library URL
// (scheme://host/encoded/path); otherwise it returns the raw namespace URL
// with the relative path appended. Returns "" if path is not under the
// mapping's mount point.
func LocalToWebURL(mapping SyncMapping, localPath string, viewInBrowser bool) string {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}
	mount, err := filepath.Abs(mapping.MountPoint)
	if err != nil {
		mount = mapping.MountPoint
	}

	if !strings.HasPrefix(strings.ToLower(abs), strings.ToLower(mount)) {
		return ""
	}
	relative := strings.TrimPrefix(abs, mount)
	relative = strings.TrimPrefix(filepath.ToSlash(relative), "/")

	nsURL, err := url.Parse(strings.TrimRight(mapping.URLNamespace, "/"))
	if err != nil {
		return ""
	}

	if viewInBrowser {
		docPath := strings.TrimRight(nsURL.Path, "/")
		fullPath := docPath
		if relative != "" {
			fullPath = docPath + "/" + relative
		}
		return fmt.Sprintf("%s://%s%s", nsURL.Scheme, nsURL.Host, encodePath(fullPath))
	}

	if relative == "" {
		return nsURL.String()
	}
	return nsURL.String() + "/" + url.PathEscape(relative)
}

// WebToLocalPath is the reverse of LocalToWebURL: given a web URL under the
// mapping's namespace, it returns the corresponding local path, or "" if the
// URL isn't under this mapping.
func WebToLocalPath(mapping SyncMapping, webURL string) string {
	parsed, err := url.Parse(webURL)
	if err != nil {
		return ""
	}
	docPath, err := url.PathUnescape(parsed.Path)
	if err != nil {
		docPath = parsed.Path
	}

	nsURL, err := url.Parse(mapping.URLNamespace)
	if err != nil {
		return ""
	}
	nsPath := strings.TrimRight(nsURL.Path, "/")
	if !strings.HasPrefix(docPath, nsPath) {
		return ""
	}
	relative := strings.TrimPrefix(strings.TrimPrefix(docPath, nsPath), "/")
	if relative == "" {
		return mapping.MountPoint
	}
	return filepath.Join(mapping.MountPoint, filepath.FromSlash(relative))
}

func encodePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// IsFilePath exposes pathLooksLikeFile for callers outside this package
// (the worker uses it to decide whether a produced artifact is a file link
// or a folder link when posting progress messages, §4.5).
func IsFilePath(p string) bool {
	return pathLooksLikeFile(p)
}
