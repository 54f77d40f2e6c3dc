// Package doctor runs startup diagnostics for any coordination-plane
// daemon: directory-store reachability, LLM CLI presence, sync-root
// discoverability, VERSION file readability, and home-dir writability
// (SPEC_FULL §C.6). Exposed to operators via `adminctl doctor`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/shraga/internal/syncmap"
)

// CheckResult is the outcome of one diagnostic check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Diagnosis is the full output of a doctor run.
type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

// SystemInfo describes the host the daemon is running on.
type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Options configures which checks Run performs.
type Options struct {
	HomeDir        string
	DataverseURL   string
	LLMCLIPath     string // defaults to "claude" when empty
	VersionFile    string // defaults to "VERSION" in the working directory
	CheckSyncRoot  bool
}

// Run executes all diagnostic checks and returns their combined result.
func Run(ctx context.Context, opts Options, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	d.Results = append(d.Results,
		checkHomeDirWritable(opts),
		checkVersionFile(opts),
		checkLLMCLI(opts),
		checkDirectoryReachable(ctx, opts),
	)
	if opts.CheckSyncRoot {
		d.Results = append(d.Results, checkSyncRoot())
	}
	return d
}

func checkHomeDirWritable(opts Options) CheckResult {
	if opts.HomeDir == "" {
		return CheckResult{Name: "HomeDir", Status: "SKIP", Message: "home directory not configured"}
	}
	testFile := filepath.Join(opts.HomeDir, ".shraga_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "HomeDir", Status: "FAIL", Message: fmt.Sprintf("home dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "HomeDir", Status: "PASS", Message: fmt.Sprintf("%s is writable", opts.HomeDir)}
}

func checkVersionFile(opts Options) CheckResult {
	path := opts.VersionFile
	if path == "" {
		path = "VERSION"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{Name: "Version", Status: "WARN", Message: fmt.Sprintf("could not read %s: %v", path, err)}
	}
	return CheckResult{Name: "Version", Status: "PASS", Message: "VERSION readable", Detail: string(data)}
}

func checkLLMCLI(opts Options) CheckResult {
	bin := opts.LLMCLIPath
	if bin == "" {
		bin = "claude"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return CheckResult{Name: "LLM CLI", Status: "FAIL", Message: fmt.Sprintf("%s not found on PATH: %v", bin, err)}
	}
	return CheckResult{Name: "LLM CLI", Status: "PASS", Message: fmt.Sprintf("%s found", bin), Detail: path}
}

func checkDirectoryReachable(ctx context.Context, opts Options) CheckResult {
	if opts.DataverseURL == "" {
		return CheckResult{Name: "Directory Store", Status: "SKIP", Message: "DATAVERSE_URL not configured"}
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, opts.DataverseURL, nil)
	if err != nil {
		return CheckResult{Name: "Directory Store", Status: "FAIL", Message: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{Name: "Directory Store", Status: "FAIL", Message: fmt.Sprintf("unreachable: %v", err)}
	}
	defer resp.Body.Close()
	return CheckResult{
		Name:    "Directory Store",
		Status:  "PASS",
		Message: fmt.Sprintf("%s reachable", opts.DataverseURL),
		Detail:  fmt.Sprintf("status=%d", resp.StatusCode),
	}
}

func checkSyncRoot() CheckResult {
	root, err := syncmap.FindSyncRoot(false)
	if err != nil {
		return CheckResult{Name: "Sync Root", Status: "WARN", Message: fmt.Sprintf("sync root not found: %v", err)}
	}
	return CheckResult{Name: "Sync Root", Status: "PASS", Message: "sync root discovered", Detail: root}
}

// CheckConfigValidated verifies a daemon config object loaded without error;
// a thin wrapper so cmd/adminctl can surface config-load failures uniformly.
func CheckConfigValidated(name string, err error) CheckResult {
	if err != nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: fmt.Sprintf("%s config invalid: %v", name, err)}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("%s config loaded", name)}
}
