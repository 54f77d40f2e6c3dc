package worker

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SelfUpdater checks the local working copy against a remote branch's
// VERSION file and, on mismatch, pulls and reports that the process
// should exit so an external supervisor restarts it (§4.5 self-update).
type SelfUpdater struct {
	RepoPath     string
	UpdateBranch string
	FetchTimeout time.Duration
	PullTimeout  time.Duration
}

// NewSelfUpdater builds a SelfUpdater with the given repo path and branch.
func NewSelfUpdater(repoPath, updateBranch string) *SelfUpdater {
	return &SelfUpdater{
		RepoPath:     repoPath,
		UpdateBranch: updateBranch,
		FetchTimeout: 30 * time.Second,
		PullTimeout:  60 * time.Second,
	}
}

// LocalVersion reads the working copy's VERSION file, returning "unknown"
// if it cannot be read.
func (s *SelfUpdater) LocalVersion() string {
	data, err := os.ReadFile(filepath.Join(s.RepoPath, "VERSION"))
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}

// CheckForUpdate fetches the remote and compares its VERSION file against
// currentVersion. It returns true only when the remote VERSION differs; a
// transient fetch failure is treated as no-update rather than an error.
func (s *SelfUpdater) CheckForUpdate(ctx context.Context, currentVersion string) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	defer cancel()
	if err := s.runGit(fetchCtx, "fetch"); err != nil {
		return false
	}

	showCtx, cancel2 := context.WithTimeout(ctx, 10*time.Second)
	defer cancel2()
	out, err := s.runGitOutput(showCtx, "show", s.UpdateBranch+":VERSION")
	if err != nil {
		return false
	}
	remoteVersion := strings.TrimSpace(out)
	return remoteVersion != "" && remoteVersion != currentVersion
}

// ApplyUpdate pulls the latest code onto the working copy. The caller is
// expected to exit the process on success so a supervisor restarts it
// with the updated binary/scripts.
func (s *SelfUpdater) ApplyUpdate(ctx context.Context) error {
	pullCtx, cancel := context.WithTimeout(ctx, s.PullTimeout)
	defer cancel()
	return s.runGit(pullCtx, "pull")
}

func (s *SelfUpdater) runGit(ctx context.Context, args ...string) error {
	_, err := s.runGitOutput(ctx, args...)
	return err
}

func (s *SelfUpdater) runGitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.RepoPath
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}
