package agentengine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/basket/shraga/internal/bus"
)

// OutputFormat selects the CLI's `--output-format` flag.
type OutputFormat string

const (
	OutputFormatJSON       OutputFormat = "json"
	OutputFormatStreamJSON OutputFormat = "stream-json"
)

// RunOptions configures one subprocess invocation of the LLM CLI.
type RunOptions struct {
	CLIPath        string
	Prompt         string
	WorkDir        string
	SystemPromptFile string
	ResumeSessionID  string
	Model            string
	OutputFormat     OutputFormat
	Timeout          time.Duration
	Bus              *bus.Bus
	PhaseName        string
	TaskID           string
}

// Runner invokes the LLM CLI and parses its output.
type Runner struct{}

// NewRunner returns a Runner. The type exists (rather than a bare function)
// so call sites read the same way cmd/worker's other collaborators do.
func NewRunner() *Runner { return &Runner{} }

// Run invokes the CLI once, blocking until a result chunk is parsed, the
// process exits, or opts.Timeout elapses (hard-killed on expiry). It
// returns the normalized PhaseStats for the phase.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (PhaseStats, error) {
	cli := opts.CLIPath
	if cli == "" {
		cli = "claude"
	}
	format := opts.OutputFormat
	if format == "" {
		format = OutputFormatStreamJSON
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 3600 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-p", "--output-format", string(format), "--dangerously-skip-permissions"}
	if opts.SystemPromptFile != "" {
		args = append(args, "--system-prompt-file", opts.SystemPromptFile)
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	streaming := format == OutputFormatStreamJSON
	if streaming {
		args = append(args, "--verbose", "--include-partial-messages")
	}

	cmd := exec.CommandContext(runCtx, cli, args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = stripClaudeCode(os.Environ())
	cmd.Stdin = strings.NewReader(opts.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return PhaseStats{}, fmt.Errorf("agentengine: stdout pipe: %w", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return PhaseStats{}, fmt.Errorf("agentengine: start %s: %w", cli, err)
	}

	if opts.Bus != nil {
		opts.Bus.Publish(bus.TopicPhaseStarted, bus.PhaseTextEvent{TaskID: opts.TaskID, Phase: opts.PhaseName})
	}

	var (
		result     *ResultChunk
		lastLine   string
		transcript strings.Builder
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lastLine = line

		var chunk Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		switch chunk.Type {
		case "system":
			// init event; nothing to do.
		case "assistant":
			for _, item := range chunk.Message.Content {
				switch item.Type {
				case "tool_use":
					fmt.Fprintf(&transcript, "**tool_use** `%s`: %s\n\n", item.Name, item.Input)
					if opts.Bus != nil {
						opts.Bus.Publish(bus.TopicPhaseToolUse, bus.PhaseToolUseEvent{TaskID: opts.TaskID, Phase: opts.PhaseName, Name: item.Name, Input: item.Input})
					}
				case "text":
					if item.Text != "" {
						transcript.WriteString(item.Text)
						transcript.WriteString("\n\n")
						if opts.Bus != nil {
							opts.Bus.Publish(bus.TopicPhaseText, bus.PhaseTextEvent{TaskID: opts.TaskID, Phase: opts.PhaseName, Text: item.Text})
						}
					}
				}
			}
		case "result":
			rc := chunk.ResultChunk
			result = &rc
		}
		if result != nil {
			break
		}
	}

	waitErr := cmd.Wait()

	if result == nil {
		// Fallback: the process exited without a parseable result chunk on
		// its own line; try the last non-empty line as a flat JSON blob
		// (the --output-format json shape).
		if lastLine != "" {
			var rc ResultChunk
			if err := json.Unmarshal([]byte(lastLine), &rc); err == nil {
				result = &rc
			}
		}
	}

	if opts.Bus != nil {
		opts.Bus.Publish(bus.TopicPhaseFinished, bus.PhaseTextEvent{TaskID: opts.TaskID, Phase: opts.PhaseName})
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return PhaseStats{}, fmt.Errorf("agentengine: phase %s timed out after %s", opts.PhaseName, timeout)
	}

	if result == nil {
		if waitErr != nil {
			return PhaseStats{}, fmt.Errorf("agentengine: %s exited without a result chunk: %w: %s", cli, waitErr, stderrBuf.String())
		}
		return PhaseStats{}, fmt.Errorf("agentengine: %s produced no parseable result chunk", cli)
	}

	stats := extractPhaseStats(*result)
	stats.Transcript = transcript.String()
	if waitErr != nil && !stats.IsError {
		stats.IsError = true
	}
	return stats, nil
}

// stripClaudeCode removes CLAUDECODE from env so the spawned CLI does not
// detect a nested session (spec §5).
func stripClaudeCode(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
