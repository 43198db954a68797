// Package agent runs the external coding agent as a bounded subprocess.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/opendataloader-project/beneissue/internal/proc"
)

// ErrNotFound is returned when the agent binary is not on PATH.
var ErrNotFound = errors.New("agent executable not found")

// Tool sets.
var (
	ReadOnlyTools  = []string{"Read", "Glob", "Grep"}
	ReadWriteTools = []string{"Read", "Glob", "Grep", "Edit", "Write", "Bash"}
)

// Request describes one agent invocation.
type Request struct {
	Prompt       string
	Dir          string
	AllowedTools []string
	Timeout      time.Duration
	Model        string
	OutputFormat string // passed as --output-format when set
}

// Result holds what the agent produced. A timeout is reported through
// TimedOut, not as an error.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	TimedOut   bool
	DurationMs int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner with os/exec. The agent and anything
// it spawns are killed together when ctx ends.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := proc.Command(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			return "", "", -1, fmt.Errorf("%s: %w", name, ErrNotFound)
		default:
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner invokes the agent command with a prompt and tool allow-list.
type Runner struct {
	cmd     CommandRunner
	command []string
	apiKey  string
}

// NewRunner creates a Runner. command is the argv prefix, e.g.
// ["npx", "-y", "@anthropic-ai/claude-code"].
func NewRunner(cmd CommandRunner, command []string) *Runner {
	return &Runner{
		cmd:     cmd,
		command: append([]string{}, command...),
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
	}
}

// Binary returns the executable name.
func (r *Runner) Binary() string {
	if len(r.command) == 0 {
		return ""
	}
	return r.command[0]
}

// Args builds the argv (without the binary) for req.
func (r *Runner) Args(req Request) []string {
	args := append([]string{}, r.command[1:]...)
	args = append(args, "-p", req.Prompt)
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.OutputFormat != "" {
		args = append(args, "--output-format", req.OutputFormat)
	}
	return args
}

// Run executes the agent in req.Dir and waits at most req.Timeout.
// It returns an error only when the process could not be started;
// ErrNotFound is wrapped when the binary is missing.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if len(r.command) == 0 {
		return nil, fmt.Errorf("agent command not configured")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := append(os.Environ(), "ANTHROPIC_API_KEY="+r.apiKey)

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(ctx, req.Dir, env, r.command[0], r.Args(req)...)
	duration := int(time.Since(start).Milliseconds())

	if ctx.Err() == context.DeadlineExceeded {
		return &Result{
			ExitCode:   -1,
			Stdout:     stdout,
			Stderr:     stderr,
			TimedOut:   true,
			DurationMs: duration,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		ExitCode:   exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		DurationMs: duration,
	}, nil
}
