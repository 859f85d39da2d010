// Package verify runs the project's test command and reduces its outcome to
// success or failure plus diagnostic text.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EnvironmentPrefix starts the Detail of every result caused by the
// environment rather than by the tests themselves.
const EnvironmentPrefix = "environment: "

// DefaultCommand is used when no test command is configured.
const DefaultCommand = "pytest"

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner with sh -c.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	configureProcess(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
		}
		return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

// Result is the normalized outcome of one verification.
type Result struct {
	Succeeded bool `json:"succeeded"`
	// Detail is the diagnostic text: the failing output, or a message
	// starting with EnvironmentPrefix.
	Detail  string `json:"detail"`
	Summary string `json:"summary"`
	// Environment is set when the command could not run at all. Such
	// failures are not worth retrying.
	Environment bool          `json:"environment"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Command     string        `json:"command"`
}

// Options configures a Verifier.
type Options struct {
	Command string
	Parser  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Verifier runs the test command in the project root.
type Verifier struct {
	cmd     CommandRunner
	command string
	parser  Parser
	timeout time.Duration
	log     *zap.Logger
}

// New creates a Verifier. Unknown parser names fall back to generic.
func New(cmd CommandRunner, opts Options) *Verifier {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parser == "" {
		opts.Parser = DefaultParserFor(opts.Command)
	}
	p, ok := LookupParser(opts.Parser)
	if !ok {
		p = &GenericParser{}
	}
	return &Verifier{
		cmd:     cmd,
		command: opts.Command,
		parser:  p,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
}

// Command returns the configured test command.
func (v *Verifier) Command() string {
	return v.command
}

// Verify runs the test command once. It never returns an error: every
// outcome, including a runner that cannot start, is described by Result.
func (v *Verifier) Verify(ctx context.Context, root string) Result {
	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := v.cmd.Run(runCtx, root, v.command)
	res := Result{ExitCode: exitCode, Duration: time.Since(start), Command: v.command}

	switch {
	case err != nil && ctx.Err() != nil:
		res.Environment = true
		res.Summary = "cancelled"
		res.Detail = EnvironmentPrefix + "test run cancelled: " + ctx.Err().Error()
	case err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		// A hang is most likely caused by the change under test.
		res.Summary = fmt.Sprintf("timeout after %s", v.timeout)
		res.Detail = fmt.Sprintf("tests timed out after %s\n%s", v.timeout, tail(combine(stdout, stderr)))
	case err != nil:
		res.Environment = true
		res.Summary = "could not run test command"
		res.Detail = fmt.Sprintf("%scould not run test command %q: %v", EnvironmentPrefix, v.command, err)
	case exitCode == 126 || exitCode == 127:
		res.Environment = true
		res.Summary = fmt.Sprintf("test command not runnable (exit %d)", exitCode)
		res.Detail = fmt.Sprintf("%stest command %q not runnable (exit %d): %s",
			EnvironmentPrefix, v.command, exitCode, strings.TrimSpace(tail(combine(stdout, stderr))))
	default:
		parsed := v.parser.Parse(stdout, stderr, exitCode)
		res.Succeeded = exitCode == 0 && parsed.Passed
		res.Summary = parsed.Summary
		res.Detail = parsed.Detail
		if res.Succeeded && res.Detail == "" {
			res.Detail = "All tests passed"
		}
	}

	v.log.Info("verification finished",
		zap.String("command", v.command),
		zap.Bool("succeeded", res.Succeeded),
		zap.Bool("environment", res.Environment),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.String("summary", res.Summary))
	return res
}

// IsEnvironmentDetail reports whether a detail string marks an environment failure.
func IsEnvironmentDetail(detail string) bool {
	return strings.HasPrefix(detail, EnvironmentPrefix)
}
