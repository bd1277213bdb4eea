package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Options configures local command execution behavior.
type Options struct {
	// RedirectToConsole mirrors command output to the parent's
	// stdout/stderr in addition to capturing it.
	RedirectToConsole bool

	// BaseEnv overrides the ambient environment commands start from.
	// Nil means os.Environ().
	BaseEnv []string

	// StdoutWriter and StderrWriter receive a copy of the respective
	// streams when set (for streaming logs while still capturing).
	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option is a function that modifies Options.
type Option func(*Options)

// WithConsoleRedirect mirrors output to the console.
func WithConsoleRedirect() Option {
	return func(o *Options) {
		o.RedirectToConsole = true
	}
}

// WithBaseEnv replaces the ambient environment commands start from.
func WithBaseEnv(env []string) Option {
	return func(o *Options) {
		o.BaseEnv = env
	}
}

// WithStdoutWriter adds a writer receiving a copy of stdout.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter adds a writer receiving a copy of stderr.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// Local runs commands as host subprocesses via os/exec.
type Local struct {
	options Options
}

// NewLocal creates a Local runner with the given options.
func NewLocal(opts ...Option) *Local {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	return &Local{options: options}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, cmd Command) (*Result, error) {
	return l.run(ctx, cmd, "")
}

// RunWithInput executes cmd with the given string fed to its stdin.
func (l *Local) RunWithInput(ctx context.Context, cmd Command, input string) (*Result, error) {
	return l.run(ctx, cmd, input)
}

func (l *Local) run(ctx context.Context, cmd Command, input string) (*Result, error) {
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	execCmd := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	l.setup(execCmd, cmd, input)
	stdoutBuf, stderrBuf, combinedBuf := l.capture(execCmd)

	start := time.Now()
	err := execCmd.Run()
	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		// Command ran and exited non-zero: a result, not an error.
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("command cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to start command %q: %w", cmd.Argv[0], err)
	}
}

// setup configures the exec.Cmd with working directory, environment, and input.
func (l *Local) setup(execCmd *exec.Cmd, cmd Command, input string) {
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}

	base := l.options.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	execCmd.Env = append([]string{}, base...)
	for k, v := range cmd.Env {
		execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if input != "" {
		execCmd.Stdin = strings.NewReader(input)
	}
}

// capture configures stdout and stderr writers for the command and returns
// the capture buffers.
func (l *Local) capture(execCmd *exec.Cmd) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	stdoutWriters := []io.Writer{&stdoutBuf, &combinedBuf}
	stderrWriters := []io.Writer{&stderrBuf, &combinedBuf}

	if l.options.RedirectToConsole {
		stdoutWriters = append(stdoutWriters, os.Stdout)
		stderrWriters = append(stderrWriters, os.Stderr)
	}
	if l.options.StdoutWriter != nil {
		stdoutWriters = append(stdoutWriters, l.options.StdoutWriter)
	}
	if l.options.StderrWriter != nil {
		stderrWriters = append(stderrWriters, l.options.StderrWriter)
	}

	execCmd.Stdout = io.MultiWriter(stdoutWriters...)
	execCmd.Stderr = io.MultiWriter(stderrWriters...)

	return &stdoutBuf, &stderrBuf, &combinedBuf
}
