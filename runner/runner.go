// Package runner provides the command-execution capability boundary for the
// pipeline. Everything that runs commands — stage execution, environment
// provisioning — does so through the Runner interface, so it can be tested
// against a scripted in-memory implementation instead of real processes.
package runner

import (
	"context"
	"time"
)

// Command is one opaque command to execute: an argv vector, a working
// directory, and environment-variable overrides merged over the ambient
// environment (overrides win on key collision).
type Command struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

// Result holds the captured output and exit status of one command.
// A non-zero ExitCode is not an error at this layer; errors are reserved
// for failures to run the command at all.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands in some environment.
type Runner interface {
	// Run executes cmd and returns its result. The returned error is
	// non-nil only when the command could not be started or the context
	// was cancelled; a command that ran and exited non-zero yields a nil
	// error and a Result carrying the exit code.
	Run(ctx context.Context, cmd Command) (*Result, error)
}
