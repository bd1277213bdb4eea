// Package pipeline coordinates one build-and-publish run: provision an
// environment, execute the stage sequence, collect artifacts, acquire the
// deployment gate, publish. Data flows strictly forward; every failure is
// terminal for its run.
package pipeline

import (
	"fmt"
	"time"

	"github.com/AlecRosenbaum/GearGen/artifact"
	"github.com/AlecRosenbaum/GearGen/publish"
	"github.com/AlecRosenbaum/GearGen/trigger"
)

// Status represents where a run is in its lifecycle. Succeeded and Failed
// are terminal.
type Status string

const (
	// StatusPending indicates the run is created but not yet started.
	StatusPending Status = "PENDING"

	// StatusProvisioning indicates the build environment is being built.
	StatusProvisioning Status = "PROVISIONING"

	// StatusExecuting indicates stages are running.
	StatusExecuting Status = "EXECUTING"

	// StatusCollecting indicates artifacts are being gathered.
	StatusCollecting Status = "COLLECTING"

	// StatusAwaitingGate indicates the run is queued for the deployment
	// gate.
	StatusAwaitingGate Status = "AWAITING_GATE"

	// StatusPublishing indicates artifacts are being pushed to the
	// target.
	StatusPublishing Status = "PUBLISHING"

	// StatusSucceeded indicates the run completed and published.
	StatusSucceeded Status = "SUCCEEDED"

	// StatusFailed indicates the run ended with an error.
	StatusFailed Status = "FAILED"
)

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Stage is one named unit of work: an opaque shell command with a working
// directory and environment overrides. Immutable once defined.
type Stage struct {
	// Name identifies the stage in results and logs.
	Name string `json:"name" yaml:"name"`

	// Command is the shell command to run. Its semantics are opaque to
	// the pipeline; only the exit status is interpreted.
	Command string `json:"command" yaml:"command"`

	// Dir is the working directory relative to the environment
	// workspace. Empty means the workspace root.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Env overrides environment variables for this stage; explicit
	// entries win over the ambient environment on key collision.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// StageResult is the outcome of running one stage. Results append in
// execution order and are never mutated; result i exists only if stages
// 0..i-1 all succeeded.
type StageResult struct {
	// Stage is the name of the stage that ran.
	Stage string

	// ExitCode is the command's exit status.
	ExitCode int

	// Output is the combined stdout/stderr captured from the command.
	Output string

	// Duration is how long the stage ran.
	Duration time.Duration
}

// Success reports whether the stage exited zero.
func (r StageResult) Success() bool {
	return r.ExitCode == 0
}

// StageError reports the first stage whose command exited non-zero.
type StageError struct {
	// Stage is the failing stage's name.
	Stage string

	// ExitCode is the non-zero exit status.
	ExitCode int

	// Output is the combined output captured from the failing command.
	Output string
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q exited %d", e.Stage, e.ExitCode)
}

// Run is one execution of the pipeline, owned exclusively by the
// Coordinator that created it.
type Run struct {
	// ID uniquely identifies the run.
	ID string

	// Event is the trigger that started the run.
	Event trigger.Event

	// Status is the run's current lifecycle position.
	Status Status

	// Stages holds results in execution order; on failure it is the
	// full prefix obtained, ending with the failing stage.
	Stages []StageResult

	// Artifacts is the collected artifact set, nil until collection
	// succeeds.
	Artifacts *artifact.Set

	// Deployment records the publish outcome, nil unless the run
	// succeeded.
	Deployment *publish.Deployment

	// Err is the originating error for a Failed run, nil otherwise.
	Err error

	// StartedAt and CompletedAt bound the run's execution.
	StartedAt   time.Time
	CompletedAt time.Time
}
