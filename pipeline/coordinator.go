package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/AlecRosenbaum/GearGen/artifact"
	"github.com/AlecRosenbaum/GearGen/env"
	"github.com/AlecRosenbaum/GearGen/errors"
	"github.com/AlecRosenbaum/GearGen/gate"
	"github.com/AlecRosenbaum/GearGen/publish"
	"github.com/AlecRosenbaum/GearGen/trigger"
)

// ErrTriggerFiltered is returned by Execute when the trigger event does
// not pass the definition's filter. No run is created in that case.
var ErrTriggerFiltered = errors.New(errors.CodeTriggerFiltered, "trigger event filtered")

// Coordinator composes the pipeline: provision, execute stages, collect
// artifacts, acquire the deployment gate, publish, release. It owns the
// Run for its whole lifecycle and is safe for concurrent Execute calls;
// concurrent runs proceed independently and contend only at the gate.
type Coordinator struct {
	provisioner env.Provisioner
	gates       *gate.Registry
	publisher   publish.Publisher

	logger             *slog.Logger
	gateTimeout        time.Duration
	stageTimeout       time.Duration
	serializeFromStart bool
	newID              func() string
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithGateTimeout bounds how long a run may wait at the deployment gate.
// Zero, the default, means wait indefinitely. An expired wait surfaces as
// an ordinary Failed run.
func WithGateTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.gateTimeout = timeout
	}
}

// WithStageTimeoutOption bounds each stage's execution time. Zero, the
// default, means unbounded.
func WithStageTimeoutOption(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.stageTimeout = timeout
	}
}

// WithSerializeFromStart acquires the target's permit before provisioning
// instead of before publishing, so runs for the same target serialize
// through their entire lifecycle rather than only at the gate.
func WithSerializeFromStart() CoordinatorOption {
	return func(c *Coordinator) {
		c.serializeFromStart = true
	}
}

// WithIDGenerator overrides run ID generation (tests use fixed IDs).
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

// NewCoordinator creates a Coordinator over the given provisioner, gate
// registry and publisher.
func NewCoordinator(provisioner env.Provisioner, gates *gate.Registry, publisher publish.Publisher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		provisioner: provisioner,
		gates:       gates,
		publisher:   publisher,
		logger:      slog.Default(),
		newID:       randomID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute drives one run of the definition through the state machine.
// The trigger filter is checked first; a rejected event returns
// (nil, ErrTriggerFiltered) with no run created. Otherwise Execute
// returns the terminal run, paired with the originating error when the
// run failed. The deployment permit, once acquired, is released on every
// exit path.
func (c *Coordinator) Execute(ctx context.Context, def *Definition, event trigger.Event) (*Run, error) {
	if !def.Trigger.Match(event) {
		c.logger.Info("trigger filtered, no run started",
			"pipeline", def.Name, "branch", event.Branch)
		return nil, ErrTriggerFiltered
	}

	run := &Run{
		ID:        c.newID(),
		Event:     event,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With("run", run.ID, "pipeline", def.Name, "target", def.Target)

	var permit *gate.Permit
	defer func() {
		if permit != nil {
			permit.Release()
		}
	}()

	if c.serializeFromStart {
		var err error
		permit, err = c.acquire(ctx, def.Target, logger)
		if err != nil {
			return c.fail(run, logger, err)
		}
	}

	// Provisioning.
	c.transition(run, StatusProvisioning, logger)
	environment, err := c.provisioner.Provision(ctx, def.Environment)
	if err != nil {
		return c.fail(run, logger, errors.Wrap(err, errors.CodeProvisionFailed, "provisioning environment"))
	}

	// Executing.
	c.transition(run, StatusExecuting, logger)
	executor := NewStageExecutor(
		WithStageTimeout(c.stageTimeout),
		WithExecutorLogger(logger),
	)
	run.Stages, err = executor.Execute(ctx, environment, def.Stages)
	if err != nil {
		return c.fail(run, logger, err)
	}

	// Collecting.
	c.transition(run, StatusCollecting, logger)
	set, err := artifact.Collect(environment.FS(), def.Artifacts)
	if err != nil {
		return c.fail(run, logger, errors.Wrap(err, errors.CodeCollectionFailed, "collecting artifacts"))
	}
	run.Artifacts = set

	// AwaitingGate.
	c.transition(run, StatusAwaitingGate, logger)
	if permit == nil {
		permit, err = c.acquire(ctx, def.Target, logger)
		if err != nil {
			return c.fail(run, logger, err)
		}
	}

	// Publishing. The permit releases when the publish attempt finishes,
	// success or failure; an in-progress publish is never interrupted.
	c.transition(run, StatusPublishing, logger)
	deployment, err := func() (*publish.Deployment, error) {
		defer func() {
			permit.Release()
			permit = nil
		}()
		return c.publisher.Publish(ctx, set, def.Target)
	}()
	if err != nil {
		return c.fail(run, logger, errors.Wrap(err, errors.CodePublishFailed, "publishing artifacts"))
	}
	run.Deployment = deployment

	c.transition(run, StatusSucceeded, logger)
	run.CompletedAt = time.Now().UTC()
	logger.Info("run succeeded", "url", deployment.URL, "duration", run.CompletedAt.Sub(run.StartedAt))
	return run, nil
}

func (c *Coordinator) acquire(ctx context.Context, target string, logger *slog.Logger) (*gate.Permit, error) {
	acquireCtx := ctx
	if c.gateTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, c.gateTimeout)
		defer cancel()
	}

	logger.Info("waiting for deployment gate", "target", target)
	permit, err := c.gates.Acquire(acquireCtx, target)
	if err != nil {
		code := errors.CodeInternal
		if stderrors.Is(err, context.DeadlineExceeded) {
			code = errors.CodeTimeout
		}
		return nil, errors.WrapWithContext(err, code, "acquiring deployment gate",
			map[string]interface{}{"target": target})
	}
	return permit, nil
}

func (c *Coordinator) transition(run *Run, status Status, logger *slog.Logger) {
	logger.Debug("state transition", "from", run.Status, "to", status)
	run.Status = status
}

func (c *Coordinator) fail(run *Run, logger *slog.Logger, err error) (*Run, error) {
	run.Status = StatusFailed
	run.Err = err
	run.CompletedAt = time.Now().UTC()
	logger.Error("run failed", "error", err, "code", errors.GetCode(err))
	return run, err
}

// randomID generates a short random run identifier.
func randomID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "run-unknown"
	}
	return hex.EncodeToString(b[:])
}
