package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/AlecRosenbaum/GearGen/env"
	"github.com/AlecRosenbaum/GearGen/errors"
	"github.com/AlecRosenbaum/GearGen/runner"
)

// StageExecutor runs an ordered stage sequence inside an environment,
// stopping at the first stage whose command exits non-zero. Stage
// commands are opaque; only their exit status is interpreted.
type StageExecutor struct {
	timeout time.Duration
	logger  *slog.Logger
}

// StageExecutorOption customizes a StageExecutor.
type StageExecutorOption func(*StageExecutor)

// WithStageTimeout bounds each stage's execution time. Zero, the default,
// means unbounded.
func WithStageTimeout(timeout time.Duration) StageExecutorOption {
	return func(e *StageExecutor) {
		e.timeout = timeout
	}
}

// WithExecutorLogger sets the logger. Defaults to slog.Default().
func WithExecutorLogger(logger *slog.Logger) StageExecutorOption {
	return func(e *StageExecutor) {
		e.logger = logger
	}
}

// NewStageExecutor creates a StageExecutor.
func NewStageExecutor(opts ...StageExecutorOption) *StageExecutor {
	e := &StageExecutor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs stages strictly in order inside the environment. It always
// returns the full prefix of results obtained: on failure the last result
// is the failing stage's, and the error is a *StageError wrapped with
// stage context. A command that cannot be started at all (as opposed to
// exiting non-zero) produces no result for that stage.
func (e *StageExecutor) Execute(ctx context.Context, environment *env.Environment, stages []Stage) ([]StageResult, error) {
	results := make([]StageResult, 0, len(stages))

	for _, stage := range stages {
		e.logger.Info("running stage", "stage", stage.Name, "command", stage.Command)

		result, err := e.runStage(ctx, environment.Runner(), stage)
		if err != nil {
			return results, errors.WrapWithContext(err, errors.CodeStageFailed, "running stage",
				map[string]interface{}{"stage": stage.Name})
		}

		results = append(results, StageResult{
			Stage:    stage.Name,
			ExitCode: result.ExitCode,
			Output:   result.Combined,
			Duration: result.Duration,
		})

		if !result.Success() {
			e.logger.Error("stage failed", "stage", stage.Name, "exitCode", result.ExitCode)
			stageErr := &StageError{
				Stage:    stage.Name,
				ExitCode: result.ExitCode,
				Output:   result.Combined,
			}
			return results, errors.WrapWithContext(stageErr, errors.CodeStageFailed, "stage exited non-zero",
				map[string]interface{}{"stage": stage.Name, "exitCode": result.ExitCode})
		}

		e.logger.Info("stage succeeded", "stage", stage.Name, "duration", result.Duration)
	}

	return results, nil
}

func (e *StageExecutor) runStage(ctx context.Context, r runner.Runner, stage Stage) (*runner.Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return r.Run(ctx, runner.Command{
		Argv: []string{"sh", "-c", stage.Command},
		Dir:  stage.Dir,
		Env:  stage.Env,
	})
}
