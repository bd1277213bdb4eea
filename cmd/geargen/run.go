package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlecRosenbaum/GearGen/config"
	"github.com/AlecRosenbaum/GearGen/env"
	"github.com/AlecRosenbaum/GearGen/fsys"
	"github.com/AlecRosenbaum/GearGen/gate"
	"github.com/AlecRosenbaum/GearGen/pipeline"
	"github.com/AlecRosenbaum/GearGen/publish"
	"github.com/AlecRosenbaum/GearGen/trigger"
)

type runFlags struct {
	file         string
	repo         string
	branch       string
	gateTimeout  time.Duration
	stageTimeout time.Duration
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline definition",
		Long: `Run loads a pipeline definition, derives the trigger event from the
repository HEAD (or --branch), and executes the pipeline end to end:
provision, stages, artifact collection, gated publish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "pipeline.cue", "pipeline definition file")
	cmd.Flags().StringVar(&flags.repo, "repo", ".", "repository to derive the trigger event from")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "override the trigger branch instead of reading the repository")
	cmd.Flags().DurationVar(&flags.gateTimeout, "gate-timeout", 0, "maximum time to wait for the deployment gate (0 waits forever)")
	cmd.Flags().DurationVar(&flags.stageTimeout, "stage-timeout", 0, "per-stage execution timeout (0 is unbounded)")

	return cmd
}

func runPipeline(cmd *cobra.Command, flags *runFlags) error {
	logger := newLogger()
	ctx := cmd.Context()

	def, err := loadDefinition(flags.file)
	if err != nil {
		return printErr(cmd, err)
	}

	event, err := resolveEvent(flags)
	if err != nil {
		return printErr(cmd, err)
	}

	publisher, err := buildPublisher(cmd, def)
	if err != nil {
		return printErr(cmd, err)
	}

	provisioner := env.NewDocker(env.WithLogger(logger))

	var opts []pipeline.CoordinatorOption
	opts = append(opts, pipeline.WithLogger(logger))
	if flags.gateTimeout > 0 {
		opts = append(opts, pipeline.WithGateTimeout(flags.gateTimeout))
	}
	if flags.stageTimeout > 0 {
		opts = append(opts, pipeline.WithStageTimeoutOption(flags.stageTimeout))
	}

	coordinator := pipeline.NewCoordinator(provisioner, gate.NewRegistry(), publisher, opts...)

	run, err := coordinator.Execute(ctx, def, event)
	if errors.Is(err, pipeline.ErrTriggerFiltered) {
		logger.Info("trigger did not match, nothing to do",
			"branch", event.Branch, "filter", def.Trigger.Branches)
		return nil
	}
	if err != nil {
		return printErr(cmd, err)
	}

	logger.Info("pipeline succeeded", "run", run.ID, "target", def.Target)
	if run.Deployment != nil && run.Deployment.URL != "" {
		fmt.Fprintln(cmd.OutOrStdout(), run.Deployment.URL)
	}
	return nil
}

// loadDefinition loads a definition through an OS filesystem rooted at
// /, so both relative and absolute paths resolve.
func loadDefinition(path string) (*pipeline.Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return config.Load(fsys.NewOS("/"), abs)
}

func resolveEvent(flags *runFlags) (trigger.Event, error) {
	if flags.branch != "" {
		return trigger.ForBranch(flags.branch), nil
	}
	return trigger.FromRepository(flags.repo)
}

// buildPublisher constructs the publisher the definition selects. A
// definition without a publish block cannot run from the CLI; there is
// nowhere to put the artifacts.
func buildPublisher(cmd *cobra.Command, def *pipeline.Definition) (publish.Publisher, error) {
	cfg := def.Publish
	switch cfg.Type {
	case "oci":
		return publish.NewOCI(cfg.Repository)
	case "s3":
		var opts []publish.S3Option
		if cfg.Region != "" {
			opts = append(opts, publish.WithRegion(cfg.Region))
		}
		if cfg.Prefix != "" {
			opts = append(opts, publish.WithPrefix(cfg.Prefix))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, publish.WithEndpoint(cfg.Endpoint))
		}
		return publish.NewS3(cmd.Context(), cfg.Bucket, opts...)
	default:
		return nil, fmt.Errorf("definition %q has no publish block; add one to run from the CLI", def.Name)
	}
}
