// Package env provisions isolated build environments. An Environment
// couples a command runner (commands execute inside the environment) with
// the filesystem of the environment's workspace, behind which the rest of
// the pipeline is agnostic to whether the environment is a container or
// the host.
package env

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/AlecRosenbaum/GearGen/fsys"
	"github.com/AlecRosenbaum/GearGen/runner"
)

// Spec describes the environment a pipeline needs: a base image plus the
// toolchain install commands layered on top. Specs are value types;
// identical specs provision interchangeable environments.
type Spec struct {
	// BaseImage is the container image the environment starts from.
	BaseImage string `json:"baseImage" yaml:"baseImage"`

	// Toolchains are install commands run in order while building the
	// environment; each must exit zero or provisioning fails.
	Toolchains []string `json:"toolchains,omitempty" yaml:"toolchains,omitempty"`

	// Workdir is the mount point of the workspace inside the
	// environment. Empty means DefaultWorkdir.
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`
}

// DefaultWorkdir is where the workspace mounts when Spec.Workdir is empty.
const DefaultWorkdir = "/work"

// Digest returns a stable content digest of the spec, used as the
// environment cache key.
func (s Spec) Digest() digest.Digest {
	canonical, err := json.Marshal(s)
	if err != nil {
		// Spec contains only strings and slices; Marshal cannot fail.
		panic(fmt.Sprintf("env: marshal spec: %v", err))
	}
	return digest.FromBytes(canonical)
}

// workdir returns the effective in-environment workspace path.
func (s Spec) workdir() string {
	if s.Workdir == "" {
		return DefaultWorkdir
	}
	return s.Workdir
}

// Environment is a provisioned execution environment: an opaque handle
// combining command execution inside the environment with access to its
// workspace filesystem.
type Environment struct {
	runner    runner.Runner
	fs        fsys.FS
	image     string
	workspace string
}

// Runner returns the runner that executes commands inside the environment.
func (e *Environment) Runner() runner.Runner {
	return e.runner
}

// FS returns the environment's workspace filesystem.
func (e *Environment) FS() fsys.FS {
	return e.fs
}

// Image returns the image tag backing the environment.
func (e *Environment) Image() string {
	return e.image
}

// Workspace returns the host path of the environment's workspace, or the
// empty string if the environment has no host-visible workspace.
func (e *Environment) Workspace() string {
	return e.workspace
}

// Provisioner builds or obtains an environment satisfying a Spec.
// Provisioning is idempotent: provisioning the same spec twice yields
// environments with identical stage-execution behavior.
type Provisioner interface {
	Provision(ctx context.Context, spec Spec) (*Environment, error)
}

// Static is a Provisioner returning a fixed, pre-built environment. It
// serves tests and "run on host" mode, where the host itself is the
// environment and the spec's toolchains are assumed present.
type Static struct {
	Runner runner.Runner
	FS     fsys.FS
}

// NewStatic creates a Static provisioner over the given runner and
// filesystem.
func NewStatic(r runner.Runner, fsimpl fsys.FS) *Static {
	return &Static{Runner: r, FS: fsimpl}
}

// Provision implements Provisioner.
func (s *Static) Provision(_ context.Context, spec Spec) (*Environment, error) {
	return &Environment{
		runner: s.Runner,
		fs:     s.FS,
		image:  spec.BaseImage,
	}, nil
}
