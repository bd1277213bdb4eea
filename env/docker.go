package env

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"

	"github.com/AlecRosenbaum/GearGen/errors"
	"github.com/AlecRosenbaum/GearGen/fsys"
	"github.com/AlecRosenbaum/GearGen/runner"
)

// imageRepo is the local repository provisioned images are tagged under.
const imageRepo = "geargen-env"

// Docker provisions environments as Docker images built from a generated
// Dockerfile, one RUN layer per toolchain install command. Images are
// cached by spec digest: re-provisioning an identical spec reuses the
// existing image, and rebuilding it produces the same tag, so repeating a
// provision is always safe.
type Docker struct {
	host   runner.Runner
	root   string
	logger *slog.Logger
}

// DockerOption customizes a Docker provisioner.
type DockerOption func(*Docker)

// WithHostRunner sets the runner used to invoke the docker CLI. Defaults
// to a local subprocess runner; tests inject a scripted one.
func WithHostRunner(r runner.Runner) DockerOption {
	return func(d *Docker) {
		d.host = r
	}
}

// WithWorkspaceRoot sets the host directory environment workspaces are
// created under. Defaults to the user cache directory.
func WithWorkspaceRoot(root string) DockerOption {
	return func(d *Docker) {
		d.root = root
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) DockerOption {
	return func(d *Docker) {
		d.logger = logger
	}
}

// NewDocker creates a Docker provisioner.
func NewDocker(opts ...DockerOption) *Docker {
	d := &Docker{
		host:   runner.NewLocal(),
		root:   filepath.Join(xdg.CacheHome, "geargen", "workspaces"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Provision implements Provisioner. It reuses a cached image for the spec
// when one exists, otherwise builds one, then allocates a fresh workspace
// directory for the environment.
func (d *Docker) Provision(ctx context.Context, spec Spec) (*Environment, error) {
	if spec.BaseImage == "" {
		return nil, errors.New(errors.CodeProvisionFailed, "spec has no base image")
	}

	tag := ImageTag(spec)
	cached, err := d.imageExists(ctx, tag)
	if err != nil {
		return nil, err
	}
	if cached {
		d.logger.Debug("reusing cached environment image", "image", tag)
	} else {
		if err := d.build(ctx, spec, tag); err != nil {
			return nil, err
		}
	}

	workspace, err := d.newWorkspace()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeProvisionFailed, "creating workspace")
	}

	return &Environment{
		runner: &dockerRunner{
			host:      d.host,
			image:     tag,
			workspace: workspace,
			workdir:   spec.workdir(),
		},
		fs:        fsys.NewOS(workspace),
		image:     tag,
		workspace: workspace,
	}, nil
}

// ImageTag derives the cache tag for a spec from its content digest.
func ImageTag(spec Spec) string {
	return fmt.Sprintf("%s:%s", imageRepo, spec.Digest().Encoded()[:12])
}

func (d *Docker) imageExists(ctx context.Context, tag string) (bool, error) {
	result, err := d.host.Run(ctx, runner.Command{
		Argv: []string{"docker", "image", "inspect", tag},
	})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeProvisionFailed, "inspecting environment image")
	}
	return result.Success(), nil
}

func (d *Docker) build(ctx context.Context, spec Spec, tag string) error {
	dir, err := os.MkdirTemp("", "geargen-build-")
	if err != nil {
		return errors.Wrap(err, errors.CodeProvisionFailed, "creating build context")
	}
	defer os.RemoveAll(dir)

	dockerfile := Dockerfile(spec)
	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, []byte(dockerfile), 0o600); err != nil {
		return errors.Wrap(err, errors.CodeProvisionFailed, "writing Dockerfile")
	}

	d.logger.Info("building environment image", "image", tag, "base", spec.BaseImage)
	result, err := d.host.Run(ctx, runner.Command{
		Argv: []string{"docker", "build", "-t", tag, "-f", path, dir},
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeProvisionFailed, "running docker build")
	}
	if !result.Success() {
		return errors.WrapWithContext(
			fmt.Errorf("docker build exited %d", result.ExitCode),
			errors.CodeProvisionFailed,
			"building environment image",
			map[string]interface{}{
				"image":  tag,
				"output": result.Combined,
			},
		)
	}
	return nil
}

func (d *Docker) newWorkspace() (string, error) {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(d.root, "ws-")
}

// Dockerfile renders the build instructions for a spec: the base image,
// one RUN layer per toolchain command, and the workspace mount point.
func Dockerfile(spec Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", spec.BaseImage)
	for _, install := range spec.Toolchains {
		fmt.Fprintf(&b, "RUN %s\n", install)
	}
	fmt.Fprintf(&b, "WORKDIR %s\n", spec.workdir())
	return b.String()
}

// dockerRunner executes commands inside a provisioned image via
// `docker run`, with the workspace bind-mounted at the spec workdir.
type dockerRunner struct {
	host      runner.Runner
	image     string
	workspace string
	workdir   string
}

// Run implements runner.Runner.
func (r *dockerRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	workdir := r.workdir
	if cmd.Dir != "" {
		workdir = filepathJoinSlash(r.workdir, cmd.Dir)
	}

	argv := []string{
		"docker", "run", "--rm",
		"-v", fmt.Sprintf("%s:%s", r.workspace, r.workdir),
		"-w", workdir,
	}
	for _, k := range sortedKeys(cmd.Env) {
		argv = append(argv, "-e", fmt.Sprintf("%s=%s", k, cmd.Env[k]))
	}
	argv = append(argv, r.image)
	argv = append(argv, cmd.Argv...)

	return r.host.Run(ctx, runner.Command{Argv: argv})
}

// filepathJoinSlash joins container paths, which are always slash
// separated regardless of the host OS.
func filepathJoinSlash(base, rel string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
