package pipeline_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecRosenbaum/GearGen/artifact"
	"github.com/AlecRosenbaum/GearGen/env"
	"github.com/AlecRosenbaum/GearGen/errors"
	"github.com/AlecRosenbaum/GearGen/fsys"
	"github.com/AlecRosenbaum/GearGen/gate"
	"github.com/AlecRosenbaum/GearGen/pipeline"
	"github.com/AlecRosenbaum/GearGen/publish"
	"github.com/AlecRosenbaum/GearGen/runner"
	"github.com/AlecRosenbaum/GearGen/trigger"
)

// mockPublisher scripts publish outcomes and records invocations.
type mockPublisher struct {
	mu      sync.Mutex
	err     error
	block   chan struct{} // when set, Publish waits until closed
	calls   int
	targets []string
}

func (m *mockPublisher) Publish(_ context.Context, set *artifact.Set, target string) (*publish.Deployment, error) {
	m.mu.Lock()
	m.calls++
	m.targets = append(m.targets, target)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	return &publish.Deployment{
		Target:      target,
		URL:         "https://example.github.io/geargen/",
		Digest:      set.Digest(),
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (m *mockPublisher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func webDefinition() *pipeline.Definition {
	return &pipeline.Definition{
		APIVersion:  "1.0.0",
		Name:        "geargen-pages",
		Target:      "pages",
		Trigger:     trigger.Filter{Branches: []string{"main"}},
		Environment: env.Spec{BaseImage: "rust:1.75", Toolchains: []string{"cargo install wasm-pack"}},
		Stages: []pipeline.Stage{
			{Name: "install", Command: "npm ci"},
			{Name: "build:prod", Command: "npm run build:prod"},
		},
		Artifacts: map[string]string{
			"dist": "dist/*",
			"pkg":  "pkg/*",
		},
	}
}

// builtFS returns a workspace filesystem holding the outputs the stages
// would have produced.
func builtFS(t *testing.T) fsys.FS {
	t.Helper()
	mem := fsys.NewMemory()
	for path, content := range map[string]string{
		"dist/index.html":  "<html>",
		"dist/main.js":     "console.log(1)",
		"pkg/gear_bg.wasm": "\x00asm",
	} {
		require.NoError(t, mem.WriteFile(path, []byte(content), 0o644))
	}
	return mem
}

func newCoordinator(t *testing.T, script *runner.Script, fs fsys.FS, pub publish.Publisher, opts ...pipeline.CoordinatorOption) *pipeline.Coordinator {
	t.Helper()
	opts = append([]pipeline.CoordinatorOption{
		pipeline.WithIDGenerator(func() string { return "run-1" }),
	}, opts...)
	return pipeline.NewCoordinator(env.NewStatic(script, fs), gate.NewRegistry(), pub, opts...)
}

func TestExecuteEndToEnd(t *testing.T) {
	pub := &mockPublisher{}
	coordinator := newCoordinator(t, runner.ExitCodes(0, 0), builtFS(t), pub)

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, pipeline.StatusSucceeded, run.Status)
	assert.True(t, run.Status.Terminal())
	require.Len(t, run.Stages, 2)
	assert.Equal(t, "install", run.Stages[0].Stage)
	assert.Equal(t, "build:prod", run.Stages[1].Stage)
	require.NotNil(t, run.Artifacts)
	assert.Equal(t, []string{"dist", "pkg"}, run.Artifacts.Names())
	require.NotNil(t, run.Deployment)
	assert.NotEmpty(t, run.Deployment.URL)
	assert.Nil(t, run.Err)
	assert.False(t, run.CompletedAt.IsZero())
}

func TestExecuteTriggerFiltered(t *testing.T) {
	pub := &mockPublisher{}
	coordinator := newCoordinator(t, runner.ExitCodes(0, 0), builtFS(t), pub)

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("feature/x"))
	assert.Nil(t, run, "a filtered trigger produces no run at all")
	assert.ErrorIs(t, err, pipeline.ErrTriggerFiltered)
	assert.Equal(t, 0, pub.callCount())
}

func TestExecuteStageFailure(t *testing.T) {
	pub := &mockPublisher{}
	// install ok, build:prod exits 1.
	coordinator := newCoordinator(t, runner.ExitCodes(0, 1), builtFS(t), pub)

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	require.Len(t, run.Stages, 2)
	assert.False(t, run.Stages[1].Success())

	var stageErr *pipeline.StageError
	require.True(t, stderrors.As(run.Err, &stageErr))
	assert.Equal(t, "build:prod", stageErr.Stage)
	assert.Nil(t, run.Artifacts)
	assert.Equal(t, 0, pub.callCount(), "failed builds never publish")
}

func TestExecuteProvisionFailure(t *testing.T) {
	failing := &failingProvisioner{cause: fmt.Errorf("base image unreachable")}
	coordinator := pipeline.NewCoordinator(failing, gate.NewRegistry(), &mockPublisher{})

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Equal(t, errors.CodeProvisionFailed, errors.GetCode(run.Err))
	assert.Empty(t, run.Stages)
}

type failingProvisioner struct {
	cause error
}

func (f *failingProvisioner) Provision(context.Context, env.Spec) (*env.Environment, error) {
	return nil, f.cause
}

func TestExecuteCollectionFailure(t *testing.T) {
	pub := &mockPublisher{}
	// Stages succeed but dist/ was never produced.
	mem := fsys.NewMemory()
	require.NoError(t, mem.WriteFile("pkg/gear_bg.wasm", []byte("\x00asm"), 0o644))
	coordinator := newCoordinator(t, runner.ExitCodes(0, 0), mem, pub)

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Equal(t, errors.CodeCollectionFailed, errors.GetCode(run.Err))

	var collErr *artifact.CollectionError
	require.True(t, stderrors.As(run.Err, &collErr))
	assert.Equal(t, "dist", collErr.Name)
	assert.Equal(t, 0, pub.callCount())
}

func TestExecutePublishFailureReleasesPermit(t *testing.T) {
	pub := &mockPublisher{err: fmt.Errorf("403 from target")}
	registry := gate.NewRegistry()
	coordinator := pipeline.NewCoordinator(
		env.NewStatic(runner.ExitCodes(0, 0, 0, 0), builtFS(t)), registry, pub)

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Equal(t, errors.CodePublishFailed, errors.GetCode(run.Err))

	// The permit was released despite the failure: a fresh acquire
	// succeeds immediately.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	permit, err := registry.Acquire(ctx, "pages")
	require.NoError(t, err)
	permit.Release()
}

func TestConcurrentRunsSerializeAtGate(t *testing.T) {
	// Run A blocks inside Publish; run B must queue at the gate, not
	// preempt A, and publish only after A finishes.
	pub := &mockPublisher{block: make(chan struct{})}
	registry := gate.NewRegistry()
	provisioner := env.NewStatic(runner.ExitCodes(0, 0, 0, 0), builtFS(t))
	coordinator := pipeline.NewCoordinator(provisioner, registry, pub)

	runA := make(chan *pipeline.Run, 1)
	go func() {
		run, _ := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
		runA <- run
	}()

	// Wait until A is inside Publish (holding the permit).
	require.Eventually(t, func() bool { return pub.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	runB := make(chan *pipeline.Run, 1)
	go func() {
		run, _ := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
		runB <- run
	}()

	// B reaches the gate but cannot publish while A is in flight.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, pub.callCount(), "run B published while run A held the permit")

	pub.mu.Lock()
	block := pub.block
	pub.block = nil
	pub.mu.Unlock()
	close(block)

	a := <-runA
	b := <-runB
	assert.Equal(t, pipeline.StatusSucceeded, a.Status)
	assert.Equal(t, pipeline.StatusSucceeded, b.Status)
	assert.Equal(t, 2, pub.callCount())
}

func TestGateTimeout(t *testing.T) {
	registry := gate.NewRegistry()

	// Occupy the gate so the run times out waiting.
	holder, err := registry.Acquire(context.Background(), "pages")
	require.NoError(t, err)
	defer holder.Release()

	pub := &mockPublisher{}
	coordinator := pipeline.NewCoordinator(
		env.NewStatic(runner.ExitCodes(0, 0), builtFS(t)), registry, pub,
		pipeline.WithGateTimeout(50*time.Millisecond))

	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(run.Err))
	assert.Equal(t, 0, pub.callCount())
}

func TestSerializeFromStart(t *testing.T) {
	registry := gate.NewRegistry()
	holder, err := registry.Acquire(context.Background(), "pages")
	require.NoError(t, err)

	pub := &mockPublisher{}
	coordinator := pipeline.NewCoordinator(
		env.NewStatic(runner.ExitCodes(0, 0), builtFS(t)), registry, pub,
		pipeline.WithSerializeFromStart(),
		pipeline.WithGateTimeout(50*time.Millisecond))

	// With the target held, a serialized run fails before provisioning.
	run, err := coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, run.Status)
	assert.Empty(t, run.Stages, "stages must not run while the target is held")

	holder.Release()

	run, err = coordinator.Execute(context.Background(), webDefinition(), trigger.ForBranch("main"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSucceeded, run.Status)
}
