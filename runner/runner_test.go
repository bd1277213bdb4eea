package runner_test

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/AlecRosenbaum/GearGen/runner"
)

func TestLocalCapturesStdout(t *testing.T) {
	skipOnWindows(t)

	local := runner.NewLocal()
	result, err := local.Run(context.Background(), runner.Command{
		Argv: []string{"sh", "-c", "echo hello world"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "hello world") {
		t.Errorf("expected stdout to contain 'hello world', got: %s", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got: %d", result.ExitCode)
	}
	if !result.Success() {
		t.Error("expected Success() for exit code 0")
	}
}

func TestLocalNonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)

	local := runner.NewLocal()
	result, err := local.Run(context.Background(), runner.Command{
		Argv: []string{"sh", "-c", "echo boom >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got: %d", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "boom") {
		t.Errorf("expected stderr to contain 'boom', got: %s", result.Stderr)
	}
	if !strings.Contains(result.Combined, "boom") {
		t.Errorf("expected combined output to contain 'boom', got: %s", result.Combined)
	}
}

func TestLocalEnvOverrides(t *testing.T) {
	skipOnWindows(t)

	local := runner.NewLocal(runner.WithBaseEnv([]string{"GREETING=ambient", "KEEP=yes"}))
	result, err := local.Run(context.Background(), runner.Command{
		Argv: []string{"sh", "-c", "echo $GREETING $KEEP"},
		Env:  map[string]string{"GREETING": "override"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Explicit overrides win on key collision; the rest of the base
	// environment is preserved.
	if !strings.Contains(result.Stdout, "override yes") {
		t.Errorf("expected override to win, got: %s", result.Stdout)
	}
}

func TestLocalWorkingDir(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	local := runner.NewLocal()
	result, err := local.Run(context.Background(), runner.Command{
		Argv: []string{"pwd"},
		Dir:  dir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, dir) {
		t.Errorf("expected pwd output %q to contain %q", result.Stdout, dir)
	}
}

func TestLocalStdoutWriter(t *testing.T) {
	skipOnWindows(t)

	var stream bytes.Buffer
	local := runner.NewLocal(runner.WithStdoutWriter(&stream))
	_, err := local.Run(context.Background(), runner.Command{
		Argv: []string{"sh", "-c", "echo streamed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stream.String(), "streamed") {
		t.Errorf("expected writer to receive output, got: %s", stream.String())
	}
}

func TestLocalEmptyCommand(t *testing.T) {
	local := runner.NewLocal()
	if _, err := local.Run(context.Background(), runner.Command{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLocalRunWithInput(t *testing.T) {
	skipOnWindows(t)

	local := runner.NewLocal()
	result, err := local.RunWithInput(context.Background(), runner.Command{
		Argv: []string{"cat"},
	}, "piped input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result.Stdout, "piped input") {
		t.Errorf("expected stdin to round-trip, got: %s", result.Stdout)
	}
}

func TestScriptReplaysInOrder(t *testing.T) {
	script := runner.NewScript(
		runner.Step{Result: &runner.Result{ExitCode: 0, Stdout: "first"}},
		runner.Step{Result: &runner.Result{ExitCode: 1, Stderr: "second"}},
	)

	r1, err := script.Run(context.Background(), runner.Command{Argv: []string{"a"}})
	if err != nil || r1.Stdout != "first" {
		t.Fatalf("unexpected first step: %v %v", r1, err)
	}

	r2, err := script.Run(context.Background(), runner.Command{Argv: []string{"b"}})
	if err != nil || r2.ExitCode != 1 {
		t.Fatalf("unexpected second step: %v %v", r2, err)
	}

	// Exhausted scripts succeed.
	r3, err := script.Run(context.Background(), runner.Command{Argv: []string{"c"}})
	if err != nil || r3.ExitCode != 0 {
		t.Fatalf("unexpected exhausted step: %v %v", r3, err)
	}

	calls := script.Calls()
	if len(calls) != 3 || calls[1].Argv[0] != "b" {
		t.Fatalf("unexpected recorded calls: %v", calls)
	}
}

func TestExitCodes(t *testing.T) {
	script := runner.ExitCodes(0, 2)

	r, _ := script.Run(context.Background(), runner.Command{Argv: []string{"x"}})
	if r.ExitCode != 0 {
		t.Errorf("expected 0, got %d", r.ExitCode)
	}
	r, _ = script.Run(context.Background(), runner.Command{Argv: []string{"y"}})
	if r.ExitCode != 2 {
		t.Errorf("expected 2, got %d", r.ExitCode)
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}
