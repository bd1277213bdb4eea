package runner

import (
	"context"
	"fmt"
	"sync"
)

// Step is one scripted response from a Script runner.
type Step struct {
	Result *Result
	Err    error
}

// Script is an in-memory Runner that returns pre-scripted results in
// order. It records every command it receives, so tests can assert on what
// was executed. Safe for concurrent use.
type Script struct {
	mu    sync.Mutex
	steps []Step
	calls []Command
}

// NewScript creates a Script runner that replays the given steps. When the
// script is exhausted, further commands succeed with exit code zero.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// ExitCodes is a convenience constructor scripting a sequence of exit
// codes with empty output.
func ExitCodes(codes ...int) *Script {
	steps := make([]Step, len(codes))
	for i, code := range codes {
		steps[i] = Step{Result: &Result{ExitCode: code}}
	}
	return NewScript(steps...)
}

// Run implements Runner.
func (s *Script) Run(_ context.Context, cmd Command) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, cmd)
	if len(s.calls) > len(s.steps) {
		return &Result{ExitCode: 0}, nil
	}

	step := s.steps[len(s.calls)-1]
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Result == nil {
		return nil, fmt.Errorf("script step %d has neither result nor error", len(s.calls)-1)
	}
	return step.Result, nil
}

// Calls returns a copy of the commands received so far, in order.
func (s *Script) Calls() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.calls))
	copy(out, s.calls)
	return out
}
