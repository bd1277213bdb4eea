// Package gate serializes deployment attempts per target. For a given
// target string at most one Permit is outstanding at a time; later
// acquirers queue FIFO and are never preempted. A deployment that has
// started always runs to completion before its permit is released.
package gate

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds one gate per target, created on demand. Its lifecycle is
// the process lifetime; tests construct fresh registries per case. The
// zero value is not usable, use NewRegistry.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*gate
}

// gate is the per-target lock state. held and waiters are guarded by the
// owning Registry's mutex.
type gate struct {
	held    bool
	waiters []chan struct{}
}

// Permit represents the exclusive right to publish to one target. It must
// be released exactly once when the publish attempt finishes, success or
// failure; releasing again is a no-op.
type Permit struct {
	target   string
	registry *Registry
	once     sync.Once
}

// Target returns the target this permit grants exclusive access to.
func (p *Permit) Target() string {
	return p.target
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*gate)}
}

// Acquire blocks until the caller holds the gate for target, then returns
// a Permit. Waiters are served strictly in arrival order. If ctx is
// cancelled while queued, the waiter is removed from the queue without
// disturbing the current holder or other waiters.
func (r *Registry) Acquire(ctx context.Context, target string) (*Permit, error) {
	if target == "" {
		return nil, fmt.Errorf("gate: empty target")
	}

	r.mu.Lock()
	g, ok := r.gates[target]
	if !ok {
		g = &gate{}
		r.gates[target] = g
	}

	if !g.held {
		g.held = true
		r.mu.Unlock()
		return &Permit{target: target, registry: r}, nil
	}

	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	r.mu.Unlock()

	select {
	case <-ready:
		// Ownership was handed to us by the releasing holder.
		return &Permit{target: target, registry: r}, nil
	case <-ctx.Done():
		r.mu.Lock()
		removed := g.remove(ready)
		r.mu.Unlock()
		if !removed {
			// The release beat the cancellation: we own the gate and
			// must pass it on rather than leak it.
			r.release(target)
		}
		return nil, fmt.Errorf("gate: waiting for %q: %w", target, ctx.Err())
	}
}

// Release releases the permit, handing the gate to the next queued waiter
// if any. Safe to call more than once; only the first call has effect.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.registry.release(p.target)
	})
}

func (r *Registry) release(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.gates[target]
	if g == nil || !g.held {
		return
	}

	if len(g.waiters) == 0 {
		g.held = false
		return
	}

	// Hand ownership directly to the head of the queue; held stays true
	// so no newcomer can slip in between release and wake-up.
	next := g.waiters[0]
	g.waiters = g.waiters[1:]
	close(next)
}

// remove deletes ch from the waiter queue. Returns false if ch was no
// longer queued, meaning it has already been granted the gate.
func (g *gate) remove(ch chan struct{}) bool {
	for i, w := range g.waiters {
		if w == ch {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}
