// Package readiness provides a one-shot startup signal that dependents await
// with a timeout instead of polling.
package readiness

import (
	"context"
	"sync"
	"time"
)

type State string

const (
	StatePending  State = "pending"
	StateReady    State = "ready"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
)

// Gate resolves exactly once. Until then State() is pending.
type Gate struct {
	name string
	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	state  State
	reason string
}

func NewGate(name string) *Gate {
	return &Gate{name: name, done: make(chan struct{}), state: StatePending}
}

func (g *Gate) Name() string { return g.name }

func (g *Gate) resolve(s State, reason string) bool {
	resolved := false
	g.once.Do(func() {
		g.mu.Lock()
		g.state = s
		g.reason = reason
		g.mu.Unlock()
		close(g.done)
		resolved = true
	})
	return resolved
}

// MarkReady resolves the gate as usable. Later calls are ignored.
func (g *Gate) MarkReady() bool { return g.resolve(StateReady, "") }

// MarkDegraded resolves the gate as partially usable (e.g. cache-only mode).
func (g *Gate) MarkDegraded(reason string) bool { return g.resolve(StateDegraded, reason) }

// MarkFailed resolves the gate as unusable.
func (g *Gate) MarkFailed(reason string) bool { return g.resolve(StateFailed, reason) }

func (g *Gate) State() (State, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state, g.reason
}

// Done is closed once the gate resolves.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Wait blocks until the gate resolves, ctx ends or timeout elapses, and returns
// the state at that moment (pending on timeout).
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) State {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-g.done:
	case <-ctx.Done():
	}
	s, _ := g.State()
	return s
}
