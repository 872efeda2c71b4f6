package kickrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Swind/go-kick-runner/core"
)

var (
	// ErrDuplicateWorker is returned by Group.Add when the name is taken.
	ErrDuplicateWorker = errors.New("worker already registered")

	// ErrUnknownWorker is returned when a name is not registered in the Group.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrGroupClosed is returned by Group.Add after Destroy.
	ErrGroupClosed = errors.New("group is destroyed")
)

// Group owns a named set of Workers that a host drives together,
// e.g. one worker per subsystem kicked once per frame.
type Group struct {
	cfg core.WorkerConfig

	mu      sync.RWMutex
	workers map[string]*Worker
	order   []string
	closed  bool
}

// NewGroup creates an empty Group. cfg is the template for every worker's
// config; Name is overridden per worker. A nil cfg uses core defaults.
func NewGroup(cfg *core.WorkerConfig) *Group {
	g := &Group{workers: make(map[string]*Worker)}
	if cfg != nil {
		g.cfg = *cfg
	}
	return g
}

// Add creates, starts and registers a worker bound to cb.
func (g *Group) Add(name string, cb Callback) (*Worker, error) {
	if cb == nil {
		return nil, fmt.Errorf("add %q: %w", name, core.ErrNilCallback)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, fmt.Errorf("add %q: %w", name, ErrGroupClosed)
	}
	if _, ok := g.workers[name]; ok {
		return nil, fmt.Errorf("add %q: %w", name, ErrDuplicateWorker)
	}

	cfg := g.cfg
	cfg.Name = name
	w := core.NewWorker(&cfg)
	w.Create(cb)

	g.workers[name] = w
	g.order = append(g.order, name)
	return w, nil
}

// Get returns the named worker.
func (g *Group) Get(name string) (*Worker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.workers[name]
	return w, ok
}

// Names returns registered worker names in insertion order.
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Signal kicks the named worker and reports whether the kick was accepted.
// A worker that destroyed itself from its own callback stays registered and
// yields ErrWorkerTerminated.
func (g *Group) Signal(name string) (bool, error) {
	w, ok := g.Get(name)
	if !ok {
		return false, fmt.Errorf("signal %q: %w", name, ErrUnknownWorker)
	}
	if w.Signal() {
		return true, nil
	}
	if w.State().IsStopping() {
		return false, fmt.Errorf("signal %q: %w", name, ErrWorkerTerminated)
	}
	return false, nil
}

// SignalAll kicks every worker and returns each one's accepted flag.
func (g *Group) SignalAll() map[string]bool {
	out := make(map[string]bool)
	for _, w := range g.snapshot() {
		out[w.Name()] = w.Signal()
	}
	return out
}

// WaitAll blocks until every worker is idle.
func (g *Group) WaitAll() {
	for _, w := range g.snapshot() {
		w.Wait()
	}
}

// WaitAllContext is WaitAll bounded by ctx.
func (g *Group) WaitAllContext(ctx context.Context) error {
	for _, w := range g.snapshot() {
		if err := w.WaitContext(ctx); err != nil {
			return fmt.Errorf("wait %q: %w", w.Name(), err)
		}
	}
	return nil
}

// Remove destroys the named worker and unregisters it.
func (g *Group) Remove(name string) error {
	g.mu.Lock()
	w, ok := g.workers[name]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("remove %q: %w", name, ErrUnknownWorker)
	}
	delete(g.workers, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	w.Destroy()
	return nil
}

// Destroy destroys every worker in reverse registration order.
// Repeated calls are safe.
func (g *Group) Destroy() {
	g.mu.Lock()
	g.closed = true
	workers := make([]*Worker, 0, len(g.order))
	for i := len(g.order) - 1; i >= 0; i-- {
		workers = append(workers, g.workers[g.order[i]])
	}
	g.workers = make(map[string]*Worker)
	g.order = nil
	g.mu.Unlock()

	for _, w := range workers {
		w.Destroy()
	}
}

// Stats returns one snapshot per worker in registration order.
func (g *Group) Stats() []WorkerStats {
	workers := g.snapshot()
	out := make([]WorkerStats, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Stats())
	}
	return out
}

func (g *Group) snapshot() []*Worker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Worker, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.workers[name])
	}
	return out
}

// =============================================================================
// Global Group Helper (Singleton)
// =============================================================================

var (
	globalGroup *Group
	globalMu    sync.Mutex
)

// InitGlobalGroup initializes the process-wide Group. Later calls are no-ops
// until ShutdownGlobalGroup.
func InitGlobalGroup(cfg *core.WorkerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup != nil {
		return
	}
	globalGroup = NewGroup(cfg)
}

// GlobalGroup returns the process-wide Group.
// It panics if InitGlobalGroup has not been called.
func GlobalGroup() *Group {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup == nil {
		panic("GlobalGroup not initialized. Call InitGlobalGroup() first.")
	}
	return globalGroup
}

// ShutdownGlobalGroup destroys every worker in the process-wide Group.
func ShutdownGlobalGroup() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGroup != nil {
		globalGroup.Destroy()
		globalGroup = nil
	}
}
