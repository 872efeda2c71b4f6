package kickrunner

import "github.com/Swind/go-kick-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the kickrunner package for most use cases.

// Worker runs one bound callback on a dedicated goroutine, on demand.
type Worker = core.Worker

// Callback is the function bound to a Worker at Create time.
type Callback = core.Callback

// WorkerConfig configures logging, metrics, tracing and panic handling.
type WorkerConfig = core.WorkerConfig

// WorkerState is the lifecycle state of a Worker.
type WorkerState = core.WorkerState

// WorkerStats is a snapshot of a Worker's counters.
type WorkerStats = core.WorkerStats

// RunRecord describes one completed run.
type RunRecord = core.RunRecord

// PanicError wraps a recovered callback panic.
type PanicError = core.PanicError

// Worker states
const (
	StateUncreated    = core.StateUncreated
	StateIdle         = core.StateIdle
	StatePending      = core.StatePending
	StateBusy         = core.StateBusy
	StateShuttingDown = core.StateShuttingDown
	StateTerminated   = core.StateTerminated
)

// ErrWorkerTerminated is returned when a kick targets a destroyed worker.
var ErrWorkerTerminated = core.ErrWorkerTerminated

var (
	// DefaultWorkerConfig returns a config with default collaborators.
	DefaultWorkerConfig = core.DefaultWorkerConfig

	// GetTicks returns milliseconds since process start.
	GetTicks = core.GetTicks

	// CurrentWorker returns the Worker running the current callback.
	CurrentWorker = core.CurrentWorker
)

// NewWorker creates a Worker in the uncreated state. Call Create to start it.
func NewWorker(cfg *WorkerConfig) *Worker {
	return core.NewWorker(cfg)
}

// StartWorker creates a Worker and binds cb in one step.
func StartWorker(cfg *WorkerConfig, cb Callback) *Worker {
	w := core.NewWorker(cfg)
	w.Create(cb)
	return w
}
