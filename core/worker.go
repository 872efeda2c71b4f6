package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Callback is the function bound to a Worker at Create time.
// The context carries the running Worker (see CurrentWorker) and the run's
// span. The Worker never cancels it.
type Callback func(ctx context.Context)

type workerKeyType struct{}

var workerKey workerKeyType

// CurrentWorker returns the Worker executing the callback that received ctx,
// or nil outside a callback.
func CurrentWorker(ctx context.Context) *Worker {
	if w, ok := ctx.Value(workerKey).(*Worker); ok {
		return w
	}
	return nil
}

// Worker binds one callback to one dedicated goroutine and runs it on demand.
//
// Callers kick the goroutine with Signal. A kick issued while the callback is
// running is dropped, not queued, so at most one run is ever in flight and at
// most one more is ever waiting. Wait blocks until the worker is idle and
// Destroy shuts the goroutine down after the current run, never interrupting it.
//
// Lifecycle:
//
//	w := core.NewWorker(nil)
//	w.Create(render)
//	for frame := range frames {
//		w.Wait()
//		w.Signal()
//	}
//	w.Destroy()
type Worker struct {
	id      string
	name    string
	logger  *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
	onPanic PanicHandler
	history *runHistory

	// mu guards every field below; cond shares it for both the loop's wait
	// for work and callers' waits for idleness.
	mu               sync.Mutex
	cond             *sync.Cond
	state            WorkerState
	preCreateKick    bool
	shutdownAfterRun bool
	done             chan struct{}
	loopGID          uint64
	seq              uint64
	lastRun          time.Time
	lastTook         time.Duration

	accepted atomic.Int64
	dropped  atomic.Int64
	runs     atomic.Int64
	panics   atomic.Int64
}

// NewWorker returns a Worker in StateUncreated. A nil cfg uses DefaultWorkerConfig.
func NewWorker(cfg *WorkerConfig) *Worker {
	c := cfg.withDefaults()

	id := uuid.NewString()
	name := c.Name
	if name == "" {
		name = "worker-" + id[:8]
	}

	w := &Worker{
		id:      id,
		name:    name,
		logger:  c.Logger.With(zap.String("worker", name)),
		metrics: c.Metrics,
		tracer:  c.Tracer,
		onPanic: c.PanicHandler,
		history: newRunHistory(c.HistoryCapacity),
		state:   StateUncreated,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// transition moves the worker to the next state. Must hold mu.
func (w *Worker) transition(to WorkerState) {
	if !canTransition(w.state, to) {
		panic(fmt.Sprintf("kickrunner: invalid worker transition %s -> %s", w.state, to))
	}
	w.state = to
}

// Create starts the worker goroutine bound to cb.
// It does nothing if the goroutine was already started, if the worker has
// been destroyed, or if cb is nil.
func (w *Worker) Create(cb Callback) {
	if cb == nil {
		w.logger.Warn("create ignored", zap.Error(ErrNilCallback))
		return
	}

	w.mu.Lock()
	if w.state != StateUncreated {
		w.mu.Unlock()
		return
	}
	if w.preCreateKick {
		// A kick accepted before Create runs as soon as the loop starts.
		w.preCreateKick = false
		w.transition(StatePending)
	} else {
		w.transition(StateIdle)
	}
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.loop(cb, done)
	w.logger.Debug("worker created", zap.String("id", w.id))
}

// Signal requests one run of the bound callback and returns immediately.
//
// It reports whether the kick was accepted. A kick is accepted when the worker
// is idle, or when a previous kick is still waiting to be picked up, in which
// case both are served by the same run. A kick issued while the callback is
// executing, or after Destroy, is dropped and Signal returns false.
func (w *Worker) Signal() bool {
	w.mu.Lock()
	accepted, wake := false, false
	reason := ""
	switch w.state {
	case StateUncreated:
		w.preCreateKick = true
		accepted = true
	case StateIdle:
		w.transition(StatePending)
		accepted, wake = true, true
	case StatePending:
		accepted = true
	case StateBusy:
		reason = "busy"
	default:
		reason = "shutdown"
	}
	w.mu.Unlock()

	if wake {
		w.cond.Broadcast()
	}

	w.metrics.RecordKick(w.name, accepted)
	if accepted {
		w.accepted.Add(1)
		w.logger.Debug("kick accepted")
	} else {
		w.dropped.Add(1)
		w.metrics.RecordKickDropped(w.name, reason)
		w.logger.Debug("kick dropped", zap.String("reason", reason))
	}
	return accepted
}

// Wait blocks until no run is executing and no accepted kick is waiting.
// It returns immediately when the worker is idle or was never created.
// Called from the worker's own callback it returns immediately.
func (w *Worker) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isLoopGoroutine() {
		return
	}
	for w.state.IsActive() {
		w.cond.Wait()
	}
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if ctx ends first.
func (w *Worker) WaitContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.cond.Broadcast()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isLoopGoroutine() {
		return nil
	}
	for w.state.IsActive() {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.cond.Wait()
	}
	return nil
}

// Destroy waits for the worker to become idle, stops its goroutine and waits
// for it to exit. It is safe to call repeatedly and from several goroutines;
// every call returns only after the goroutine has exited.
//
// Destroy on a worker that was never created returns immediately. Called from
// the worker's own callback, it schedules shutdown for when the current run
// returns and does not wait.
func (w *Worker) Destroy() {
	w.mu.Lock()
	if w.isLoopGoroutine() {
		w.shutdownAfterRun = true
		w.mu.Unlock()
		w.logger.Info("worker shutdown scheduled from callback")
		return
	}

	for w.state.IsActive() {
		w.cond.Wait()
	}

	switch w.state {
	case StateUncreated:
		w.preCreateKick = false
		w.transition(StateTerminated)
		w.mu.Unlock()
		w.logger.Info("worker destroyed before create")
		return
	case StateIdle:
		w.transition(StateShuttingDown)
	}
	done := w.done
	w.mu.Unlock()

	if done == nil {
		return
	}
	w.cond.Broadcast()
	<-done
	w.logger.Info("worker destroyed", zap.Int64("runs", w.runs.Load()))
}

// loop owns the worker goroutine until shutdown.
func (w *Worker) loop(cb Callback, done chan struct{}) {
	defer close(done)

	gid := currentGoroutineID()
	w.mu.Lock()
	w.loopGID = gid
	w.mu.Unlock()

	for {
		w.mu.Lock()
		for w.state == StateIdle {
			w.cond.Wait()
		}
		if w.state == StateShuttingDown {
			w.transition(StateTerminated)
			w.mu.Unlock()
			w.cond.Broadcast()
			return
		}
		w.transition(StateBusy)
		w.seq++
		seq := w.seq
		w.mu.Unlock()

		record := w.run(cb, seq)

		w.mu.Lock()
		w.transition(StateIdle)
		w.lastRun = record.FinishedAt
		w.lastTook = record.Duration
		if w.shutdownAfterRun {
			w.transition(StateShuttingDown)
		}
		w.mu.Unlock()
		w.cond.Broadcast()
	}
}

// run executes cb once with the lock released.
func (w *Worker) run(cb Callback, seq uint64) (record RunRecord) {
	ctx := context.WithValue(context.Background(), workerKey, w)
	ctx, span := w.tracer.Start(ctx, "kickrunner.run", trace.WithAttributes(
		attribute.String("worker.name", w.name),
		attribute.String("worker.id", w.id),
		attribute.Int64("run.seq", int64(seq)),
	))

	record = RunRecord{
		Seq:        seq,
		Worker:     w.name,
		StartedAt:  time.Now(),
		StartTicks: GetTicks(),
	}

	defer func() {
		record.FinishedAt = time.Now()
		record.Duration = record.FinishedAt.Sub(record.StartedAt)

		if w.onPanic != nil {
			if r := recover(); r != nil {
				record.Panicked = true
				perr := &PanicError{Worker: w.name, Value: r, Stack: debug.Stack()}
				w.panics.Add(1)
				w.metrics.RecordRunPanic(w.name, r)
				span.RecordError(perr)
				span.SetStatus(codes.Error, "callback panicked")
				w.onPanic.HandlePanic(ctx, perr)
			}
		}

		span.End()
		w.runs.Add(1)
		w.history.Add(record)
		w.metrics.RecordRunDuration(w.name, record.Duration)
		w.logger.Debug("run finished",
			zap.Uint64("seq", seq),
			zap.Duration("took", record.Duration),
			zap.Bool("panicked", record.Panicked),
		)
	}()

	cb(ctx)
	return record
}

// isLoopGoroutine reports whether the caller is the worker goroutine. Must hold mu.
func (w *Worker) isLoopGoroutine() bool {
	if w.state != StateBusy || w.loopGID == 0 {
		return false
	}
	return currentGoroutineID() == w.loopGID
}

// Stats returns a snapshot of the worker's counters and state.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	state, lastRun, lastTook := w.state, w.lastRun, w.lastTook
	w.mu.Unlock()

	return WorkerStats{
		ID:       w.id,
		Name:     w.name,
		State:    state,
		Accepted: w.accepted.Load(),
		Dropped:  w.dropped.Load(),
		Runs:     w.runs.Load(),
		Panics:   w.panics.Load(),
		LastRun:  lastRun,
		LastTook: lastTook,
	}
}

// RecentRuns returns up to limit of the most recent runs, newest first.
func (w *Worker) RecentRuns(limit int) []RunRecord {
	return w.history.Recent(limit)
}

// LastRun returns the most recent run, if any.
func (w *Worker) LastRun() (RunRecord, bool) {
	return w.history.Last()
}
