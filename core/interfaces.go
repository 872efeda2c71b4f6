package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// PanicHandler: Interface for handling callback panics
// =============================================================================

// PanicHandler is called when a worker's callback panics.
//
// Installing a handler turns a callback panic from a process crash into a
// reported failure. The worker returns to idle afterwards and keeps serving
// kicks. Implementations must be safe for concurrent use when shared between
// workers.
type PanicHandler interface {
	HandlePanic(ctx context.Context, err *PanicError)
}

// PanicHandlerFunc adapts a function to PanicHandler.
type PanicHandlerFunc func(ctx context.Context, err *PanicError)

// HandlePanic calls f(ctx, err).
func (f PanicHandlerFunc) HandlePanic(ctx context.Context, err *PanicError) {
	f(ctx, err)
}

// LoggingPanicHandler reports panics through a zap logger.
type LoggingPanicHandler struct {
	Logger *zap.Logger
}

// HandlePanic logs the panic value and stack at error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, err *PanicError) {
	logger := h.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Error("worker callback panicked",
		zap.String("worker", err.Worker),
		zap.Any("panic", err.Value),
		zap.ByteString("stack", err.Stack),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects worker execution metrics.
// Methods are called from the hot path and should not block.
type Metrics interface {
	// RecordRunDuration records how long one callback run took.
	RecordRunDuration(workerName string, duration time.Duration)

	// RecordRunPanic records a recovered callback panic.
	RecordRunPanic(workerName string, panicInfo any)

	// RecordKick records a Signal call and whether it was accepted.
	RecordKick(workerName string, accepted bool)

	// RecordKickDropped records why a kick was dropped ("busy", "shutdown").
	RecordKickDropped(workerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation.
type NilMetrics struct{}

// RecordRunDuration is a no-op.
func (m *NilMetrics) RecordRunDuration(workerName string, duration time.Duration) {}

// RecordRunPanic is a no-op.
func (m *NilMetrics) RecordRunPanic(workerName string, panicInfo any) {}

// RecordKick is a no-op.
func (m *NilMetrics) RecordKick(workerName string, accepted bool) {}

// RecordKickDropped is a no-op.
func (m *NilMetrics) RecordKickDropped(workerName string, reason string) {}

// =============================================================================
// WorkerConfig: Configuration for Worker
// =============================================================================

const tracerName = "github.com/Swind/go-kick-runner"

// WorkerConfig holds configuration options for a Worker.
// Zero-valued fields are replaced by defaults in NewWorker.
type WorkerConfig struct {
	// Name labels logs, metrics and spans. Defaults to "worker-" plus a short ID.
	Name string

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer

	// PanicHandler is nil by default: a panicking callback crashes the process.
	PanicHandler PanicHandler

	// HistoryCapacity bounds RecentRuns. Defaults to 64.
	HistoryCapacity int
}

// DefaultWorkerConfig returns a config with default collaborators.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Logger:          zap.NewNop(),
		Metrics:         &NilMetrics{},
		Tracer:          otel.Tracer(tracerName),
		HistoryCapacity: defaultRunHistoryCapacity,
	}
}

func (c *WorkerConfig) withDefaults() WorkerConfig {
	out := *DefaultWorkerConfig()
	if c == nil {
		return out
	}
	out.Name = c.Name
	out.PanicHandler = c.PanicHandler
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	if c.Tracer != nil {
		out.Tracer = c.Tracer
	}
	if c.HistoryCapacity > 0 {
		out.HistoryCapacity = c.HistoryCapacity
	}
	return out
}
