package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingMetrics struct {
	mu        sync.Mutex
	durations int
	panics    int
	kicks     map[bool]int
	dropped   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{kicks: map[bool]int{}, dropped: map[string]int{}}
}

func (m *recordingMetrics) RecordRunDuration(string, time.Duration) {
	m.mu.Lock()
	m.durations++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordRunPanic(string, any) {
	m.mu.Lock()
	m.panics++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordKick(_ string, accepted bool) {
	m.mu.Lock()
	m.kicks[accepted]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordKickDropped(_ string, reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func TestWorker_RecordsMetrics(t *testing.T) {
	metrics := newRecordingMetrics()
	w := NewWorker(&WorkerConfig{Name: "m", Metrics: metrics})

	started := make(chan struct{})
	release := make(chan struct{})
	w.Create(func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})

	w.Signal()
	<-started
	w.Signal()
	close(release)
	w.Wait()
	w.Destroy()
	w.Signal()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.durations)
	assert.Equal(t, 1, metrics.kicks[true])
	assert.Equal(t, 2, metrics.kicks[false])
	assert.Equal(t, 1, metrics.dropped["busy"])
	assert.Equal(t, 1, metrics.dropped["shutdown"])
}

func TestWorker_TracesRuns(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	w := NewWorker(&WorkerConfig{
		Name:         "traced",
		Tracer:       provider.Tracer("test"),
		PanicHandler: PanicHandlerFunc(func(context.Context, *PanicError) {}),
	})
	defer w.Destroy()

	var runs int
	w.Create(func(ctx context.Context) {
		runs++
		if runs == 2 {
			panic("second run fails")
		}
	})

	w.Signal()
	w.Wait()
	w.Signal()
	w.Wait()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "kickrunner.run", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestLoggingPanicHandler(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewWorker(&WorkerConfig{
		Name:         "logged",
		PanicHandler: &LoggingPanicHandler{Logger: zap.New(core)},
	})
	defer w.Destroy()

	w.Create(func(ctx context.Context) { panic("oops") })
	w.Signal()
	w.Wait()

	entries := logs.FilterMessage("worker callback panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "logged", entries[0].ContextMap()["worker"])
}

func TestWorker_LogsLifecycle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := NewWorker(&WorkerConfig{Name: "life", Logger: zap.New(core)})

	w.Create(func(ctx context.Context) {})
	w.Signal()
	w.Wait()
	w.Destroy()

	assert.Equal(t, 1, logs.FilterMessage("worker created").Len())
	assert.Equal(t, 1, logs.FilterMessage("kick accepted").Len())
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
	assert.Equal(t, 1, logs.FilterMessage("worker destroyed").Len())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
