package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-kick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	runDurationSeconds *prom.HistogramVec
	runPanicTotal      *prom.CounterVec
	kickTotal          *prom.CounterVec
	kickDroppedTotal   *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "kickrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Callback run duration in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_panic_total",
		Help:      "Total number of recovered callback panics.",
	}, []string{"worker"})
	kickVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "kick_total",
		Help:      "Total number of kicks by outcome.",
	}, []string{"worker", "outcome"})
	droppedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "kick_dropped_total",
		Help:      "Total number of dropped kicks by reason.",
	}, []string{"worker", "reason"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if kickVec, err = registerCollector(reg, kickVec); err != nil {
		return nil, err
	}
	if droppedVec, err = registerCollector(reg, droppedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		runDurationSeconds: durationVec,
		runPanicTotal:      panicVec,
		kickTotal:          kickVec,
		kickDroppedTotal:   droppedVec,
	}, nil
}

// RecordRunDuration records callback run duration.
func (m *MetricsExporter) RecordRunDuration(workerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.WithLabelValues(normalizeLabel(workerName, "unknown")).Observe(duration.Seconds())
}

// RecordRunPanic records recovered panics.
func (m *MetricsExporter) RecordRunPanic(workerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.runPanicTotal.WithLabelValues(normalizeLabel(workerName, "unknown")).Inc()
}

// RecordKick records a kick and its outcome.
func (m *MetricsExporter) RecordKick(workerName string, accepted bool) {
	if m == nil {
		return
	}
	m.kickTotal.WithLabelValues(normalizeLabel(workerName, "unknown"), outcomeLabel(accepted)).Inc()
}

// RecordKickDropped records why a kick was dropped.
func (m *MetricsExporter) RecordKickDropped(workerName string, reason string) {
	if m == nil {
		return
	}
	m.kickDroppedTotal.WithLabelValues(normalizeLabel(workerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func outcomeLabel(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "dropped"
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
