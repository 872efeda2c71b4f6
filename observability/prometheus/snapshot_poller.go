package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-kick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// WorkerSnapshotProvider provides current worker stats snapshots.
// *core.Worker satisfies it.
type WorkerSnapshotProvider interface {
	Stats() core.WorkerStats
}

// SnapshotPoller periodically exports worker Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	workersMu sync.RWMutex
	workers   map[string]WorkerSnapshotProvider

	workerState    *prom.GaugeVec
	workerBusy     *prom.GaugeVec
	workerRuns     *prom.GaugeVec
	workerAccepted *prom.GaugeVec
	workerDropped  *prom.GaugeVec
	workerPanics   *prom.GaugeVec
	workerLastTook *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "kickrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"worker"})
	}

	p := &SnapshotPoller{
		interval:       interval,
		workers:        make(map[string]WorkerSnapshotProvider),
		workerState:    gauge("worker_state", "Worker lifecycle state (0=uncreated 1=idle 2=pending 3=busy 4=shutting_down 5=terminated)."),
		workerBusy:     gauge("worker_busy", "Worker busy state (1=run in flight or pending, 0=otherwise)."),
		workerRuns:     gauge("worker_runs", "Completed runs snapshot."),
		workerAccepted: gauge("worker_kicks_accepted", "Accepted kicks snapshot."),
		workerDropped:  gauge("worker_kicks_dropped", "Dropped kicks snapshot."),
		workerPanics:   gauge("worker_panics", "Recovered panics snapshot."),
		workerLastTook: gauge("worker_last_run_seconds", "Duration of the most recent run in seconds."),
	}

	for _, target := range []**prom.GaugeVec{
		&p.workerState, &p.workerBusy, &p.workerRuns, &p.workerAccepted,
		&p.workerDropped, &p.workerPanics, &p.workerLastTook,
	} {
		registered, err := registerCollector(reg, *target)
		if err != nil {
			return nil, err
		}
		*target = registered
	}

	return p, nil
}

// AddWorker adds or replaces a worker snapshot provider by name.
func (p *SnapshotPoller) AddWorker(name string, provider WorkerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "worker")
	p.workersMu.Lock()
	p.workers[name] = provider
	p.workersMu.Unlock()
}

// RemoveWorker stops exporting the named worker and deletes its series.
func (p *SnapshotPoller) RemoveWorker(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "worker")
	p.workersMu.Lock()
	delete(p.workers, name)
	p.workersMu.Unlock()

	for _, vec := range []*prom.GaugeVec{
		p.workerState, p.workerBusy, p.workerRuns, p.workerAccepted,
		p.workerDropped, p.workerPanics, p.workerLastTook,
	} {
		vec.DeleteLabelValues(name)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.workersMu.RLock()
	defer p.workersMu.RUnlock()

	for name, provider := range p.workers {
		stats := provider.Stats()
		p.workerState.WithLabelValues(name).Set(float64(stats.State))
		if stats.State.IsActive() {
			p.workerBusy.WithLabelValues(name).Set(1)
		} else {
			p.workerBusy.WithLabelValues(name).Set(0)
		}
		p.workerRuns.WithLabelValues(name).Set(float64(stats.Runs))
		p.workerAccepted.WithLabelValues(name).Set(float64(stats.Accepted))
		p.workerDropped.WithLabelValues(name).Set(float64(stats.Dropped))
		p.workerPanics.WithLabelValues(name).Set(float64(stats.Panics))
		p.workerLastTook.WithLabelValues(name).Set(stats.LastTook.Seconds())
	}
}
