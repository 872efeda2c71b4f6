package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-kick-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerStub struct {
	stats core.WorkerStats
}

func (s workerStub) Stats() core.WorkerStats { return s.stats }

func TestSnapshotPoller_CollectsWorkerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("kickrunner", reg, 10*time.Millisecond)
	require.NoError(t, err)

	poller.AddWorker("render", workerStub{stats: core.WorkerStats{
		State:    core.StateBusy,
		Runs:     7,
		Accepted: 8,
		Dropped:  3,
		LastTook: 500 * time.Millisecond,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(poller.workerRuns.WithLabelValues("render")) == 7
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(core.StateBusy), testutil.ToFloat64(poller.workerState.WithLabelValues("render")))
	assert.Equal(t, float64(1), testutil.ToFloat64(poller.workerBusy.WithLabelValues("render")))
	assert.Equal(t, float64(3), testutil.ToFloat64(poller.workerDropped.WithLabelValues("render")))
	assert.Equal(t, 0.5, testutil.ToFloat64(poller.workerLastTook.WithLabelValues("render")))
}

func TestSnapshotPoller_RealWorker(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 5*time.Millisecond)
	require.NoError(t, err)

	w := core.NewWorker(&core.WorkerConfig{Name: "physics"})
	w.Create(func(ctx context.Context) {})
	w.Signal()
	w.Wait()
	defer w.Destroy()

	poller.AddWorker(w.Name(), w)
	poller.Start(context.Background())
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(poller.workerRuns.WithLabelValues("physics")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(core.StateIdle), testutil.ToFloat64(poller.workerState.WithLabelValues("physics")))

	poller.RemoveWorker("physics")
	assert.Equal(t, 0, testutil.CollectAndCount(poller.workerRuns))
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("kickrunner", reg, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}
