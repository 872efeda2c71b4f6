package kickrunner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-kick-runner/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGroup_AddSignalWait verifies workers in a group are kicked and awaited together
// Given: A group with two counting workers
// When: SignalAll then WaitAll are called three times
// Then: Each worker ran three times
func TestGroup_AddSignalWait(t *testing.T) {
	g := NewGroup(nil)
	defer g.Destroy()

	var audio, render atomic.Int32
	_, err := g.Add("audio", func(ctx context.Context) { audio.Add(1) })
	require.NoError(t, err)
	_, err = g.Add("render", func(ctx context.Context) { render.Add(1) })
	require.NoError(t, err)

	for range 3 {
		accepted := g.SignalAll()
		assert.Equal(t, map[string]bool{"audio": true, "render": true}, accepted)
		g.WaitAll()
	}

	assert.Equal(t, int32(3), audio.Load())
	assert.Equal(t, int32(3), render.Load())
	assert.Equal(t, []string{"audio", "render"}, g.Names())
}

func TestGroup_AddErrors(t *testing.T) {
	g := NewGroup(nil)

	_, err := g.Add("a", nil)
	assert.ErrorIs(t, err, core.ErrNilCallback)

	_, err = g.Add("a", func(ctx context.Context) {})
	require.NoError(t, err)
	_, err = g.Add("a", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrDuplicateWorker)

	g.Destroy()
	_, err = g.Add("b", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrGroupClosed)
}

func TestGroup_SignalUnknown(t *testing.T) {
	g := NewGroup(nil)
	defer g.Destroy()

	_, err := g.Signal("missing")
	assert.ErrorIs(t, err, ErrUnknownWorker)
	assert.ErrorIs(t, g.Remove("missing"), ErrUnknownWorker)
}

// TestGroup_SignalReportsDrop verifies per-worker accepted flags surface drops
func TestGroup_SignalReportsDrop(t *testing.T) {
	g := NewGroup(nil)
	defer g.Destroy()

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := g.Add("slow", func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	ok, err := g.Signal("slow")
	require.NoError(t, err)
	assert.True(t, ok)
	<-started

	ok, err = g.Signal("slow")
	require.NoError(t, err)
	assert.False(t, ok)

	close(release)
	g.WaitAll()
}

func TestGroup_WaitAllContext(t *testing.T) {
	g := NewGroup(nil)
	defer g.Destroy()

	release := make(chan struct{})
	_, err := g.Add("blocked", func(ctx context.Context) { <-release })
	require.NoError(t, err)
	g.SignalAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.WaitAllContext(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, g.WaitAllContext(context.Background()))
}

// TestGroup_RemoveAndDestroy verifies workers are terminated on removal and destroy
func TestGroup_RemoveAndDestroy(t *testing.T) {
	g := NewGroup(&core.WorkerConfig{HistoryCapacity: 4})

	a, err := g.Add("a", func(ctx context.Context) {})
	require.NoError(t, err)
	b, err := g.Add("b", func(ctx context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name())

	require.NoError(t, g.Remove("a"))
	assert.Equal(t, core.StateTerminated, a.State())
	_, ok := g.Get("a")
	assert.False(t, ok)

	stats := g.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "b", stats[0].Name)

	g.Destroy()
	g.Destroy()
	assert.Equal(t, core.StateTerminated, b.State())
	assert.Empty(t, g.Names())
}

func TestGlobalGroup(t *testing.T) {
	assert.Panics(t, func() { GlobalGroup() })

	InitGlobalGroup(nil)
	InitGlobalGroup(nil)
	g := GlobalGroup()

	var ran atomic.Bool
	w, err := g.Add("global", func(ctx context.Context) { ran.Store(true) })
	require.NoError(t, err)
	w.Signal()
	w.Wait()
	assert.True(t, ran.Load())

	ShutdownGlobalGroup()
	assert.Equal(t, core.StateTerminated, w.State())
	assert.Panics(t, func() { GlobalGroup() })
}

func TestStartWorker(t *testing.T) {
	var n atomic.Int32
	w := StartWorker(&WorkerConfig{Name: "quick"}, func(ctx context.Context) {
		n.Add(1)
		assert.Equal(t, "quick", CurrentWorker(ctx).Name())
	})
	defer w.Destroy()

	assert.Equal(t, StateIdle, w.State())
	w.Signal()
	w.Wait()
	assert.Equal(t, int32(1), n.Load())
}

// TestGroup_SignalSelfDestroyed verifies a kick aimed at a worker that destroyed
// itself from its callback reports ErrWorkerTerminated
func TestGroup_SignalSelfDestroyed(t *testing.T) {
	// Given: a worker whose callback destroys its own handle
	g := NewGroup(nil)
	defer g.Destroy()

	w, err := g.Add("oneshot", func(ctx context.Context) {
		CurrentWorker(ctx).Destroy()
	})
	require.NoError(t, err)

	// When: it runs once
	ok, err := g.Signal("oneshot")
	require.NoError(t, err)
	require.True(t, ok)
	w.Wait()

	// Then: further kicks fail with ErrWorkerTerminated
	ok, err = g.Signal("oneshot")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrWorkerTerminated)
}
