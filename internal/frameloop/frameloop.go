// Package frameloop drives a worker at a fixed frame rate.
package frameloop

import (
	"context"
	"errors"
	"time"

	"github.com/Swind/go-kick-runner/core"
	"go.uber.org/zap"
)

// Kicker is the part of a worker the loop needs. *core.Worker satisfies it.
type Kicker interface {
	Signal() bool
	WaitContext(ctx context.Context) error
	RecentRuns(limit int) []core.RunRecord
}

// runScanLimit bounds how many completed runs are inspected per frame. At most
// two runs can complete between consecutive scans.
const runScanLimit = 8

// Options configures Run.
type Options struct {
	Interval time.Duration
	Frames   int  // 0 runs until ctx is cancelled
	WaitEach bool // wait for the previous frame before kicking the next
	Logger   *zap.Logger
}

// Result summarises a loop.
type Result struct {
	Frames     int
	Accepted   int
	Dropped    int
	Overruns   int // completed runs that took longer than Interval
	StartTicks uint64
	EndTicks   uint64
}

// ElapsedMS returns the loop's duration in milliseconds.
func (r Result) ElapsedMS() uint64 {
	return r.EndTicks - r.StartTicks
}

// Run kicks k once per interval. With WaitEach it first waits for the
// previous run, so no kick is dropped but slow frames delay the schedule;
// without it, kicks landing on a busy worker are dropped and counted.
//
// Cancelling ctx ends the loop; Run returns nil in that case when Frames is 0.
func Run(ctx context.Context, k Kicker, opts Options) (Result, error) {
	if opts.Interval <= 0 {
		return Result{}, errors.New("frameloop: interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res := Result{StartTicks: core.GetTicks()}
	var lastSeq uint64
	if recent := k.RecentRuns(1); len(recent) > 0 {
		lastSeq = recent[0].Seq
	}

	// checkOverruns counts runs finished since the previous call.
	checkOverruns := func() {
		recent := k.RecentRuns(runScanLimit)
		for i := len(recent) - 1; i >= 0; i-- {
			run := recent[i]
			if run.Seq <= lastSeq {
				continue
			}
			lastSeq = run.Seq
			if run.Duration > opts.Interval {
				res.Overruns++
				logger.Warn("run overran the frame interval",
					zap.Uint64("seq", run.Seq),
					zap.Duration("took", run.Duration),
					zap.Duration("interval", opts.Interval),
				)
			}
		}
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	finish := func(err error) (Result, error) {
		// Let the last accepted frame finish before reporting.
		waitErr := k.WaitContext(context.WithoutCancel(ctx))
		checkOverruns()
		res.EndTicks = core.GetTicks()
		if err == nil {
			err = waitErr
		}
		return res, err
	}

	for opts.Frames == 0 || res.Frames < opts.Frames {
		if opts.WaitEach {
			if err := k.WaitContext(ctx); err != nil {
				return finish(cancelResult(err, opts.Frames))
			}
		}

		checkOverruns()

		if k.Signal() {
			res.Accepted++
		} else {
			res.Dropped++
		}
		res.Frames++

		if opts.Frames != 0 && res.Frames >= opts.Frames {
			break
		}

		select {
		case <-ctx.Done():
			return finish(cancelResult(ctx.Err(), opts.Frames))
		case <-ticker.C:
		}
	}

	return finish(nil)
}

func cancelResult(err error, frames int) error {
	if frames == 0 && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
