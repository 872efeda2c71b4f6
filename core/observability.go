package core

import "time"

// RunRecord captures one completed execution of a worker's callback.
type RunRecord struct {
	Seq        uint64
	Worker     string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	StartTicks uint64
	Panicked   bool
}

// WorkerStats represents runtime observability state for a worker.
type WorkerStats struct {
	ID       string
	Name     string
	State    WorkerState
	Accepted int64
	Dropped  int64
	Runs     int64
	Panics   int64
	LastRun  time.Time
	LastTook time.Duration
}
