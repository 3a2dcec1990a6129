// Package scheduler implements C8: the worker-pool orchestrator that
// turns durable queue.Job rows into calls against C4-C7 (indexer pool,
// decision engine, download clients, import pipeline) and turns
// eventbus.Event notifications into new jobs. It is grounded on the
// teacher's scheduler.go + scheduler/tasks/*.go (a gocron TaskFunc
// registry), generalized from "run a cron task" into "run a bounded
// worker pool per job kind, plus a gocron ticker per periodic
// producer" since this module's jobs are durable queue rows rather
// than fire-and-forget task invocations.
package scheduler

import (
	"time"

	"github.com/cinequeue/cinequeue/internal/catalog"
)

// Config controls lease duration, poll cadence, and per-kind
// concurrency caps.
type Config struct {
	WorkerID        string
	LeaseDuration   time.Duration
	PollInterval    time.Duration
	ReapInterval    time.Duration
	MonitorInterval time.Duration
	RssSyncInterval time.Duration
	Concurrency     map[catalog.JobKind]int
}

// DefaultConcurrency bounds how many jobs of each kind may run at once.
// Grab and import touch the filesystem and external daemons so they are
// capped tighter than the read-only search kind.
func DefaultConcurrency() map[catalog.JobKind]int {
	return map[catalog.JobKind]int{
		catalog.JobKindSearch:   4,
		catalog.JobKindGrab:     2,
		catalog.JobKindMonitor:  1,
		catalog.JobKindImport:   2,
		catalog.JobKindRefresh:  2,
		catalog.JobKindListSync: 1,
	}
}

// DefaultConfig returns sane defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		WorkerID:        "scheduler",
		LeaseDuration:   5 * time.Minute,
		PollInterval:    2 * time.Second,
		ReapInterval:    time.Minute,
		MonitorInterval: 10 * time.Second,
		RssSyncInterval: 15 * time.Minute,
		Concurrency:     DefaultConcurrency(),
	}
}
