// Package queue implements C2, the durable job queue: enqueue with
// idempotency collapsing, lease/heartbeat/complete/fail with backoff,
// and a reaper that reclaims expired leases. It is the at-least-once
// delivery mechanism the scheduler (C8) polls — the queue itself never
// dispatches work.
package queue

import (
	"encoding/json"
	"time"

	"github.com/cinequeue/cinequeue/internal/catalog"
)

// Job is a durable queue entry (spec.md §3).
type Job struct {
	ID             int64
	Kind           catalog.JobKind
	Payload        json.RawMessage
	Status         catalog.JobStatus
	ScheduledAt    time.Time
	Attempts       int
	MaxAttempts    int
	LeaseUntil     *time.Time
	LeaseHolder    string
	IdempotencyKey string
	ParentEventID  string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnqueueOptions mirrors spec.md §4.2's `opts` parameter to enqueue.
type EnqueueOptions struct {
	ScheduledAt    time.Time
	MaxAttempts    int
	IdempotencyKey string
	ParentEventID  string
}

// Decode unmarshals the job's payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// SearchPayload is the payload for a JobKindSearch job.
type SearchPayload struct {
	MovieID int64 `json:"movieId"`
}

// GrabPayload is the payload for a JobKindGrab job.
type GrabPayload struct {
	MovieID          int64  `json:"movieId"`
	IndexerID        int64  `json:"indexerId"`
	DownloadClientID int64  `json:"downloadClientId"`
	ReleaseTitle     string `json:"releaseTitle"`
	DownloadURL      string `json:"downloadUrl"`
	SizeBytes        int64  `json:"sizeBytes"`
	Score            int    `json:"score"`
	Quality          string `json:"quality"`
	Protocol         string `json:"protocol"`
}

// MonitorPayload is the payload for a JobKindMonitor job; monitor jobs
// are singleton tickers rather than per-movie, so the payload is empty.
type MonitorPayload struct{}

// ImportPayload is the payload for a JobKindImport job.
type ImportPayload struct {
	MovieID     int64  `json:"movieId"`
	QueueItemID int64  `json:"queueItemId"`
}

// RefreshPayload is the payload for a JobKindRefresh job.
type RefreshPayload struct {
	MovieID int64 `json:"movieId"`
}

// ListSyncPayload is the payload for a JobKindListSync job.
type ListSyncPayload struct {
	ListName string `json:"listName"`
}
