// Package downloader implements C6: a capability interface over torrent
// and usenet download clients (add/status/remove/list-active), grounded
// on the teacher's internal/downloader/types package, trimmed to the
// capabilities spec.md §4.6 actually names and with pause/resume and
// seed-limit control dropped as out of scope for the automation loop.
package downloader

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("download client not connected")
	ErrAuthFailed   = errors.New("download client authentication failed")
	ErrNotFound     = errors.New("download not found in client")
)

// Protocol is the delivery mechanism a client handles.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// Status is the normalized lifecycle state of a download, independent
// of any one client's native vocabulary.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusSeeding     Status = "seeding"
	StatusError       Status = "error"
)

// AddOptions specifies how to hand a release to a client.
type AddOptions struct {
	URL         string // magnet link, .torrent URL, or .nzb URL
	Name        string
	Category    string
	DownloadDir string
}

// Item is a client's live view of one download.
type Item struct {
	ID             string
	Name           string
	Status         Status
	ProgressPct    float64
	Size           int64
	DownloadedSize int64
	ETASeconds     int64
	DownloadDir    string
	Error          string
}

// IsComplete reports whether the item has finished downloading,
// regardless of whether a torrent client has moved on to seeding. This
// alone is not sufficient to emit DownloadCompleted: spec.md §4.6
// requires a stable "completed + file present" double-check first
// (see Monitor.pollOne), since a client can flip to completed a poll
// or two before its post-processing (unpacking, moving) has actually
// put files on disk.
func (i Item) IsComplete() bool {
	return i.Status == StatusCompleted || i.Status == StatusSeeding
}

// Client is the capability interface every download-client adapter
// implements: add a release, list/get live state, and remove an entry.
// Persisting the QueueItem row always happens before Add is called
// (spec.md §4.6), so a daemon-side failure never loses the record of
// what was attempted.
type Client interface {
	Protocol() Protocol
	Add(ctx context.Context, opts AddOptions) (downloadID string, err error)
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, downloadID string) (*Item, error)
	Remove(ctx context.Context, downloadID string, deleteFiles bool) error
}
