package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/queue"
)

// completionStableStreak is the number of consecutive polls a download
// must report completed-with-files-present before DownloadCompleted is
// emitted, per spec.md §4.6's "stable completed + file present
// double-check before emitting DownloadCompleted to avoid false
// positives during post-processing".
const completionStableStreak = 2

// ClientRegistry resolves a download-client ID to its live adapter, the
// same indirection the teacher's completion scanner uses so the monitor
// never constructs clients itself.
type ClientRegistry interface {
	Get(clientID int64) (Client, bool)
}

// StaticRegistry is a ClientRegistry backed by a fixed map, sufficient
// for a single-user deployment with a handful of configured clients.
type StaticRegistry map[int64]Client

func (r StaticRegistry) Get(clientID int64) (Client, bool) {
	c, ok := r[clientID]
	return c, ok
}

// Monitor polls every active QueueItem against its owning client,
// persisting progress, detecting completion, and detecting downloads
// that disappeared from the client entirely (spec.md §4.6's
// "disappeared download" case), grounded on the teacher's
// CheckForCompletedDownloads / CheckForDisappearedDownloads pair in
// internal/downloader/completion.go.
type Monitor struct {
	store   *catalog.Store
	clients ClientRegistry
	queue   *queue.Queue
	bus     *eventbus.Bus
	logger  zerolog.Logger

	mu              sync.Mutex
	completeStreaks map[int64]int
}

// NewMonitor builds a Monitor.
func NewMonitor(store *catalog.Store, clients ClientRegistry, q *queue.Queue, bus *eventbus.Bus, logger zerolog.Logger) *Monitor {
	return &Monitor{
		store:           store,
		clients:         clients,
		queue:           q,
		bus:             bus,
		logger:          logger.With().Str("component", "downloader-monitor").Logger(),
		completeStreaks: make(map[int64]int),
	}
}

// Poll runs a single monitoring pass over every active queue item.
func (m *Monitor) Poll(ctx context.Context) error {
	items, err := m.store.Queue.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active queue items: %w", err)
	}

	for _, qi := range items {
		if err := m.pollOne(ctx, qi); err != nil {
			m.logger.Warn().Err(err).Int64("queueItemId", qi.ID).Msg("failed to poll queue item")
		}
	}
	return nil
}

func (m *Monitor) pollOne(ctx context.Context, qi *catalog.QueueItem) error {
	client, ok := m.clients.Get(qi.DownloadClientID)
	if !ok {
		return fmt.Errorf("no client registered for id %d", qi.DownloadClientID)
	}

	item, err := client.Get(ctx, qi.DownloadID)
	if err != nil {
		if err == ErrNotFound {
			return m.handleDisappeared(ctx, qi)
		}
		return err
	}

	if item.IsComplete() && hasFilesPresent(item.DownloadDir) {
		if m.bumpCompleteStreak(qi.ID) < completionStableStreak {
			return m.updateProgress(ctx, qi, item)
		}
		m.clearCompleteStreak(qi.ID)
		return m.handleCompleted(ctx, qi, item)
	}

	m.clearCompleteStreak(qi.ID)
	return m.updateProgress(ctx, qi, item)
}

// bumpCompleteStreak records one more consecutive completed-with-files
// poll for a queue item and returns the new streak length.
func (m *Monitor) bumpCompleteStreak(queueItemID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeStreaks[queueItemID]++
	return m.completeStreaks[queueItemID]
}

func (m *Monitor) clearCompleteStreak(queueItemID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.completeStreaks, queueItemID)
}

// hasFilesPresent reports whether dir exists and contains at least one
// regular file with nonzero size, confirming post-processing inside
// the download client (unpacking, moving into place) has actually
// produced output rather than just flipped a status flag.
func hasFilesPresent(dir string) bool {
	if dir == "" {
		return false
	}
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.Type().IsRegular() {
			if info, statErr := d.Info(); statErr == nil && info.Size() > 0 {
				found = true
			}
		}
		return nil
	})
	return found
}

func (m *Monitor) updateProgress(ctx context.Context, qi *catalog.QueueItem, item *Item) error {
	qi.Status = catalog.QueueItemDownloading
	qi.ProgressPct = item.ProgressPct
	qi.SizeTotal = item.Size
	qi.SizeDownloaded = item.DownloadedSize
	qi.ETASeconds = item.ETASeconds
	qi.OutputPath = item.DownloadDir

	if err := m.store.Queue.Update(ctx, qi); err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}

	m.bus.PublishLossy(ctx, eventbus.DownloadProgress, fmt.Sprintf("movie-%d", qi.MovieID), map[string]any{
		"queue_item_id": qi.ID,
		"movie_id":      qi.MovieID,
		"progress_pct":  qi.ProgressPct,
	})
	return nil
}

func (m *Monitor) handleCompleted(ctx context.Context, qi *catalog.QueueItem, item *Item) error {
	qi.Status = catalog.QueueItemCompleted
	qi.ProgressPct = 100
	qi.OutputPath = item.DownloadDir
	if err := m.store.Queue.Update(ctx, qi); err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}

	if _, err := m.queue.Enqueue(ctx, catalog.JobKindImport, queue.ImportPayload{
		MovieID:     qi.MovieID,
		QueueItemID: qi.ID,
	}, queue.EnqueueOptions{IdempotencyKey: fmt.Sprintf("import:%d", qi.ID)}); err != nil {
		return fmt.Errorf("enqueue import job: %w", err)
	}

	m.bus.Publish(ctx, eventbus.DownloadCompleted, fmt.Sprintf("movie-%d", qi.MovieID), map[string]any{
		"queue_item_id": qi.ID,
		"movie_id":      qi.MovieID,
	})
	return nil
}

func (m *Monitor) handleDisappeared(ctx context.Context, qi *catalog.QueueItem) error {
	qi.Status = catalog.QueueItemFailed
	if err := m.store.Queue.Update(ctx, qi); err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}

	movieID := qi.MovieID
	_ = m.store.History.Append(ctx, &catalog.HistoryEvent{
		MovieID:   &movieID,
		EventKind: catalog.HistoryDownloadFailed,
		Data:      map[string]any{"queue_item_id": qi.ID, "reason": "download disappeared from client"},
	})

	m.bus.Publish(ctx, eventbus.DownloadFailed, fmt.Sprintf("movie-%d", qi.MovieID), map[string]any{
		"queue_item_id": qi.ID,
		"movie_id":      qi.MovieID,
		"reason":        "disappeared",
	})
	m.logger.Warn().Int64("queueItemId", qi.ID).Msg("download disappeared from client, marked failed")
	return nil
}

// PollInterval is the suggested cadence for the scheduler to invoke Poll
// (spec.md §4.6's progress-polling cadence).
const PollInterval = 15 * time.Second
