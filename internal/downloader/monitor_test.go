package downloader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/downloader"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/queue"
)

type fakeClient struct {
	items map[string]downloader.Item
}

func (f *fakeClient) Protocol() downloader.Protocol { return downloader.ProtocolTorrent }
func (f *fakeClient) Add(ctx context.Context, opts downloader.AddOptions) (string, error) {
	return "", nil
}
func (f *fakeClient) List(ctx context.Context) ([]downloader.Item, error) { return nil, nil }
func (f *fakeClient) Get(ctx context.Context, downloadID string) (*downloader.Item, error) {
	item, ok := f.items[downloadID]
	if !ok {
		return nil, downloader.ErrNotFound
	}
	return &item, nil
}
func (f *fakeClient) Remove(ctx context.Context, downloadID string, deleteFiles bool) error {
	return nil
}

func newTestSetup(t *testing.T) (*catalog.Store, *queue.Queue, *eventbus.Bus, context.Context) {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := queue.New(store.DB(), queue.BackoffConfig{Base: 10 * time.Millisecond, Max: time.Second}, zerolog.Nop())

	bus := eventbus.New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)
	t.Cleanup(cancel)

	return store, q, bus, ctx
}

func seedMovie(t *testing.T, ctx context.Context, store *catalog.Store) *catalog.Movie {
	t.Helper()
	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey:         "tt0000001",
		Title:               "Test Movie",
		Year:                2020,
		Monitored:           true,
		QualityProfileID:    1,
		MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot:            "/movies/test-movie",
	})
	require.NoError(t, err)
	return movie
}

func TestMonitor_PollUpdatesProgressForActiveDownload(t *testing.T) {
	store, q, bus, ctx := newTestSetup(t)

	movie := seedMovie(t, ctx, store)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          movie.ID,
		DownloadClientID: 1,
		DownloadID:       "hash-1",
		Status:           catalog.QueueItemDownloading,
	})
	require.NoError(t, err)

	client := &fakeClient{items: map[string]downloader.Item{
		"hash-1": {ID: "hash-1", Status: downloader.StatusDownloading, ProgressPct: 42, Size: 100, DownloadedSize: 42},
	}}
	registry := downloader.StaticRegistry{1: client}
	m := downloader.NewMonitor(store, registry, q, bus, zerolog.Nop())

	require.NoError(t, m.Poll(ctx))

	updated, err := store.Queue.Get(ctx, qi.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, updated.ProgressPct)
	assert.Equal(t, catalog.QueueItemDownloading, updated.Status)
}

func TestMonitor_PollEnqueuesImportOnCompletion(t *testing.T) {
	store, q, bus, ctx := newTestSetup(t)

	movie := seedMovie(t, ctx, store)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          movie.ID,
		DownloadClientID: 1,
		DownloadID:       "hash-2",
		Status:           catalog.QueueItemDownloading,
	})
	require.NoError(t, err)

	downloadDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(downloadDir, "movie.mkv"), []byte("not actually a movie"), 0o644))

	client := &fakeClient{items: map[string]downloader.Item{
		"hash-2": {ID: "hash-2", Status: downloader.StatusCompleted, ProgressPct: 100, DownloadDir: downloadDir},
	}}
	registry := downloader.StaticRegistry{1: client}
	m := downloader.NewMonitor(store, registry, q, bus, zerolog.Nop())

	// The first poll only starts the completed+file-present streak; the
	// import job isn't enqueued until a second consecutive poll confirms
	// it wasn't a transient status flip.
	require.NoError(t, m.Poll(ctx))
	afterFirst, err := store.Queue.Get(ctx, qi.ID)
	require.NoError(t, err)
	assert.NotEqual(t, catalog.QueueItemCompleted, afterFirst.Status)

	require.NoError(t, m.Poll(ctx))

	updated, err := store.Queue.Get(ctx, qi.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.QueueItemCompleted, updated.Status)

	job, err := q.Lease(ctx, []catalog.JobKind{catalog.JobKindImport}, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	var payload queue.ImportPayload
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, qi.ID, payload.QueueItemID)
}

func TestMonitor_PollDoesNotCompleteWithoutFilesPresent(t *testing.T) {
	store, q, bus, ctx := newTestSetup(t)

	movie := seedMovie(t, ctx, store)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          movie.ID,
		DownloadClientID: 1,
		DownloadID:       "hash-3",
		Status:           catalog.QueueItemDownloading,
	})
	require.NoError(t, err)

	emptyDir := t.TempDir()
	client := &fakeClient{items: map[string]downloader.Item{
		"hash-3": {ID: "hash-3", Status: downloader.StatusCompleted, ProgressPct: 100, DownloadDir: emptyDir},
	}}
	registry := downloader.StaticRegistry{1: client}
	m := downloader.NewMonitor(store, registry, q, bus, zerolog.Nop())

	require.NoError(t, m.Poll(ctx))
	require.NoError(t, m.Poll(ctx))

	updated, err := store.Queue.Get(ctx, qi.ID)
	require.NoError(t, err)
	assert.NotEqual(t, catalog.QueueItemCompleted, updated.Status, "a completed status with no files on disk should never finalize")
}

func TestMonitor_PollMarksDisappearedDownloadFailed(t *testing.T) {
	store, q, bus, ctx := newTestSetup(t)

	movie := seedMovie(t, ctx, store)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          movie.ID,
		DownloadClientID: 1,
		DownloadID:       "vanished",
		Status:           catalog.QueueItemDownloading,
	})
	require.NoError(t, err)

	registry := downloader.StaticRegistry{1: &fakeClient{items: map[string]downloader.Item{}}}
	m := downloader.NewMonitor(store, registry, q, bus, zerolog.Nop())

	require.NoError(t, m.Poll(ctx))

	updated, err := store.Queue.Get(ctx, qi.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.QueueItemFailed, updated.Status)
}
