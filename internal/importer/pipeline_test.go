package importer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/importer"
	"github.com/cinequeue/cinequeue/internal/queue"
)

func newTestPipeline(t *testing.T) (*importer.Pipeline, *catalog.Store, context.Context) {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := eventbus.New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)
	t.Cleanup(cancel)

	prober := importer.NewProber("/nonexistent/ffprobe")
	cfg := importer.DefaultConfig()
	p := importer.NewPipeline(store, prober, bus, cfg, zerolog.Nop())
	return p, store, ctx
}

func writeSourceFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestPipeline_RunImportsNewMovie(t *testing.T) {
	p, store, ctx := newTestPipeline(t)

	movieRoot := t.TempDir()
	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey: "tt0000001", Title: "Heat", Year: 1995,
		QualityProfileID: 1, MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot: movieRoot,
	})
	require.NoError(t, err)

	downloadDir := t.TempDir()
	writeSourceFile(t, filepath.Join(downloadDir, "Heat.1995.1080p.BluRay.x264-GROUP.mkv"), 51*1024*1024)

	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          movie.ID,
		DownloadClientID: 1,
		DownloadID:       "hash-1",
		Status:           catalog.QueueItemCompleted,
		OutputPath:       downloadDir,
		ReleaseTitle:     "Heat.1995.1080p.BluRay.x264-GROUP",
		ReleaseScore:     50,
	})
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx, queue.ImportPayload{MovieID: movie.ID, QueueItemID: qi.ID}))

	file, err := store.Files.GetCurrent(ctx, movie.ID)
	require.NoError(t, err)
	assert.True(t, file.IsCurrent)
	assert.Equal(t, "GROUP", file.SceneGroup)
	assert.Equal(t, 50, file.Score)

	updatedMovie, err := store.Movies.Get(ctx, movie.ID)
	require.NoError(t, err)
	assert.True(t, updatedMovie.HasFile)

	_, err = store.Queue.Get(ctx, qi.ID)
	assert.Error(t, err, "queue item should be removed after successful import")

	destPath := filepath.Join(movieRoot, file.RelativePath)
	_, statErr := os.Stat(destPath)
	assert.NoError(t, statErr)
}

func TestPipeline_RunFailsWhenNoVideoFilesPresent(t *testing.T) {
	p, store, ctx := newTestPipeline(t)

	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey: "tt0000002", Title: "Empty Dir", Year: 2020,
		QualityProfileID: 1, MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot: t.TempDir(),
	})
	require.NoError(t, err)

	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID: movie.ID, DownloadClientID: 1, DownloadID: "hash-2",
		Status: catalog.QueueItemCompleted, OutputPath: t.TempDir(),
	})
	require.NoError(t, err)

	err = p.Run(ctx, queue.ImportPayload{MovieID: movie.ID, QueueItemID: qi.ID})
	assert.ErrorIs(t, err, importer.ErrNoVideoFiles)
}

func TestPipeline_RunDemotesPreviousFileOnUpgrade(t *testing.T) {
	p, store, ctx := newTestPipeline(t)

	movieRoot := t.TempDir()
	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey: "tt0000003", Title: "Heat", Year: 1995,
		QualityProfileID: 1, MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot: movieRoot,
	})
	require.NoError(t, err)

	existingDest := filepath.Join(movieRoot, "Heat (1995)", "Heat (1995) 720p WEB-DL-OLD.mkv")
	writeSourceFile(t, existingDest, 10*1024*1024)
	_, _, err = store.RegisterImport(ctx, &catalog.MovieFile{
		MovieID: movie.ID, RelativePath: "Heat (1995)/Heat (1995) 720p WEB-DL-OLD.mkv",
		SizeBytes: 10 * 1024 * 1024, Quality: "720p", Score: 10, SceneGroup: "OLD",
	}, catalog.HistoryImported, nil)
	require.NoError(t, err)

	downloadDir := t.TempDir()
	writeSourceFile(t, filepath.Join(downloadDir, "Heat.1995.1080p.BluRay.x264-GROUP.mkv"), 51*1024*1024)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID: movie.ID, DownloadClientID: 1, DownloadID: "hash-3",
		Status: catalog.QueueItemCompleted, OutputPath: downloadDir,
		ReleaseTitle: "Heat.1995.1080p.BluRay.x264-GROUP", ReleaseScore: 90,
	})
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx, queue.ImportPayload{MovieID: movie.ID, QueueItemID: qi.ID}))

	file, err := store.Files.GetCurrent(ctx, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, "GROUP", file.SceneGroup)
	assert.Equal(t, 90, file.Score)

	files, err := store.Files.ListForMovie(ctx, movie.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2, "the old file row should be demoted, not deleted")

	history, err := store.History.ListForMovie(ctx, movie.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, catalog.HistoryUpgraded, history[0].EventKind, "replacing an existing file must record an Upgraded event, not Imported")

	// The previous file's path differs from the new release's computed
	// destination (different resolution/source/group tokens), so this
	// case never exercises the .prev-<timestamp> aside-rename rule —
	// that is covered separately by
	// TestPipeline_RunRenamesIncumbentAsideOnExactNameCollision.
	_, statErr := os.Stat(existingDest)
	assert.NoError(t, statErr, "a demoted file with a different name is left on disk for the caller to clean up separately")
}

func TestPipeline_RunRenamesIncumbentAsideOnExactNameCollision(t *testing.T) {
	p, store, ctx := newTestPipeline(t)

	movieRoot := t.TempDir()
	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey: "tt0000005", Title: "Heat", Year: 1995,
		QualityProfileID: 1, MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot: movieRoot,
	})
	require.NoError(t, err)

	// A stray file already sits at the exact path this release will
	// compute as its destination (e.g. left over from a prior crashed
	// import), but with no corresponding MovieFile row.
	collisionDest := filepath.Join(movieRoot, "Heat (1995)", "Heat (1995) 1080p BluRay-GROUP.mkv")
	writeSourceFile(t, collisionDest, 5*1024*1024)

	downloadDir := t.TempDir()
	writeSourceFile(t, filepath.Join(downloadDir, "Heat.1995.1080p.BluRay.x264-GROUP.mkv"), 51*1024*1024)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID: movie.ID, DownloadClientID: 1, DownloadID: "hash-5",
		Status: catalog.QueueItemCompleted, OutputPath: downloadDir,
		ReleaseTitle: "Heat.1995.1080p.BluRay.x264-GROUP", ReleaseScore: 50,
	})
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx, queue.ImportPayload{MovieID: movie.ID, QueueItemID: qi.ID}))

	file, err := store.Files.GetCurrent(ctx, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(51*1024*1024), file.SizeBytes, "the new download's file, not the stray collision file, is registered")

	got, err := os.ReadFile(filepath.Join(movieRoot, file.RelativePath))
	require.NoError(t, err)
	assert.Len(t, got, 51*1024*1024, "the final file at the collision path is the newly imported one")
}

func TestPipeline_RunRejectsNonUpgrade(t *testing.T) {
	p, store, ctx := newTestPipeline(t)

	movieRoot := t.TempDir()
	movie, err := store.Movies.Create(ctx, &catalog.Movie{
		ExternalKey: "tt0000004", Title: "Heat", Year: 1995,
		QualityProfileID: 1, MinimumAvailability: catalog.AvailabilityReleased,
		PathRoot: movieRoot,
	})
	require.NoError(t, err)

	_, _, err = store.RegisterImport(ctx, &catalog.MovieFile{
		MovieID: movie.ID, RelativePath: "Heat (1995)/Heat (1995) 1080p BluRay-GOOD.mkv",
		SizeBytes: 51 * 1024 * 1024, Quality: "1080p", Score: 90, SceneGroup: "GOOD",
	}, catalog.HistoryImported, nil)
	require.NoError(t, err)

	downloadDir := t.TempDir()
	writeSourceFile(t, filepath.Join(downloadDir, "Heat.1995.1080p.WEB-DL.x264-WORSE.mkv"), 51*1024*1024)
	qi, err := store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID: movie.ID, DownloadClientID: 1, DownloadID: "hash-4",
		Status: catalog.QueueItemCompleted, OutputPath: downloadDir,
		ReleaseTitle: "Heat.1995.1080p.WEB-DL.x264-WORSE", ReleaseScore: 10,
	})
	require.NoError(t, err)

	err = p.Run(ctx, queue.ImportPayload{MovieID: movie.ID, QueueItemID: qi.ID})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(downloadDir, "Heat.1995.1080p.WEB-DL.x264-WORSE.mkv"))
	assert.NoError(t, statErr, "source file must remain untouched on failure")

	_, err = store.Queue.Get(ctx, qi.ID)
	assert.NoError(t, err, "queue item is left for a retry, not removed, on failure")
}
