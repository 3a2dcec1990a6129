package rsssync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/indexer"
	"github.com/cinequeue/cinequeue/internal/queue"
	"github.com/cinequeue/cinequeue/internal/reputation"
)

// Watcher is C9's periodic RSS sweep, grounded on the teacher's
// rsssync.Service.Run. Unlike a fresh C4 search it never calls an
// indexer per movie; it fetches each indexer's recent-releases feed
// once per sweep and matches every monitored, still-wanted movie
// against it in memory.
type Watcher struct {
	store                   *catalog.Store
	indexers                *indexer.Pool
	queue                   *queue.Queue
	reputationCache         *reputation.Cache
	defaultDownloadClientID int64
	cfg                     Config
	logger                  zerolog.Logger
}

// New builds a Watcher. defaultDownloadClientID selects which
// configured client an RSS-matched grab is routed to, the same
// single-client convention internal/scheduler uses until multi-client
// routing rules exist.
func New(store *catalog.Store, indexers *indexer.Pool, q *queue.Queue, reputationCache *reputation.Cache, defaultDownloadClientID int64, cfg Config, logger zerolog.Logger) *Watcher {
	if cfg.MaxReleasesPerFeed <= 0 {
		cfg.MaxReleasesPerFeed = DefaultConfig().MaxReleasesPerFeed
	}
	return &Watcher{
		store:                   store,
		indexers:                indexers,
		queue:                   q,
		reputationCache:         reputationCache,
		defaultDownloadClientID: defaultDownloadClientID,
		cfg:                     cfg,
		logger:                  logger.With().Str("component", "rsssync").Logger(),
	}
}

// RunDue performs one sweep: fetch, match, score, enqueue grabs, and
// advance each indexer's cache boundary. Implements
// scheduler.RssRunner so it plugs directly into C8's periodic
// producers.
func (w *Watcher) RunDue(ctx context.Context) error {
	wanted, err := w.collectWanted(ctx)
	if err != nil {
		return fmt.Errorf("collect wanted movies: %w", err)
	}
	if len(wanted) == 0 {
		w.logger.Debug().Msg("no wanted movies, skipping RSS sweep")
		return nil
	}
	index := BuildWantedIndex(wanted)

	results := w.indexers.Search(ctx, indexer.SearchRequest{})

	stats := RunStats{}
	matchesByMovie := make(map[int64][]decisioning.Release)

	for _, result := range results {
		stats.IndexersSwept++
		if result.Err != nil {
			w.logger.Warn().Err(result.Err).Str("indexer", result.IndexerName).Msg("RSS feed fetch failed")
			continue
		}

		boundary, _ := w.store.RssCache.Get(ctx, result.IndexerID)
		releases := result.Releases
		if len(releases) > w.cfg.MaxReleasesPerFeed {
			releases = releases[:w.cfg.MaxReleasesPerFeed]
		}

		for _, release := range releases {
			if isAtCacheBoundary(release, boundary) {
				break
			}
			stats.Releases++
			for _, wm := range Match(index, release) {
				matchesByMovie[wm.movie.ID] = append(matchesByMovie[wm.movie.ID], release)
			}
		}

		if len(releases) > 0 {
			if err := w.store.RssCache.Update(ctx, result.IndexerID, catalog.CacheBoundary{URL: releases[0].DownloadURL}); err != nil {
				w.logger.Warn().Err(err).Int64("indexerId", result.IndexerID).Msg("failed to advance RSS cache boundary")
			}
		}
	}

	for movieID, releases := range matchesByMovie {
		stats.Matched++
		if w.scoreAndEnqueue(ctx, wanted, movieID, releases) {
			stats.Enqueued++
		}
	}

	w.logger.Info().
		Int("indexers", stats.IndexersSwept).
		Int("releases", stats.Releases).
		Int("matched", stats.Matched).
		Int("enqueued", stats.Enqueued).
		Msg("RSS sweep complete")
	return nil
}

// collectWanted lists every monitored movie missing a file, or whose
// file its profile still allows upgrading (below cutoff, or at cutoff
// with upgrade-on-cutoff search enabled), the same eligibility rule
// internal/scheduler.handleRefresh applies.
func (w *Watcher) collectWanted(ctx context.Context) ([]wantedMovie, error) {
	movies, err := w.store.Movies.ListMonitored(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make(map[int64]*catalog.QualityProfile)
	var out []wantedMovie
	for _, m := range movies {
		profile, ok := profiles[m.QualityProfileID]
		if !ok {
			profile, err = w.store.Profiles.Get(ctx, m.QualityProfileID)
			if err != nil {
				w.logger.Warn().Err(err).Int64("movieId", m.ID).Msg("failed to load quality profile for RSS eligibility check")
				continue
			}
			profiles[m.QualityProfileID] = profile
		}

		current, fileErr := w.store.Files.GetCurrent(ctx, m.ID)
		hasFile := fileErr == nil
		wanted := !hasFile
		var currentQuality string
		if hasFile {
			currentQuality = current.Quality
			wanted = profile.UpgradeAllowed && (profile.SearchUpgradesAtCutoff || !profile.AtCutoff(currentQuality))
		}
		if !wanted {
			continue
		}
		out = append(out, wantedMovie{movie: m, profile: profile, currentQuality: currentQuality, hasFile: hasFile})
	}
	return out, nil
}

// scoreAndEnqueue runs C5's selection over the candidate releases
// matched for one movie and enqueues a grab job if one clears the
// profile's constraints. Returns whether a job was enqueued.
func (w *Watcher) scoreAndEnqueue(ctx context.Context, wanted []wantedMovie, movieID int64, releases []decisioning.Release) bool {
	var wm *wantedMovie
	for i := range wanted {
		if wanted[i].movie.ID == movieID {
			wm = &wanted[i]
			break
		}
	}
	if wm == nil {
		return false
	}

	var current *decisioning.CurrentFile
	if wm.hasFile {
		current = &decisioning.CurrentFile{Quality: wm.currentQuality}
	}

	constraints := decisioning.Constraints{
		MinSeedersTorrent:      1,
		UpgradeAllowed:         wm.profile.UpgradeAllowed,
		UpgradeMargin:          10,
		SearchUpgradesAtCutoff: wm.profile.SearchUpgradesAtCutoff,
		MinimumFormatScore:     wm.profile.MinimumFormatScore,
		ReputationBonus:        reputation.BonusFunc(ctx, w.reputationCache),
	}
	decision := decisioning.Select(releases, wm.profile, decisioning.DefaultScoringWeights(), constraints, current)
	if !decision.Selected() {
		return false
	}

	rel := decision.Release.Release
	_, err := w.queue.Enqueue(ctx, catalog.JobKindGrab, queue.GrabPayload{
		MovieID:          movieID,
		IndexerID:        rel.IndexerID,
		DownloadClientID: w.defaultDownloadClientID,
		ReleaseTitle:     rel.Title,
		DownloadURL:      rel.DownloadURL,
		SizeBytes:        rel.SizeBytes,
		Score:            decision.Release.Score,
		Quality:          rel.Quality,
		Protocol:         string(rel.Protocol),
	}, queue.EnqueueOptions{IdempotencyKey: fmt.Sprintf("rss-grab-%d-%s", movieID, rel.DownloadURL)})
	if err != nil {
		w.logger.Warn().Err(err).Int64("movieId", movieID).Msg("failed to enqueue RSS-matched grab")
		return false
	}
	return true
}
