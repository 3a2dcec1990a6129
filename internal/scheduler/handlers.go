package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/downloader"
	"github.com/cinequeue/cinequeue/internal/errs"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/indexer"
	"github.com/cinequeue/cinequeue/internal/queue"
	"github.com/cinequeue/cinequeue/internal/reputation"
)

// handleSearch runs C4's parallel fan-out and C5's scoring/selection for
// one movie, enqueuing a grab job when a release is selected. It is the
// JobKindSearch worker body.
func (s *Scheduler) handleSearch(ctx context.Context, job *queue.Job) error {
	var payload queue.SearchPayload
	if err := job.Decode(&payload); err != nil {
		return errs.New(errs.Validation, "scheduler.handleSearch", err)
	}
	unlock := s.movieLocks.Lock(payload.MovieID)
	defer unlock()

	movie, err := s.store.Movies.Get(ctx, payload.MovieID)
	if err != nil {
		return errs.New(errs.NotFound, "scheduler.handleSearch", err)
	}
	profile, err := s.store.Profiles.Get(ctx, movie.QualityProfileID)
	if err != nil {
		return errs.New(errs.NotFound, "scheduler.handleSearch", err)
	}

	req := indexer.SearchRequest{Query: movie.Title, Year: movie.Year}
	if strings.HasPrefix(movie.ExternalKey, "tt") {
		req.ImdbID = movie.ExternalKey
	}

	results := s.indexers.Search(ctx, req)
	var releases []decisioning.Release
	for _, r := range results {
		if r.Err != nil {
			s.logger.Warn().Err(r.Err).Int64("indexerId", r.IndexerID).Str("indexer", r.IndexerName).Msg("indexer search failed")
			continue
		}
		releases = append(releases, r.Releases...)
	}

	var current *decisioning.CurrentFile
	if file, err := s.store.Files.GetCurrent(ctx, movie.ID); err == nil {
		current = &decisioning.CurrentFile{Quality: file.Quality, Score: file.Score}
	}

	constraints := s.searchConstraints(ctx, profile)
	decision := decisioning.Select(releases, profile, decisioning.DefaultScoringWeights(), constraints, current)
	if !decision.Selected() {
		s.logger.Info().Int64("movieId", movie.ID).Str("reason", string(decision.Reason)).Msg("no acceptable release found")
		return nil
	}

	rel := decision.Release.Release
	_, err = s.queue.Enqueue(ctx, catalog.JobKindGrab, queue.GrabPayload{
		MovieID:          movie.ID,
		IndexerID:        rel.IndexerID,
		DownloadClientID: s.defaultDownloadClientID,
		ReleaseTitle:     rel.Title,
		DownloadURL:      rel.DownloadURL,
		SizeBytes:        rel.SizeBytes,
		Score:            decision.Release.Score,
		Quality:          rel.Quality,
		Protocol:         string(rel.Protocol),
	}, queue.EnqueueOptions{IdempotencyKey: fmt.Sprintf("grab-%d-%s", movie.ID, rel.DownloadURL)})
	return err
}

// searchConstraints builds decisioning.Constraints from a profile and
// the reputation cache, the scoring/filter inputs spec.md §4.5 lists as
// profile-and-policy-derived rather than hardcoded.
func (s *Scheduler) searchConstraints(ctx context.Context, profile *catalog.QualityProfile) decisioning.Constraints {
	return decisioning.Constraints{
		MinSeedersTorrent:      1,
		UpgradeAllowed:         profile.UpgradeAllowed,
		UpgradeMargin:          10,
		SearchUpgradesAtCutoff: profile.SearchUpgradesAtCutoff,
		MinimumFormatScore:     profile.MinimumFormatScore,
		ReputationBonus:        reputation.BonusFunc(ctx, s.reputationCache),
	}
}

// handleGrab hands a selected release to the configured download client,
// persisting the QueueItem row before calling the daemon (spec.md §4.6).
func (s *Scheduler) handleGrab(ctx context.Context, job *queue.Job) error {
	var payload queue.GrabPayload
	if err := job.Decode(&payload); err != nil {
		return errs.New(errs.Validation, "scheduler.handleGrab", err)
	}

	client, ok := s.downloadClients.Get(payload.DownloadClientID)
	if !ok {
		return errs.New(errs.Fatal, "scheduler.handleGrab", fmt.Errorf("unknown download client %d", payload.DownloadClientID))
	}

	movie, err := s.store.Movies.Get(ctx, payload.MovieID)
	if err != nil {
		return errs.New(errs.NotFound, "scheduler.handleGrab", err)
	}

	qi, err := s.store.Queue.Create(ctx, &catalog.QueueItem{
		MovieID:          payload.MovieID,
		DownloadClientID: payload.DownloadClientID,
		Status:           catalog.QueueItemQueued,
		OutputPath:       movie.PathRoot,
		ReleaseTitle:     payload.ReleaseTitle,
		ReleaseScore:     payload.Score,
	})
	if err != nil {
		return errs.New(errs.Fatal, "scheduler.handleGrab", err)
	}

	downloadID, err := client.Add(ctx, downloader.AddOptions{
		URL:  payload.DownloadURL,
		Name: payload.ReleaseTitle,
	})
	if err != nil {
		return errs.New(errs.Transient, "scheduler.handleGrab", err)
	}

	qi.DownloadID = downloadID
	qi.Status = catalog.QueueItemDownloading
	if err := s.store.Queue.Update(ctx, qi); err != nil {
		s.logger.Warn().Err(err).Int64("queueItemId", qi.ID).Msg("failed to persist download id after grab")
	}

	movieID := payload.MovieID
	if err := s.store.History.Append(ctx, &catalog.HistoryEvent{
		MovieID: &movieID, EventKind: catalog.HistoryGrabbed,
		Data: map[string]any{"release_title": payload.ReleaseTitle, "indexer_id": payload.IndexerID, "score": payload.Score},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to append grab history")
	}

	s.bus.Publish(ctx, eventbus.ReleaseGrabbed, fmt.Sprintf("movie-%d", payload.MovieID), map[string]any{
		"movie_id": payload.MovieID, "queue_item_id": qi.ID,
	})
	return nil
}

// handleMonitor is the singleton JobKindMonitor body: poll every active
// download client, updating progress and enqueuing imports on
// completion (internal/downloader.Monitor owns that logic).
func (s *Scheduler) handleMonitor(ctx context.Context, job *queue.Job) error {
	return s.monitor.Poll(ctx)
}

// handleImport is the JobKindImport worker body.
func (s *Scheduler) handleImport(ctx context.Context, job *queue.Job) error {
	var payload queue.ImportPayload
	if err := job.Decode(&payload); err != nil {
		return errs.New(errs.Validation, "scheduler.handleImport", err)
	}
	unlock := s.movieLocks.Lock(payload.MovieID)
	defer unlock()
	return s.importer.Run(ctx, payload)
}

// handleRefresh re-evaluates a monitored movie without a current file,
// or with one its profile still allows upgrading (below cutoff, or at
// cutoff with upgrade-on-cutoff search enabled), for a new search, the
// same gate decisioning.Select applies to a current file; grounded on the
// teacher's scheduler/tasks/availability.go calendar-refresh cadence,
// generalized from "recompute release-date availability" to "decide
// whether a fresh search is due" since this module has no separate
// availability subsystem.
func (s *Scheduler) handleRefresh(ctx context.Context, job *queue.Job) error {
	var payload queue.RefreshPayload
	if err := job.Decode(&payload); err != nil {
		return errs.New(errs.Validation, "scheduler.handleRefresh", err)
	}

	movie, err := s.store.Movies.Get(ctx, payload.MovieID)
	if err != nil {
		return errs.New(errs.NotFound, "scheduler.handleRefresh", err)
	}
	if !movie.Monitored {
		return nil
	}

	profile, err := s.store.Profiles.Get(ctx, movie.QualityProfileID)
	if err != nil {
		return errs.New(errs.NotFound, "scheduler.handleRefresh", err)
	}

	current, err := s.store.Files.GetCurrent(ctx, movie.ID)
	needsSearch := err != nil
	if err == nil {
		needsSearch = profile.UpgradeAllowed && (profile.SearchUpgradesAtCutoff || !profile.AtCutoff(current.Quality))
	}
	if !needsSearch {
		return nil
	}

	_, err = s.queue.Enqueue(ctx, catalog.JobKindSearch, queue.SearchPayload{MovieID: movie.ID}, queue.EnqueueOptions{
		IdempotencyKey: fmt.Sprintf("refresh-search-%d-%s", movie.ID, time.Now().UTC().Format("2006-01-02")),
	})
	return err
}
