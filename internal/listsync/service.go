package listsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/eventbus"
)

// Service is C10's recurring list puller. Implements
// scheduler.ListSyncRunner so it plugs into C8's periodic producers
// the same way rsssync.Watcher plugs in as an RssRunner.
type Service struct {
	store  *catalog.Store
	source Source
	bus    *eventbus.Bus
	lists  []List
	cfg    Config
	logger zerolog.Logger
}

// New builds a Service over a fixed set of lists. Lists are configured
// at startup rather than discovered at runtime; adding or removing one
// requires a restart, matching the teacher's connect-once-then-import
// Service.Connect/Execute lifecycle.
func New(store *catalog.Store, source Source, bus *eventbus.Bus, lists []List, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Service{
		store:  store,
		source: source,
		bus:    bus,
		lists:  lists,
		cfg:    cfg,
		logger: logger.With().Str("component", "listsync").Logger(),
	}
}

// RunDue pulls every configured list once. A single list's failure is
// logged and does not prevent the remaining lists from running.
func (s *Service) RunDue(ctx context.Context) error {
	var errs []error
	for _, list := range s.lists {
		if err := s.runList(ctx, list); err != nil {
			s.logger.Warn().Err(err).Str("list", list.Name).Msg("list-sync run failed")
			errs = append(errs, fmt.Errorf("list %q: %w", list.Name, err))
		}
	}
	return errors.Join(errs...)
}

// runList executes one full pull: fetch, resolve every entry, persist
// the audit trail, and publish ListSyncCompleted. Grounded on the
// teacher's Executor.Run/importMovies loop (read-all, per-entry
// resolve-or-skip, summary counters), generalized to update an
// existing movie under a conflict strategy instead of only ever
// skipping duplicates.
func (s *Service) runList(ctx context.Context, list List) error {
	run, err := s.store.ListSync.StartRun(ctx, list.Name)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	run.Status = "completed"

	stats := RunStats{}
	entries, fetchErr := s.source.Fetch(ctx, list)
	if fetchErr != nil {
		run.Status = "failed"
		run.PagesProcessed = 1
		_ = s.store.ListSync.FinishRun(ctx, run)
		return fmt.Errorf("fetch entries: %w", fetchErr)
	}
	run.PagesProcessed = 1
	if len(entries) > s.cfg.MaxEntries {
		s.logger.Warn().Str("list", list.Name).Int("entries", len(entries)).Int("cap", s.cfg.MaxEntries).
			Msg("list exceeds max entries, truncating")
		entries = entries[:s.cfg.MaxEntries]
	}

	for _, entry := range entries {
		if entry.ExternalKey == "" {
			stats.Errored++
			continue
		}
		stats.EntriesSeen++
		if err := s.resolveEntry(ctx, run.ID, list, entry, &stats); err != nil {
			stats.Errored++
			s.logger.Warn().Err(err).Str("externalKey", entry.ExternalKey).Msg("failed to resolve list-sync entry")
		}
	}

	run.EntriesSeen = stats.EntriesSeen
	if err := s.store.ListSync.FinishRun(ctx, run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	s.bus.Publish(ctx, eventbus.ListSyncCompleted, "", map[string]any{
		"run_id": run.ID, "list_name": list.Name, "added": stats.Added,
		"ignored": stats.Ignored, "kept": stats.Kept, "used_new": stats.UsedNew, "errored": stats.Errored,
	})
	s.logger.Info().Str("list", list.Name).
		Int("seen", stats.EntriesSeen).Int("added", stats.Added).Int("ignored", stats.Ignored).
		Int("kept", stats.Kept).Int("usedNew", stats.UsedNew).Int("errored", stats.Errored).
		Msg("list-sync run complete")
	return nil
}

// resolveEntry resolves one entry to add/ignore/keep/use-new, persists
// the decision, and (for additions) publishes MovieAdded so C8's event
// translator enqueues the initial search, the same hookup a
// user-initiated add would trigger.
func (s *Service) resolveEntry(ctx context.Context, runID int64, list List, entry Entry, stats *RunStats) error {
	existing, err := s.store.Movies.GetByExternalKey(ctx, entry.ExternalKey)
	if err != nil && !errors.Is(err, catalog.ErrMovieNotFound) {
		return err
	}

	if existing == nil {
		movie, createErr := s.store.Movies.Create(ctx, &catalog.Movie{
			ExternalKey:         entry.ExternalKey,
			Title:               entry.Title,
			Year:                entry.Year,
			Monitored:           list.Monitored,
			QualityProfileID:    list.DefaultQualityProfileID,
			MinimumAvailability: list.MinimumAvailability,
			PathRoot:            list.RootPath,
		})
		if createErr != nil {
			if errors.Is(createErr, catalog.ErrDuplicateExternalKey) {
				// Lost a race with a concurrent add; treat as a keep.
				stats.Kept++
				return s.record(ctx, runID, entry.ExternalKey, catalog.DecisionKeepExisting, nil, nil)
			}
			return createErr
		}
		stats.Added++
		if err := s.record(ctx, runID, entry.ExternalKey, catalog.DecisionAdd, nil, snapshotMovie(movie)); err != nil {
			return err
		}
		s.bus.Publish(ctx, eventbus.MovieAdded, "", map[string]any{"movie_id": movie.ID})
		return nil
	}

	decision, profileID, monitored := resolveConflict(list, entry, existing)
	before := snapshotMovie(existing)

	switch decision {
	case catalog.DecisionIgnore:
		stats.Ignored++
		return s.record(ctx, runID, entry.ExternalKey, decision, before, before)
	case catalog.DecisionKeepExisting:
		stats.Kept++
		return s.record(ctx, runID, entry.ExternalKey, decision, before, before)
	case catalog.DecisionUseNew:
		existing.QualityProfileID = profileID
		existing.Monitored = monitored
		if err := s.store.Movies.Update(ctx, existing); err != nil {
			return err
		}
		stats.UsedNew++
		return s.record(ctx, runID, entry.ExternalKey, decision, before, snapshotMovie(existing))
	default:
		stats.Conflicts++
		return s.record(ctx, runID, entry.ExternalKey, catalog.DecisionConflict, before, before)
	}
}

func (s *Service) record(ctx context.Context, runID int64, externalKey string, decision catalog.ListSyncDecision, before, after map[string]any) error {
	return s.store.ListSync.RecordDecision(ctx, &catalog.ListSyncHistoryEntry{
		RunID:          runID,
		ExternalKey:    externalKey,
		Decision:       decision,
		BeforeSnapshot: before,
		AfterSnapshot:  after,
	})
}
