package scheduler

import (
	"context"
	"fmt"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/queue"
)

// runEventTranslator subscribes to the bus and turns notable events into
// new jobs, the "event-to-job" half of spec.md §4.8 that complements the
// worker pools' "job-to-effect" half. DownloadCompleted already enqueues
// its own import job inline (internal/downloader.Monitor.handleCompleted
// has the QueueItemID the import needs, which the event payload doesn't
// carry), so only MovieAdded is translated here.
func (s *Scheduler) runEventTranslator(ctx context.Context) {
	sub := s.bus.Subscribe(64, eventbus.MovieAdded)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Scheduler) handleEvent(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case eventbus.MovieAdded:
		s.onMovieAdded(ctx, ev)
	}
}

func (s *Scheduler) onMovieAdded(ctx context.Context, ev eventbus.Event) {
	data, ok := ev.Payload.(map[string]any)
	if !ok {
		s.logger.Warn().Str("eventId", ev.ID).Msg("MovieAdded event had an unexpected payload shape")
		return
	}
	movieID, ok := data["movie_id"].(int64)
	if !ok {
		s.logger.Warn().Str("eventId", ev.ID).Msg("MovieAdded event missing movie_id")
		return
	}

	movie, err := s.store.Movies.Get(ctx, movieID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("movieId", movieID).Msg("MovieAdded event referenced an unknown movie")
		return
	}
	if !movie.Monitored {
		return
	}

	if _, err := s.queue.Enqueue(ctx, catalog.JobKindSearch, queue.SearchPayload{MovieID: movie.ID}, queue.EnqueueOptions{
		IdempotencyKey: fmt.Sprintf("movie-added-search-%d", movie.ID),
	}); err != nil {
		s.logger.Warn().Err(err).Int64("movieId", movie.ID).Msg("failed to enqueue search after MovieAdded")
	}
}
