package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/errs"
	"github.com/cinequeue/cinequeue/internal/eventbus"
	"github.com/cinequeue/cinequeue/internal/indexer/parser"
	"github.com/cinequeue/cinequeue/internal/queue"
)

// Pipeline runs the Detected->Analyzed->Staged->Linked->Renamed->
// Registered state machine (spec.md §4.7) for one completed download,
// grounded on the teacher's import.Service.processImport and
// prepareImport/performFileImport/finalizeImport split, collapsed here
// into one linear sequence since this pipeline has no TV multi-episode
// branch to fan out into.
type Pipeline struct {
	store  *catalog.Store
	prober *Prober
	bus    *eventbus.Bus
	cfg    Config
	logger zerolog.Logger
}

// NewPipeline builds a Pipeline.
func NewPipeline(store *catalog.Store, prober *Prober, bus *eventbus.Bus, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		prober: prober,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// Run executes the full state machine for the queue item named in
// payload. It is the JobKindImport worker body.
func (p *Pipeline) Run(ctx context.Context, payload queue.ImportPayload) error {
	qi, err := p.store.Queue.Get(ctx, payload.QueueItemID)
	if err != nil {
		return errs.New(errs.NotFound, "importer.Run", err)
	}
	movie, err := p.store.Movies.Get(ctx, payload.MovieID)
	if err != nil {
		return errs.New(errs.NotFound, "importer.Run", err)
	}

	candidate, err := p.detect(qi)
	if err != nil {
		return p.fail(ctx, movie.ID, err)
	}

	if err := p.analyze(ctx, movie, candidate); err != nil {
		return p.fail(ctx, movie.ID, err)
	}

	dest, tempPath := p.stage(p.cfg, movie, qi, candidate)

	linkMode, err := linkOrCopy(p.cfg, candidate.SourcePath, tempPath)
	if err != nil {
		return p.fail(ctx, movie.ID, fmt.Errorf("link: %w", err))
	}
	candidate.LinkMode = linkMode

	if err := p.renameAndRegister(ctx, movie, qi, candidate, dest, tempPath); err != nil {
		_ = unlink(tempPath)
		return p.fail(ctx, movie.ID, err)
	}

	if err := p.store.Queue.Remove(ctx, qi.ID); err != nil {
		p.logger.Warn().Err(err).Int64("queueItemId", qi.ID).Msg("failed to remove completed queue item")
	}

	p.bus.Publish(ctx, eventbus.ImportCompleted, fmt.Sprintf("movie-%d", movie.ID), map[string]any{
		"movie_id":      movie.ID,
		"relative_path": candidate.StagedPath,
	})
	return nil
}

// detect is state Detected (spec.md §4.7 step 1): list video files under
// the queue item's output path and pick the largest as the main feature,
// the same heuristic the teacher's findVideoFiles callers apply when a
// download directory also contains samples or extras.
func (p *Pipeline) detect(qi *catalog.QueueItem) (*Candidate, error) {
	candidates, err := findVideoFiles(qi.OutputPath)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoVideoFiles
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].SizeBytes > candidates[j].SizeBytes })
	c := candidates[0]
	return &c, nil
}

// analyze is state Analyzed (spec.md §4.7 step 2).
func (p *Pipeline) analyze(ctx context.Context, movie *catalog.Movie, c *Candidate) error {
	info, err := p.prober.Probe(ctx, c.SourcePath)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", c.SourcePath).Msg("media probe failed, importing without technical metadata")
	} else {
		c.Container = info.Container
		c.VideoCodec = info.VideoCodec
		c.Resolution = info.Resolution
		c.AudioCodec = info.AudioCodec
		c.AudioChannels = info.AudioChannels
		c.RuntimeSecs = info.RuntimeSecs
	}

	if movie.RuntimeMinutes > 0 && c.RuntimeSecs > 0 {
		expected := time.Duration(movie.RuntimeMinutes) * time.Minute
		actual := time.Duration(c.RuntimeSecs) * time.Second
		drift := expected - actual
		if drift < 0 {
			drift = -drift
		}
		if drift > p.cfg.RuntimeTolerance {
			c.Suspect = true
		}
	}

	if c.Suspect && !p.cfg.AllowSuspect {
		return errs.New(errs.Validation, "importer.analyze", ErrSuspectRuntime)
	}
	return nil
}

// stage is state Staged (spec.md §4.7 step 3): compute the final
// destination and a temp path in the same directory for the Linked
// step to target, so Renamed's atomic rename stays within one
// filesystem regardless of where the source lived.
func (p *Pipeline) stage(cfg Config, movie *catalog.Movie, qi *catalog.QueueItem, c *Candidate) (dest, tempPath string) {
	release := parser.Parse(qi.ReleaseTitle)
	tokens := Tokens{
		Title:      movie.Title,
		Year:       movie.Year,
		Resolution: firstNonEmpty(c.Resolution, release.Resolution),
		Source:     release.Source,
		Codec:      firstNonEmpty(c.VideoCodec, release.Codec),
		Edition:    release.Edition,
		Group:      release.ReleaseGroup,
	}
	ext := filepath.Ext(c.SourcePath)
	dest = destinationPath(cfg, movie.PathRoot, tokens, ext)
	staging := dest + ".importing"
	tempPath = uniqueDestination(staging, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
	c.StagedPath = dest
	return dest, tempPath
}

// renameAndRegister performs states Renamed and Registered (spec.md
// §4.7 steps 5-6): rename the staged temp file to its final name,
// aside-renaming any incumbent first, then register the MovieFile in
// one transaction via catalog.Store.RegisterImport. Any failure here
// leaves the incumbent (if renamed aside) in place rather than deleted,
// and the caller unlinks the temp link.
func (p *Pipeline) renameAndRegister(ctx context.Context, movie *catalog.Movie, qi *catalog.QueueItem, c *Candidate, dest, tempPath string) error {
	now := time.Now().UTC()
	prevPath, err := renameIncumbent(dest, now)
	if err != nil {
		return fmt.Errorf("rename incumbent aside: %w", err)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		if prevPath != "" {
			_ = os.Rename(prevPath, dest)
		}
		return fmt.Errorf("rename staged file to final name: %w", err)
	}

	relPath, err := filepath.Rel(movie.PathRoot, dest)
	if err != nil {
		relPath = dest
	}
	release := parser.Parse(qi.ReleaseTitle)

	file := &catalog.MovieFile{
		MovieID:      movie.ID,
		RelativePath: relPath,
		SizeBytes:    c.SizeBytes,
		Quality:      firstNonEmpty(c.Resolution, "unknown"),
		Score:        qi.ReleaseScore,
		SceneGroup:   release.ReleaseGroup,
		Source:       release.Source,
		MediaInfo: catalog.MediaInfo{
			Container:     c.Container,
			VideoCodec:    c.VideoCodec,
			Resolution:    c.Resolution,
			AudioCodec:    c.AudioCodec,
			AudioChannels: c.AudioChannels,
			RuntimeSecs:   c.RuntimeSecs,
		},
	}

	historyKind := catalog.HistoryImported
	if existing, getErr := p.store.Files.GetCurrent(ctx, movie.ID); getErr == nil && existing != nil {
		historyKind = catalog.HistoryUpgraded
	}

	_, _, err = p.store.RegisterImport(ctx, file, historyKind, map[string]any{
		"queue_item_id": qi.ID,
		"link_mode":     c.LinkMode,
	})
	if err != nil {
		if os.Rename(dest, tempPath) == nil && prevPath != "" {
			_ = os.Rename(prevPath, dest)
		}
		if errs.KindOf(err) == errs.Conflict {
			return fmt.Errorf("register import: %w: %w", ErrNotAnUpgrade, err)
		}
		return fmt.Errorf("register import: %w", err)
	}

	if err := deleteIncumbent(prevPath); err != nil {
		p.logger.Warn().Err(err).Msg("failed to delete superseded file after import")
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, movieID int64, cause error) error {
	p.bus.Publish(ctx, eventbus.ImportFailed, fmt.Sprintf("movie-%d", movieID), map[string]any{
		"movie_id": movieID,
		"reason":   cause.Error(),
	})
	return cause
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
