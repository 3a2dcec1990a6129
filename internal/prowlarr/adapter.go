package prowlarr

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/indexer"
	"github.com/cinequeue/cinequeue/internal/indexer/parser"
)

// Adapter implements indexer.Adapter against a single Torznab endpoint.
type Adapter struct {
	client *Client
	inst   indexer.Instance
	logger zerolog.Logger
}

// NewAdapter builds an Adapter for inst, dialing through client.
func NewAdapter(inst indexer.Instance, logger zerolog.Logger) (*Adapter, error) {
	client, err := NewClient(ClientConfig{
		URL:    inst.BaseURL,
		APIKey: inst.APIKey,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client: client,
		inst:   inst,
		logger: logger.With().Str("component", "prowlarr-adapter").Str("indexer", inst.Name).Logger(),
	}, nil
}

// Instance returns the indexer configuration backing this adapter.
func (a *Adapter) Instance() indexer.Instance { return a.inst }

// Search translates req into a Torznab query, then normalizes each
// result into a decisioning.Release via the release-title parser.
func (a *Adapter) Search(ctx context.Context, req indexer.SearchRequest) ([]decisioning.Release, error) {
	feed, err := a.client.Search(ctx, SearchRequest{
		Query:      req.Query,
		ImdbID:     req.ImdbID,
		TmdbID:     req.TmdbID,
		Categories: req.Categories,
	})
	if err != nil {
		if IsRateLimited(err) {
			return nil, &indexer.RateLimitError{StatusCode: http.StatusTooManyRequests, URL: mustParseURL(a.inst.BaseURL)}
		}
		return nil, err
	}

	releases := make([]decisioning.Release, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		releases = append(releases, a.toRelease(item))
	}
	return releases, nil
}

func (a *Adapter) toRelease(item TorznabItem) decisioning.Release {
	p := parser.Parse(item.Title)
	if p.Confidence < 1.0 {
		a.logger.Debug().Str("title", item.Title).Msg("release title did not match a known movie pattern")
	}

	downloadURL := item.Link
	if downloadURL == "" {
		downloadURL = item.Enclosure.URL
	}
	size := item.Size
	if size == 0 {
		size = item.Enclosure.Length
	}

	quality := p.Source
	if p.Resolution != "" {
		if quality != "" {
			quality = p.Resolution + " " + quality
		} else {
			quality = p.Resolution
		}
	}

	return decisioning.Release{
		IndexerID:       a.inst.ID,
		IndexerPriority: a.inst.Priority,
		Title:           item.Title,
		DownloadURL:     downloadURL,
		Quality:         strings.TrimSpace(quality),
		SizeBytes:       size,
		Seeders:         item.GetIntAttribute("seeders", 0),
		Leechers:        item.GetIntAttribute("leechers", 0),
		Age:             ageFromPubDate(item.PubDate),
		Protocol:        a.inst.Protocol,
		SceneGroup:      p.ReleaseGroup,
		Languages:       p.Languages,
		IsProper:        p.IsProper,
		IsRepack:        p.IsRepack,
	}
}

func ageFromPubDate(pubDate string) time.Duration {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, pubDate); err == nil {
			return time.Since(t)
		}
	}
	return 0
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
