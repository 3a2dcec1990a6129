// Package prowlarr is a Torznab-protocol indexer adapter, grounded on
// the teacher's internal/prowlarr package: same do/doXML request
// plumbing and Torznab query construction, trimmed to movie search
// only and adapted to feed indexer.Pool via decisioning.Release
// instead of the teacher's own TorrentInfo type.
package prowlarr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 30 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// Client speaks the Torznab protocol to a single Prowlarr (or
// Prowlarr-compatible) indexer endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrInvalidURL
	}
	if cfg.APIKey == "" {
		return nil, ErrInvalidAPIKey
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger.With().Str("component", "prowlarr-client").Str("url", cfg.URL).Logger(),
	}, nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, wrapError("do", err, "build request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapError("do", err, "execute request")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, ErrRateLimited
	}
	return resp, nil
}

func (c *Client) doXML(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return wrapError("doXML", fmt.Errorf("status %d", resp.StatusCode), string(body))
	}
	if err := xml.NewDecoder(resp.Body).Decode(result); err != nil {
		return wrapError("doXML", err, "decode torznab xml")
	}
	return nil
}

// Search executes a Torznab movie search and returns the raw feed.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*TorznabFeed, error) {
	params := url.Values{}
	params.Set("t", "movie")
	if req.Query != "" {
		params.Set("q", req.Query)
	}
	if req.ImdbID != "" {
		params.Set("imdbid", req.ImdbID)
	}
	if req.TmdbID > 0 {
		params.Set("tmdbid", strconv.Itoa(req.TmdbID))
	}
	if len(req.Categories) > 0 {
		cats := make([]string, len(req.Categories))
		for i, cat := range req.Categories {
			cats[i] = strconv.Itoa(cat)
		}
		params.Set("cat", strings.Join(cats, ","))
	}

	var feed TorznabFeed
	if err := c.doXML(ctx, "/api?"+params.Encode(), &feed); err != nil {
		if IsRateLimited(err) {
			return nil, err
		}
		return nil, wrapError("Search", err, "torznab movie search")
	}
	return &feed, nil
}
