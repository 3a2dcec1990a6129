// Package qbittorrent implements downloader.Client against the
// qBittorrent WebUI API, grounded on the teacher's
// internal/downloader/qbittorrent.Client shape (Config, New,
// NewFromConfig, Type/Protocol accessors) but with the stub bodies
// replaced by the real cookie-authenticated WebUI calls spec.md §4.6
// requires: login, torrents/add, torrents/info, torrents/delete.
package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cinequeue/cinequeue/internal/downloader"
)

// Config holds connection settings for a single qBittorrent instance.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Category string
}

// Client implements downloader.Client against one qBittorrent instance.
type Client struct {
	cfg        Config
	httpClient *http.Client
	loggedIn   bool
}

var _ downloader.Client = (*Client)(nil)

// New creates a qBittorrent client. Login happens lazily on first use.
func New(cfg Config) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
}

// Protocol reports that qBittorrent only handles torrents.
func (c *Client) Protocol() downloader.Protocol { return downloader.ProtocolTorrent }

func (c *Client) ensureLoggedIn(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}

	form := url.Values{"username": {c.cfg.Username}, "password": {c.cfg.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return downloader.ErrAuthFailed
	}
	c.loggedIn = true
	return nil
}

// Add submits a magnet link or .torrent URL via torrents/add.
func (c *Client) Add(ctx context.Context, opts downloader.AddOptions) (string, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return "", err
	}

	form := url.Values{"urls": {opts.URL}}
	category := opts.Category
	if category == "" {
		category = c.cfg.Category
	}
	if category != "" {
		form.Set("category", category)
	}
	if opts.DownloadDir != "" {
		form.Set("savepath", opts.DownloadDir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/torrents/add", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qbittorrent add: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qbittorrent add: status %d", resp.StatusCode)
	}

	// qBittorrent's add endpoint does not return the resulting hash;
	// the caller correlates by polling List() for a matching name
	// immediately after Add, exactly as the teacher's completion
	// scanner matches by content path rather than by an echoed ID.
	return "", nil
}

type qbtTorrent struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	Size       int64   `json:"size"`
	Downloaded int64   `json:"downloaded"`
	Eta        int64   `json:"eta"`
	SavePath   string  `json:"save_path"`
}

func (c *Client) List(ctx context.Context) ([]downloader.Item, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v2/torrents/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qbittorrent list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qbittorrent list: status %d", resp.StatusCode)
	}

	var torrents []qbtTorrent
	if err := decodeJSON(resp, &torrents); err != nil {
		return nil, err
	}

	items := make([]downloader.Item, 0, len(torrents))
	for _, t := range torrents {
		items = append(items, toItem(t))
	}
	return items, nil
}

func (c *Client) Get(ctx context.Context, downloadID string) (*downloader.Item, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == downloadID {
			return &item, nil
		}
	}
	return nil, downloader.ErrNotFound
}

func (c *Client) Remove(ctx context.Context, downloadID string, deleteFiles bool) error {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return err
	}

	form := url.Values{"hashes": {downloadID}, "deleteFiles": {strconv.FormatBool(deleteFiles)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/torrents/delete", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qbittorrent remove: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent remove: status %d", resp.StatusCode)
	}
	return nil
}

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func toItem(t qbtTorrent) downloader.Item {
	return downloader.Item{
		ID:             t.Hash,
		Name:           t.Name,
		Status:         stateToStatus(t.State),
		ProgressPct:    t.Progress * 100,
		Size:           t.Size,
		DownloadedSize: t.Downloaded,
		ETASeconds:     t.Eta,
		DownloadDir:    t.SavePath,
	}
}

func stateToStatus(state string) downloader.Status {
	switch state {
	case "uploading", "stalledUP", "queuedUP", "forcedUP":
		return downloader.StatusSeeding
	case "pausedUP", "pausedDL":
		return downloader.StatusPaused
	case "error", "missingFiles":
		return downloader.StatusError
	case "downloading", "metaDL", "stalledDL", "forcedDL", "checkingDL":
		return downloader.StatusDownloading
	case "queuedDL":
		return downloader.StatusQueued
	default:
		return downloader.StatusDownloading
	}
}
