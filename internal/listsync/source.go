package listsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Source fetches the current entries of a list. The HTTP
// implementation is the default; tests substitute a fake.
type Source interface {
	Fetch(ctx context.Context, list List) ([]Entry, error)
}

// httpSource fetches a list as a JSON array of entries over HTTP,
// grounded on the teacher's apiReader.doRequest (plain GET, status
// check, io.ReadAll body) generalized from a fixed Radarr/Sonarr API
// shape to an arbitrary list URL.
type httpSource struct {
	client *http.Client
}

// NewHTTPSource builds a Source that fetches lists over HTTP.
func NewHTTPSource(cfg Config) Source {
	return &httpSource{client: &http.Client{Timeout: cfg.RequestTimeout}}
}

func (s *httpSource) Fetch(ctx context.Context, list List) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, list.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request for list %q: %w", list.Name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch list %q: %w", list.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list %q returned status %d: %s", list.Name, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read list %q body: %w", list.Name, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse list %q entries: %w", list.Name, err)
	}
	return entries, nil
}
