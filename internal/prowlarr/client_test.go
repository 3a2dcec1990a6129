package prowlarr_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/prowlarr"
)

const sampleFeed = `<?xml version="1.0"?>
<rss><channel><title>Indexer</title>
<item>
  <title>The.Great.Escape.1963.1080p.BluRay.x264-GROUP</title>
  <guid>abc123</guid>
  <link>http://example.com/download/abc123</link>
  <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
  <size>4294967296</size>
  <enclosure url="http://example.com/download/abc123" length="4294967296" type="application/x-bittorrent"/>
  <torznab:attr xmlns:torznab="http://torznab.com/schemas/2015/feed" name="seeders" value="42"/>
  <torznab:attr xmlns:torznab="http://torznab.com/schemas/2015/feed" name="leechers" value="3"/>
</item>
</channel></rss>`

func newTestServer(t *testing.T, wantAPIKey string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAPIKey != "" && r.Header.Get("X-Api-Key") != wantAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
}

func TestClient_SearchParsesTorznabFeed(t *testing.T) {
	srv := newTestServer(t, "test-key")
	defer srv.Close()

	client, err := prowlarr.NewClient(prowlarr.ClientConfig{URL: srv.URL, APIKey: "test-key", Logger: zerolog.Nop()})
	require.NoError(t, err)

	feed, err := client.Search(t.Context(), prowlarr.SearchRequest{Query: "great escape"})
	require.NoError(t, err)
	require.Len(t, feed.Channel.Items, 1)

	item := feed.Channel.Items[0]
	assert.Equal(t, "The.Great.Escape.1963.1080p.BluRay.x264-GROUP", item.Title)
	assert.Equal(t, 42, item.GetIntAttribute("seeders", 0))
	assert.Equal(t, 3, item.GetIntAttribute("leechers", 0))
}

func TestClient_SearchReturnsRateLimitedOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := prowlarr.NewClient(prowlarr.ClientConfig{URL: srv.URL, APIKey: "test-key", Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = client.Search(t.Context(), prowlarr.SearchRequest{})
	assert.ErrorIs(t, err, prowlarr.ErrRateLimited)
}

func TestClient_NewClientRequiresURLAndAPIKey(t *testing.T) {
	_, err := prowlarr.NewClient(prowlarr.ClientConfig{APIKey: "key"})
	assert.ErrorIs(t, err, prowlarr.ErrInvalidURL)

	_, err = prowlarr.NewClient(prowlarr.ClientConfig{URL: "http://example.com"})
	assert.ErrorIs(t, err, prowlarr.ErrInvalidAPIKey)
}

func TestTorznabItem_GetAttributeMissingReturnsEmpty(t *testing.T) {
	item := prowlarr.TorznabItem{}
	assert.Equal(t, "", item.GetAttribute("seeders"))
	assert.Equal(t, 7, item.GetIntAttribute("seeders", 7))
}
