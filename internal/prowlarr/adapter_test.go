package prowlarr_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/indexer"
	"github.com/cinequeue/cinequeue/internal/prowlarr"
)

func TestAdapter_SearchNormalizesReleases(t *testing.T) {
	srv := newTestServer(t, "test-key")
	defer srv.Close()

	inst := indexer.Instance{
		ID:       1,
		Name:     "test-indexer",
		Host:     "example.com",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Priority: 25,
		Protocol: decisioning.ProtocolTorrent,
		Enabled:  true,
	}
	adapter, err := prowlarr.NewAdapter(inst, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, inst, adapter.Instance())

	releases, err := adapter.Search(t.Context(), indexer.SearchRequest{Query: "great escape"})
	require.NoError(t, err)
	require.Len(t, releases, 1)

	r := releases[0]
	assert.Equal(t, int64(1), r.IndexerID)
	assert.Equal(t, 25, r.IndexerPriority)
	assert.Equal(t, "1080p BluRay", r.Quality)
	assert.Equal(t, "GROUP", r.SceneGroup)
	assert.Equal(t, 42, r.Seeders)
	assert.Equal(t, 3, r.Leechers)
	assert.Equal(t, int64(4294967296), r.SizeBytes)
	assert.Equal(t, decisioning.ProtocolTorrent, r.Protocol)
}

func TestAdapter_SearchTranslatesRateLimitToIndexerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	inst := indexer.Instance{ID: 2, Host: "example.com", BaseURL: srv.URL, APIKey: "key", Enabled: true}
	adapter, err := prowlarr.NewAdapter(inst, zerolog.Nop())
	require.NoError(t, err)

	_, err = adapter.Search(t.Context(), indexer.SearchRequest{})
	require.Error(t, err)

	var rle *indexer.RateLimitError
	assert.ErrorAs(t, err, &rle)
}
