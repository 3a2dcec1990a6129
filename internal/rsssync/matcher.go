package rsssync

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/indexer/parser"
)

var (
	apostropheRegex   = regexp.MustCompile(`['’]`)
	specialCharsRegex = regexp.MustCompile(`[^a-z0-9]+`)
	multiSpaceRegex   = regexp.MustCompile(`\s+`)
)

// normalizeTitle folds a title down to a comparable key, grounded on
// the teacher's indexer/search.NormalizeTitle.
func normalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = apostropheRegex.ReplaceAllString(t, "")
	t = specialCharsRegex.ReplaceAllString(t, " ")
	t = multiSpaceRegex.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// wantedMovie is a monitored movie the watcher will grab a feed hit
// for, along with the profile fields the eligibility check already
// consulted.
type wantedMovie struct {
	movie          *catalog.Movie
	profile        *catalog.QualityProfile
	currentQuality string
	hasFile        bool
}

// WantedIndex provides fast title/external-key lookup of wanted movies
// over an RSS feed's releases, grounded on the teacher's WantedIndex
// (ID + normalized-title maps), trimmed to the movie-only keys this
// module needs (no season/episode/tvdb variants).
type WantedIndex struct {
	byImdbID map[string]wantedMovie
	byTitle  map[string][]wantedMovie
}

// BuildWantedIndex indexes every movie in items.
func BuildWantedIndex(items []wantedMovie) *WantedIndex {
	idx := &WantedIndex{
		byImdbID: make(map[string]wantedMovie),
		byTitle:  make(map[string][]wantedMovie),
	}
	for _, w := range items {
		if strings.HasPrefix(w.movie.ExternalKey, "tt") {
			idx.byImdbID[w.movie.ExternalKey] = w
		}
		key := normalizeTitle(w.movie.Title)
		if key != "" {
			idx.byTitle[key] = append(idx.byTitle[key], w)
		}
	}
	return idx
}

// Match returns the wanted movie release matches, or nil if none does.
// ID-based lookup (IMDB ID embedded in the release's DownloadURL) takes
// priority over the normalized-title-plus-year fallback, mirroring the
// teacher's findCandidates precedence.
func Match(index *WantedIndex, release decisioning.Release) []wantedMovie {
	if imdbID := extractImdbID(release); imdbID != "" {
		if w, ok := index.byImdbID[imdbID]; ok {
			return []wantedMovie{w}
		}
	}

	parsed := parser.Parse(release.Title)
	key := normalizeTitle(parsed.Title)
	if key == "" {
		return nil
	}
	candidates, ok := index.byTitle[key]
	if !ok {
		return nil
	}

	var matches []wantedMovie
	for _, w := range candidates {
		if parsed.Year > 0 && w.movie.Year > 0 && parsed.Year != w.movie.Year {
			continue
		}
		matches = append(matches, w)
	}
	return matches
}

// extractImdbID pulls a "tt" IMDB id out of a release's DownloadURL
// (decisioning.Release has no separate info URL), the fallback the
// teacher uses when an indexer doesn't expose a typed IMDB field.
func extractImdbID(release decisioning.Release) string {
	s := release.DownloadURL
	for {
		idx := strings.Index(s, "tt")
		if idx < 0 {
			return ""
		}
		end := idx + 2
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end > idx+2 {
			if _, err := strconv.Atoi(s[idx+2 : end]); err == nil {
				return s[idx:end]
			}
		}
		s = s[idx+2:]
	}
}
