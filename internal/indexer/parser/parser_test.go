package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cinequeue/cinequeue/internal/indexer/parser"
)

func TestParse_DotSeparatedRelease(t *testing.T) {
	p := parser.Parse("The.Great.Escape.1963.1080p.BluRay.x264-GROUP")

	assert.Equal(t, "The Great Escape", p.Title)
	assert.Equal(t, 1963, p.Year)
	assert.Equal(t, "1080p", p.Resolution)
	assert.Equal(t, "BluRay", p.Source)
	assert.Equal(t, "x264", p.Codec)
	assert.Equal(t, "GROUP", p.ReleaseGroup)
	assert.Equal(t, 1.0, p.Confidence)
}

func TestParse_ParentheticalYear(t *testing.T) {
	p := parser.Parse("Arrival (2016) 2160p WEB-DL HEVC-TEAM")

	assert.Equal(t, "Arrival", p.Title)
	assert.Equal(t, 2016, p.Year)
	assert.Equal(t, "2160p", p.Resolution)
	assert.Equal(t, "WEB-DL", p.Source)
	assert.Equal(t, "x265", p.Codec)
}

func TestParse_ProperAndRepackFlags(t *testing.T) {
	proper := parser.Parse("Heat.1995.PROPER.1080p.BluRay.x264-GROUP")
	assert.True(t, proper.IsProper)
	assert.False(t, proper.IsRepack)

	repack := parser.Parse("Heat.1995.REPACK.1080p.BluRay.x264-GROUP")
	assert.True(t, repack.IsRepack)
	assert.False(t, repack.IsProper)
}

func TestParse_EditionFlags(t *testing.T) {
	p := parser.Parse("Blade.Runner.1982.Directors.Cut.1080p.BluRay.x264-GROUP")
	assert.Equal(t, "Director's Cut", p.Edition)
}

func TestParse_LanguageDetection(t *testing.T) {
	p := parser.Parse("Das.Boot.1981.German.1080p.BluRay.x264-GROUP")
	assert.Contains(t, p.Languages, "German")
}

func TestParse_UnparseableTitleIsLowConfidenceNotDropped(t *testing.T) {
	p := parser.Parse("random_release_with_no_year_token")
	assert.NotEmpty(t, p.Title)
	assert.Less(t, p.Confidence, 1.0)
}

func TestParse_ReleaseGroupExcludesCodecFalsePositive(t *testing.T) {
	p := parser.Parse("Heat.1995.1080p.BluRay-x264")
	assert.Empty(t, p.ReleaseGroup)
}
