package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate_ResolvesMovieTokens(t *testing.T) {
	tokens := Tokens{Title: "Heat", Year: 1995, Resolution: "1080p", Source: "BluRay", Group: "GROUP"}
	got := renderTemplate("{Title} ({Year}) {Resolution} {Source}-{Group}", tokens)
	assert.Equal(t, "Heat (1995) 1080p BluRay-GROUP", got)
}

func TestRenderTemplate_OmitsEmptyEdition(t *testing.T) {
	tokens := Tokens{Title: "Heat", Year: 1995}
	got := renderTemplate("{Title} ({Year}) {Edition}", tokens)
	assert.Equal(t, "Heat (1995)", got)
}

func TestRenderTemplate_StripsIllegalCharacters(t *testing.T) {
	tokens := Tokens{Title: "A: Title/With*Bad<Chars>", Year: 2020}
	got := renderTemplate("{Title} ({Year})", tokens)
	assert.NotContains(t, got, ":")
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "<")
}

func TestDestinationPath_JoinsRootFolderAndFile(t *testing.T) {
	cfg := DefaultConfig()
	tokens := Tokens{Title: "Heat", Year: 1995, Resolution: "1080p", Source: "BluRay", Group: "GROUP"}
	dest := destinationPath(cfg, "/movies", tokens, ".mkv")
	assert.Equal(t, "/movies/Heat (1995)/Heat (1995) 1080p BluRay-GROUP.mkv", dest)
}

func TestUniqueDestination_AppendsSuffixOnCollision(t *testing.T) {
	exists := map[string]bool{"/movies/Heat (1995).mkv": true}
	got := uniqueDestination("/movies/Heat (1995).mkv", func(p string) bool { return exists[p] })
	assert.Equal(t, "/movies/Heat (1995) (2).mkv", got)
}

func TestUniqueDestination_ReturnsInputWhenFree(t *testing.T) {
	got := uniqueDestination("/movies/Heat (1995).mkv", func(string) bool { return false })
	assert.Equal(t, "/movies/Heat (1995).mkv", got)
}
