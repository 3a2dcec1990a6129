package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern matches template tokens like {Token} or {Token:00},
// lifted from the teacher's organizer.tokenPattern.
var tokenPattern = regexp.MustCompile(`\{([^}:]+)(?::([^}]+))?\}`)

// Tokens carries the values a movie rename template can reference.
type Tokens struct {
	Title      string
	Year       int
	Resolution string
	Source     string
	Codec      string
	Edition    string
	Group      string
}

// renderTemplate resolves every token in template against t, then
// cleans the result of filesystem-illegal characters (the teacher's
// cleanFilename step).
func renderTemplate(template string, t Tokens) string {
	result := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := tokenPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		format := ""
		if len(sub) >= 3 {
			format = sub[2]
		}
		return resolveToken(sub[1], format, t)
	})
	return cleanFilename(result)
}

func resolveToken(token, format string, t Tokens) string {
	switch strings.ToLower(token) {
	case "title":
		return t.Title
	case "year":
		if t.Year > 0 {
			return formatNumber(t.Year, format)
		}
		return ""
	case "resolution":
		return t.Resolution
	case "source":
		return t.Source
	case "codec":
		return t.Codec
	case "edition":
		return t.Edition
	case "group":
		return t.Group
	}
	return ""
}

func formatNumber(n int, format string) string {
	if format != "" && format[0] == '0' {
		return fmt.Sprintf("%0*d", len(format), n)
	}
	return strconv.Itoa(n)
}

// illegalChars are filesystem-invalid on at least one of the major
// platforms (the teacher's cleanFilename Windows-compatible set).
var illegalChars = []string{"<", ">", "\"", "/", "\\", "|", "?", "*", ":"}

var (
	multiSpace   = regexp.MustCompile(`\s+`)
	emptyParens  = regexp.MustCompile(`\s*\(\s*\)\s*`)
	trailingDash = regexp.MustCompile(`[\s-]+$`)
)

func cleanFilename(name string) string {
	for _, c := range illegalChars {
		name = strings.ReplaceAll(name, c, "")
	}
	name = multiSpace.ReplaceAllString(name, " ")
	name = emptyParens.ReplaceAllString(name, "")
	name = trailingDash.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// destinationPath computes Movie.path_root / folder / filename.ext for
// a candidate, using cfg's templates (spec.md §4.7 step 3).
func destinationPath(cfg Config, pathRoot string, t Tokens, ext string) string {
	folder := renderTemplate(cfg.FolderTemplate, t)
	filename := renderTemplate(cfg.FileNameTemplate, t)
	if folder == "" {
		return filepath.Join(pathRoot, filename+ext)
	}
	return filepath.Join(pathRoot, folder, filename+ext)
}

// uniqueDestination appends " (2)", " (3)", ... before the extension
// while the caller's exists predicate reports the candidate path as
// taken, and returns the first free one (dest itself when it is free).
// Whether a name differing only in case counts as taken is decided by
// the predicate, not here; no directory listing is read, so this stays
// a pure function.
func uniqueDestination(dest string, exists func(string) bool) string {
	if !exists(dest) {
		return dest
	}
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}
