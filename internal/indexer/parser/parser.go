// Package parser normalizes raw release titles into structured
// attributes (quality, resolution, source, codec, release group,
// edition flags), grounded on the teacher's
// internal/library/scanner.ParseFilename, trimmed to the movie-only
// patterns per spec.md §4.4's normalization rule. Unparseable titles
// are retained as low-confidence candidates rather than dropped.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the structured result of parsing a release title.
type Parsed struct {
	Title        string
	Year         int
	Resolution   string // "720p", "1080p", "2160p"
	Source       string // "BluRay", "WEB-DL", "HDTV", "Remux", ...
	Codec        string
	ReleaseGroup string
	IsProper     bool
	IsRepack     bool
	IsInternal   bool
	Edition      string
	Languages    []string
	Confidence   float64 // 1.0 = title/year matched, 0.3 = fell back to raw title
}

var (
	moviePatternParen  = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*(.*)$`)
	moviePatternDot    = regexp.MustCompile(`^(.+?)[.\s_-]+(\d{4})[.\s_-]+(.*)$`)
	moviePatternSimple = regexp.MustCompile(`^(.+?)[.\s_-]+(\d{4})$`)

	resolutionPatterns = map[string]*regexp.Regexp{
		"2160p": regexp.MustCompile(`(?i)(2160p|4k|uhd)`),
		"1080p": regexp.MustCompile(`(?i)1080p`),
		"720p":  regexp.MustCompile(`(?i)720p`),
		"480p":  regexp.MustCompile(`(?i)(480p|\bsd\b)`),
	}

	// Order matters: more specific sources checked first.
	sourceOrder    = []string{"Remux", "BluRay", "WEBRip", "WEB-DL", "HDTV", "DVDRip", "SDTV", "CAM"}
	sourcePatterns = map[string]*regexp.Regexp{
		"BluRay": regexp.MustCompile(`(?i)(blu-?ray|bdrip|brrip|bdremux)`),
		"WEB-DL": regexp.MustCompile(`(?i)(web-?dl|webdl|\bweb\b)`),
		"WEBRip": regexp.MustCompile(`(?i)web-?rip`),
		"HDTV":   regexp.MustCompile(`(?i)hdtv`),
		"DVDRip": regexp.MustCompile(`(?i)(dvdrip|dvd-?r)`),
		"SDTV":   regexp.MustCompile(`(?i)(sdtv|pdtv|dsr)`),
		"CAM":    regexp.MustCompile(`(?i)(cam|hdcam|\bts\b|telesync)`),
		"Remux":  regexp.MustCompile(`(?i)remux`),
	}

	codecPatterns = map[string]*regexp.Regexp{
		"x265": regexp.MustCompile(`(?i)(x265|h\.?265|hevc)`),
		"x264": regexp.MustCompile(`(?i)(x264|h\.?264|avc)`),
		"AV1":  regexp.MustCompile(`(?i)av1`),
		"XviD": regexp.MustCompile(`(?i)xvid`),
	}

	properPattern     = regexp.MustCompile(`(?i)(^|[.\s\-_])proper([.\s\-_]|$)`)
	repackPattern     = regexp.MustCompile(`(?i)(^|[.\s\-_])(repack|real|rerip)([.\s\-_]|$)`)
	internalPattern   = regexp.MustCompile(`(?i)(^|[.\s\-_])internal([.\s\-_]|$)`)
	releaseGroupRegex = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\.[a-z0-9]{2,4})?$`)

	editionOrder    = []string{"Director's Cut", "Extended Cut", "Extended", "Theatrical", "Unrated", "Uncut", "IMAX", "3D", "Remastered", "Criterion"}
	editionPatterns = map[string]*regexp.Regexp{
		"Director's Cut": regexp.MustCompile(`(?i)(^|[.\s\-_])directors?[.\s\-_]?cut([.\s\-_]|$)`),
		"Extended Cut":   regexp.MustCompile(`(?i)(^|[.\s\-_])extended[.\s\-_]?cut([.\s\-_]|$)`),
		"Extended":       regexp.MustCompile(`(?i)(^|[.\s\-_])extended([.\s\-_]|$)`),
		"Theatrical":     regexp.MustCompile(`(?i)(^|[.\s\-_])theatrical([.\s\-_]|$)`),
		"Unrated":        regexp.MustCompile(`(?i)(^|[.\s\-_])unrated([.\s\-_]|$)`),
		"Uncut":          regexp.MustCompile(`(?i)(^|[.\s\-_])uncut([.\s\-_]|$)`),
		"IMAX":           regexp.MustCompile(`(?i)(^|[.\s\-_])imax([.\s\-_]|$)`),
		"3D":             regexp.MustCompile(`(?i)(^|[.\s\-_])3d([.\s\-_]|$)`),
		"Remastered":     regexp.MustCompile(`(?i)(^|[.\s\-_])remastered([.\s\-_]|$)`),
		"Criterion":      regexp.MustCompile(`(?i)(^|[.\s\-_])criterion([.\s\-_]|$)`),
	}

	languagePatterns = map[string]*regexp.Regexp{
		"German":  regexp.MustCompile(`(?i)(^|[.\s\-_])(german|ger)([.\s\-_]|$)`),
		"French":  regexp.MustCompile(`(?i)(^|[.\s\-_])(french|fre|fra)([.\s\-_]|$)`),
		"Spanish": regexp.MustCompile(`(?i)(^|[.\s\-_])(spanish|spa)([.\s\-_]|$)`),
		"Italian": regexp.MustCompile(`(?i)(^|[.\s\-_])(italian|ita)([.\s\-_]|$)`),
		"Russian": regexp.MustCompile(`(?i)(^|[.\s\-_])(russian|rus)([.\s\-_]|$)`),
		"Korean":  regexp.MustCompile(`(?i)(^|[.\s\-_])(korean|kor)([.\s\-_]|$)`),
		"Hindi":   regexp.MustCompile(`(?i)(^|[.\s\-_])(hindi|hin)([.\s\-_]|$)`),
	}

	cleanupPattern = regexp.MustCompile(`[.\s_-]+`)
)

// Parse extracts structured attributes from a raw release title.
// Unparseable titles are never rejected: Parse always returns a
// Parsed value, with Confidence reflecting how much was recovered.
func Parse(title string) Parsed {
	p := Parsed{Confidence: 1.0}

	rest := title
	if m := moviePatternParen.FindStringSubmatch(title); m != nil {
		p.Title = cleanTitle(m[1])
		p.Year, _ = strconv.Atoi(m[2])
		rest = m[3]
	} else if m := moviePatternDot.FindStringSubmatch(title); m != nil {
		if year, err := strconv.Atoi(m[2]); err == nil && year >= 1900 && year <= 2100 {
			p.Title = cleanTitle(m[1])
			p.Year = year
			rest = m[3]
		}
	} else if m := moviePatternSimple.FindStringSubmatch(title); m != nil {
		if year, err := strconv.Atoi(m[2]); err == nil && year >= 1900 && year <= 2100 {
			p.Title = cleanTitle(m[1])
			p.Year = year
			rest = ""
		}
	}

	if p.Title == "" {
		// Fall back to the full title as a low-confidence candidate
		// rather than discarding it (spec.md §4.4's normalization rule).
		p.Title = cleanTitle(title)
		p.Confidence = 0.3
	}

	parseTechnicalInfo(rest, &p)
	return p
}

func parseTechnicalInfo(text string, p *Parsed) {
	for res, pattern := range resolutionPatterns {
		if pattern.MatchString(text) {
			p.Resolution = res
			break
		}
	}

	for _, source := range sourceOrder {
		if sourcePatterns[source].MatchString(text) {
			p.Source = source
			break
		}
	}

	for codec, pattern := range codecPatterns {
		if pattern.MatchString(text) {
			p.Codec = codec
			break
		}
	}

	p.IsProper = properPattern.MatchString(text)
	p.IsRepack = repackPattern.MatchString(text)
	p.IsInternal = internalPattern.MatchString(text)

	if m := releaseGroupRegex.FindStringSubmatch(text); m != nil && !isCodecFalsePositive(m[1]) {
		p.ReleaseGroup = m[1]
	}

	var editions []string
	for _, ed := range editionOrder {
		if editionPatterns[ed].MatchString(text) {
			editions = append(editions, ed)
		}
	}
	p.Edition = strings.Join(editions, " ")

	for lang, pattern := range languagePatterns {
		if pattern.MatchString(text) {
			p.Languages = append(p.Languages, lang)
		}
	}
}

var codecFalsePositives = map[string]bool{
	"x264": true, "x265": true, "hevc": true, "avc": true,
	"h264": true, "h265": true, "xvid": true, "mkv": true, "mp4": true,
}

func isCodecFalsePositive(group string) bool {
	return codecFalsePositives[strings.ToLower(group)]
}

func cleanTitle(title string) string {
	return strings.TrimSpace(cleanupPattern.ReplaceAllString(title, " "))
}
