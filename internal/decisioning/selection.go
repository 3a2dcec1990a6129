package decisioning

import "sort"

// Select runs the deterministic six-step algorithm of spec.md §4.5 over
// releases and returns a Decision. releases need not be pre-sorted;
// Select scores, filters, and orders them itself.
func Select(releases []Release, profile Profile, weights ScoringWeights, c Constraints, current *CurrentFile) Decision {
	if len(releases) == 0 {
		return Decision{Reason: RejectNoCandidates}
	}

	// Step 1: quality must be in the profile's allowed set.
	candidates := make([]Release, 0, len(releases))
	for _, r := range releases {
		if profile.IsAllowed(r.Quality) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Decision{Reason: RejectNoneAcceptable}
	}

	// Step 2: hard constraints.
	candidates = filterHardConstraints(candidates, c)
	if len(candidates) == 0 {
		return Decision{Reason: RejectNoneAcceptable}
	}

	// Step 3: score every surviving candidate.
	scored := make([]ScoredRelease, 0, len(candidates))
	for _, r := range candidates {
		scored = append(scored, Score(r, profile, weights, c))
	}

	// Step 4: upgrade-margin / at-cutoff gating.
	if current != nil {
		if !c.UpgradeAllowed {
			return Decision{Reason: RejectNoneAcceptable}
		}

		if profile.AtCutoff(current.Quality) && !c.SearchUpgradesAtCutoff {
			return Decision{Reason: RejectAtCutoff}
		}

		filtered := make([]ScoredRelease, 0, len(scored))
		for _, sr := range scored {
			if sr.Score >= current.Score+c.UpgradeMargin {
				filtered = append(filtered, sr)
			}
		}
		scored = filtered
	}
	if len(scored) == 0 {
		return Decision{Reason: RejectNoneAcceptable}
	}

	// Step 5: order by score desc, tie-broken by (higher seeders for
	// torrents -> lower size -> earlier publish/lower age -> stable
	// indexer order).
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Release.Protocol == ProtocolTorrent && b.Release.Protocol == ProtocolTorrent && a.Release.Seeders != b.Release.Seeders {
			return a.Release.Seeders > b.Release.Seeders
		}
		if a.Release.SizeBytes != b.Release.SizeBytes {
			return a.Release.SizeBytes < b.Release.SizeBytes
		}
		if a.Release.Age != b.Release.Age {
			return a.Release.Age < b.Release.Age
		}
		return a.Release.IndexerPriority < b.Release.IndexerPriority
	})

	best := scored[0]

	// Step 6: reject if the best remaining score is below the floor.
	if best.Score < c.MinimumFormatScore {
		return Decision{Reason: RejectBelowMinScore}
	}

	return Decision{Release: &best}
}

func filterHardConstraints(releases []Release, c Constraints) []Release {
	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		if c.MinSizeBytes > 0 && r.SizeBytes < c.MinSizeBytes {
			continue
		}
		if c.MaxSizeBytes > 0 && r.SizeBytes > c.MaxSizeBytes {
			continue
		}
		if r.Protocol == ProtocolTorrent && c.MinSeedersTorrent > 0 && r.Seeders < c.MinSeedersTorrent {
			continue
		}
		if c.MaxAge > 0 && r.Age > c.MaxAge {
			continue
		}
		if c.PreferredLanguage != "" && !languageAcceptable(r.Languages, c.PreferredLanguage) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// languageAcceptable mirrors the teacher's calculateLanguageScore
// semantics: releases with no detected language tag are never
// rejected on language grounds, only explicitly-tagged mismatches are.
func languageAcceptable(languages []string, preferred string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, lang := range languages {
		if lang == preferred {
			return true
		}
	}
	return false
}
