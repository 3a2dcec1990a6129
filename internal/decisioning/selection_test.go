package decisioning

import "testing"

// testProfile is a minimal Profile with a fixed worst-to-best ordering.
type testProfile struct {
	allowed []string
	cutoff  string
}

func (p *testProfile) IndexOf(quality string) int {
	for i, q := range p.allowed {
		if q == quality {
			return i
		}
	}
	return -1
}

func (p *testProfile) IsAllowed(quality string) bool {
	return p.IndexOf(quality) >= 0
}

func (p *testProfile) AtCutoff(quality string) bool {
	cur, cutoff := p.IndexOf(quality), p.IndexOf(p.cutoff)
	if cur < 0 || cutoff < 0 {
		return false
	}
	return cur >= cutoff
}

func hd1080Profile() *testProfile {
	return &testProfile{allowed: []string{"SD", "HDTV-720p", "WEBDL-1080p", "Bluray-1080p"}, cutoff: "WEBDL-1080p"}
}

func TestSelect_RejectsDisallowedQuality(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "movie.2160p", Quality: "Remux-2160p", SizeBytes: 20 << 30}}

	d := Select(releases, profile, DefaultScoringWeights(), Constraints{}, nil)
	if d.Selected() {
		t.Fatalf("expected rejection, got selected release %+v", d.Release)
	}
	if d.Reason != RejectNoneAcceptable {
		t.Errorf("expected RejectNoneAcceptable, got %v", d.Reason)
	}
}

func TestSelect_PicksHighestScoringAllowedRelease(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{
		{Title: "webdl", Quality: "WEBDL-1080p", SizeBytes: 4 << 30, Seeders: 10},
		{Title: "bluray", Quality: "Bluray-1080p", SizeBytes: 8 << 30, Seeders: 10},
	}

	d := Select(releases, profile, DefaultScoringWeights(), Constraints{}, nil)
	if !d.Selected() {
		t.Fatalf("expected a selection, got reject %v", d.Reason)
	}
	if d.Release.Release.Title != "bluray" {
		t.Errorf("expected higher quality-rank release 'bluray' to win, got %q", d.Release.Release.Title)
	}
}

func TestSelect_HardConstraintFiltersLowSeederTorrent(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{
		{Title: "weak", Quality: "Bluray-1080p", Protocol: ProtocolTorrent, Seeders: 1, SizeBytes: 8 << 30},
	}
	c := Constraints{MinSeedersTorrent: 5}

	d := Select(releases, profile, DefaultScoringWeights(), c, nil)
	if d.Selected() {
		t.Fatalf("expected rejection for below-minimum seeders, got %+v", d.Release)
	}
}

func TestSelect_UpgradeRequiresExceedingMargin(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "marginal", Quality: "Bluray-1080p", SizeBytes: 8 << 30}}
	current := &CurrentFile{Quality: "HDTV-720p", Score: 1000}
	c := Constraints{UpgradeAllowed: true, UpgradeMargin: 5}

	d := Select(releases, profile, DefaultScoringWeights(), c, current)
	if d.Selected() {
		t.Fatalf("expected reject, candidate score should not clear current.Score+margin, got %+v", d.Release)
	}
}

func TestSelect_UpgradeAcceptsExactlyAtMargin(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "candidate", Quality: "Bluray-1080p", SizeBytes: 8 << 30}}
	weights := DefaultScoringWeights()
	scored := Score(releases[0], profile, weights, Constraints{})

	current := &CurrentFile{Quality: "HDTV-720p", Score: scored.Score - 5}
	c := Constraints{UpgradeAllowed: true, UpgradeMargin: 5}

	d := Select(releases, profile, weights, c, current)
	if !d.Selected() {
		t.Fatalf("a release exceeding current by exactly UpgradeMargin must be accepted, got reject reason=%v", d.Reason)
	}
}

func TestSelect_AtCutoffRejectsWithoutSearchUpgradesAtCutoff(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "candidate", Quality: "Bluray-1080p", SizeBytes: 8 << 30}}
	current := &CurrentFile{Quality: "Bluray-1080p", Score: 0}
	c := Constraints{UpgradeAllowed: true, UpgradeMargin: 0}

	d := Select(releases, profile, DefaultScoringWeights(), c, current)
	if d.Reason != RejectAtCutoff {
		t.Errorf("expected RejectAtCutoff, got selected=%v reason=%v", d.Selected(), d.Reason)
	}
}

func TestSelect_NoUpgradeAllowedRejectsWhenFileExists(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "candidate", Quality: "Bluray-1080p", SizeBytes: 8 << 30}}
	current := &CurrentFile{Quality: "WEBDL-1080p", Score: 0}

	d := Select(releases, profile, DefaultScoringWeights(), Constraints{UpgradeAllowed: false}, current)
	if d.Selected() {
		t.Fatalf("expected reject when upgrades are disallowed, got %+v", d.Release)
	}
}

func TestSelect_TieBreaksBySeedersThenSize(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{
		{Title: "big-more-seeders", Quality: "Bluray-1080p", Protocol: ProtocolTorrent, SizeBytes: 10 << 30, Seeders: 50},
		{Title: "small-fewer-seeders", Quality: "Bluray-1080p", Protocol: ProtocolTorrent, SizeBytes: 5 << 30, Seeders: 20},
	}

	d := Select(releases, profile, DefaultScoringWeights(), Constraints{}, nil)
	if !d.Selected() {
		t.Fatalf("expected a selection, got reject %v", d.Reason)
	}
	if d.Release.Release.Title != "big-more-seeders" {
		t.Errorf("expected tie-break to favor higher seeders, got %q", d.Release.Release.Title)
	}
}

func TestSelect_EmptyInputRejectsWithNoCandidates(t *testing.T) {
	profile := hd1080Profile()
	d := Select(nil, profile, DefaultScoringWeights(), Constraints{}, nil)
	if d.Reason != RejectNoCandidates {
		t.Errorf("expected RejectNoCandidates, got %v", d.Reason)
	}
}

func TestSelect_BelowMinimumFormatScoreRejects(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{{Title: "candidate", Quality: "SD", SizeBytes: 1 << 30}}
	c := Constraints{MinimumFormatScore: 1000}

	d := Select(releases, profile, DefaultScoringWeights(), c, nil)
	if d.Reason != RejectBelowMinScore {
		t.Errorf("expected RejectBelowMinScore, got selected=%v reason=%v", d.Selected(), d.Reason)
	}
}

func TestSelect_ReputationBonusInfluencesRanking(t *testing.T) {
	profile := hd1080Profile()
	releases := []Release{
		{Title: "unknown-group", Quality: "Bluray-1080p", SizeBytes: 8 << 30},
		{Title: "trusted-group", Quality: "WEBDL-1080p", SizeBytes: 8 << 30, SceneGroup: "TRUSTED"},
	}
	c := Constraints{
		ReputationBonus: func(group string) int {
			if group == "TRUSTED" {
				return 100
			}
			return 0
		},
	}

	d := Select(releases, profile, DefaultScoringWeights(), c, nil)
	if !d.Selected() {
		t.Fatalf("expected a selection, got reject %v", d.Reason)
	}
	if d.Release.Release.Title != "trusted-group" {
		t.Errorf("expected reputation bonus to overcome lower quality rank, got %q", d.Release.Release.Title)
	}
}
