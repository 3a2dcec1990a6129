// Package decisioning implements C5, the pure decision engine: given a
// quality profile, a scored slate of releases, and an optional current
// file, it selects the best acceptable release or rejects the slate
// with a reason. It is directly grounded on the teacher's
// decisioning/selection.go and indexer/scoring/scorer.go: the
// filter/score/tie-break shape is kept, the season/episode-specific
// branches are dropped (movies only), and the scoring formula gains an
// explicit reputation_bonus term (sourced from C11) and an
// upgrade_margin threshold (generalizing the teacher's IsUpgrade bool
// into a scored margin comparison), per spec.md §4.5.
//
// The engine performs no I/O: identical inputs always produce an
// identical outcome.
package decisioning

import "time"

// Protocol is the release delivery mechanism.
type Protocol string

const (
	ProtocolTorrent   Protocol = "torrent"
	ProtocolNewsgroup Protocol = "newsgroup"
)

// Release is a normalized, already-parsed candidate from the indexer
// pool (C4's output), scored and selected here.
type Release struct {
	IndexerID       int64
	IndexerPriority int // 1-100, lower is better
	Title           string
	DownloadURL     string
	Quality         string
	SizeBytes       int64
	Seeders         int
	Leechers        int
	Age             time.Duration
	Protocol        Protocol
	SceneGroup      string
	Languages       []string
	IsProper        bool
	IsRepack        bool
	FormatBonus     int // custom format-scoring bonuses/penalties, already summed
}

// CurrentFile is the subset of catalog.MovieFile the engine needs to
// decide whether a candidate is an upgrade.
type CurrentFile struct {
	Quality string
	Score   int
}

// Profile is the subset of catalog.QualityProfile the engine needs.
// Decoupling from the catalog package keeps this package I/O-free and
// independently testable.
type Profile interface {
	IndexOf(quality string) int
	IsAllowed(quality string) bool
	AtCutoff(quality string) bool
}

// Constraints are the hard filters of spec.md §4.5 step 2.
type Constraints struct {
	PreferredLanguage  string
	MinSizeBytes       int64
	MaxSizeBytes       int64 // 0 means unbounded
	MinSeedersTorrent  int
	MaxAge             time.Duration // 0 means unbounded
	UpgradeAllowed         bool
	UpgradeMargin          int
	SearchUpgradesAtCutoff bool
	MinimumFormatScore     int
	ReputationBonus    func(sceneGroup string) int // sourced from C11
	IndexerPriority    func(indexerID int64) int   // overrides Release.IndexerPriority when set
}

// RejectReason explains why no release was selected.
type RejectReason string

const (
	RejectNoCandidates   RejectReason = "no_candidates"
	RejectAtCutoff       RejectReason = "at_cutoff"
	RejectBelowMinScore  RejectReason = "below_minimum_format_score"
	RejectNoneAcceptable RejectReason = "no_release_acceptable"
)

// Decision is the engine's output: exactly one of Release or Reason is set.
type Decision struct {
	Release *ScoredRelease
	Reason  RejectReason
}

// Selected reports whether the decision picked a release.
func (d Decision) Selected() bool {
	return d.Release != nil
}

// ScoredRelease pairs a Release with its computed score and quality rank.
type ScoredRelease struct {
	Release     Release
	QualityRank int
	Score       int
}
