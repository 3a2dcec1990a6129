package decisioning

import "math"

// ScoringWeights mirrors the teacher's scoring.ScoringConfig shape:
// named, overridable weights rather than inline magic numbers.
type ScoringWeights struct {
	QualityRankPoints    int // points per quality-rank step (spec.md §4.5 step 3 "quality_rank")
	ProperRepackBonus    int
	MaxIndexerPoints     int // spec.md §4.5 "protocol/indexer priority bonus"
	SizePressureStartGB  float64
	SizePressurePerGB    int
}

// DefaultScoringWeights returns the weights used when none are supplied.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		QualityRankPoints:   20,
		ProperRepackBonus:   5,
		MaxIndexerPoints:    20,
		SizePressureStartGB: 12,
		SizePressurePerGB:   1,
	}
}

// Score computes a release's total desirability score per spec.md §4.5
// step 3: quality_rank + format_score + reputation_bonus +
// protocol/indexer priority bonus − size-pressure penalty.
func Score(r Release, profile Profile, weights ScoringWeights, c Constraints) ScoredRelease {
	rank := profile.IndexOf(r.Quality)

	total := rank * weights.QualityRankPoints
	total += r.FormatBonus
	if r.IsProper || r.IsRepack {
		total += weights.ProperRepackBonus
	}

	if c.ReputationBonus != nil {
		total += c.ReputationBonus(r.SceneGroup)
	}

	priority := r.IndexerPriority
	if c.IndexerPriority != nil {
		priority = c.IndexerPriority(r.IndexerID)
	}
	total += indexerPriorityScore(priority, weights.MaxIndexerPoints)

	total -= sizePressurePenalty(r.SizeBytes, weights)

	return ScoredRelease{Release: r, QualityRank: rank, Score: total}
}

// indexerPriorityScore maps priority (1-100, lower is better) onto
// 0..MaxIndexerPoints, matching the teacher's scorer.calculateIndexerScore.
func indexerPriorityScore(priority, maxPoints int) int {
	if priority <= 0 {
		priority = 50
	}
	score := float64(maxPoints) * (1 - float64(priority-1)/99)
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// sizePressurePenalty grows linearly once a release exceeds
// SizePressureStartGB, discouraging needlessly bloated encodes that
// would otherwise tie on quality rank.
func sizePressurePenalty(sizeBytes int64, weights ScoringWeights) int {
	const bytesPerGB = 1 << 30
	gb := float64(sizeBytes) / bytesPerGB
	if gb <= weights.SizePressureStartGB {
		return 0
	}
	return int(math.Round((gb - weights.SizePressureStartGB) * float64(weights.SizePressurePerGB)))
}
