package catalog

import (
	"context"
	"database/sql"
	"time"
)

// ReputationRepo is the scene_group_reputation sub-repository (C11). The
// core only reads; writes come from an offline analyzer out of scope for
// this repository, exposed here only so tests and admin tooling can seed
// data.
type ReputationRepo struct {
	db *sql.DB
}

// Get returns the reputation record for name, or a neutral default if
// the group has no record (spec.md §4.11).
func (r *ReputationRepo) Get(ctx context.Context, name string) (*SceneGroupReputation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT name, reputation_score, tier, confidence, sample_count, updated_at FROM scene_group_reputation WHERE name = ?`, name)
	rep := &SceneGroupReputation{}
	var tier string
	err := row.Scan(&rep.Name, &rep.ReputationScore, &tier, &rep.Confidence, &rep.SampleCount, &rep.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &SceneGroupReputation{Name: name, Tier: TierNeutral}, nil
		}
		return nil, fatal("catalog.Reputation.Get", err)
	}
	rep.Tier = ReputationTier(tier)
	return rep, nil
}

// Upsert writes or replaces a reputation record (called by the offline
// analyzer adapter, not by the decision engine).
func (r *ReputationRepo) Upsert(ctx context.Context, rep *SceneGroupReputation) error {
	rep.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scene_group_reputation (name, reputation_score, tier, confidence, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			reputation_score=excluded.reputation_score, tier=excluded.tier,
			confidence=excluded.confidence, sample_count=excluded.sample_count, updated_at=excluded.updated_at`,
		rep.Name, rep.ReputationScore, string(rep.Tier), rep.Confidence, rep.SampleCount, rep.UpdatedAt)
	if err != nil {
		return fatal("catalog.Reputation.Upsert", err)
	}
	return nil
}
