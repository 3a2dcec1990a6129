package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
)

// ProfileRepo is the quality_profiles sub-repository.
type ProfileRepo struct {
	db *sql.DB
}

// Get retrieves a QualityProfile by ID.
func (r *ProfileRepo) Get(ctx context.Context, id int64) (*QualityProfile, error) {
	row := r.db.QueryRowContext(ctx, profileSelectColumns+` FROM quality_profiles WHERE id = ?`, id)
	return scanProfile(row)
}

// List returns all configured quality profiles.
func (r *ProfileRepo) List(ctx context.Context) ([]*QualityProfile, error) {
	rows, err := r.db.QueryContext(ctx, profileSelectColumns+` FROM quality_profiles ORDER BY id`)
	if err != nil {
		return nil, fatal("catalog.Profiles.List", err)
	}
	defer rows.Close()
	var out []*QualityProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a new QualityProfile. The cutoff must be a member of
// AllowedQualities (spec.md §3 invariant) — callers validate this before
// calling Create; Create itself trusts its input the way the rest of
// the catalog package trusts callers at this layer.
func (r *ProfileRepo) Create(ctx context.Context, p *QualityProfile) (*QualityProfile, error) {
	allowed, err := json.Marshal(p.AllowedQualities)
	if err != nil {
		return nil, fatal("catalog.Profiles.Create", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO quality_profiles (name, allowed_qualities, cutoff, upgrade_allowed, minimum_format_score, search_upgrades_at_cutoff)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, string(allowed), p.Cutoff, p.UpgradeAllowed, p.MinimumFormatScore, p.SearchUpgradesAtCutoff)
	if err != nil {
		return nil, fatal("catalog.Profiles.Create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fatal("catalog.Profiles.Create", err)
	}
	p.ID = id
	return p, nil
}

const profileSelectColumns = `SELECT id, name, allowed_qualities, cutoff, upgrade_allowed, minimum_format_score, search_upgrades_at_cutoff`

func scanProfile(row rowScanner) (*QualityProfile, error) {
	p := &QualityProfile{}
	var allowedJSON string
	if err := row.Scan(&p.ID, &p.Name, &allowedJSON, &p.Cutoff, &p.UpgradeAllowed, &p.MinimumFormatScore, &p.SearchUpgradesAtCutoff); err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("catalog.Profiles.scan", ErrProfileNotFound)
		}
		return nil, fatal("catalog.Profiles.scan", err)
	}
	_ = json.Unmarshal([]byte(allowedJSON), &p.AllowedQualities)
	return p, nil
}
