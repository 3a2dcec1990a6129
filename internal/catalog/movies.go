package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// MovieRepo is the movies sub-repository.
type MovieRepo struct {
	db *sql.DB
}

// Create inserts a new Movie, returning it with its assigned ID.
func (r *MovieRepo) Create(ctx context.Context, m *Movie) (*Movie, error) {
	now := time.Now().UTC()
	m.AddedAt, m.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO movies (external_key, title, year, overview, runtime_minutes, monitored,
			quality_profile_id, minimum_availability, path_root, has_file, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ExternalKey, m.Title, m.Year, m.Overview, m.RuntimeMinutes, m.Monitored,
		m.QualityProfileID, string(m.MinimumAvailability), m.PathRoot, m.HasFile, m.AddedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("catalog.Movies.Create", ErrDuplicateExternalKey)
		}
		return nil, fatal("catalog.Movies.Create", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fatal("catalog.Movies.Create", err)
	}
	m.ID = id
	return m, nil
}

// Get retrieves a Movie by ID.
func (r *MovieRepo) Get(ctx context.Context, id int64) (*Movie, error) {
	row := r.db.QueryRowContext(ctx, movieSelectColumns+` FROM movies WHERE id = ?`, id)
	return scanMovie(row, "catalog.Movies.Get")
}

// GetByExternalKey retrieves a Movie by its external (e.g. TMDB) key.
func (r *MovieRepo) GetByExternalKey(ctx context.Context, key string) (*Movie, error) {
	row := r.db.QueryRowContext(ctx, movieSelectColumns+` FROM movies WHERE external_key = ?`, key)
	return scanMovie(row, "catalog.Movies.GetByExternalKey")
}

// ListMonitored returns all movies with monitored = true.
func (r *MovieRepo) ListMonitored(ctx context.Context) ([]*Movie, error) {
	rows, err := r.db.QueryContext(ctx, movieSelectColumns+` FROM movies WHERE monitored = 1 ORDER BY id`)
	if err != nil {
		return nil, fatal("catalog.Movies.ListMonitored", err)
	}
	defer rows.Close()
	return scanMovies(rows)
}

// List returns every movie in the catalog.
func (r *MovieRepo) List(ctx context.Context) ([]*Movie, error) {
	rows, err := r.db.QueryContext(ctx, movieSelectColumns+` FROM movies ORDER BY id`)
	if err != nil {
		return nil, fatal("catalog.Movies.List", err)
	}
	defer rows.Close()
	return scanMovies(rows)
}

// Update persists mutable fields of m.
func (r *MovieRepo) Update(ctx context.Context, m *Movie) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE movies SET title=?, year=?, overview=?, runtime_minutes=?, monitored=?,
			quality_profile_id=?, minimum_availability=?, path_root=?, has_file=?, updated_at=?
		WHERE id = ?`,
		m.Title, m.Year, m.Overview, m.RuntimeMinutes, m.Monitored,
		m.QualityProfileID, string(m.MinimumAvailability), m.PathRoot, m.HasFile, m.UpdatedAt, m.ID)
	if err != nil {
		return fatal("catalog.Movies.Update", err)
	}
	return checkRowsAffected(res, "catalog.Movies.Update", ErrMovieNotFound)
}

// SetHasFile updates only the has_file flag transactionally as part of a
// larger import registration transaction.
func SetHasFile(ctx context.Context, tx *sql.Tx, movieID int64, hasFile bool) error {
	_, err := tx.ExecContext(ctx, `UPDATE movies SET has_file=?, updated_at=? WHERE id=?`,
		hasFile, time.Now().UTC(), movieID)
	if err != nil {
		return fatal("catalog.Movies.SetHasFile", err)
	}
	return nil
}

// Delete removes a movie and, via ON DELETE CASCADE, its files/queue items.
func (r *MovieRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return fatal("catalog.Movies.Delete", err)
	}
	return checkRowsAffected(res, "catalog.Movies.Delete", ErrMovieNotFound)
}

const movieSelectColumns = `SELECT id, external_key, title, year, overview, runtime_minutes, monitored,
	quality_profile_id, minimum_availability, path_root, has_file, added_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner, op string) (*Movie, error) {
	m := &Movie{}
	var availability string
	err := row.Scan(&m.ID, &m.ExternalKey, &m.Title, &m.Year, &m.Overview, &m.RuntimeMinutes,
		&m.Monitored, &m.QualityProfileID, &availability, &m.PathRoot, &m.HasFile, &m.AddedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, ErrMovieNotFound)
		}
		return nil, fatal(op, err)
	}
	m.MinimumAvailability = Availability(availability)
	return m, nil
}

func scanMovies(rows *sql.Rows) ([]*Movie, error) {
	var out []*Movie
	for rows.Next() {
		m, err := scanMovie(rows, "catalog.Movies.scan")
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fatal("catalog.Movies.scan", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, op string, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fatal(op, err)
	}
	if n == 0 {
		return notFound(op, notFoundErr)
	}
	return nil
}
