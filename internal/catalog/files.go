package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// FileRepo is the movie_files sub-repository.
type FileRepo struct {
	db *sql.DB
}

// GetCurrent returns the current MovieFile for movieID, if any.
func (r *FileRepo) GetCurrent(ctx context.Context, movieID int64) (*MovieFile, error) {
	row := r.db.QueryRowContext(ctx, fileSelectColumns+` FROM movie_files WHERE movie_id = ? AND is_current = 1`, movieID)
	return scanFile(row, "catalog.Files.GetCurrent")
}

// ListForMovie returns all file rows (current and demoted) for movieID.
func (r *FileRepo) ListForMovie(ctx context.Context, movieID int64) ([]*MovieFile, error) {
	rows, err := r.db.QueryContext(ctx, fileSelectColumns+` FROM movie_files WHERE movie_id = ? ORDER BY id`, movieID)
	if err != nil {
		return nil, fatal("catalog.Files.ListForMovie", err)
	}
	defer rows.Close()
	var out []*MovieFile
	for rows.Next() {
		f, err := scanFile(rows, "catalog.Files.ListForMovie")
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RegisterImport performs the import pipeline's "Registered" step
// (spec.md §4.7 step 6) in a single transaction: demote the previous
// current file (if the new score is strictly greater — the upgrade
// policy), insert the new current MovieFile, flip Movie.has_file, and
// append an Imported/Upgraded history row. It returns the new file and
// whether an existing file was replaced.
func (s *Store) RegisterImport(ctx context.Context, file *MovieFile, historyKind HistoryEventKind, historyData map[string]any) (*MovieFile, bool, error) {
	var replaced bool
	file.ImportedAt = time.Now().UTC()
	file.IsCurrent = true

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := getCurrentFileTx(ctx, tx, file.MovieID)
		if err != nil && !errors.Is(err, ErrMovieFileNotFound) {
			return err
		}

		if existing != nil {
			if file.Score <= existing.Score {
				return conflict("catalog.RegisterImport", errors.New("new file does not strictly improve on current file score"))
			}
			if _, err := tx.ExecContext(ctx, `UPDATE movie_files SET is_current = 0 WHERE id = ?`, existing.ID); err != nil {
				return fatal("catalog.RegisterImport", err)
			}
			replaced = true
		}

		mediaInfo, err := json.Marshal(file.MediaInfo)
		if err != nil {
			return fatal("catalog.RegisterImport", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO movie_files (movie_id, relative_path, size_bytes, quality, score, scene_group, source, media_info, is_current, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			file.MovieID, file.RelativePath, file.SizeBytes, file.Quality, file.Score, file.SceneGroup, file.Source, string(mediaInfo), file.ImportedAt)
		if err != nil {
			return fatal("catalog.RegisterImport", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fatal("catalog.RegisterImport", err)
		}
		file.ID = id

		if err := SetHasFile(ctx, tx, file.MovieID, true); err != nil {
			return err
		}

		return insertHistoryTx(ctx, tx, &HistoryEvent{MovieID: &file.MovieID, EventKind: historyKind, Data: historyData, OccurredAt: file.ImportedAt})
	})
	if err != nil {
		return nil, false, err
	}
	return file, replaced, nil
}

// DeleteCurrent removes the current file row for movieID and clears
// Movie.has_file, used when a registered file is deleted from disk.
func (s *Store) DeleteCurrent(ctx context.Context, movieID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM movie_files WHERE movie_id = ? AND is_current = 1`, movieID); err != nil {
			return fatal("catalog.DeleteCurrent", err)
		}
		return SetHasFile(ctx, tx, movieID, false)
	})
}

func getCurrentFileTx(ctx context.Context, tx *sql.Tx, movieID int64) (*MovieFile, error) {
	row := tx.QueryRowContext(ctx, fileSelectColumns+` FROM movie_files WHERE movie_id = ? AND is_current = 1`, movieID)
	return scanFile(row, "catalog.getCurrentFileTx")
}

const fileSelectColumns = `SELECT id, movie_id, relative_path, size_bytes, quality, score, scene_group, source, media_info, is_current, imported_at`

func scanFile(row rowScanner, op string) (*MovieFile, error) {
	f := &MovieFile{}
	var mediaInfoJSON string
	err := row.Scan(&f.ID, &f.MovieID, &f.RelativePath, &f.SizeBytes, &f.Quality, &f.Score,
		&f.SceneGroup, &f.Source, &mediaInfoJSON, &f.IsCurrent, &f.ImportedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, ErrMovieFileNotFound)
		}
		return nil, fatal(op, err)
	}
	_ = json.Unmarshal([]byte(mediaInfoJSON), &f.MediaInfo)
	return f, nil
}
