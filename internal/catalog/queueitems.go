package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrQueueItemNotFound is returned when a QueueItem lookup misses.
var ErrQueueItemNotFound = errors.New("queue item not found")

// QueueItemRepo is the queue_items (live download) sub-repository.
type QueueItemRepo struct {
	db *sql.DB
}

// Create persists a QueueItem *before* the daemon is called, per
// spec.md §4.6: "Persist QueueItem before calling the daemon."
func (r *QueueItemRepo) Create(ctx context.Context, q *QueueItem) (*QueueItem, error) {
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_items (movie_id, download_client_id, download_id, status, progress_pct,
			size_total, size_downloaded, eta_seconds, output_path, release_title, release_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.MovieID, q.DownloadClientID, q.DownloadID, string(q.Status), q.ProgressPct,
		q.SizeTotal, q.SizeDownloaded, q.ETASeconds, q.OutputPath, q.ReleaseTitle, q.ReleaseScore, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return nil, fatal("catalog.Queue.Create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fatal("catalog.Queue.Create", err)
	}
	q.ID = id
	return q, nil
}

// Get retrieves a QueueItem by ID.
func (r *QueueItemRepo) Get(ctx context.Context, id int64) (*QueueItem, error) {
	row := r.db.QueryRowContext(ctx, queueItemSelectColumns+` FROM queue_items WHERE id = ?`, id)
	return scanQueueItem(row)
}

// ListActive returns every queue item not yet completed or failed — the
// set the monitor worker polls.
func (r *QueueItemRepo) ListActive(ctx context.Context) ([]*QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, queueItemSelectColumns+
		` FROM queue_items WHERE status IN ('queued', 'downloading', 'paused') ORDER BY id`)
	if err != nil {
		return nil, fatal("catalog.Queue.ListActive", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// Update persists the full mutable state of a QueueItem.
func (r *QueueItemRepo) Update(ctx context.Context, q *QueueItem) error {
	q.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_items SET download_id=?, status=?, progress_pct=?, size_total=?, size_downloaded=?,
			eta_seconds=?, output_path=?, updated_at=? WHERE id=?`,
		q.DownloadID, string(q.Status), q.ProgressPct, q.SizeTotal, q.SizeDownloaded, q.ETASeconds, q.OutputPath, q.UpdatedAt, q.ID)
	if err != nil {
		return fatal("catalog.Queue.Update", err)
	}
	return checkRowsAffected(res, "catalog.Queue.Update", ErrQueueItemNotFound)
}

// Remove deletes a queue item row, e.g. after successful import.
func (r *QueueItemRepo) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fatal("catalog.Queue.Remove", err)
	}
	return checkRowsAffected(res, "catalog.Queue.Remove", ErrQueueItemNotFound)
}

const queueItemSelectColumns = `SELECT id, movie_id, download_client_id, download_id, status, progress_pct,
	size_total, size_downloaded, eta_seconds, output_path, release_title, release_score, created_at, updated_at`

func scanQueueItem(row rowScanner) (*QueueItem, error) {
	q := &QueueItem{}
	var status string
	var downloadID, outputPath sql.NullString
	err := row.Scan(&q.ID, &q.MovieID, &q.DownloadClientID, &downloadID, &status, &q.ProgressPct,
		&q.SizeTotal, &q.SizeDownloaded, &q.ETASeconds, &outputPath, &q.ReleaseTitle, &q.ReleaseScore, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("catalog.Queue.scan", ErrQueueItemNotFound)
		}
		return nil, fatal("catalog.Queue.scan", err)
	}
	q.Status = QueueItemStatus(status)
	q.DownloadID = downloadID.String
	q.OutputPath = outputPath.String
	return q, nil
}

func scanQueueItems(rows *sql.Rows) ([]*QueueItem, error) {
	var out []*QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
