package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// HistoryRepo is the append-only history sub-repository.
type HistoryRepo struct {
	db *sql.DB
}

// Append inserts a new history row outside of any larger transaction.
func (r *HistoryRepo) Append(ctx context.Context, e *HistoryEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fatal("catalog.History.Append", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO history (movie_id, event_kind, data, occurred_at) VALUES (?, ?, ?, ?)`,
		e.MovieID, string(e.EventKind), string(data), e.OccurredAt)
	if err != nil {
		return fatal("catalog.History.Append", err)
	}
	return nil
}

// ListForMovie returns history rows for movieID, most recent first.
func (r *HistoryRepo) ListForMovie(ctx context.Context, movieID int64) ([]*HistoryEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, movie_id, event_kind, data, occurred_at FROM history WHERE movie_id = ? ORDER BY occurred_at DESC, id DESC`, movieID)
	if err != nil {
		return nil, fatal("catalog.History.ListForMovie", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// List returns the most recent history rows across all movies.
func (r *HistoryRepo) List(ctx context.Context, limit int) ([]*HistoryEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, movie_id, event_kind, data, occurred_at FROM history ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fatal("catalog.History.List", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, e *HistoryEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fatal("catalog.insertHistoryTx", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO history (movie_id, event_kind, data, occurred_at) VALUES (?, ?, ?, ?)`,
		e.MovieID, string(e.EventKind), string(data), e.OccurredAt)
	if err != nil {
		return fatal("catalog.insertHistoryTx", err)
	}
	return nil
}

func scanHistory(rows *sql.Rows) ([]*HistoryEvent, error) {
	var out []*HistoryEvent
	for rows.Next() {
		e := &HistoryEvent{}
		var movieID sql.NullInt64
		var kind, dataJSON string
		if err := rows.Scan(&e.ID, &movieID, &kind, &dataJSON, &e.OccurredAt); err != nil {
			return nil, fatal("catalog.History.scan", err)
		}
		if movieID.Valid {
			id := movieID.Int64
			e.MovieID = &id
		}
		e.EventKind = HistoryEventKind(kind)
		_ = json.Unmarshal([]byte(dataJSON), &e.Data)
		out = append(out, e)
	}
	return out, rows.Err()
}
