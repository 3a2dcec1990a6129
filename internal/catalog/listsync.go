package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// ListSyncRepo is the list_sync_runs / list_sync_history sub-repository (C10).
type ListSyncRepo struct {
	db *sql.DB
}

// StartRun records the beginning of a list-sync pull.
func (r *ListSyncRepo) StartRun(ctx context.Context, listName string) (*ListSyncRun, error) {
	run := &ListSyncRun{ListName: listName, StartedAt: time.Now().UTC(), Status: "running"}
	res, err := r.db.ExecContext(ctx, `INSERT INTO list_sync_runs (list_name, started_at, status) VALUES (?, ?, ?)`,
		run.ListName, run.StartedAt, run.Status)
	if err != nil {
		return nil, fatal("catalog.ListSync.StartRun", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fatal("catalog.ListSync.StartRun", err)
	}
	run.ID = id
	return run, nil
}

// FinishRun records the completion metrics for a run.
func (r *ListSyncRepo) FinishRun(ctx context.Context, run *ListSyncRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	_, err := r.db.ExecContext(ctx, `
		UPDATE list_sync_runs SET finished_at=?, pages_processed=?, entries_seen=?,
			api_request_count=?, cache_hits=?, memory_high_water_bytes=?, status=?
		WHERE id=?`,
		*run.FinishedAt, run.PagesProcessed, run.EntriesSeen, run.APIRequestCount,
		run.CacheHits, run.MemoryHighWaterBytes, run.Status, run.ID)
	if err != nil {
		return fatal("catalog.ListSync.FinishRun", err)
	}
	return nil
}

// RecordDecision appends a conflict-resolution decision with its
// before/after snapshots to the audit trail.
func (r *ListSyncRepo) RecordDecision(ctx context.Context, entry *ListSyncHistoryEntry) error {
	entry.OccurredAt = time.Now().UTC()
	before, err := json.Marshal(entry.BeforeSnapshot)
	if err != nil {
		return fatal("catalog.ListSync.RecordDecision", err)
	}
	after, err := json.Marshal(entry.AfterSnapshot)
	if err != nil {
		return fatal("catalog.ListSync.RecordDecision", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO list_sync_history (run_id, external_key, decision, before_snapshot, after_snapshot, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.ExternalKey, string(entry.Decision), string(before), string(after), entry.OccurredAt)
	if err != nil {
		return fatal("catalog.ListSync.RecordDecision", err)
	}
	return nil
}

// HistoryForRun returns every decision recorded for run.
func (r *ListSyncRepo) HistoryForRun(ctx context.Context, runID int64) ([]*ListSyncHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, external_key, decision, before_snapshot, after_snapshot, occurred_at
		FROM list_sync_history WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fatal("catalog.ListSync.HistoryForRun", err)
	}
	defer rows.Close()

	var out []*ListSyncHistoryEntry
	for rows.Next() {
		e := &ListSyncHistoryEntry{}
		var decision string
		var before, after sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.ExternalKey, &decision, &before, &after, &e.OccurredAt); err != nil {
			return nil, fatal("catalog.ListSync.HistoryForRun", err)
		}
		e.Decision = ListSyncDecision(decision)
		if before.Valid {
			_ = json.Unmarshal([]byte(before.String), &e.BeforeSnapshot)
		}
		if after.Valid {
			_ = json.Unmarshal([]byte(after.String), &e.AfterSnapshot)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
