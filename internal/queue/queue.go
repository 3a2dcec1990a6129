package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/errs"
)

// ErrJobNotFound is returned when a job lookup misses.
var ErrJobNotFound = errors.New("job not found")

// Queue is the durable job queue backed by the catalog's SQLite store.
type Queue struct {
	db      *sql.DB
	logger  zerolog.Logger
	backoff BackoffConfig
}

// New creates a Queue over db (the same *sql.DB the catalog.Store uses).
func New(db *sql.DB, backoff BackoffConfig, logger zerolog.Logger) *Queue {
	return &Queue{db: db, backoff: backoff, logger: logger.With().Str("component", "queue").Logger()}
}

// Enqueue inserts a job, or returns the existing job id when a pending
// or leased job with the same (kind, idempotency_key) already exists —
// the at-most-once semantic boundary of spec.md §4.2.
func (q *Queue) Enqueue(ctx context.Context, kind catalog.JobKind, payload any, opts EnqueueOptions) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, errs.New(errs.Validation, "queue.Enqueue", err)
	}

	if opts.ScheduledAt.IsZero() {
		opts.ScheduledAt = time.Now().UTC()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}

	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (kind, payload, status, scheduled_at, attempts, max_attempts,
			idempotency_key, parent_event_id, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, 0, ?, ?, ?, ?, ?)`,
		string(kind), string(body), opts.ScheduledAt, opts.MaxAttempts,
		nullableString(opts.IdempotencyKey), nullableString(opts.ParentEventID), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			existing, findErr := q.findByIdempotencyKey(ctx, kind, opts.IdempotencyKey)
			if findErr != nil {
				return 0, findErr
			}
			return existing, nil
		}
		return 0, errs.New(errs.Fatal, "queue.Enqueue", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.New(errs.Fatal, "queue.Enqueue", err)
	}

	q.logger.Debug().Int64("jobId", id).Str("kind", string(kind)).Msg("enqueued job")
	return id, nil
}

func (q *Queue) findByIdempotencyKey(ctx context.Context, kind catalog.JobKind, key string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE kind = ? AND idempotency_key = ? AND status IN ('pending','leased') ORDER BY id LIMIT 1`,
		string(kind), key).Scan(&id)
	if err != nil {
		return 0, errs.New(errs.Fatal, "queue.findByIdempotencyKey", err)
	}
	return id, nil
}

// Lease selects the oldest pending job matching kinds whose scheduled_at
// has passed, atomically transitions it to leased, and returns it.
// Returns (nil, nil) when no job is available.
func (q *Queue) Lease(ctx context.Context, kinds []catalog.JobKind, workerID string, leaseDuration time.Duration) (*Job, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	leaseUntil := now.Add(leaseDuration)

	var job *Job
	err := q.withTx(ctx, func(tx *sql.Tx) error {
		placeholders := make([]string, len(kinds))
		args := make([]any, 0, len(kinds)+2)
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		args = append(args, now)

		query := fmt.Sprintf(`
			SELECT id, kind, payload, status, scheduled_at, attempts, max_attempts, lease_until,
				lease_holder, idempotency_key, parent_event_id, last_error, created_at, updated_at
			FROM jobs
			WHERE status = 'pending' AND kind IN (%s) AND scheduled_at <= ?
			ORDER BY scheduled_at ASC
			LIMIT 1`, strings.Join(placeholders, ","))

		row := tx.QueryRowContext(ctx, query, args...)
		j, err := scanJob(row)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return nil
			}
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status='leased', lease_until=?, lease_holder=?, updated_at=?
			WHERE id = ? AND status = 'pending'`,
			leaseUntil, workerID, now, j.ID)
		if err != nil {
			return errs.New(errs.Fatal, "queue.Lease", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errs.New(errs.Fatal, "queue.Lease", err)
		}
		if n == 0 {
			// Lost the compare-and-swap race to another worker; the
			// caller simply tries again on its next poll.
			return nil
		}

		j.Status = catalog.JobLeased
		j.LeaseUntil = &leaseUntil
		j.LeaseHolder = workerID
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease on a held job.
func (q *Queue) Heartbeat(ctx context.Context, jobID int64, workerID string, leaseDuration time.Duration) error {
	leaseUntil := time.Now().UTC().Add(leaseDuration)
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET lease_until=?, updated_at=? WHERE id=? AND lease_holder=? AND status='leased'`,
		leaseUntil, time.Now().UTC(), jobID, workerID)
	if err != nil {
		return errs.New(errs.Fatal, "queue.Heartbeat", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.Conflict, "queue.Heartbeat", fmt.Errorf("job %d is not leased by %q", jobID, workerID))
	}
	return nil
}

// Complete marks a job as completed. Completion is monotone: once
// completed or dead, no further transitions occur (spec.md §3 invariant).
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status='completed', lease_until=NULL, lease_holder='', updated_at=?
		WHERE id=? AND status='leased'`, time.Now().UTC(), jobID)
	if err != nil {
		return errs.New(errs.Fatal, "queue.Complete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.Conflict, "queue.Complete", fmt.Errorf("job %d is not in a completable state", jobID))
	}
	return nil
}

// Fail records a failed attempt, scheduling a retry with exponential
// backoff and full jitter, or moving the job to dead when attempts are
// exhausted or the error is classified non-retryable (spec.md §4.2, §7).
func (q *Queue) Fail(ctx context.Context, jobID int64, cause error) error {
	return q.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = ? AND status='leased'`, jobID)
		var attempts, maxAttempts int
		if err := row.Scan(&attempts, &maxAttempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.New(errs.Conflict, "queue.Fail", fmt.Errorf("job %d is not leased", jobID))
			}
			return errs.New(errs.Fatal, "queue.Fail", err)
		}

		attempts++
		terminal := attempts >= maxAttempts || !errs.Retryable(cause)

		if terminal {
			_, err := tx.ExecContext(ctx, `
				UPDATE jobs SET status='dead', attempts=?, lease_until=NULL, lease_holder='', last_error=?, updated_at=?
				WHERE id=?`, attempts, cause.Error(), time.Now().UTC(), jobID)
			if err != nil {
				return errs.New(errs.Fatal, "queue.Fail", err)
			}
			return nil
		}

		delay := nextBackoff(q.backoff, attempts)
		nextRun := time.Now().UTC().Add(delay)
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status='pending', attempts=?, scheduled_at=?, lease_until=NULL, lease_holder='', last_error=?, updated_at=?
			WHERE id=?`, attempts, nextRun, cause.Error(), time.Now().UTC(), jobID)
		if err != nil {
			return errs.New(errs.Fatal, "queue.Fail", err)
		}
		return nil
	})
}

// Reap reclaims jobs whose lease has expired back to pending, counting
// the expiry as a failed attempt the same way an explicit Fail would,
// without requiring a live worker to have called Fail.
func (q *Queue) Reap(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = 'leased' AND lease_until < ?`, now)
	if err != nil {
		return 0, errs.New(errs.Fatal, "queue.Reap", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errs.New(errs.Fatal, "queue.Reap", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.New(errs.Fatal, "queue.Reap", err)
	}

	reaped := 0
	for _, id := range ids {
		if err := q.Fail(ctx, id, errs.New(errs.Transient, "queue.Reap", fmt.Errorf("lease expired"))); err != nil {
			q.logger.Warn().Err(err).Int64("jobId", id).Msg("failed to reap expired lease")
			continue
		}
		reaped++
	}
	if reaped > 0 {
		q.logger.Info().Int("count", reaped).Msg("reaped expired leases")
	}
	return reaped, nil
}

// Get retrieves a job by ID.
func (q *Queue) Get(ctx context.Context, id int64) (*Job, error) {
	row := q.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (q *Queue) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Fatal, "queue.withTx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const jobSelectColumns = `SELECT id, kind, payload, status, scheduled_at, attempts, max_attempts, lease_until,
	lease_holder, idempotency_key, parent_event_id, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var kind, status, payload string
	var leaseUntil sql.NullTime
	var leaseHolder, idempotencyKey, parentEventID, lastError sql.NullString
	err := row.Scan(&j.ID, &kind, &payload, &status, &j.ScheduledAt, &j.Attempts, &j.MaxAttempts,
		&leaseUntil, &leaseHolder, &idempotencyKey, &parentEventID, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "queue.scanJob", ErrJobNotFound)
		}
		return nil, errs.New(errs.Fatal, "queue.scanJob", err)
	}
	j.Kind = catalog.JobKind(kind)
	j.Status = catalog.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if leaseUntil.Valid {
		j.LeaseUntil = &leaseUntil.Time
	}
	j.LeaseHolder = leaseHolder.String
	j.IdempotencyKey = idempotencyKey.String
	j.ParentEventID = parentEventID.String
	j.LastError = lastError.String
	return j, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
