package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/errs"
	"github.com/cinequeue/cinequeue/internal/queue"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := queue.BackoffConfig{Base: 10 * time.Millisecond, Max: time.Second}
	return queue.New(store.DB(), cfg, zerolog.Nop())
}

func TestQueue_EnqueueAndLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, catalog.JobKindSearch, queue.SearchPayload{MovieID: 1}, queue.EnqueueOptions{})
	require.NoError(t, err)
	assert.NotZero(t, id)

	job, err := q.Lease(ctx, []catalog.JobKind{catalog.JobKindSearch}, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, catalog.JobLeased, job.Status)

	var payload queue.SearchPayload
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, int64(1), payload.MovieID)
}

func TestQueue_EnqueueCollapsesIdempotencyKey(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	opts := queue.EnqueueOptions{IdempotencyKey: "movie:1:search"}
	id1, err := q.Enqueue(ctx, catalog.JobKindSearch, queue.SearchPayload{MovieID: 1}, opts)
	require.NoError(t, err)

	id2, err := q.Enqueue(ctx, catalog.JobKindSearch, queue.SearchPayload{MovieID: 1}, opts)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "second enqueue with the same idempotency key should collapse onto the first")
}

func TestQueue_LeaseReturnsNilWhenNothingPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Lease(ctx, []catalog.JobKind{catalog.JobKindGrab}, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_CompleteRequiresLeasedState(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, catalog.JobKindMonitor, queue.MonitorPayload{}, queue.EnqueueOptions{})
	require.NoError(t, err)

	err = q.Complete(ctx, id)
	assert.Error(t, err, "a pending (never leased) job cannot be completed directly")
}

func TestQueue_FailRetriesThenGoesDead(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, catalog.JobKindImport, queue.ImportPayload{MovieID: 1}, queue.EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	job, err := q.Lease(ctx, []catalog.JobKind{catalog.JobKindImport}, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	transient := errs.New(errs.Transient, "test", assertError("boom"))
	require.NoError(t, q.Fail(ctx, id, transient))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobPending, got.Status, "first failure with attempts remaining should retry")

	time.Sleep(50 * time.Millisecond) // let the backoff-scheduled retry become due
	job, err = q.Lease(ctx, []catalog.JobKind{catalog.JobKindImport}, "worker-2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, id, transient))

	got, err = q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobDead, got.Status, "attempts exhausted should move the job to dead")
}

func TestQueue_FailNonRetryableGoesDeadImmediately(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, catalog.JobKindImport, queue.ImportPayload{MovieID: 1}, queue.EnqueueOptions{MaxAttempts: 8})
	require.NoError(t, err)

	_, err = q.Lease(ctx, []catalog.JobKind{catalog.JobKindImport}, "worker-1", time.Minute)
	require.NoError(t, err)

	fatal := errs.New(errs.Validation, "test", assertError("bad payload"))
	require.NoError(t, q.Fail(ctx, id, fatal))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobDead, got.Status)
}

func TestQueue_ReapReclaimsExpiredLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, catalog.JobKindRefresh, queue.RefreshPayload{MovieID: 1}, queue.EnqueueOptions{MaxAttempts: 5})
	require.NoError(t, err)

	_, err = q.Lease(ctx, []catalog.JobKind{catalog.JobKindRefresh}, "worker-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	reaped, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

type assertError string

func (e assertError) Error() string { return string(e) }
