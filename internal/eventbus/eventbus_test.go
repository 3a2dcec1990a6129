package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := New(zerolog.Nop())
	go b.Run(ctx)
	return b, ctx
}

func TestBus_PublishDeliversToMatchingSubscriber(t *testing.T) {
	b, ctx := newTestBus(t)
	sub := b.Subscribe(4, MovieAdded)

	done := make(chan struct{})
	go func() {
		b.Publish(ctx, MovieAdded, "corr-1", map[string]int{"movieId": 7})
		close(done)
	}()

	select {
	case ev := <-sub.C:
		assert.Equal(t, MovieAdded, ev.Type)
		assert.Equal(t, "corr-1", ev.CorrelationID)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	<-done
}

func TestBus_SubscriberOnlyReceivesRegisteredTypes(t *testing.T) {
	b, ctx := newTestBus(t)
	sub := b.Subscribe(4, ImportCompleted)

	b.Publish(ctx, MovieAdded, "", nil)

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_NonLossyPublishBlocksUntilSpace(t *testing.T) {
	b, ctx := newTestBus(t)
	sub := b.Subscribe(1, DownloadCompleted)

	// Fill the single-slot mailbox.
	b.Publish(ctx, DownloadCompleted, "", 1)

	published := make(chan struct{})
	go func() {
		b.Publish(ctx, DownloadCompleted, "", 2)
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("second publish should have blocked while mailbox is full")
	case <-time.After(50 * time.Millisecond):
	}

	<-sub.C // drain the first event, freeing a slot
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after drain")
	}
}

func TestBus_LossyPublishDropsWhenFull(t *testing.T) {
	b, ctx := newTestBus(t)
	sub := b.Subscribe(1, DownloadProgress)

	b.PublishLossy(ctx, DownloadProgress, "", 1)
	// Give the actor loop a moment to deliver the first event.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.PublishLossy(ctx, DownloadProgress, "", 2) // mailbox already full, should drop without blocking
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lossy publish should never block")
	}

	ev := <-sub.C
	assert.Equal(t, 1, ev.Payload)
}

func TestBus_CloseUnregistersSubscriber(t *testing.T) {
	b, _ := newTestBus(t)
	sub := b.Subscribe(1, HealthDegraded)
	sub.Close()

	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
}

func TestBus_ConcurrentSubscribersAllReceive(t *testing.T) {
	b, ctx := newTestBus(t)
	const n = 10
	var wg sync.WaitGroup
	results := make(chan Event, n)

	for i := 0; i < n; i++ {
		sub := b.Subscribe(1, ReleaseGrabbed)
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			ev := <-s.C
			results <- ev
		}(sub)
	}

	b.Publish(ctx, ReleaseGrabbed, "corr", nil)
	wg.Wait()
	close(results)

	count := 0
	for range results {
		count++
	}
	assert.Equal(t, n, count)
}
