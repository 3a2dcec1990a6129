// Package eventbus implements C3: a process-local typed pub/sub with
// bounded per-subscriber queues. It is grounded on the teacher's
// websocket hub (internal/websocket/hub.go) — the same register/
// unregister/broadcast channel-actor shape, generalized from "broadcast
// bytes to connected clients" to "publish a typed Event to every
// subscriber of its Type".
//
// The bus is not durable (spec.md §4.3): callers must write the
// authoritative history/queue row before publishing.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies an event's kind (spec.md §4.3 minimum set).
type Type string

const (
	MovieAdded        Type = "MovieAdded"
	SearchRequested   Type = "SearchRequested"
	ReleaseGrabbed    Type = "ReleaseGrabbed"
	DownloadProgress  Type = "DownloadProgress" // lossy
	DownloadCompleted Type = "DownloadCompleted"
	DownloadFailed    Type = "DownloadFailed"
	ImportCompleted   Type = "ImportCompleted"
	ImportFailed      Type = "ImportFailed"
	ListSyncCompleted Type = "ListSyncCompleted"
	HealthDegraded    Type = "HealthDegraded"
)

// Event is the typed message carried on the bus.
type Event struct {
	ID            string
	Type          Type
	OccurredAt    time.Time
	CorrelationID string
	Payload       any
}

// subscription is a single subscriber's bounded mailbox.
type subscription struct {
	id    uint64
	types map[Type]bool
	ch    chan Event
}

type registration struct {
	sub  *subscription
	done chan struct{}
}

// Bus is the typed pub/sub hub. Zero value is not usable; build one
// with New and start its loop with Run.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscription
	nextID    uint64
	register  chan *subscription
	unregister chan uint64
	publish   chan publishRequest
	logger    zerolog.Logger
}

type publishRequest struct {
	ev   Event
	lossy bool
	ack  chan struct{}
}

// New creates a Bus. Call Run in a goroutine before publishing.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:       make(map[uint64]*subscription),
		register:   make(chan *subscription),
		unregister: make(chan uint64),
		publish:    make(chan publishRequest),
		logger:     logger.With().Str("component", "eventbus").Logger(),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  uint64
	C   <-chan Event
}

// Close unregisters the subscription; the bus loop then closes its
// channel. Events already buffered in it are not drained.
func (s *Subscription) Close() {
	s.bus.unregister <- s.id
}

// Subscribe registers interest in the given event types with a bounded
// mailbox of the given capacity.
func (b *Bus) Subscribe(capacity int, types ...Type) *Subscription {
	if capacity <= 0 {
		capacity = 32
	}
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	sub := &subscription{id: id, types: set, ch: make(chan Event, capacity)}
	b.register <- sub
	return &Subscription{bus: b, id: id, C: sub.ch}
}

// Run executes the bus's single-goroutine actor loop. It blocks until
// ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for id, sub := range b.subs {
				close(sub.ch)
				delete(b.subs, id)
			}
			b.mu.Unlock()
			return

		case sub := <-b.register:
			b.mu.Lock()
			b.subs[sub.id] = sub
			b.mu.Unlock()

		case id := <-b.unregister:
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				close(sub.ch)
				delete(b.subs, id)
			}
			b.mu.Unlock()

		case req := <-b.publish:
			b.deliver(ctx, req)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, req publishRequest) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.types[req.ev.Type] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if req.lossy {
			select {
			case sub.ch <- req.ev:
			default:
				b.logger.Warn().
					Str("eventType", string(req.ev.Type)).
					Uint64("subscriberId", sub.id).
					Msg("dropped event, subscriber mailbox full")
			}
			continue
		}

		// Durable-state events apply backpressure to the publisher,
		// but never outlive ctx cancellation.
		select {
		case sub.ch <- req.ev:
		case <-ctx.Done():
		}
	}

	if req.ack != nil {
		close(req.ack)
	}
}

// Publish emits ev to every matching subscriber, blocking on
// non-lossy subscribers whose mailbox is full (spec.md §4.3 default
// backpressure mode), until ctx is cancelled.
func (b *Bus) Publish(ctx context.Context, evType Type, correlationID string, payload any) {
	ev := Event{
		ID:            uuid.NewString(),
		Type:          evType,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
	ack := make(chan struct{})
	select {
	case b.publish <- publishRequest{ev: ev, ack: ack}:
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// PublishLossy emits ev, dropping delivery to any subscriber whose
// mailbox is currently full rather than blocking (DownloadProgress and
// other high-rate telemetry-like events per spec.md §4.3).
func (b *Bus) PublishLossy(ctx context.Context, evType Type, correlationID string, payload any) {
	ev := Event{
		ID:            uuid.NewString(),
		Type:          evType,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
	select {
	case b.publish <- publishRequest{ev: ev, lossy: true}:
	case <-ctx.Done():
	}
}

// SubscriberCount reports the number of active subscriptions, mainly
// for health/metrics reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
