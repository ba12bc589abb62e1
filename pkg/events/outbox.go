package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus defines the status of an event in the outbox
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var ErrOutboxFull = fmt.Errorf("outbox is full")

// OutboxEvent is a message waiting to be relayed to the broker
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Status      OutboxStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// OutboxRepository stores events until the relay publishes them
type OutboxRepository interface {
	SaveEvent(ctx context.Context, event *OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	UpdateEventStatus(ctx context.Context, id uuid.UUID, status OutboxStatus) error
	RecordAttempt(ctx context.Context, id uuid.UUID, err error) (int, error)
}

// EventPublisher defines the interface for publishing events to a broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// MemoryOutbox is a bounded in-process OutboxRepository. Published and failed
// events are dropped from it.
type MemoryOutbox struct {
	mu       sync.Mutex
	events   []*OutboxEvent
	capacity int
	now      func() time.Time
}

// NewMemoryOutbox creates an outbox holding at most capacity pending events.
func NewMemoryOutbox(capacity int) *MemoryOutbox {
	return &MemoryOutbox{
		capacity: capacity,
		now:      time.Now,
	}
}

// SaveEvent queues event as pending.
func (o *MemoryOutbox) SaveEvent(_ context.Context, event *OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.capacity > 0 && len(o.events) >= o.capacity {
		return ErrOutboxFull
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = o.now()
	}
	event.Status = OutboxStatusPending

	stored := *event
	o.events = append(o.events, &stored)
	return nil
}

// GetPendingEvents returns up to limit pending events, oldest first.
func (o *MemoryOutbox) GetPendingEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*OutboxEvent, 0, n)
	for _, e := range o.events[:n] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateEventStatus settles an event. Settled events leave the outbox.
func (o *MemoryOutbox) UpdateEventStatus(_ context.Context, id uuid.UUID, status OutboxStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.events {
		if e.ID != id {
			continue
		}
		if status == OutboxStatusPending {
			e.Status = status
			return nil
		}
		o.events = append(o.events[:i], o.events[i+1:]...)
		return nil
	}
	return fmt.Errorf("outbox event %s not found", id)
}

// RecordAttempt counts a failed publish and returns the attempts so far.
func (o *MemoryOutbox) RecordAttempt(_ context.Context, id uuid.UUID, err error) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.events {
		if e.ID == id {
			e.Attempts++
			if err != nil {
				e.LastError = err.Error()
			}
			return e.Attempts, nil
		}
	}
	return 0, fmt.Errorf("outbox event %s not found", id)
}

// Len returns the number of unsettled events.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

// OutboxRelay polls the outbox for pending events and publishes them
type OutboxRelay struct {
	outboxRepo  OutboxRepository
	publisher   EventPublisher
	batchSize   int
	maxAttempts int
	interval    time.Duration
	exchange    string
	logger      *slog.Logger
}

// NewOutboxRelay creates a new outbox relay. An event that fails to publish
// maxAttempts times is marked failed and dropped.
func NewOutboxRelay(
	outboxRepo OutboxRepository,
	publisher EventPublisher,
	batchSize int,
	maxAttempts int,
	interval time.Duration,
	exchange string,
	logger *slog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		interval:    interval,
		exchange:    exchange,
		logger:      logger,
	}
}

// Run starts the polling loop. Pending events get one last attempt when ctx
// is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial run
	if err := r.processBatch(ctx); err != nil {
		r.logger.Error("Error processing batch", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.interval)
			if err := r.processBatch(flushCtx); err != nil {
				r.logger.Error("Error flushing outbox", "error", err)
			}
			cancel()
			return nil
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.logger.Error("Error processing batch", "error", err)
			}
		}
	}
}

func (r *OutboxRelay) processBatch(ctx context.Context) error {
	events, err := r.outboxRepo.GetPendingEvents(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending events: %w", err)
	}

	if len(events) == 0 {
		return nil // Nothing to do
	}

	r.logger.Debug("Processing events", "count", len(events))

	for _, event := range events {
		// Routing key is the event type
		err := r.publisher.Publish(ctx, r.exchange, event.EventType, event.Payload)
		if err != nil {
			// The event stays pending and is retried on the next tick
			// until it runs out of attempts.
			attempts, recErr := r.outboxRepo.RecordAttempt(ctx, event.ID, err)
			if recErr != nil {
				return fmt.Errorf("failed to record attempt %s: %w", event.ID, recErr)
			}
			if r.maxAttempts > 0 && attempts >= r.maxAttempts {
				r.logger.Error("Dropping event after repeated failures",
					"event_id", event.ID, "event_type", event.EventType, "attempts", attempts)
				if err := r.outboxRepo.UpdateEventStatus(ctx, event.ID, OutboxStatusFailed); err != nil {
					return fmt.Errorf("failed to update event status %s: %w", event.ID, err)
				}
				continue
			}
			return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}

		err = r.outboxRepo.UpdateEventStatus(ctx, event.ID, OutboxStatusPublished)
		if err != nil {
			return fmt.Errorf("failed to update event status %s: %w", event.ID, err)
		}
	}

	return nil
}
