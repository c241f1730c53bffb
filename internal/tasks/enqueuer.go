package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/gerai-id/backend-gerai/internal/events"
)

// Enqueuer pushes background work onto the asynq queue. It satisfies
// events.Scheduler so the event bus can hand persisted events straight to it.
type Enqueuer struct {
	Client *asynq.Client
}

// Schedule enqueues the dispatch task for a persisted domain event.
func (e Enqueuer) Schedule(ctx context.Context, event events.Event) error {
	if e.Client == nil {
		return nil
	}
	task, err := NewEventDispatchTask(EventPayload{
		EventID:     event.ID,
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		OccurredAt:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("tasks: build event task: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("tasks: enqueue %s: %w", event.Topic, err)
	}
	return nil
}

// InvalidatePricing enqueues snapshot invalidation for the given products.
func (e Enqueuer) InvalidatePricing(ctx context.Context, productIDs ...uuid.UUID) error {
	if e.Client == nil || len(productIDs) == 0 {
		return nil
	}
	task, err := NewPricingInvalidateTask(InvalidatePayload{ProductIDs: productIDs})
	if err != nil {
		return fmt.Errorf("tasks: build invalidate task: %w", err)
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("tasks: enqueue invalidate: %w", err)
	}
	return nil
}
