package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names routed through the asynq mux.
const (
	TypeEventDispatch     = "event:dispatch"
	TypePricingInvalidate = "pricing:invalidate"
)

// EventPayload is the queue representation of a persisted domain event.
type EventPayload struct {
	EventID     int64           `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// InvalidatePayload names the products whose pricing snapshots must be dropped.
type InvalidatePayload struct {
	ProductIDs []uuid.UUID `json:"productIds"`
}

// NewEventDispatchTask builds the asynq task for a domain event.
func NewEventDispatchTask(p EventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventDispatch, data, asynq.MaxRetry(5)), nil
}

// NewPricingInvalidateTask builds the asynq task for snapshot invalidation.
func NewPricingInvalidateTask(p InvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePricingInvalidate, data, asynq.MaxRetry(3)), nil
}
