package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gerai-id/backend-gerai/internal/cache"
	"github.com/gerai-id/backend-gerai/internal/events"
)

// Handlers processes queued tasks on the worker.
type Handlers struct {
	Cache *cache.Cache
	Log   zerolog.Logger
}

// Mux builds the asynq routing table.
func (h Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEventDispatch, h.HandleEventDispatch)
	mux.HandleFunc(TypePricingInvalidate, h.HandlePricingInvalidate)
	return mux
}

// HandleEventDispatch reacts to persisted domain events. Promotion and
// voucher rule changes drop the derived caches so the next read rebuilds
// them from the database.
func (h Handlers) HandleEventDispatch(ctx context.Context, t *asynq.Task) error {
	var p EventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode event payload: %w", err)
	}
	h.Log.Info().
		Int64("event_id", p.EventID).
		Str("topic", p.Topic).
		Str("aggregate_id", p.AggregateID.String()).
		Msg("event dispatched")

	switch {
	case strings.HasPrefix(p.Topic, "voucher."):
		if err := h.Cache.Delete(ctx, cache.KeyActiveVouchers); err != nil {
			return fmt.Errorf("tasks: drop voucher cache: %w", err)
		}
	case p.Topic == events.TopicPromotionCreated,
		p.Topic == events.TopicPromotionUpdated,
		p.Topic == events.TopicPromotionDeleted:
		var body InvalidatePayload
		if len(p.Payload) > 0 {
			// Promotion events carry the touched product ids in their payload.
			_ = json.Unmarshal(p.Payload, &body)
		}
		keys := make([]string, 0, len(body.ProductIDs))
		for _, id := range body.ProductIDs {
			keys = append(keys, cache.KeyPricingSnapshot(id))
		}
		if err := h.Cache.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("tasks: drop pricing snapshots: %w", err)
		}
	}
	return nil
}

// HandlePricingInvalidate drops pricing snapshots for the named products.
func (h Handlers) HandlePricingInvalidate(ctx context.Context, t *asynq.Task) error {
	var p InvalidatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode invalidate payload: %w", err)
	}
	keys := make([]string, 0, len(p.ProductIDs))
	for _, id := range p.ProductIDs {
		keys = append(keys, cache.KeyPricingSnapshot(id))
	}
	if err := h.Cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("tasks: drop pricing snapshots: %w", err)
	}
	h.Log.Debug().Int("products", len(keys)).Msg("pricing snapshots invalidated")
	return nil
}
