package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/cache"
	"github.com/gerai-id/backend-gerai/internal/events"
	"github.com/gerai-id/backend-gerai/internal/tasks"
)

func newHandlers(t *testing.T) (tasks.Handlers, *cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.New(client, time.Minute)
	return tasks.Handlers{Cache: c, Log: zerolog.Nop()}, c
}

func TestVoucherEventDropsActiveVoucherCache(t *testing.T) {
	h, c := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, cache.KeyActiveVouchers, []string{"HEMAT10"}))

	task, err := tasks.NewEventDispatchTask(tasks.EventPayload{
		EventID:     1,
		Topic:       events.TopicVoucherRedeemed,
		AggregateID: uuid.New(),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleEventDispatch(ctx, task))

	var got []string
	found, err := c.GetJSON(ctx, cache.KeyActiveVouchers, &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestPromotionEventDropsNamedSnapshots(t *testing.T) {
	h, c := newHandlers(t)
	ctx := context.Background()
	productID := uuid.New()
	other := uuid.New()
	require.NoError(t, c.SetJSON(ctx, cache.KeyPricingSnapshot(productID), "a"))
	require.NoError(t, c.SetJSON(ctx, cache.KeyPricingSnapshot(other), "b"))

	task, err := tasks.NewEventDispatchTask(tasks.EventPayload{
		EventID:     2,
		Topic:       events.TopicPromotionUpdated,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"productIds":["` + productID.String() + `"]}`),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleEventDispatch(ctx, task))

	var got string
	found, err := c.GetJSON(ctx, cache.KeyPricingSnapshot(productID), &got)
	require.NoError(t, err)
	require.False(t, found)

	found, err = c.GetJSON(ctx, cache.KeyPricingSnapshot(other), &got)
	require.NoError(t, err)
	require.True(t, found)
}

func TestPricingInvalidateTask(t *testing.T) {
	h, c := newHandlers(t)
	ctx := context.Background()
	productID := uuid.New()
	require.NoError(t, c.SetJSON(ctx, cache.KeyPricingSnapshot(productID), "a"))

	task, err := tasks.NewPricingInvalidateTask(tasks.InvalidatePayload{ProductIDs: []uuid.UUID{productID}})
	require.NoError(t, err)
	require.NoError(t, h.HandlePricingInvalidate(ctx, task))

	var got string
	found, err := c.GetJSON(ctx, cache.KeyPricingSnapshot(productID), &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestEnqueuerWithoutClientIsNoop(t *testing.T) {
	e := tasks.Enqueuer{}
	require.NoError(t, e.Schedule(context.Background(), events.Event{ID: 1, Topic: "x"}))
	require.NoError(t, e.InvalidatePricing(context.Background(), uuid.New()))
}
