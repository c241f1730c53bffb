package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastPayload []byte
	nextID      int64
}

func (s *stubStore) Insert(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	s.nextID++
	return events.Event{
		ID:          s.nextID,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureScheduler struct {
	events []events.Event
	err    error
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"code": "HEMAT10"}
	event, err := bus.Emit(context.Background(), events.TopicVoucherRedeemed, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicVoucherRedeemed, store.lastTopic)
	require.JSONEq(t, `{"code":"HEMAT10"}`, string(store.lastPayload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "HEMAT10", decoded["code"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicVoucherRedeemed, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicVoucherRedeemed, uuid.New(), "not-json{")
	require.Error(t, err)
}

func TestEmitSchedulerFailureStillReturnsEvent(t *testing.T) {
	scheduler := &captureScheduler{err: errors.New("queue down")}
	bus := events.Bus{Store: &stubStore{}, Scheduler: scheduler}

	event, err := bus.Emit(context.Background(), events.TopicPromotionCreated, uuid.New(), nil)
	require.Error(t, err)
	require.NotZero(t, event.ID)
}

func TestEmitNilPayloadDefaultsToEmptyObject(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}

	_, err := bus.Emit(context.Background(), events.TopicVoucherCreated, uuid.New(), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(store.lastPayload))
}
