package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/querygate/pkg/channels/gochannel"
	"github.com/dukex/querygate/pkg/events"
	"github.com/dukex/querygate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan *events.RequestEvent, 1)

	require.NoError(t, bus.Handle(events.RequestExecuted, func(_ context.Context, event *events.RequestEvent) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	request := &models.Request{ID: "req-9", Team: "growth", Status: models.RequestStatusExecuted}

	// unhandled types are dropped
	require.NoError(t, bus.Publish(ctx, request.ID, events.NewRequestEvent(events.RequestSubmitted, request, "dev-1")))
	require.NoError(t, bus.Publish(ctx, request.ID, events.NewRequestEvent(events.RequestExecuted, request, "mgr-1")))

	select {
	case event := <-received:
		assert.Equal(t, events.RequestExecuted, event.Type)
		assert.Equal(t, "req-9", event.RequestID)
		assert.Equal(t, "mgr-1", event.ActorID)
		assert.Equal(t, models.RequestStatusExecuted, event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
