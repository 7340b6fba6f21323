package notify

import (
	"context"
	"fmt"

	"github.com/dukex/querygate/pkg/eventbus"
	"github.com/dukex/querygate/pkg/events"
)

// Bus publishes events on the event bus keyed by request ID.
type Bus struct {
	publisher eventbus.EventPublisher
}

func NewBus(publisher eventbus.EventPublisher) *Bus {
	return &Bus{publisher: publisher}
}

func (b *Bus) Notify(ctx context.Context, event events.RequestEvent) error {
	if err := b.publisher.Publish(ctx, event.RequestID, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	return nil
}
