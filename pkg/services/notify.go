package services

import (
	"context"
	"log/slog"

	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/metrics"
)

// notifier publishes events once their transaction has committed. A failed
// publish is logged and counted; the committed change stands.
type notifier struct {
	publisher eventbus.EventPublisher
	metrics   *metrics.Collector
	logger    *slog.Logger
}

func (n notifier) publish(ctx context.Context, key string, event eventbus.Event) {
	if n.publisher == nil {
		return
	}

	if err := n.publisher.Publish(ctx, key, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)

		if n.metrics != nil {
			n.metrics.RecordPublishFailure(string(event.GetType()))
		}
	}
}
