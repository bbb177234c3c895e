package providers

import (
	"context"

	"github.com/google/uuid"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// pipeline events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.PipelineEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.PipelineEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelRuns is the channel carrying events for every run
	EventChannelRuns = "pipeline:runs"

	// eventChannelRunPrefix is the prefix for run-specific channels
	eventChannelRunPrefix = "pipeline:run:"
)

// GetRunChannel returns the channel name for a specific pipeline run
func GetRunChannel(runID uuid.UUID) string {
	return eventChannelRunPrefix + runID.String()
}
