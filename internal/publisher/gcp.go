package publisher

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// gcpBus adapts a Pub/Sub publisher handle to the Bus interface so the
// retry loop and tests never touch GCP types directly.
type gcpBus struct {
	publisher *gcppubsub.Publisher
}

// NewGCPBus wraps a Pub/Sub publisher handle.
func NewGCPBus(publisher *gcppubsub.Publisher) Bus {
	return &gcpBus{publisher: publisher}
}

func (b *gcpBus) Publish(ctx context.Context, msg OutgoingMessage) Result {
	return b.publisher.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		OrderingKey: msg.OrderingKey,
		Attributes:  msg.Attributes,
	})
}

func (b *gcpBus) ResumePublish(orderingKey string) {
	if orderingKey == "" {
		return
	}
	b.publisher.ResumePublish(orderingKey)
}
