// Package bridge moves events from the durable commerce-events topic onto
// the volatile per-site Redis channels the stream servers fan out from.
//
// Delivery is at-least-once: a crash between bus read and channel publish
// means the bus redelivers from its committed offset and the same event may
// hit a channel twice. The bridge does not deduplicate; event_id is the
// stable dedup key for any consumer that cares. A channel with zero
// subscribers drops the message entirely, which is fine because a live
// notification has no value once stale.
package bridge

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/proofpulse/proofpulse-backend/internal/publisher"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
)

// ChannelPublisher is the volatile fan-out surface, implemented by the
// Redis client. It reports how many subscribers received the payload.
type ChannelPublisher interface {
	PublishSite(ctx context.Context, siteID string, payload []byte) (int64, error)
}

// Consumer republishes each durable message onto its site channel.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	channels     ChannelPublisher
	logg         *logger.Logger
	metrics      *metrics.PipelineMetrics
}

// NewConsumer builds the bridge consumer. The subscription may be nil in
// tests that drive Process directly.
func NewConsumer(subscription *gcppubsub.Subscriber, channels ChannelPublisher, logg *logger.Logger, m *metrics.PipelineMetrics) (*Consumer, error) {
	if channels == nil {
		return nil, errors.New("channel publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		channels:     channels,
		logg:         logg,
		metrics:      m,
	}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors. The bus's committed offset is the only checkpoint; no state is
// kept here, so a restart resumes without loss.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("events subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		result := c.Process(ctx, IncomingMessage{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		})
		if result.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// IncomingMessage is a transport-neutral view of a bus message so Process
// is testable without a broker.
type IncomingMessage struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// ProcessResult says whether the message should be redelivered.
type ProcessResult struct {
	Ack  bool
	Nack bool
}

// Process decodes one bus message and republishes it verbatim on the site
// channel. Undecodable messages are poison: they are acked and logged, since
// redelivery can never fix them. Channel publish failures are nacked so the
// bus redelivers.
func (c *Consumer) Process(ctx context.Context, msg IncomingMessage) ProcessResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"site_id":    msg.Attributes[publisher.SiteIDAttribute()],
	})

	data, err := publisher.DecodeWire(msg.Data, msg.Attributes[publisher.EncodingAttribute()])
	if err != nil {
		c.logg.Error(logCtx, "failed to decode wire payload", err)
		c.metrics.IncBridged("poison")
		return ProcessResult{Ack: true}
	}

	event, err := events.Unmarshal(data)
	if err != nil {
		c.logg.Error(logCtx, "message is not a canonical event", err)
		c.metrics.IncBridged("poison")
		return ProcessResult{Ack: true}
	}

	logCtx = c.logg.WithEventID(logCtx, event.EventID)

	receivers, err := c.channels.PublishSite(ctx, event.SiteID, data)
	if err != nil {
		c.logg.Error(logCtx, "channel publish failed", err)
		c.metrics.IncBridged("error")
		return ProcessResult{Nack: true}
	}

	if receivers == 0 {
		// Now-or-never: nobody is watching this site right now.
		c.metrics.IncDropped("no_subscribers")
	}
	c.metrics.IncBridged("ok")
	c.logg.Info(logCtx, "event bridged to site channel")
	return ProcessResult{Ack: true}
}
