package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/proofpulse/proofpulse-backend/internal/publisher"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

type fakeChannels struct {
	publishes []fakePublish
	receivers int64
	err       error
}

type fakePublish struct {
	siteID  string
	payload []byte
}

func (f *fakeChannels) PublishSite(_ context.Context, siteID string, payload []byte) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.publishes = append(f.publishes, fakePublish{siteID: siteID, payload: payload})
	return f.receivers, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "bridge-test", Output: io.Discard})
}

func testEvent(t *testing.T) *events.CommerceEvent {
	t.Helper()
	return &events.CommerceEvent{
		EventID:    "shopify:5001",
		EventType:  enums.EventTypeOrderCreated,
		Source:     enums.EventSourceShopify,
		SiteID:     "site-abc",
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload: events.Payload{
			CustomerName: "Jane D.",
			ProductTitle: "Trail Shoes",
			Price:        "59.90",
			Currency:     "USD",
			Location:     "Lisbon, PT",
		},
	}
}

func wireMessage(t *testing.T, event *events.CommerceEvent) IncomingMessage {
	t.Helper()
	data, err := event.Marshal()
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return IncomingMessage{
		ID:   "m-1",
		Data: snappy.Encode(nil, data),
		Attributes: map[string]string{
			publisher.EncodingAttribute(): "snappy",
			publisher.SiteIDAttribute():   event.SiteID,
		},
	}
}

func TestProcessRepublishesOnSiteChannel(t *testing.T) {
	channels := &fakeChannels{receivers: 2}
	consumer, err := NewConsumer(nil, channels, testLogger(), nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	event := testEvent(t)
	result := consumer.Process(context.Background(), wireMessage(t, event))
	if !result.Ack || result.Nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(channels.publishes) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(channels.publishes))
	}
	if channels.publishes[0].siteID != event.SiteID {
		t.Fatalf("published to site %q, want %q", channels.publishes[0].siteID, event.SiteID)
	}

	var forwarded events.CommerceEvent
	if err := json.Unmarshal(channels.publishes[0].payload, &forwarded); err != nil {
		t.Fatalf("forwarded payload is not canonical JSON: %v", err)
	}
	if forwarded.EventID != event.EventID {
		t.Fatalf("forwarded event_id %q, want %q", forwarded.EventID, event.EventID)
	}
	if forwarded.Payload.Price != "59.90" {
		t.Fatalf("price mutated in flight: %q", forwarded.Payload.Price)
	}
}

func TestProcessAcceptsUncompressedPayload(t *testing.T) {
	channels := &fakeChannels{receivers: 1}
	consumer, err := NewConsumer(nil, channels, testLogger(), nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	data, err := testEvent(t).Marshal()
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	result := consumer.Process(context.Background(), IncomingMessage{ID: "m-2", Data: data})
	if !result.Ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(channels.publishes) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(channels.publishes))
	}
}

func TestProcessAcksPoisonMessages(t *testing.T) {
	poison := []IncomingMessage{
		{
			ID:         "bad-snappy",
			Data:       []byte("not snappy at all"),
			Attributes: map[string]string{publisher.EncodingAttribute(): "snappy"},
		},
		{
			ID:   "bad-json",
			Data: []byte("{truncated"),
		},
		{
			ID:   "missing-fields",
			Data: []byte(`{"event_id":"x"}`),
		},
	}

	for _, msg := range poison {
		channels := &fakeChannels{receivers: 1}
		consumer, err := NewConsumer(nil, channels, testLogger(), nil)
		if err != nil {
			t.Fatalf("new consumer: %v", err)
		}
		result := consumer.Process(context.Background(), msg)
		if !result.Ack || result.Nack {
			t.Fatalf("%s: poison must be acked, got %+v", msg.ID, result)
		}
		if len(channels.publishes) != 0 {
			t.Fatalf("%s: poison must not reach the channel", msg.ID)
		}
	}
}

func TestProcessNacksOnChannelFailure(t *testing.T) {
	channels := &fakeChannels{err: errors.New("connection refused")}
	consumer, err := NewConsumer(nil, channels, testLogger(), nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	result := consumer.Process(context.Background(), wireMessage(t, testEvent(t)))
	if !result.Nack {
		t.Fatalf("expected nack on channel failure, got %+v", result)
	}
}

func TestProcessAcksWhenNoSubscribers(t *testing.T) {
	channels := &fakeChannels{receivers: 0}
	consumer, err := NewConsumer(nil, channels, testLogger(), nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	result := consumer.Process(context.Background(), wireMessage(t, testEvent(t)))
	if !result.Ack {
		t.Fatalf("drop with zero subscribers must still ack, got %+v", result)
	}
	if len(channels.publishes) != 1 {
		t.Fatalf("expected publish attempt even with zero subscribers")
	}
}
