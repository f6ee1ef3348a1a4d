package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/proofpulse/proofpulse-backend/pkg/enums"
)

// Payload carries the provider-agnostic display fields a notification renderer
// may use. Every field is optional; renderers must tolerate any subset being
// absent. Price is a decimal string and is never parsed into a float anywhere
// in the pipeline.
type Payload struct {
	CustomerName string `json:"customer_name,omitempty"`
	ProductTitle string `json:"product_title,omitempty"`
	Price        string `json:"price,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Location     string `json:"location,omitempty"`
}

// CommerceEvent is the canonical notification record produced by
// normalization. It is immutable once created; every stage of the pipeline
// republishes it verbatim. EventID is stable end-to-end and serves as the
// dedup key for consumers that care about at-least-once duplicates.
type CommerceEvent struct {
	EventID    string            `json:"event_id"`
	EventType  enums.EventType   `json:"event_type"`
	Source     enums.EventSource `json:"source"`
	SiteID     string            `json:"site_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    Payload           `json:"payload"`
}

// Validate checks the invariants every published event must hold.
func (e *CommerceEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if !e.EventType.IsValid() {
		return fmt.Errorf("invalid event_type %q", e.EventType)
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("invalid source %q", e.Source)
	}
	if strings.TrimSpace(e.SiteID) == "" {
		return fmt.Errorf("site_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Marshal serializes the event for the wire.
func (e *CommerceEvent) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Unmarshal decodes a canonical event and re-checks its invariants, so a
// corrupted in-flight message surfaces as an error instead of a half-empty
// event.
func Unmarshal(data []byte) (*CommerceEvent, error) {
	var event CommerceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode commerce event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid commerce event: %w", err)
	}
	return &event, nil
}
