package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
)

// genericEvent is the declared contract for custom integrations: a flat data
// object whose keys map one-to-one onto the canonical payload fields. Order
// events must carry a price and currency; signups and reviews need neither.
type genericEvent struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	OccurredAt string            `json:"occurred_at"`
	Data       map[string]string `json:"data"`
}

// genericFieldMap maps generic data keys onto canonical payload fields.
var genericFieldMap = []string{"customer_name", "product_title", "price", "currency", "location"}

func normalizeGeneric(rawPayload []byte) (*events.CommerceEvent, error) {
	var payload genericEvent
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, rejectField("body", "is not valid JSON")
	}

	eventType := enums.EventTypeOrderCreated
	if raw := strings.TrimSpace(payload.EventType); raw != "" {
		parsed, err := enums.ParseEventType(raw)
		if err != nil {
			return nil, rejectField("event_type", "is not a recognized type")
		}
		eventType = parsed
	}

	if payload.Data == nil {
		return nil, rejectField("data", "is required")
	}

	mapped := map[string]string{}
	for _, field := range genericFieldMap {
		mapped[field] = strings.TrimSpace(payload.Data[field])
	}

	price := mapped["price"]
	currency := mapped["currency"]
	if eventType.IsOrder() {
		validated, err := validatePrice("data.price", price)
		if err != nil {
			return nil, err
		}
		price = validated
		currency, err = validateCurrency("data.currency", currency)
		if err != nil {
			return nil, err
		}
	} else if currency != "" {
		validated, err := validateCurrency("data.currency", currency)
		if err != nil {
			return nil, err
		}
		currency = validated
	}

	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	} else {
		eventID = "generic:" + eventID
	}

	occurredAt, ok := parseTimestamp(payload.OccurredAt)
	if !ok {
		occurredAt = time.Now().UTC()
	}

	return &events.CommerceEvent{
		EventID:    eventID,
		EventType:  eventType,
		Source:     enums.EventSourceGeneric,
		OccurredAt: occurredAt,
		Payload: events.Payload{
			CustomerName: mapped["customer_name"],
			ProductTitle: mapped["product_title"],
			Price:        price,
			Currency:     currency,
			Location:     mapped["location"],
		},
	}, nil
}
