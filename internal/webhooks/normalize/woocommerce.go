package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
)

// wooOrder mirrors the subset of WooCommerce's order webhook we consume.
// WooCommerce timestamps omit the zone suffix and are documented as GMT.
type wooOrder struct {
	ID             json.Number `json:"id"`
	DateCreatedGMT string      `json:"date_created_gmt"`
	Currency       string      `json:"currency"`
	LineItems      []struct {
		Name  string `json:"name"`
		Total string `json:"total"`
	} `json:"line_items"`
	Billing struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		City      string `json:"city"`
		Country   string `json:"country"`
	} `json:"billing"`
}

const wooTimestampLayout = "2006-01-02T15:04:05"

func normalizeWooCommerce(rawPayload []byte) (*events.CommerceEvent, error) {
	var order wooOrder
	if err := json.Unmarshal(rawPayload, &order); err != nil {
		return nil, rejectField("body", "is not valid JSON")
	}

	orderID := strings.TrimSpace(order.ID.String())
	if orderID == "" || orderID == "0" {
		return nil, rejectField("id", "is required")
	}
	if len(order.LineItems) == 0 {
		return nil, rejectField("line_items", "must not be empty")
	}

	first := order.LineItems[0]
	price, err := validatePrice("line_items[0].total", first.Total)
	if err != nil {
		return nil, err
	}
	currency, err := validateCurrency("currency", order.Currency)
	if err != nil {
		return nil, err
	}

	occurredAt, ok := parseTimestamp(order.DateCreatedGMT, wooTimestampLayout, time.RFC3339)
	if !ok {
		occurredAt = time.Now().UTC()
	}

	location := ""
	if city := strings.TrimSpace(order.Billing.City); city != "" {
		location = city
		if country := strings.TrimSpace(order.Billing.Country); country != "" {
			location = fmt.Sprintf("%s, %s", city, country)
		}
	}

	return &events.CommerceEvent{
		EventID:    "woocommerce:" + orderID,
		EventType:  enums.EventTypeOrderCreated,
		Source:     enums.EventSourceWooCommerce,
		OccurredAt: occurredAt,
		Payload: events.Payload{
			CustomerName: displayName(order.Billing.FirstName, order.Billing.LastName),
			ProductTitle: strings.TrimSpace(first.Name),
			Price:        price,
			Currency:     currency,
			Location:     location,
		},
	}, nil
}
