package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
)

// shopifyOrder mirrors the subset of Shopify's order webhook we consume.
// Prices arrive as strings and stay strings.
type shopifyOrder struct {
	ID        json.Number `json:"id"`
	CreatedAt string      `json:"created_at"`
	Currency  string      `json:"currency"`
	LineItems []struct {
		Title string `json:"title"`
		Price string `json:"price"`
	} `json:"line_items"`
	Customer struct {
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		DefaultAddress struct {
			City        string `json:"city"`
			CountryCode string `json:"country_code"`
		} `json:"default_address"`
	} `json:"customer"`
}

func normalizeShopify(rawPayload []byte) (*events.CommerceEvent, error) {
	var order shopifyOrder
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
	price, err := validatePrice("line_items[0].price", first.Price)
	if err != nil {
		return nil, err
	}
	currency, err := validateCurrency("currency", order.Currency)
	if err != nil {
		return nil, err
	}

	occurredAt, ok := parseTimestamp(order.CreatedAt)
	if !ok {
		occurredAt = time.Now().UTC()
	}

	location := ""
	if city := strings.TrimSpace(order.Customer.DefaultAddress.City); city != "" {
		location = city
		if country := strings.TrimSpace(order.Customer.DefaultAddress.CountryCode); country != "" {
			location = fmt.Sprintf("%s, %s", city, country)
		}
	}

	return &events.CommerceEvent{
		EventID:    "shopify:" + orderID,
		EventType:  enums.EventTypeOrderCreated,
		Source:     enums.EventSourceShopify,
		OccurredAt: occurredAt,
		Payload: events.Payload{
			CustomerName: displayName(order.Customer.FirstName, order.Customer.LastName),
			ProductTitle: strings.TrimSpace(first.Title),
			Price:        price,
			Currency:     currency,
			Location:     location,
		},
	}, nil
}
