// Package normalize maps provider-native webhook payloads onto the canonical
// commerce event. Structural validation happens before any mapping: required
// fields must be present and well-typed or the payload is rejected with the
// offending field name. Normalization is a pure transformation; the site is
// resolved by the caller afterwards.
package normalize

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	"github.com/proofpulse/proofpulse-backend/pkg/events"
	"github.com/shopspring/decimal"
)

// Normalize converts a raw provider payload into a canonical event. The
// returned event has no SiteID yet; the resolver fills it in before publish.
func Normalize(source enums.EventSource, rawPayload []byte) (*events.CommerceEvent, error) {
	switch source {
	case enums.EventSourceShopify:
		return normalizeShopify(rawPayload)
	case enums.EventSourceWooCommerce:
		return normalizeWooCommerce(rawPayload)
	case enums.EventSourceGeneric:
		return normalizeGeneric(rawPayload)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported provider %q", source))
	}
}

func rejectField(field, reason string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "malformed payload").
		WithDetails(map[string]string{"field": field, "reason": reason})
}

// validatePrice checks that a monetary amount is a non-negative decimal
// string. The string itself is what travels through the pipeline; the parsed
// decimal is discarded so no float or rounding drift can sneak in.
func validatePrice(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", rejectField(field, "is required")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return "", rejectField(field, "is not a decimal amount")
	}
	if parsed.IsNegative() {
		return "", rejectField(field, "must not be negative")
	}
	return trimmed, nil
}

func validateCurrency(field, value string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if len(trimmed) != 3 {
		return "", rejectField(field, "must be a 3-letter ISO code")
	}
	return trimmed, nil
}

// displayName renders "Jane D." style customer names so the widget never
// exposes a full surname.
func displayName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" && last == "" {
		return ""
	}
	if last == "" {
		return first
	}
	initial := strings.ToUpper(last[:1])
	if first == "" {
		return initial + "."
	}
	return fmt.Sprintf("%s %s.", first, initial)
}

func parseTimestamp(value string, layouts ...string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339}
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
