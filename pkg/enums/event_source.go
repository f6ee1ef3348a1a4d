package enums

import "fmt"

// EventSource identifies the commerce platform a webhook originated from.
type EventSource string

const (
	EventSourceShopify     EventSource = "shopify"
	EventSourceWooCommerce EventSource = "woocommerce"
	EventSourceGeneric     EventSource = "generic"
)

var validEventSources = []EventSource{
	EventSourceShopify,
	EventSourceWooCommerce,
	EventSourceGeneric,
}

// String implements fmt.Stringer.
func (s EventSource) String() string {
	return string(s)
}

// IsValid reports whether the source is a supported provider.
func (s EventSource) IsValid() bool {
	for _, candidate := range validEventSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEventSource converts raw input into an EventSource.
func ParseEventSource(value string) (EventSource, error) {
	for _, candidate := range validEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported provider %q", value)
}
