package enums

import "fmt"

// EventType is the canonical classification of a notification-worthy event.
type EventType string

const (
	EventTypeOrderCreated  EventType = "order.created"
	EventTypeOrderUpdated  EventType = "order.updated"
	EventTypeSignupCreated EventType = "signup.created"
	EventTypeReviewCreated EventType = "review.created"
)

var validEventTypes = []EventType{
	EventTypeOrderCreated,
	EventTypeOrderUpdated,
	EventTypeSignupCreated,
	EventTypeReviewCreated,
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether the event type is recognized.
func (t EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsOrder reports whether the event describes a commerce order.
func (t EventType) IsOrder() bool {
	return t == EventTypeOrderCreated || t == EventTypeOrderUpdated
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
