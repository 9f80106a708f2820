package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateInventoryUnit OutboxAggregateType = "inventory_unit"
	AggregateBooking       OutboxAggregateType = "booking"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateInventoryUnit,
	AggregateBooking,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventHoldPlaced       OutboxEventType = "hold_placed"
	EventHoldReleased     OutboxEventType = "hold_released"
	EventBookingCreated   OutboxEventType = "booking_created"
	EventBookingConfirmed OutboxEventType = "booking_confirmed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventHoldPlaced,
	EventHoldReleased,
	EventBookingCreated,
	EventBookingConfirmed,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
