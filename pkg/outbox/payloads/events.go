package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// HoldPlacedEvent is emitted when a customer takes a hold on a unit.
type HoldPlacedEvent struct {
	Kind      enums.InventoryKind `json:"kind"`
	EventDate string              `json:"event_date"`
	Shift     string              `json:"shift"`
	UnitCode  string              `json:"unit_code"`
	BlockedBy string              `json:"blocked_by"`
	HoldToken string              `json:"hold_token"`
	BlockedAt time.Time           `json:"blocked_at"`
}

// HoldReleasedEvent is emitted whenever a blocked unit becomes available again.
type HoldReleasedEvent struct {
	Kind       enums.InventoryKind    `json:"kind"`
	EventDate  string                 `json:"event_date"`
	Shift      string                 `json:"shift"`
	UnitCode   string                 `json:"unit_code"`
	BlockedBy  string                 `json:"blocked_by"`
	Cause      enums.HoldReleaseCause `json:"cause"`
	BlockedAt  *time.Time             `json:"blocked_at,omitempty"`
	ReleasedAt time.Time              `json:"released_at"`
}

// BookingCreatedEvent surfaces a new pending booking.
type BookingCreatedEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	Kind       enums.InventoryKind `json:"kind"`
	EventDate  string              `json:"event_date"`
	Shift      string              `json:"shift"`
	CustomerID string              `json:"customer_id"`
	UnitCodes  []string            `json:"unit_codes"`
	Amount     decimal.Decimal     `json:"amount"`
}

// BookingConfirmedEvent is emitted once a booking transitions to confirmed.
type BookingConfirmedEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	Kind        enums.InventoryKind `json:"kind"`
	EventDate   string              `json:"event_date"`
	Shift       string              `json:"shift"`
	CustomerID  string              `json:"customer_id"`
	UnitCodes   []string            `json:"unit_codes"`
	PaymentRef  *string             `json:"payment_ref,omitempty"`
	ConfirmedAt time.Time           `json:"confirmed_at"`
}
