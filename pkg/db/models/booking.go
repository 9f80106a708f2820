package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// Booking is a customer's reservation of one or more units in a single bucket.
// Only confirmed bookings make their units permanent.
type Booking struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Kind        enums.InventoryKind `gorm:"column:kind;type:text;not null"`
	EventDate   string              `gorm:"column:event_date;type:text;not null"`
	Shift       string              `gorm:"column:shift;type:text;not null"`
	CustomerID  string              `gorm:"column:customer_id;type:text;not null"`
	Status      enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentRef  *string             `gorm:"column:payment_ref"`
	ConfirmedAt *time.Time          `gorm:"column:confirmed_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	Units       []BookingUnit       `gorm:"foreignKey:BookingID;references:ID"`
}

func (Booking) TableName() string { return "bookings" }

// BookingUnit links a booking to one unit code of its bucket. The bucket is
// copied from the booking so that at most one active row per unit can exist.
// Active turns false once the booking is cancelled or superseded.
type BookingUnit struct {
	BookingID uuid.UUID           `gorm:"column:booking_id;type:uuid;primaryKey"`
	UnitCode  string              `gorm:"column:unit_code;type:text;primaryKey;uniqueIndex:ux_booking_units_active_unit,where:active,priority:4"`
	Kind      enums.InventoryKind `gorm:"column:kind;type:text;not null;uniqueIndex:ux_booking_units_active_unit,where:active,priority:1"`
	EventDate string              `gorm:"column:event_date;type:text;not null;uniqueIndex:ux_booking_units_active_unit,where:active,priority:2"`
	Shift     string              `gorm:"column:shift;type:text;not null;uniqueIndex:ux_booking_units_active_unit,where:active,priority:3"`
	Active    bool                `gorm:"column:active;not null;default:true"`
}

func (BookingUnit) TableName() string { return "booking_units" }
