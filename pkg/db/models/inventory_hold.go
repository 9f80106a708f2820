package models

import (
	"time"

	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// InventoryHold is the hold record of one seat or stall within a date+shift bucket.
// Booked marks a hold promoted by a confirmed booking; sweeps no longer list it.
type InventoryHold struct {
	Kind       enums.InventoryKind `gorm:"column:kind;type:text;primaryKey"`
	EventDate  string              `gorm:"column:event_date;type:text;primaryKey"`
	Shift      string              `gorm:"column:shift;type:text;primaryKey"`
	UnitCode   string              `gorm:"column:unit_code;type:text;primaryKey"`
	Blocked    bool                `gorm:"column:blocked;not null;default:false"`
	BlockedBy  string              `gorm:"column:blocked_by;type:text;not null;default:''"`
	BlockedAt  *time.Time          `gorm:"column:blocked_at"`
	Reason     string              `gorm:"column:reason;type:text;not null;default:''"`
	HoldToken  string              `gorm:"column:hold_token;type:text;not null;default:''"`
	Booked     bool                `gorm:"column:booked;not null;default:false"`
	ReleasedAt *time.Time          `gorm:"column:released_at"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryHold) TableName() string { return "inventory_holds" }
