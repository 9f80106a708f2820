package holds

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// DateLayout is the calendar date format of a bucket.
const DateLayout = "2006-01-02"

// UnitKey identifies one seat or stall within a date+shift bucket.
type UnitKey struct {
	Kind  enums.InventoryKind `json:"kind" validate:"required,oneof=seat stall"`
	Date  string              `json:"date" validate:"required,datetime=2006-01-02"`
	Shift string              `json:"shift" validate:"required,max=32"`
	Code  string              `json:"code" validate:"required,max=32"`
}

// Bucket returns the date+shift bucket the unit belongs to.
func (k UnitKey) Bucket() Bucket {
	return Bucket{Kind: k.Kind, Date: k.Date, Shift: k.Shift}
}

// String renders the key as kind/date/shift/code. It doubles as the outbox aggregate id.
func (k UnitKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Kind, k.Date, k.Shift, k.Code)
}

// Validate checks the key shape.
func (k UnitKey) Validate() error {
	if err := validate().Struct(k); err != nil {
		return fmt.Errorf("%w: unit key %s: %v", ErrInvalidInput, k, err)
	}
	return nil
}

// Bucket groups the hold records of one kind, date and shift.
type Bucket struct {
	Kind  enums.InventoryKind `json:"kind" validate:"required,oneof=seat stall"`
	Date  string              `json:"date" validate:"required,datetime=2006-01-02"`
	Shift string              `json:"shift" validate:"required,max=32"`
}

// Name renders the bucket name, e.g. "seat:2026-01-30:morning", optionally prefixed.
func (b Bucket) Name(prefix string) string {
	name := fmt.Sprintf("%s:%s:%s", b.Kind, b.Date, b.Shift)
	if p := strings.TrimSpace(prefix); p != "" {
		return p + ":" + name
	}
	return name
}

// Validate checks the bucket shape.
func (b Bucket) Validate() error {
	if err := validate().Struct(b); err != nil {
		return fmt.Errorf("%w: bucket %s: %v", ErrInvalidInput, b.Name(""), err)
	}
	return nil
}

// Record is the typed view of one inventory_holds row.
type Record struct {
	Key       UnitKey    `json:"key"`
	Blocked   bool       `json:"blocked"`
	BlockedBy string     `json:"blockedBy,omitempty"`
	BlockedAt *time.Time `json:"blockedAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Booked    bool       `json:"booked"`
	HoldToken string     `json:"-"`
}

// recordShape is what a stored row must look like to be trusted.
type recordShape struct {
	Key       UnitKey
	Blocked   bool
	BlockedBy string     `validate:"required_if=Blocked true"`
	BlockedAt *time.Time `validate:"required_if=Blocked true"`
	HoldToken string     `validate:"required_if=Blocked true"`
}

// NewRecord validates a stored row and converts it. Rows that fail validation
// wrap ErrInvalidRecord so callers treat them like an unreadable store.
func NewRecord(row models.InventoryHold) (Record, error) {
	rec := Record{
		Key: UnitKey{
			Kind:  row.Kind,
			Date:  row.EventDate,
			Shift: row.Shift,
			Code:  row.UnitCode,
		},
		Blocked:   row.Blocked,
		BlockedBy: row.BlockedBy,
		BlockedAt: row.BlockedAt,
		Reason:    row.Reason,
		Booked:    row.Booked,
		HoldToken: row.HoldToken,
	}
	shape := recordShape{
		Key:       rec.Key,
		Blocked:   rec.Blocked,
		BlockedBy: rec.BlockedBy,
		BlockedAt: rec.BlockedAt,
		HoldToken: rec.HoldToken,
	}
	if err := validate().Struct(shape); err != nil {
		return Record{}, fmt.Errorf("%w %s: %v", ErrInvalidRecord, rec.Key, err)
	}
	if rec.BlockedAt != nil {
		at := rec.BlockedAt.UTC()
		rec.BlockedAt = &at
	}
	return rec, nil
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validateInst
}
