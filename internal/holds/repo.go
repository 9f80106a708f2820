package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// noConfirmedBooking guards every release: the unit must not be referenced by
// a confirmed booking at the moment the write is applied.
const noConfirmedBooking = `NOT EXISTS (
	SELECT 1 FROM booking_units bu
	JOIN bookings b ON b.id = bu.booking_id
	WHERE b.status = ?
	AND b.kind = inventory_holds.kind
	AND b.event_date = inventory_holds.event_date
	AND b.shift = inventory_holds.shift
	AND bu.unit_code = inventory_holds.unit_code
)`

// Expectation is the state a sweep observed and expects to still be stored
// when it releases a hold.
type Expectation struct {
	HoldToken   string
	SystemOwner string
}

// Placement describes a new hold on a unit.
type Placement struct {
	Owner     string
	Reason    string
	HoldToken string
	At        time.Time
	Booked    bool
}

// Repository reads and conditionally writes inventory_holds.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// ListBlocked returns every blocked row across all buckets that a sweep could
// still release. Booked rows are left out; the write guard stays authoritative.
func (r *Repository) ListBlocked(ctx context.Context) ([]models.InventoryHold, error) {
	var rows []models.InventoryHold
	err := r.db.WithContext(ctx).
		Where("blocked = ?", true).
		Where("booked = ?", false).
		Order("kind ASC").
		Order("event_date ASC").
		Order("shift ASC").
		Order("unit_code ASC").
		Find(&rows).Error
	return rows, err
}

// ListBucket returns all rows of one bucket, blocked or not.
func (r *Repository) ListBucket(ctx context.Context, bucket Bucket) ([]models.InventoryHold, error) {
	var rows []models.InventoryHold
	err := r.db.WithContext(ctx).
		Where("kind = ? AND event_date = ? AND shift = ?", bucket.Kind, bucket.Date, bucket.Shift).
		Order("unit_code ASC").
		Find(&rows).Error
	return rows, err
}

// Get loads a single row. ErrHoldNotFound when the unit has never been held.
func (r *Repository) Get(ctx context.Context, tx *gorm.DB, key UnitKey) (*models.InventoryHold, error) {
	var row models.InventoryHold
	err := keyScope(r.conn(ctx, tx), key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Place blocks a free unit for p.Owner. ErrUnitUnavailable when the unit is
// already blocked.
func (r *Repository) Place(ctx context.Context, tx *gorm.DB, key UnitKey, p Placement) error {
	conn := r.conn(ctx, tx)
	res := keyScope(conn.Model(&models.InventoryHold{}), key).
		Where("blocked = ?", false).
		Updates(blockValues(p))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	at := p.At.UTC()
	row := models.InventoryHold{
		Kind:      key.Kind,
		EventDate: key.Date,
		Shift:     key.Shift,
		UnitCode:  key.Code,
		Blocked:   true,
		BlockedBy: p.Owner,
		BlockedAt: &at,
		Reason:    p.Reason,
		HoldToken: p.HoldToken,
		Booked:    p.Booked,
	}
	res = conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnitUnavailable
	}
	return nil
}

// BlockSystem places an administrative block on a free unit. Blocks carry
// the system owner so sweeps never release them.
func (r *Repository) BlockSystem(ctx context.Context, tx *gorm.DB, key UnitKey, p Placement) error {
	if p.Owner == "" {
		return fmt.Errorf("%w: system owner required", ErrInvalidInput)
	}
	if p.Reason == "" {
		p.Reason = defaultBlockReason
	}
	return r.Place(ctx, tx, key, p)
}

// ReleaseIfEligible releases a hold only if it is still blocked by the same
// placement, is not a system block and no confirmed booking references the
// unit. ErrPreconditionFailed when any of that no longer holds.
func (r *Repository) ReleaseIfEligible(ctx context.Context, tx *gorm.DB, key UnitKey, expect Expectation, at time.Time) error {
	q := keyScope(r.conn(ctx, tx).Model(&models.InventoryHold{}), key).
		Where("blocked = ?", true).
		Where("hold_token = ?", expect.HoldToken).
		Where("blocked_by <> ?", expect.SystemOwner).
		Where(noConfirmedBooking, enums.BookingStatusConfirmed)
	return applyRelease(q, at)
}

// ReleaseByOwner releases the owner's own unconfirmed hold.
func (r *Repository) ReleaseByOwner(ctx context.Context, tx *gorm.DB, key UnitKey, owner string, at time.Time) error {
	q := keyScope(r.conn(ctx, tx).Model(&models.InventoryHold{}), key).
		Where("blocked = ?", true).
		Where("blocked_by = ?", owner).
		Where(noConfirmedBooking, enums.BookingStatusConfirmed)
	return applyRelease(q, at)
}

// UnblockSystem lifts an administrative block.
func (r *Repository) UnblockSystem(ctx context.Context, tx *gorm.DB, key UnitKey, systemOwner string, at time.Time) error {
	q := keyScope(r.conn(ctx, tx).Model(&models.InventoryHold{}), key).
		Where("blocked = ?", true).
		Where("blocked_by = ?", systemOwner)
	return applyRelease(q, at)
}

// Promote marks the owner's hold as booked and rotates its token, so a sweep
// that read the hold earlier can no longer match it. A hold that was released
// in the meantime is re-taken when the unit is still free; ErrUnitUnavailable
// otherwise.
func (r *Repository) Promote(ctx context.Context, tx *gorm.DB, key UnitKey, p Placement) error {
	p.Booked = true
	res := keyScope(r.conn(ctx, tx).Model(&models.InventoryHold{}), key).
		Where("blocked = ?", true).
		Where("blocked_by = ?", p.Owner).
		Updates(map[string]any{"reason": p.Reason, "hold_token": p.HoldToken, "booked": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.Place(ctx, tx, key, p)
}

func keyScope(q *gorm.DB, key UnitKey) *gorm.DB {
	return q.Where("kind = ? AND event_date = ? AND shift = ? AND unit_code = ?", key.Kind, key.Date, key.Shift, key.Code)
}

func blockValues(p Placement) map[string]any {
	return map[string]any{
		"blocked":     true,
		"blocked_by":  p.Owner,
		"blocked_at":  p.At.UTC(),
		"reason":      p.Reason,
		"hold_token":  p.HoldToken,
		"booked":      p.Booked,
		"released_at": nil,
	}
}

func applyRelease(q *gorm.DB, at time.Time) error {
	res := q.Updates(map[string]any{
		"blocked":     false,
		"blocked_by":  "",
		"blocked_at":  nil,
		"reason":      "",
		"hold_token":  "",
		"booked":      false,
		"released_at": at.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}
