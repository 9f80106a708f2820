package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// Repository persists bookings and answers the confirmation lookup.
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

// IsUnitConfirmed reports whether a confirmed booking references the unit.
func (r *Repository) IsUnitConfirmed(ctx context.Context, key holds.UnitKey) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("booking_units AS bu").
		Joins("JOIN bookings AS b ON b.id = bu.booking_id").
		Where("b.status = ?", enums.BookingStatusConfirmed).
		Where("b.kind = ? AND b.event_date = ? AND b.shift = ? AND bu.unit_code = ?", key.Kind, key.Date, key.Shift, key.Code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Claim is an active booking unit together with the status of its booking.
type Claim struct {
	BookingID  uuid.UUID           `gorm:"column:booking_id"`
	CustomerID string              `gorm:"column:customer_id"`
	Status     enums.BookingStatus `gorm:"column:status"`
	UnitCode   string              `gorm:"column:unit_code"`
}

// ActiveClaims lists the active booking units that reference any of codes in
// the given bucket.
func (r *Repository) ActiveClaims(ctx context.Context, tx *gorm.DB, bucket holds.Bucket, codes []string) ([]Claim, error) {
	var claims []Claim
	err := r.conn(ctx, tx).
		Table("booking_units AS bu").
		Select("bu.booking_id, b.customer_id, b.status, bu.unit_code").
		Joins("JOIN bookings AS b ON b.id = bu.booking_id").
		Where("bu.active = ?", true).
		Where("bu.kind = ? AND bu.event_date = ? AND bu.shift = ?", bucket.Kind, bucket.Date, bucket.Shift).
		Where("bu.unit_code IN ?", codes).
		Order("bu.unit_code ASC").
		Scan(&claims).Error
	return claims, err
}

// ConfirmedElsewhere reports whether a confirmed booking other than exclude
// references the unit. It reads through tx.
func (r *Repository) ConfirmedElsewhere(ctx context.Context, tx *gorm.DB, key holds.UnitKey, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).
		Table("booking_units AS bu").
		Joins("JOIN bookings AS b ON b.id = bu.booking_id").
		Where("b.status = ?", enums.BookingStatusConfirmed).
		Where("b.id <> ?", exclude).
		Where("b.kind = ? AND b.event_date = ? AND b.shift = ? AND bu.unit_code = ?", key.Kind, key.Date, key.Shift, key.Code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Retire cancels a booking that is not confirmed and deactivates its units.
// It returns false when the booking was confirmed in the meantime.
func (r *Repository) Retire(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	conn := r.conn(ctx, tx)
	res := conn.Model(&models.Booking{}).
		Where("id = ? AND status <> ?", id, enums.BookingStatusConfirmed).
		Update("status", enums.BookingStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := conn.Model(&models.BookingUnit{}).
		Where("booking_id = ?", id).
		Update("active", false).Error
	return err == nil, err
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	return r.conn(ctx, tx).Create(booking).Error
}

// Get loads a booking with its units. ErrBookingNotFound when missing.
func (r *Repository) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.conn(ctx, tx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("unit_code ASC") }).
		Where("id = ?", id).
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// MarkConfirmed moves a pending booking to confirmed. It returns false when
// the booking was not pending anymore.
func (r *Repository) MarkConfirmed(ctx context.Context, tx *gorm.DB, id uuid.UUID, paymentRef *string, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, enums.BookingStatusPending).
		Updates(map[string]any{
			"status":       enums.BookingStatusConfirmed,
			"payment_ref":  paymentRef,
			"confirmed_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
