package bookings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/db"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox/payloads"
)

const bookedReason = "booked"

type bookingRepository interface {
	Create(ctx context.Context, tx *gorm.DB, booking *models.Booking) error
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Booking, error)
	MarkConfirmed(ctx context.Context, tx *gorm.DB, id uuid.UUID, paymentRef *string, at time.Time) (bool, error)
	ActiveClaims(ctx context.Context, tx *gorm.DB, bucket holds.Bucket, codes []string) ([]Claim, error)
	ConfirmedElsewhere(ctx context.Context, tx *gorm.DB, key holds.UnitKey, exclude uuid.UUID) (bool, error)
	Retire(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
}

type holdRepository interface {
	Get(ctx context.Context, tx *gorm.DB, key holds.UnitKey) (*models.InventoryHold, error)
	Promote(ctx context.Context, tx *gorm.DB, key holds.UnitKey, p holds.Placement) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput is a customer's request to book the units they currently hold.
type CreateInput struct {
	CustomerID string              `validate:"required"`
	Kind       enums.InventoryKind `validate:"required,oneof=seat stall"`
	Date       string              `validate:"required,datetime=2006-01-02"`
	Shift      string              `validate:"required,max=32"`
	UnitCodes  []string            `validate:"required,min=1,max=20,dive,required,max=32"`
	Amount     decimal.Decimal
}

type ServiceParams struct {
	Logger   *logger.Logger
	Repo     bookingRepository
	HoldRepo holdRepository
	DB       txRunner
	Events   eventEmitter
	Now      func() time.Time
}

type Service struct {
	logg     *logger.Logger
	repo     bookingRepository
	holdRepo holdRepository
	db       txRunner
	events   eventEmitter
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repo == nil {
		return nil, errors.New("booking repository required")
	}
	if params.HoldRepo == nil {
		return nil, errors.New("hold repository required")
	}
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Events == nil {
		return nil, errors.New("event emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		repo:     params.Repo,
		holdRepo: params.HoldRepo,
		db:       params.DB,
		events:   params.Events,
		now:      now,
	}, nil
}

// Create records a pending booking for units the customer is holding right now.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Booking, error) {
	input.UnitCodes = normalizeCodes(input.UnitCodes)
	if err := validate().Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidBooking)
	}

	booking := &models.Booking{
		ID:         uuid.New(),
		Kind:       input.Kind,
		EventDate:  input.Date,
		Shift:      input.Shift,
		CustomerID: input.CustomerID,
		Status:     enums.BookingStatusPending,
		Amount:     input.Amount,
	}
	for _, code := range input.UnitCodes {
		booking.Units = append(booking.Units, models.BookingUnit{
			BookingID: booking.ID,
			UnitCode:  code,
			Kind:      booking.Kind,
			EventDate: booking.EventDate,
			Shift:     booking.Shift,
			Active:    true,
		})
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, code := range input.UnitCodes {
			key := unitKey(booking, code)
			hold, err := s.holdRepo.Get(ctx, tx, key)
			if errors.Is(err, holds.ErrHoldNotFound) {
				return fmt.Errorf("%w: %s", ErrUnitNotHeld, key)
			}
			if err != nil {
				return err
			}
			if !hold.Blocked || hold.BlockedBy != input.CustomerID {
				return fmt.Errorf("%w: %s", ErrUnitNotHeld, key)
			}
		}
		if err := s.releaseStaleClaims(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, booking); err != nil {
			if db.IsUniqueViolation(err, "") {
				return fmt.Errorf("%w: %v", ErrUnitInBooking, input.UnitCodes)
			}
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID.String(),
			Actor:         &outbox.ActorRef{UserID: input.CustomerID, Role: enums.ActorRoleCustomer},
			Data: payloads.BookingCreatedEvent{
				BookingID:  booking.ID,
				Kind:       booking.Kind,
				EventDate:  booking.EventDate,
				Shift:      booking.Shift,
				CustomerID: booking.CustomerID,
				UnitCodes:  input.UnitCodes,
				Amount:     booking.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Confirm turns a pending booking into a confirmed one and makes its holds
// permanent in the same transaction. Confirming twice returns the booking as is.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, paymentRef *string, actor *outbox.ActorRef) (*models.Booking, error) {
	var confirmed *models.Booking
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		booking, err := s.repo.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		switch booking.Status {
		case enums.BookingStatusConfirmed:
			confirmed = booking
			return nil
		case enums.BookingStatusPending:
		default:
			return fmt.Errorf("%w: %s", ErrInvalidState, booking.Status)
		}

		for _, unit := range booking.Units {
			key := unitKey(booking, unit.UnitCode)
			taken, err := s.repo.ConfirmedElsewhere(ctx, tx, key, booking.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", ErrUnitLost, key)
			}
		}

		at := s.now().UTC()
		ok, err := s.repo.MarkConfirmed(ctx, tx, id, paymentRef, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}

		codes := make([]string, 0, len(booking.Units))
		for _, unit := range booking.Units {
			key := unitKey(booking, unit.UnitCode)
			placement := holds.Placement{
				Owner:     booking.CustomerID,
				Reason:    bookedReason,
				HoldToken: uuid.NewString(),
				At:        at,
			}
			if err := s.holdRepo.Promote(ctx, tx, key, placement); err != nil {
				if errors.Is(err, holds.ErrUnitUnavailable) {
					return fmt.Errorf("%w: %s", ErrUnitLost, key)
				}
				return err
			}
			codes = append(codes, unit.UnitCode)
		}

		booking.Status = enums.BookingStatusConfirmed
		booking.PaymentRef = paymentRef
		booking.ConfirmedAt = &at
		confirmed = booking

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingConfirmed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID.String(),
			Actor:         actor,
			OccurredAt:    at,
			Data: payloads.BookingConfirmedEvent{
				BookingID:   booking.ID,
				Kind:        booking.Kind,
				EventDate:   booking.EventDate,
				Shift:       booking.Shift,
				CustomerID:  booking.CustomerID,
				UnitCodes:   codes,
				PaymentRef:  paymentRef,
				ConfirmedAt: at,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		fields := map[string]any{
			"event":      "bookings.confirm",
			"booking_id": confirmed.ID.String(),
			"units":      len(confirmed.Units),
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "booking confirmed")
	}
	return confirmed, nil
}

// releaseStaleClaims rejects units that a confirmed booking or another pending
// booking of the same customer already references. A pending booking of a
// different customer lost its hold to this customer and is cancelled.
func (s *Service) releaseStaleClaims(ctx context.Context, tx *gorm.DB, booking *models.Booking) error {
	codes := make([]string, 0, len(booking.Units))
	for _, unit := range booking.Units {
		codes = append(codes, unit.UnitCode)
	}
	bucket := holds.Bucket{Kind: booking.Kind, Date: booking.EventDate, Shift: booking.Shift}
	claims, err := s.repo.ActiveClaims(ctx, tx, bucket, codes)
	if err != nil {
		return err
	}

	retired := make(map[uuid.UUID]struct{})
	for _, claim := range claims {
		key := unitKey(booking, claim.UnitCode)
		if claim.Status == enums.BookingStatusConfirmed || claim.CustomerID == booking.CustomerID {
			return fmt.Errorf("%w: %s", ErrUnitInBooking, key)
		}
		if _, ok := retired[claim.BookingID]; ok {
			continue
		}
		ok, err := s.repo.Retire(ctx, tx, claim.BookingID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnitInBooking, key)
		}
		retired[claim.BookingID] = struct{}{}
		if s.logg != nil {
			fields := map[string]any{
				"event":         "bookings.superseded",
				"booking_id":    claim.BookingID.String(),
				"superseded_by": booking.ID.String(),
				"unit":          key.String(),
			}
			s.logg.Warn(s.logg.WithFields(ctx, fields), "pending booking superseded")
		}
	}
	return nil
}

// Get returns a booking with its units.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.repo.Get(ctx, nil, id)
}

func unitKey(b *models.Booking, code string) holds.UnitKey {
	return holds.UnitKey{Kind: b.Kind, Date: b.EventDate, Shift: b.Shift, Code: code}
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		c := strings.TrimSpace(code)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}
