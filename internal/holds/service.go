package holds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox/payloads"
)

const (
	defaultHoldReason  = "checkout-in-progress"
	defaultBlockReason = "admin-block"
)

type holdRepository interface {
	ListBucket(ctx context.Context, bucket Bucket) ([]models.InventoryHold, error)
	Get(ctx context.Context, tx *gorm.DB, key UnitKey) (*models.InventoryHold, error)
	Place(ctx context.Context, tx *gorm.DB, key UnitKey, p Placement) error
	BlockSystem(ctx context.Context, tx *gorm.DB, key UnitKey, p Placement) error
	ReleaseByOwner(ctx context.Context, tx *gorm.DB, key UnitKey, owner string, at time.Time) error
	UnblockSystem(ctx context.Context, tx *gorm.DB, key UnitKey, systemOwner string, at time.Time) error
}

type ServiceParams struct {
	Config config.HoldsConfig
	Logger *logger.Logger
	Repo   holdRepository
	Lookup ConfirmationLookup
	DB     txRunner
	Events eventEmitter
	Now    func() time.Time
}

// Service handles customer holds and administrative blocks.
type Service struct {
	cfg    config.HoldsConfig
	logg   *logger.Logger
	repo   holdRepository
	lookup ConfirmationLookup
	db     txRunner
	events eventEmitter
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repo == nil {
		return nil, errors.New("hold repository required")
	}
	if params.Lookup == nil {
		return nil, errors.New("confirmation lookup required")
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
		cfg:    params.Config,
		logg:   params.Logger,
		repo:   params.Repo,
		lookup: params.Lookup,
		db:     params.DB,
		events: params.Events,
		now:    now,
	}, nil
}

// ListBucket returns the typed records of one bucket.
func (s *Service) ListBucket(ctx context.Context, bucket Bucket) ([]Record, error) {
	if err := bucket.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBucket(ctx, bucket)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := NewRecord(row)
		if err != nil {
			return nil, storeUnavailable(err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// PlaceHold blocks a unit for a customer who starts checkout. Placing again
// while already holding the unit returns the existing hold unchanged.
func (s *Service) PlaceHold(ctx context.Context, key UnitKey, owner, reason string) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Record{}, fmt.Errorf("%w: hold owner required", ErrInvalidInput)
	}
	if owner == s.cfg.SystemOwner {
		return Record{}, fmt.Errorf("%w: owner %q is reserved", ErrInvalidInput, owner)
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultHoldReason
	}

	confirmed, err := s.lookup.IsUnitConfirmed(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrConfirmationLookupFailed, err)
	}
	if confirmed {
		return Record{}, ErrUnitBooked
	}

	var placed Record
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.Get(ctx, tx, key)
		if err != nil && !errors.Is(err, ErrHoldNotFound) {
			return err
		}
		if existing != nil && existing.Blocked {
			if existing.BlockedBy != owner {
				return ErrUnitUnavailable
			}
			placed, err = NewRecord(*existing)
			return err
		}

		at := s.now().UTC()
		p := Placement{Owner: owner, Reason: reason, HoldToken: uuid.NewString(), At: at}
		if err := s.repo.Place(ctx, tx, key, p); err != nil {
			return err
		}
		placed = Record{Key: key, Blocked: true, BlockedBy: owner, BlockedAt: &at, Reason: reason, HoldToken: p.HoldToken}
		return s.events.Emit(ctx, tx, placedEvent(placed, &outbox.ActorRef{UserID: owner, Role: enums.ActorRoleCustomer}))
	})
	if err != nil {
		return Record{}, classifyWriteErr(err)
	}
	return placed, nil
}

// CancelHold releases the caller's own hold.
func (s *Service) CancelHold(ctx context.Context, key UnitKey, owner string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.Get(ctx, tx, key)
		if err != nil {
			return err
		}
		if !row.Blocked {
			return ErrHoldNotFound
		}
		if row.BlockedBy != owner {
			return ErrNotHoldOwner
		}
		rec, err := NewRecord(*row)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if err := s.repo.ReleaseByOwner(ctx, tx, key, owner, at); err != nil {
			if errors.Is(err, ErrPreconditionFailed) {
				return ErrUnitBooked
			}
			return err
		}
		actor := &outbox.ActorRef{UserID: owner, Role: enums.ActorRoleCustomer}
		return s.events.Emit(ctx, tx, releasedEvent(rec, enums.HoldReleaseCancelled, at, actor))
	})
	return classifyWriteErr(err)
}

// BlockUnit places a permanent administrative block on a free unit.
func (s *Service) BlockUnit(ctx context.Context, key UnitKey, reason, adminID string) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	var placed Record
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		at := s.now().UTC()
		if strings.TrimSpace(reason) == "" {
			reason = defaultBlockReason
		}
		p := Placement{Owner: s.cfg.SystemOwner, Reason: reason, HoldToken: uuid.NewString(), At: at}
		if err := s.repo.BlockSystem(ctx, tx, key, p); err != nil {
			return err
		}
		placed = Record{Key: key, Blocked: true, BlockedBy: p.Owner, BlockedAt: &at, Reason: reason, HoldToken: p.HoldToken}
		return s.events.Emit(ctx, tx, placedEvent(placed, &outbox.ActorRef{UserID: adminID, Role: enums.ActorRoleAdmin}))
	})
	if err != nil {
		return Record{}, classifyWriteErr(err)
	}
	return placed, nil
}

// UnblockUnit lifts an administrative block. Customer holds are left alone.
func (s *Service) UnblockUnit(ctx context.Context, key UnitKey, adminID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.Get(ctx, tx, key)
		if err != nil {
			return err
		}
		if !row.Blocked || row.BlockedBy != s.cfg.SystemOwner {
			return ErrHoldNotFound
		}
		rec, err := NewRecord(*row)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if err := s.repo.UnblockSystem(ctx, tx, key, s.cfg.SystemOwner, at); err != nil {
			if errors.Is(err, ErrPreconditionFailed) {
				return ErrHoldNotFound
			}
			return err
		}
		actor := &outbox.ActorRef{UserID: adminID, Role: enums.ActorRoleAdmin}
		return s.events.Emit(ctx, tx, releasedEvent(rec, enums.HoldReleaseAdmin, at, actor))
	})
	return classifyWriteErr(err)
}

func placedEvent(rec Record, actor *outbox.ActorRef) outbox.DomainEvent {
	var blockedAt time.Time
	if rec.BlockedAt != nil {
		blockedAt = *rec.BlockedAt
	}
	return outbox.DomainEvent{
		EventType:     enums.EventHoldPlaced,
		AggregateType: enums.AggregateInventoryUnit,
		AggregateID:   rec.Key.String(),
		Actor:         actor,
		OccurredAt:    blockedAt,
		Data: payloads.HoldPlacedEvent{
			Kind:      rec.Key.Kind,
			EventDate: rec.Key.Date,
			Shift:     rec.Key.Shift,
			UnitCode:  rec.Key.Code,
			BlockedBy: rec.BlockedBy,
			HoldToken: rec.HoldToken,
			BlockedAt: blockedAt,
		},
	}
}

// classifyWriteErr keeps domain sentinels as they are and marks everything
// else as a store failure.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnitUnavailable, ErrUnitBooked, ErrHoldNotFound, ErrNotHoldOwner, ErrConfirmationLookupFailed} {
		if errors.Is(err, known) {
			return err
		}
	}
	return storeUnavailable(err)
}
