package bookings

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/config"
	"github.com/angelmondragon/eventbook-backend/pkg/db"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/migrate"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
)

type fixture struct {
	client   *db.Client
	repo     *Repository
	holdRepo *holds.Repository
	holdsSvc *holds.Service
	svc      *Service
	events   *outbox.Service
	now      time.Time
	cfg      config.HoldsConfig
	logg     *logger.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:bookings_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := db.FromGorm(conn)
	require.NoError(t, migrate.AutoMigrateModels(client))

	f := &fixture{
		client:   client,
		repo:     NewRepository(client.DB()),
		holdRepo: holds.NewRepository(client.DB()),
		events:   outbox.NewService(outbox.NewRepository(client.DB()), nil),
		now:      time.Date(2026, 1, 30, 11, 0, 0, 0, time.UTC),
		logg:     logger.New(logger.Options{ServiceName: "bookings-test", Output: io.Discard}),
		cfg: config.HoldsConfig{
			Timeout:          15 * time.Minute,
			SweepInterval:    time.Minute,
			SystemOwner:      "system",
			SweepConcurrency: 1,
		},
	}
	clock := func() time.Time { return f.now }

	f.holdsSvc, err = holds.NewService(holds.ServiceParams{
		Config: f.cfg,
		Logger: f.logg,
		Repo:   f.holdRepo,
		Lookup: f.repo,
		DB:     client,
		Events: f.events,
		Now:    clock,
	})
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Logger:   f.logg,
		Repo:     f.repo,
		HoldRepo: f.holdRepo,
		DB:       client,
		Events:   f.events,
		Now:      clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) sweep(t *testing.T) holds.TriggerResult {
	t.Helper()
	sweeper, err := holds.NewSweeper(holds.SweeperParams{
		Config: f.cfg,
		Logger: f.logg,
		Store:  f.holdRepo,
		Lookup: f.repo,
		DB:     f.client,
		Events: f.events,
		Now:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return sweeper.Trigger(context.Background())
}

func (f *fixture) hold(t *testing.T, code, customer string) {
	t.Helper()
	_, err := f.holdsSvc.PlaceHold(context.Background(), key(code), customer, "")
	require.NoError(t, err)
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func key(code string) holds.UnitKey {
	return holds.UnitKey{Kind: enums.InventoryKindStall, Date: "2026-02-14", Shift: "evening", Code: code}
}

func createInput(customer string, codes ...string) CreateInput {
	return CreateInput{
		CustomerID: customer,
		Kind:       enums.InventoryKindStall,
		Date:       "2026-02-14",
		Shift:      "evening",
		UnitCodes:  codes,
		Amount:     decimal.RequireFromString("150.00"),
	}
}

func TestCreateRequiresCustomerHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	f.hold(t, "S2", "cust-2")

	_, err := f.svc.Create(ctx, createInput("cust-1", "S1", "S2"))
	require.ErrorIs(t, err, ErrUnitNotHeld)

	_, err = f.svc.Create(ctx, createInput("cust-1", "S3"))
	require.ErrorIs(t, err, ErrUnitNotHeld)

	booking, err := f.svc.Create(ctx, createInput("cust-1", "S1", " S1 "))
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusPending, booking.Status)
	require.Len(t, booking.Units, 1)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventBookingCreated))

	loaded, err := f.svc.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", loaded.CustomerID)
	assert.True(t, loaded.Amount.Equal(decimal.RequireFromString("150")))
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), createInput("cust-1"))
	require.ErrorIs(t, err, ErrInvalidBooking)

	in := createInput("cust-1", "S1")
	in.Amount = decimal.NewFromInt(-1)
	_, err = f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidBooking)
}

func TestConfirmPromotesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	f.hold(t, "S2", "cust-1")
	booking, err := f.svc.Create(ctx, createInput("cust-1", "S1", "S2"))
	require.NoError(t, err)

	confirmedBefore, err := f.repo.IsUnitConfirmed(ctx, key("S1"))
	require.NoError(t, err)
	assert.False(t, confirmedBefore)

	ref := "pay_123"
	confirmed, err := f.svc.Confirm(ctx, booking.ID, &ref, &outbox.ActorRef{UserID: "admin-1", Role: enums.ActorRoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentRef)
	assert.Equal(t, ref, *confirmed.PaymentRef)

	for _, code := range []string{"S1", "S2"} {
		ok, err := f.repo.IsUnitConfirmed(ctx, key(code))
		require.NoError(t, err)
		assert.True(t, ok, code)
		row, err := f.holdRepo.Get(ctx, nil, key(code))
		require.NoError(t, err)
		assert.Equal(t, bookedReason, row.Reason)
		assert.True(t, row.Blocked)
		assert.True(t, row.Booked)
	}

	again, err := f.svc.Confirm(ctx, booking.ID, &ref, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusConfirmed, again.Status)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventBookingConfirmed))

	// Hours later the sweep still leaves the booked units alone.
	f.now = f.now.Add(6 * time.Hour)
	result := f.sweep(t)
	require.True(t, result.OK, result.Error)
	assert.Equal(t, 0, result.ReleasedCount)
}

func TestConfirmRetakesUnitReleasedLate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	booking, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	result := f.sweep(t)
	require.True(t, result.OK, result.Error)
	require.Equal(t, 1, result.ReleasedCount)

	_, err = f.svc.Confirm(ctx, booking.ID, nil, nil)
	require.NoError(t, err)
	row, err := f.holdRepo.Get(ctx, nil, key("S1"))
	require.NoError(t, err)
	assert.True(t, row.Blocked)
	assert.Equal(t, "cust-1", row.BlockedBy)
}

func TestConfirmFailsWhenUnitTakenByOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	booking, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	require.True(t, f.sweep(t).OK)
	f.hold(t, "S1", "cust-2")

	_, err = f.svc.Confirm(ctx, booking.ID, nil, nil)
	require.ErrorIs(t, err, ErrUnitLost)

	loaded, err := f.svc.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusPending, loaded.Status, "failed confirmation rolls back")
	assert.EqualValues(t, 0, f.countEvents(t, enums.EventBookingConfirmed))
}

func TestConfirmRejectsCancelledAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, uuid.New(), nil, nil)
	require.ErrorIs(t, err, ErrBookingNotFound)

	f.hold(t, "S1", "cust-1")
	booking, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Update("status", enums.BookingStatusCancelled).Error)

	_, err = f.svc.Confirm(ctx, booking.ID, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}

func (f *fixture) confirmedBookings(t *testing.T, code string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().
		Table("booking_units AS bu").
		Joins("JOIN bookings AS b ON b.id = bu.booking_id").
		Where("b.status = ? AND bu.unit_code = ?", enums.BookingStatusConfirmed, code).
		Count(&n).Error)
	return n
}

func TestCreateRejectsUnitsAlreadyInBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	f.hold(t, "S2", "cust-1")

	first, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, createInput("cust-1", "S1", "S2"))
	require.ErrorIs(t, err, ErrUnitInBooking)

	_, err = f.svc.Confirm(ctx, first.ID, nil, nil)
	require.NoError(t, err)

	// The promoted hold still belongs to the customer, the booking does not.
	_, err = f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.ErrorIs(t, err, ErrUnitInBooking)

	_, err = f.svc.Create(ctx, createInput("cust-1", "S2"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.confirmedBookings(t, "S1"))
	assert.EqualValues(t, 2, f.countEvents(t, enums.EventBookingCreated))
}

func TestCreateSupersedesPendingBookingOfLostHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	stale, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	require.True(t, f.sweep(t).OK)
	f.hold(t, "S1", "cust-2")

	fresh, err := f.svc.Create(ctx, createInput("cust-2", "S1"))
	require.NoError(t, err)

	loaded, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusCancelled, loaded.Status)
	require.Len(t, loaded.Units, 1)
	assert.False(t, loaded.Units[0].Active)

	_, err = f.svc.Confirm(ctx, stale.ID, nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Confirm(ctx, fresh.ID, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.confirmedBookings(t, "S1"))
}

func TestActiveBookingUnitIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	_, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	id := uuid.New()
	dup := models.Booking{
		ID:         id,
		Kind:       enums.InventoryKindStall,
		EventDate:  "2026-02-14",
		Shift:      "evening",
		CustomerID: "cust-9",
		Status:     enums.BookingStatusPending,
		Amount:     decimal.RequireFromString("10.00"),
		Units: []models.BookingUnit{{
			BookingID: id,
			UnitCode:  "S1",
			Kind:      enums.InventoryKindStall,
			EventDate: "2026-02-14",
			Shift:     "evening",
			Active:    true,
		}},
	}
	err = f.client.DB().Create(&dup).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""), err)
}

func TestConfirmRejectsUnitConfirmedElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, "S1", "cust-1")
	earlier, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	// A confirmed booking whose unit row was deactivated out of band.
	conn := f.client.DB()
	require.NoError(t, conn.Model(&models.BookingUnit{}).Where("booking_id = ?", earlier.ID).Update("active", false).Error)
	require.NoError(t, conn.Model(&models.Booking{}).Where("id = ?", earlier.ID).Update("status", enums.BookingStatusConfirmed).Error)

	later, err := f.svc.Create(ctx, createInput("cust-1", "S1"))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, later.ID, nil, nil)
	require.ErrorIs(t, err, ErrUnitLost)
	assert.EqualValues(t, 1, f.confirmedBookings(t, "S1"))
}
