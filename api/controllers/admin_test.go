package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/eventbook-backend/internal/bookings"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventbook-backend/pkg/errors"
)

type stubSweeper struct {
	result holds.TriggerResult
	calls  int
}

func (s *stubSweeper) Trigger(context.Context) holds.TriggerResult {
	s.calls++
	return s.result
}

func TestAdminHoldsSweepSuccess(t *testing.T) {
	sweeper := &stubSweeper{result: holds.TriggerResult{OK: true, ReleasedCount: 3}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/holds/sweep", nil)
	rec := serve(AdminHoldsSweep(sweeper, nil), withCaller(req, "admin-1", "admin", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var data holds.TriggerResult
	decodeData(t, rec, &data)
	if !data.OK || data.ReleasedCount != 3 || data.Error != "" {
		t.Fatalf("unexpected result %+v", data)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep got %d", sweeper.calls)
	}
}

func TestAdminHoldsSweepFailure(t *testing.T) {
	sweeper := &stubSweeper{result: holds.TriggerResult{OK: false, Error: "inventory store unavailable"}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/holds/sweep", nil)
	rec := serve(AdminHoldsSweep(sweeper, nil), withCaller(req, "admin-1", "admin", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	var data holds.TriggerResult
	decodeData(t, rec, &data)
	if data.OK || data.ReleasedCount != 0 || data.Error == "" {
		t.Fatalf("unexpected result %+v", data)
	}
}

func TestAdminHoldsBlock(t *testing.T) {
	at := time.Now().UTC()
	svc := &stubHoldsService{placed: holds.Record{Key: seatKey("D4"), Blocked: true, BlockedBy: "system", BlockedAt: &at, Reason: "stage", HoldToken: "tok"}}
	body := `{"kind":"seat","date":"2026-01-30","shift":"morning","code":"D4","reason":"stage"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/holds/block", strings.NewReader(body))
	rec := serve(AdminHoldsBlock(svc, testView, nil), withCaller(req, "admin-1", "admin", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotOwner != "admin-1" || svc.gotReason != "stage" {
		t.Fatalf("unexpected call owner=%s reason=%s", svc.gotOwner, svc.gotReason)
	}
	var data holdResponse
	decodeData(t, rec, &data)
	if !data.System || data.ExpiresAt != nil {
		t.Fatalf("expected permanent system block got %+v", data)
	}
}

func TestAdminHoldsBlockHeldUnit(t *testing.T) {
	svc := &stubHoldsService{err: holds.ErrUnitUnavailable}
	body := `{"kind":"seat","date":"2026-01-30","shift":"morning","code":"D4"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/holds/block", strings.NewReader(body))
	rec := serve(AdminHoldsBlock(svc, testView, nil), withCaller(req, "admin-1", "admin", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestAdminHoldsUnblock(t *testing.T) {
	params := map[string]string{"kind": "seat", "date": "2026-01-30", "shift": "morning", "code": "D4"}
	svc := &stubHoldsService{}
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/v1/holds/block/seat/2026-01-30/morning/D4", nil)
	rec := serve(AdminHoldsUnblock(svc, nil), withCaller(req, "admin-1", "admin", params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.gotKey != seatKey("D4") || svc.gotOwner != "admin-1" {
		t.Fatalf("unexpected call %+v %s", svc.gotKey, svc.gotOwner)
	}
}

func TestAdminBookingsConfirm(t *testing.T) {
	booking := pendingBooking("cust-1")
	booking.Status = enums.BookingStatusConfirmed
	svc := &stubBookingsService{booking: booking}
	params := map[string]string{"bookingId": booking.ID.String()}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/bookings/"+booking.ID.String()+"/confirm", strings.NewReader(`{"paymentRef":"pay_123"}`))
	rec := serve(AdminBookingsConfirm(svc, nil), withCaller(req, "admin-1", "admin", params))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotID != booking.ID {
		t.Fatalf("unexpected id %s", svc.gotID)
	}
	if svc.gotPaymentRef == nil || *svc.gotPaymentRef != "pay_123" {
		t.Fatalf("expected payment ref to be forwarded")
	}
	if svc.gotActor == nil || svc.gotActor.UserID != "admin-1" || svc.gotActor.Role != enums.ActorRoleAdmin {
		t.Fatalf("unexpected actor %+v", svc.gotActor)
	}
}

func TestAdminBookingsConfirmWithoutBody(t *testing.T) {
	booking := pendingBooking("cust-1")
	svc := &stubBookingsService{booking: booking}
	params := map[string]string{"bookingId": booking.ID.String()}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/bookings/"+booking.ID.String()+"/confirm", nil)
	rec := serve(AdminBookingsConfirm(svc, nil), withCaller(req, "admin-1", "admin", params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.gotPaymentRef != nil {
		t.Fatalf("expected nil payment ref")
	}
}

func TestAdminBookingsConfirmErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"lost unit", fmt.Errorf("unit S1: %w", bookings.ErrUnitLost), http.StatusConflict},
		{"cancelled", bookings.ErrInvalidState, http.StatusUnprocessableEntity},
		{"missing", bookings.ErrBookingNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			booking := pendingBooking("cust-1")
			svc := &stubBookingsService{err: tc.err}
			params := map[string]string{"bookingId": booking.ID.String()}
			req := httptest.NewRequest(http.MethodPost, "/confirm", nil)
			rec := serve(AdminBookingsConfirm(svc, nil), withCaller(req, "admin-1", "admin", params))
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code pkgerrors.Code
	}{
		{fmt.Errorf("%w: bad date", holds.ErrInvalidInput), pkgerrors.CodeValidation},
		{bookings.ErrInvalidBooking, pkgerrors.CodeValidation},
		{holds.ErrUnitBooked, pkgerrors.CodeConflict},
		{holds.ErrNotHoldOwner, pkgerrors.CodeForbidden},
		{fmt.Errorf("%w: %w", holds.ErrConfirmationLookupFailed, errors.New("timeout")), pkgerrors.CodeDependency},
		{fmt.Errorf("%w: %w", holds.ErrStoreUnavailable, errors.New("conn reset")), pkgerrors.CodeDependency},
		{errors.New("surprise"), pkgerrors.CodeInternal},
		{pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"), pkgerrors.CodeRateLimit},
	}
	for _, tc := range cases {
		got := pkgerrors.As(domainError(tc.err))
		if got == nil || got.Code() != tc.code {
			t.Fatalf("%v: expected %s got %+v", tc.err, tc.code, got)
		}
	}
	if domainError(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
