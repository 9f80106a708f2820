package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventbook-backend/api/middleware"
	"github.com/angelmondragon/eventbook-backend/internal/bookings"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
)

type stubHoldsService struct {
	records []holds.Record
	placed  holds.Record
	err     error

	gotBucket holds.Bucket
	gotKey    holds.UnitKey
	gotOwner  string
	gotReason string
}

func (s *stubHoldsService) ListBucket(_ context.Context, bucket holds.Bucket) ([]holds.Record, error) {
	s.gotBucket = bucket
	return s.records, s.err
}

func (s *stubHoldsService) PlaceHold(_ context.Context, key holds.UnitKey, owner, reason string) (holds.Record, error) {
	s.gotKey, s.gotOwner, s.gotReason = key, owner, reason
	return s.placed, s.err
}

func (s *stubHoldsService) CancelHold(_ context.Context, key holds.UnitKey, owner string) error {
	s.gotKey, s.gotOwner = key, owner
	return s.err
}

func (s *stubHoldsService) BlockUnit(_ context.Context, key holds.UnitKey, reason, adminID string) (holds.Record, error) {
	s.gotKey, s.gotOwner, s.gotReason = key, adminID, reason
	return s.placed, s.err
}

func (s *stubHoldsService) UnblockUnit(_ context.Context, key holds.UnitKey, adminID string) error {
	s.gotKey, s.gotOwner = key, adminID
	return s.err
}

type stubBookingsService struct {
	booking *models.Booking
	err     error

	gotInput      bookings.CreateInput
	gotID         uuid.UUID
	gotPaymentRef *string
	gotActor      *outbox.ActorRef
}

func (s *stubBookingsService) Create(_ context.Context, input bookings.CreateInput) (*models.Booking, error) {
	s.gotInput = input
	return s.booking, s.err
}

func (s *stubBookingsService) Get(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.gotID = id
	return s.booking, s.err
}

func (s *stubBookingsService) Confirm(_ context.Context, id uuid.UUID, paymentRef *string, actor *outbox.ActorRef) (*models.Booking, error) {
	s.gotID, s.gotPaymentRef, s.gotActor = id, paymentRef, actor
	return s.booking, s.err
}

// withCaller attaches an identity and chi URL params to a request.
func withCaller(req *http.Request, userID, role string, params map[string]string) *http.Request {
	ctx := middleware.WithIdentity(req.Context(), userID, role)
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}
