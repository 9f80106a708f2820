package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventbook-backend/api/middleware"
	"github.com/angelmondragon/eventbook-backend/api/responses"
	"github.com/angelmondragon/eventbook-backend/api/validators"
	"github.com/angelmondragon/eventbook-backend/internal/bookings"
	"github.com/angelmondragon/eventbook-backend/pkg/db/models"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventbook-backend/pkg/errors"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
)

type BookingsService interface {
	Create(ctx context.Context, input bookings.CreateInput) (*models.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Confirm(ctx context.Context, id uuid.UUID, paymentRef *string, actor *outbox.ActorRef) (*models.Booking, error)
}

type createBookingRequest struct {
	Kind      string          `json:"kind" validate:"required,oneof=seat stall"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Shift     string          `json:"shift" validate:"required,max=32"`
	UnitCodes []string        `json:"unitCodes" validate:"required,min=1,max=20,dive,required,max=32"`
	Amount    decimal.Decimal `json:"amount"`
}

type bookingResponse struct {
	ID          uuid.UUID           `json:"id"`
	Kind        enums.InventoryKind `json:"kind"`
	Date        string              `json:"date"`
	Shift       string              `json:"shift"`
	CustomerID  string              `json:"customerId"`
	Status      enums.BookingStatus `json:"status"`
	Amount      decimal.Decimal     `json:"amount"`
	UnitCodes   []string            `json:"unitCodes"`
	PaymentRef  *string             `json:"paymentRef,omitempty"`
	ConfirmedAt *time.Time          `json:"confirmedAt,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func newBookingResponse(b *models.Booking) bookingResponse {
	codes := make([]string, 0, len(b.Units))
	for _, u := range b.Units {
		codes = append(codes, u.UnitCode)
	}
	sort.Strings(codes)
	return bookingResponse{
		ID:          b.ID,
		Kind:        b.Kind,
		Date:        b.EventDate,
		Shift:       b.Shift,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
		Amount:      b.Amount,
		UnitCodes:   codes,
		PaymentRef:  b.PaymentRef,
		ConfirmedAt: b.ConfirmedAt,
		CreatedAt:   b.CreatedAt,
	}
}

func BookingsCreate(svc BookingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
			return
		}

		var body createBookingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Create(r.Context(), bookings.CreateInput{
			CustomerID: userID,
			Kind:       enums.InventoryKind(body.Kind),
			Date:       body.Date,
			Shift:      validators.SanitizeString(body.Shift, 32),
			UnitCodes:  body.UnitCodes,
			Amount:     body.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newBookingResponse(booking))
	}
}

// BookingsGet returns a booking to its customer or to an admin.
func BookingsGet(svc BookingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := bookingIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}

		caller := middleware.UserIDFromContext(r.Context())
		if booking.CustomerID != caller && middleware.RoleFromContext(r.Context()) != string(enums.ActorRoleAdmin) {
			// other customers see the same answer as a missing booking
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found"))
			return
		}
		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

func bookingIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return id, nil
}
