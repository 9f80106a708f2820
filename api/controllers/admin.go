package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/eventbook-backend/api/middleware"
	"github.com/angelmondragon/eventbook-backend/api/responses"
	"github.com/angelmondragon/eventbook-backend/api/validators"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
	"github.com/angelmondragon/eventbook-backend/pkg/outbox"
)

// SweepTrigger runs one sweep on demand.
type SweepTrigger interface {
	Trigger(ctx context.Context) holds.TriggerResult
}

// AdminHoldsSweep runs the expiry sweep immediately. The body always carries
// the trigger result; a failed sweep answers 503 so callers can retry.
func AdminHoldsSweep(sweeper SweepTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "event", "holds.sweep.manual")
		}

		result := sweeper.Trigger(ctx)
		if !result.OK {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", result.Error), "holds.sweep.manual_failed")
			}
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, result)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "released_count", result.ReleasedCount), "holds.sweep.manual_completed")
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminHoldsBlock(svc HoldsService, view HoldView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body placeHoldRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adminID := middleware.UserIDFromContext(r.Context())
		rec, err := svc.BlockUnit(r.Context(), body.key(), validators.SanitizeString(body.Reason, 120), adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view.render(rec, adminID))
	}
}

func AdminHoldsUnblock(svc HoldsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID := middleware.UserIDFromContext(r.Context())
		if err := svc.UnblockUnit(r.Context(), unitKeyFromPath(r), adminID); err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"released": true})
	}
}

type confirmBookingRequest struct {
	PaymentRef string `json:"paymentRef" validate:"omitempty,max=128"`
}

func AdminBookingsConfirm(svc BookingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := bookingIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body confirmBookingRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var paymentRef *string
		if ref := validators.SanitizeString(body.PaymentRef, 128); ref != "" {
			paymentRef = &ref
		}
		actor := &outbox.ActorRef{UserID: middleware.UserIDFromContext(r.Context()), Role: enums.ActorRoleAdmin}

		booking, err := svc.Confirm(r.Context(), id, paymentRef, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}
