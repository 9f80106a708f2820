package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/eventbook-backend/api/middleware"
	"github.com/angelmondragon/eventbook-backend/api/responses"
	"github.com/angelmondragon/eventbook-backend/api/validators"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	"github.com/angelmondragon/eventbook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventbook-backend/pkg/errors"
	"github.com/angelmondragon/eventbook-backend/pkg/logger"
)

// HoldsService is the subset of holds.Service used by the HTTP layer.
type HoldsService interface {
	ListBucket(ctx context.Context, bucket holds.Bucket) ([]holds.Record, error)
	PlaceHold(ctx context.Context, key holds.UnitKey, owner, reason string) (holds.Record, error)
	CancelHold(ctx context.Context, key holds.UnitKey, owner string) error
	BlockUnit(ctx context.Context, key holds.UnitKey, reason, adminID string) (holds.Record, error)
	UnblockUnit(ctx context.Context, key holds.UnitKey, adminID string) error
}

type placeHoldRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=seat stall"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Shift  string `json:"shift" validate:"required,max=32"`
	Code   string `json:"code" validate:"required,max=32"`
	Reason string `json:"reason" validate:"omitempty,max=120"`
}

func (p placeHoldRequest) key() holds.UnitKey {
	return holds.UnitKey{
		Kind:  enums.InventoryKind(p.Kind),
		Date:  p.Date,
		Shift: validators.SanitizeString(p.Shift, 32),
		Code:  validators.SanitizeString(p.Code, 32),
	}
}

type holdResponse struct {
	Kind      enums.InventoryKind `json:"kind"`
	Date      string              `json:"date"`
	Shift     string              `json:"shift"`
	Code      string              `json:"code"`
	Bucket    string              `json:"bucket"`
	Blocked   bool                `json:"blocked"`
	System    bool                `json:"system"`
	Mine      bool                `json:"mine"`
	Reason    string              `json:"reason,omitempty"`
	BlockedAt *time.Time          `json:"blockedAt,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
}

// HoldView renders records for one caller. Other customers' identities and
// the free text they attached to their holds are never exposed.
type HoldView struct {
	BucketPrefix string
	SystemOwner  string
	Timeout      time.Duration
}

func (v HoldView) render(rec holds.Record, caller string) holdResponse {
	resp := holdResponse{
		Kind:      rec.Key.Kind,
		Date:      rec.Key.Date,
		Shift:     rec.Key.Shift,
		Code:      rec.Key.Code,
		Bucket:    rec.Key.Bucket().Name(v.BucketPrefix),
		Blocked:   rec.Blocked,
		BlockedAt: rec.BlockedAt,
	}
	if !rec.Blocked {
		return resp
	}
	resp.System = rec.BlockedBy == v.SystemOwner
	resp.Mine = caller != "" && rec.BlockedBy == caller
	if resp.Mine || resp.System {
		resp.Reason = rec.Reason
	}
	if !resp.System && rec.BlockedAt != nil && v.Timeout > 0 {
		expires := rec.BlockedAt.Add(v.Timeout)
		resp.ExpiresAt = &expires
	}
	return resp
}

func HoldsList(svc HoldsService, view HoldView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := validators.RequireQueryString(r, "kind", 16)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date, err := validators.RequireQueryString(r, "date", 10)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shift, err := validators.RequireQueryString(r, "shift", 32)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket := holds.Bucket{Kind: enums.InventoryKind(kind), Date: date, Shift: shift}
		records, err := svc.ListBucket(r.Context(), bucket)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}

		caller := middleware.UserIDFromContext(r.Context())
		items := make([]holdResponse, 0, len(records))
		for _, rec := range records {
			items = append(items, view.render(rec, caller))
		}
		responses.WriteSuccess(w, map[string]any{
			"bucket": bucket.Name(view.BucketPrefix),
			"units":  items,
		})
	}
}

func HoldsPlace(svc HoldsService, view HoldView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
			return
		}

		var body placeHoldRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rec, err := svc.PlaceHold(r.Context(), body.key(), userID, validators.SanitizeString(body.Reason, 120))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view.render(rec, userID))
	}
}

func HoldsCancel(svc HoldsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
			return
		}

		if err := svc.CancelHold(r.Context(), unitKeyFromPath(r), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, domainError(err))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"released": true})
	}
}

func unitKeyFromPath(r *http.Request) holds.UnitKey {
	return holds.UnitKey{
		Kind:  enums.InventoryKind(chi.URLParam(r, "kind")),
		Date:  chi.URLParam(r, "date"),
		Shift: chi.URLParam(r, "shift"),
		Code:  chi.URLParam(r, "code"),
	}
}
