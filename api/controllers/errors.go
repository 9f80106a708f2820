package controllers

import (
	"errors"

	"github.com/angelmondragon/eventbook-backend/internal/bookings"
	"github.com/angelmondragon/eventbook-backend/internal/holds"
	pkgerrors "github.com/angelmondragon/eventbook-backend/pkg/errors"
)

type errorMapping struct {
	target  error
	code    pkgerrors.Code
	message string
}

// Order matters: the first match wins, so input errors precede store errors.
var domainErrors = []errorMapping{
	{target: holds.ErrInvalidInput, code: pkgerrors.CodeValidation, message: "invalid unit"},
	{target: bookings.ErrInvalidBooking, code: pkgerrors.CodeValidation, message: "invalid booking"},
	{target: holds.ErrHoldNotFound, code: pkgerrors.CodeNotFound, message: "hold not found"},
	{target: bookings.ErrBookingNotFound, code: pkgerrors.CodeNotFound, message: "booking not found"},
	{target: holds.ErrNotHoldOwner, code: pkgerrors.CodeForbidden, message: "hold belongs to another customer"},
	{target: holds.ErrUnitUnavailable, code: pkgerrors.CodeConflict, message: "unit is held by someone else"},
	{target: holds.ErrUnitBooked, code: pkgerrors.CodeConflict, message: "unit is already booked"},
	{target: holds.ErrPreconditionFailed, code: pkgerrors.CodeConflict, message: "unit changed concurrently"},
	{target: bookings.ErrUnitNotHeld, code: pkgerrors.CodeConflict, message: "unit is not held by the customer"},
	{target: bookings.ErrUnitInBooking, code: pkgerrors.CodeConflict, message: "unit already belongs to another booking"},
	{target: bookings.ErrUnitLost, code: pkgerrors.CodeConflict, message: "unit was taken before confirmation"},
	{target: bookings.ErrInvalidState, code: pkgerrors.CodeStateConflict, message: "booking cannot be confirmed"},
	{target: holds.ErrConfirmationLookupFailed, code: pkgerrors.CodeDependency, message: "booking lookup unavailable"},
	{target: holds.ErrStoreUnavailable, code: pkgerrors.CodeDependency, message: "inventory store unavailable"},
	{target: holds.ErrInvalidRecord, code: pkgerrors.CodeDependency, message: "inventory store unavailable"},
}

// domainError converts service sentinels into API error codes. Errors that
// already carry a code pass through untouched.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return pkgerrors.Wrap(m.code, err, m.message)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
}
