package bookings

import "errors"

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrUnitNotHeld     = errors.New("unit is not held by the customer")
	ErrUnitInBooking   = errors.New("unit already belongs to another booking")
	ErrUnitLost        = errors.New("unit was taken before the booking was confirmed")
	ErrInvalidState    = errors.New("booking cannot be confirmed from its current status")
	ErrInvalidBooking  = errors.New("invalid booking")
)
