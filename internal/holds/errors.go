package holds

import "errors"

var (
	// ErrStoreUnavailable marks any failure to read or write the inventory store.
	ErrStoreUnavailable = errors.New("inventory store unavailable")
	// ErrPreconditionFailed means the conditional write matched no row; someone else resolved it.
	ErrPreconditionFailed = errors.New("hold precondition failed")
	// ErrConfirmationLookupFailed blocks a release; the sweeper fails closed on it.
	ErrConfirmationLookupFailed = errors.New("booking confirmation lookup failed")
	// ErrInvalidRecord is returned for stored rows that do not pass validation.
	ErrInvalidRecord = errors.New("invalid hold record")

	// ErrInvalidInput wraps malformed keys, buckets and owners supplied by callers.
	ErrInvalidInput = errors.New("invalid hold input")

	ErrUnitUnavailable = errors.New("unit is held by someone else")
	ErrUnitBooked      = errors.New("unit is already booked")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrNotHoldOwner    = errors.New("hold belongs to another owner")
)
