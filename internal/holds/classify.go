package holds

import "time"

// Decision is the outcome of evaluating one record during a sweep.
type Decision string

const (
	DecisionRelease          Decision = "release"
	DecisionSkipSystem       Decision = "skip_system"
	DecisionSkipConfirmed    Decision = "skip_confirmed"
	DecisionSkipActive       Decision = "skip_active"
	DecisionSkipUnblocked    Decision = "skip_unblocked"
	DecisionSkipLookupFailed Decision = "skip_lookup_failed"
	DecisionSkipPrecondition Decision = "skip_precondition"
	DecisionReleaseFailed    Decision = "release_failed"
	DecisionInvalid          Decision = "invalid"
)

// Classify applies the checks that need no I/O. DecisionRelease here only
// means the record is a candidate; the confirmation lookup and the
// conditional write still decide whether it is released.
func Classify(rec Record, now time.Time, timeout time.Duration, systemOwner string) Decision {
	if !rec.Blocked {
		return DecisionSkipUnblocked
	}
	if rec.BlockedBy == systemOwner {
		return DecisionSkipSystem
	}
	if rec.Booked {
		return DecisionSkipConfirmed
	}
	if rec.BlockedAt == nil {
		return DecisionInvalid
	}
	if now.Sub(*rec.BlockedAt) < timeout {
		return DecisionSkipActive
	}
	return DecisionRelease
}
