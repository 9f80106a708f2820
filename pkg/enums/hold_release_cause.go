package enums

// HoldReleaseCause records why a hold stopped blocking its unit.
type HoldReleaseCause string

const (
	HoldReleaseExpired   HoldReleaseCause = "expired"
	HoldReleaseCancelled HoldReleaseCause = "cancelled"
	HoldReleaseAdmin     HoldReleaseCause = "admin"
)

func (c HoldReleaseCause) IsValid() bool {
	switch c {
	case HoldReleaseExpired, HoldReleaseCancelled, HoldReleaseAdmin:
		return true
	}
	return false
}
