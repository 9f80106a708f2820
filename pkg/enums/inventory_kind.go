package enums

import (
	"fmt"
	"strings"
)

// InventoryKind distinguishes the two kinds of bookable units.
type InventoryKind string

const (
	InventoryKindSeat  InventoryKind = "seat"
	InventoryKindStall InventoryKind = "stall"
)

var validInventoryKinds = []InventoryKind{
	InventoryKindSeat,
	InventoryKindStall,
}

// String implements fmt.Stringer.
func (k InventoryKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known InventoryKind.
func (k InventoryKind) IsValid() bool {
	for _, candidate := range validInventoryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseInventoryKind accepts case-insensitive input ("Seat", "STALL").
func ParseInventoryKind(value string) (InventoryKind, error) {
	normalized := InventoryKind(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid inventory kind %q", value)
}
