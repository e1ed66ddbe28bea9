// Package device defines the records that describe observed Bluetooth devices and the
// normalization applied to everything a platform adapter reports.
package device

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// BondState enumerates the pairing states a platform reports for a device.
type BondState int

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

var bondStateNames = map[BondState]string{
	BondNone:    "NONE",
	BondBonding: "BONDING",
	BondBonded:  "BONDED",
}

func (b BondState) String() string {
	if name, ok := bondStateNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BondState(%d)", int(b))
}

// ParseBondState converts a case-insensitive bond state name into a BondState.
func ParseBondState(name string) (BondState, error) {
	canonical := strings.ToUpper(strings.TrimSpace(name))
	for state, stateName := range bondStateNames {
		if stateName == canonical {
			return state, nil
		}
	}
	return BondNone, fmt.Errorf("unknown bond state '%s'", name)
}

func (b BondState) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *BondState) UnmarshalText(text []byte) error {
	state, err := ParseBondState(string(text))
	if err != nil {
		return err
	}
	*b = state
	return nil
}

// RawDevice is what a platform adapter reports about a device, before normalization.
//
// Addresses may use any case and service IDs any UUID notation the Bluetooth specification
// permits (16-bit, 32-bit or 128-bit, with or without dashes).
type RawDevice struct {
	Address     string
	Name        string
	BondState   BondState
	DeviceClass *uint32
	ServiceIDs  []string
}

// Record is one observed Bluetooth device. Address is the unique key.
type Record struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	BondState   BondState `json:"bond_state"`
	DeviceClass *uint32   `json:"device_class,omitempty"`
	// ServiceIDs is a sorted set of canonical 128-bit service UUIDs.
	ServiceIDs []string `json:"service_ids,omitempty"`
	// SignalStrength is only present while the record was observed during a scan.
	SignalStrength *int16    `json:"rssi,omitempty"`
	LastSeen       time.Time `json:"last_seen,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.DeviceClass != nil {
		class := *r.DeviceClass
		c.DeviceClass = &class
	}
	if r.SignalStrength != nil {
		rssi := *r.SignalStrength
		c.SignalStrength = &rssi
	}
	if r.ServiceIDs != nil {
		c.ServiceIDs = slices.Clone(r.ServiceIDs)
	}
	return c
}

// Merge folds the identifying details of other into r. A non-empty name replaces the current
// name, a present device class replaces the current class, and service IDs are unioned. Missing
// values in other never erase what r already knows.
//
// Bond state and signal strength are not touched; their update rules depend on where other
// came from.
func (r *Record) Merge(other Record) {
	if other.Name != "" {
		r.Name = other.Name
	}
	if other.DeviceClass != nil {
		class := *other.DeviceClass
		r.DeviceClass = &class
	}
	if len(other.ServiceIDs) > 0 {
		r.ServiceIDs = unionSorted(r.ServiceIDs, other.ServiceIDs)
	}
	if other.LastSeen.After(r.LastSeen) {
		r.LastSeen = other.LastSeen
	}
}

// HasService reports whether r advertises the service with the given UUID, in any notation.
func (r Record) HasService(id string) bool {
	canonical, ok := CanonicalServiceID(id)
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(r.ServiceIDs, canonical)
	return found
}

func unionSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
