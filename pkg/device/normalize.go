package device

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Short-form service UUIDs are offsets into the Bluetooth Base UUID.
const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// macAddressLength is the length of a MAC address written as six hex pairs with separators.
const macAddressLength = 17

// CanonicalAddress returns address in the upper-case, colon-separated form used as a Record key.
// Dash-separated MAC addresses are accepted as well. Other identifiers, such as the peripheral
// UUIDs macOS reports in place of addresses, keep their dashes.
func CanonicalAddress(address string) string {
	address = strings.TrimSpace(address)
	if len(address) == macAddressLength {
		address = strings.ReplaceAll(address, "-", ":")
	}
	return strings.ToUpper(address)
}

// CanonicalServiceID expands id to a lower-case, dashed 128-bit UUID. It accepts 16-bit ("180d"),
// 32-bit ("0000180d") and 128-bit UUIDs, with or without dashes, braces or a "0x" prefix. The
// second return value is false if id cannot be parsed.
func CanonicalServiceID(id string) (string, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "0x")
	switch len(id) {
	case 4:
		id = "0000" + id + baseUUIDSuffix
	case 8:
		id = id + baseUUIDSuffix
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// Normalize converts what a platform adapter reported into a fully typed Record. It never fails:
// service IDs that cannot be parsed are dropped, and optional fields stay absent when the adapter
// did not provide them.
func Normalize(raw RawDevice) Record {
	r := Record{
		Address:   CanonicalAddress(raw.Address),
		Name:      strings.TrimSpace(raw.Name),
		BondState: raw.BondState,
	}
	if raw.DeviceClass != nil {
		class := *raw.DeviceClass
		r.DeviceClass = &class
	}
	for _, id := range raw.ServiceIDs {
		if canonical, ok := CanonicalServiceID(id); ok {
			r.ServiceIDs = append(r.ServiceIDs, canonical)
		}
	}
	if len(r.ServiceIDs) > 0 {
		slices.Sort(r.ServiceIDs)
		r.ServiceIDs = slices.Compact(r.ServiceIDs)
	}
	return r
}
