package device

// Major device classes, bits 8-12 of the Class of Device field.
var majorClassNames = map[uint32]string{
	0x00: "Miscellaneous",
	0x01: "Computer",
	0x02: "Phone",
	0x03: "Network Access Point",
	0x04: "Audio/Video",
	0x05: "Peripheral",
	0x06: "Imaging",
	0x07: "Wearable",
	0x08: "Toy",
	0x09: "Health",
	0x1f: "Uncategorized",
}

// MajorClass returns a human-readable major device class, or "" if the class is unknown.
func (r Record) MajorClass() string {
	if r.DeviceClass == nil {
		return ""
	}
	return majorClassNames[(*r.DeviceClass>>8)&0x1f]
}
