package ble

import (
	"context"

	"github.com/bluetoothscan/btscan/pkg/device"
)

// Advertisement is a single discovery event: a device seen during a scan and the signal strength
// it was received with.
type Advertisement struct {
	Device device.RawDevice
	RSSI   int16
}

//go:generate mockgen -destination ../../../mocks/ble_adapter.go -package mocks -mock_names Adapter=BLEAdapter github.com/bluetoothscan/btscan/pkg/connector/ble Adapter

// Adapter is the platform side of device discovery.
type Adapter interface {
	// BondedDevices enumerates devices paired with this host. It does not scan.
	BondedDevices(ctx context.Context) ([]device.RawDevice, error)

	// Scan reports advertisements to handler until ctx is done or the platform fails. Handler
	// may be invoked from a goroutine owned by the platform; Scan's caller is responsible for
	// serializing its effects. When ctx ends the scan, Scan returns ctx.Err().
	Scan(ctx context.Context, handler func(Advertisement)) error

	// ResolveServices connects to the device at address and returns the IDs of the services it
	// exposes, which may be more than it advertises.
	ResolveServices(ctx context.Context, address string) ([]string, error)

	// Close releases the platform device. Repeated calls must be idempotent.
	Close() error
}
