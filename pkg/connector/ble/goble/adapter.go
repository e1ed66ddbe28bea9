// Package goble implements the ble.Adapter boundary on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/bondstore"
	"github.com/bluetoothscan/btscan/pkg/connector/ble"
	"github.com/bluetoothscan/btscan/pkg/device"
)

// NewAdapter opens the Bluetooth controller identified by id ("" for the default controller).
//
// Bonded devices are read from bonds, which may be nil if the caller doesn't track bonds. When
// allowDuplicates is set, every advertisement is reported instead of only the first one per
// device, which keeps signal strengths current during long scans.
func NewAdapter(id string, bonds *bondstore.Store, allowDuplicates bool) (ble.Adapter, error) {
	log.Debug("Creating new BLE adapter")
	dev, err := newDevice(id)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	return &adapter{
		device:          dev,
		bonds:           bonds,
		allowDuplicates: allowDuplicates,
	}, nil
}

type adapter struct {
	device          goble.Device
	bonds           *bondstore.Store
	allowDuplicates bool
	mu              sync.Mutex
}

func (s *adapter) current() (goble.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil, ble.ErrAdapterClosed
	}
	return s.device, nil
}

func (s *adapter) BondedDevices(ctx context.Context) ([]device.RawDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.current(); err != nil {
		return nil, err
	}
	if s.bonds == nil {
		return nil, nil
	}
	return s.bonds.BondedDevices(), nil
}

func (s *adapter) Scan(ctx context.Context, handler func(ble.Advertisement)) error {
	dev, err := s.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The platform may deliver a few advertisements after the context ends; those are forwarded
	// too.
	fn := func(a goble.Advertisement) {
		handler(advertisementToDevice(a, s.bonds))
	}

	log.Debug("Scanning (duplicates=%v)...", s.allowDuplicates)
	err = dev.Scan(ctx, s.allowDuplicates, fn)
	if ctx.Err() != nil {
		// The MacOS implementation of device.Scan() always returns an error once the context is
		// canceled, so the context's error takes precedence.
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("ble: scan failed: %w", err)
	}
	return nil
}

func (s *adapter) ResolveServices(ctx context.Context, address string) ([]string, error) {
	dev, err := s.current()
	if err != nil {
		return nil, err
	}
	return resolveServices(ctx, dev, address)
}

func (s *adapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}

	dev := s.device
	s.device = nil
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("ble: failed to stop device: %w", err)
	}
	log.Debug("Closed BLE adapter")
	return nil
}

func advertisementToDevice(a goble.Advertisement, bonds *bondstore.Store) ble.Advertisement {
	address := a.Addr().String()
	raw := device.RawDevice{
		Address:   address,
		Name:      a.LocalName(),
		BondState: device.BondNone,
	}
	for _, list := range [][]goble.UUID{a.Services(), a.OverflowService()} {
		for _, id := range list {
			raw.ServiceIDs = append(raw.ServiceIDs, id.String())
		}
	}
	for _, data := range a.ServiceData() {
		raw.ServiceIDs = append(raw.ServiceIDs, data.UUID.String())
	}
	if bonds != nil && bonds.Contains(address) {
		raw.BondState = device.BondBonded
	}
	return ble.Advertisement{
		Device: raw,
		RSSI:   int16(a.RSSI()),
	}
}
