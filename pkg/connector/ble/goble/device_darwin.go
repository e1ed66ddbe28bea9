package goble

import (
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/connector/ble"
)

func IsAdapterError(_ error) bool {
	// TODO: Detect CoreBluetooth authorization failures once go-ble surfaces them as typed errors.
	return false
}

func AdapterErrorHelpMessage(err error) string {
	return err.Error()
}

func newDevice(id string) (goble.Device, error) {
	if id != "" {
		log.Warning("Darwin does not support specifying a Bluetooth adapter ID")
		return nil, ble.ErrAdapterInvalidID
	}
	device, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return device, nil
}
