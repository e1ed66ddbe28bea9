package goble

import (
	"errors"

	goble "github.com/go-ble/ble"

	"github.com/bluetoothscan/btscan/pkg/connector/ble"
)

func IsAdapterError(err error) bool {
	return err != nil && errors.Is(err, ble.ErrAdapterUnsupported)
}

func AdapterErrorHelpMessage(err error) string {
	return err.Error() + "\nBluetooth scanning is supported on Linux and macOS."
}

func newDevice(_ string) (goble.Device, error) {
	return nil, ble.ErrAdapterUnsupported
}
