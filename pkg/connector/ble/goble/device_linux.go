package goble

import (
	"strings"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"

	"github.com/bluetoothscan/btscan/pkg/connector/ble"
)

const bleTimeout = 20 * time.Second

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning, so scan responses (names) are reported
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all advertisements
}

func IsAdapterError(err error) bool {
	if err == nil {
		return false
	}
	// The underlying BLE package calls HCIDEVDOWN on the BLE device, which requires CAP_NET_ADMIN.
	if strings.Contains(err.Error(), "operation not permitted") {
		return true
	}
	return strings.Contains(err.Error(), "no devices available") || strings.Contains(err.Error(), "can't init hci")
}

func AdapterErrorHelpMessage(err error) string {
	if strings.Contains(err.Error(), "operation not permitted") {
		return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
			"Try again after granting this application CAP_NET_ADMIN:\n\n" +
			"\tsudo setcap 'cap_net_admin=eip' \"$(which btscan)\""
	}
	return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
		"Make sure a Bluetooth controller is present and powered on (e.g. hciconfig hci0 up)."
}

func newDevice(id string) (goble.Device, error) {
	index, err := ble.ParseAdapterID(id)
	if err != nil {
		return nil, err
	}
	device, err := linux.NewDevice(
		goble.OptDeviceID(index),
		goble.OptListenerTimeout(bleTimeout),
		goble.OptDialerTimeout(bleTimeout),
		goble.OptScanParams(scanParams),
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}
