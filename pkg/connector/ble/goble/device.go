package goble

import (
	"context"
	"errors"
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/bluetoothscan/btscan/internal/log"
)

// resolveServices connects to address and lists the GATT services it exposes. Advertisements
// usually carry only a subset of a device's services.
func resolveServices(ctx context.Context, dev goble.Device, address string) ([]string, error) {
	log.Debug("Dialing %s...", address)
	client, err := dev.Dial(ctx, goble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("ble: failed to dial %s: %w", address, err)
	}
	defer func() {
		if err := closeClient(client); err != nil {
			log.Warning("ble: failed to disconnect from %s: %s", address, err)
		}
	}()

	log.Debug("Discovering services %s...", client.Addr())
	services, err := client.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enumerate device services: %w", err)
	}

	ids := make([]string, 0, len(services))
	for _, service := range services {
		ids = append(ids, service.UUID.String())
	}
	return ids, nil
}

func closeClient(client goble.Client) error {
	err1 := client.ClearSubscriptions()
	err2 := client.CancelConnection()

	return errors.Join(err1, err2)
}
