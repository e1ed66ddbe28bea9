package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/bluetoothscan/btscan/internal/log"
	"github.com/bluetoothscan/btscan/pkg/bondstore"
	"github.com/bluetoothscan/btscan/pkg/connector/ble"
	"github.com/bluetoothscan/btscan/pkg/connector/ble/goble"
)

var (
	btAdapter = flag.String("btAdapter", "", "Optional ID of Bluetooth adapter to use (Linux only)")
	testScan  = flag.Bool("testScan", false, "Also test BLE scan")
)

func main() {
	flag.Parse()
	log.SetLevel(log.LevelDebug)

	if *btAdapter != "" {
		log.Info("Trying to use BLE adapter: %s", *btAdapter)
	} else {
		log.Info("Using first available BLE device")
	}
	adapter, err := goble.NewAdapter(*btAdapter, bondstore.New(0), true)
	if err != nil {
		if goble.IsAdapterError(err) {
			log.Error("%s", goble.AdapterErrorHelpMessage(err))
		} else {
			log.Error("Failed to initialize BLE device: %v", err)
		}
		return
	}
	defer adapter.Close()

	log.Info("BLE adapter initialized")

	if !*testScan {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneChan := make(chan struct{})
	go func() {
		err := adapter.Scan(ctx, func(a ble.Advertisement) {
			log.Info("%s rssi=%d name='%s' services=%v", a.Device.Address, a.RSSI, a.Device.Name, a.Device.ServiceIDs)
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Scan failed: %v", err)
		}
		close(doneChan)
	}()
	log.Info("Scanning for BLE devices until interrupted")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	log.Info("Stopping scan")
	cancel()
	<-doneChan
}
