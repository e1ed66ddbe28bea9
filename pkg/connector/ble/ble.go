// Package ble defines the boundary between device discovery and the host's Bluetooth stack.
//
// Platform implementations live in subpackages (see goble) and report what they observe as
// [device.RawDevice] values; normalization into records happens on the other side of the
// boundary.
package ble

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrAdapterInvalidID   = errors.New("the bluetooth adapter ID is invalid")
	ErrAdapterUnsupported = errors.New("bluetooth adapters are not supported on this platform")
	ErrAdapterClosed      = errors.New("the bluetooth adapter has been closed")
)

// ParseAdapterID converts an adapter identifier such as "hci1" or "1" into a controller index.
// The empty string selects the first available controller (index 0).
func ParseAdapterID(id string) (int, error) {
	id = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "hci")
	if id == "" {
		return 0, nil
	}
	index, err := strconv.Atoi(id)
	if err != nil || index < 0 {
		return 0, ErrAdapterInvalidID
	}
	return index, nil
}

// IsScanEnd returns true if err only reports that a scan's context ended, which is the normal
// way for a scan to finish.
func IsScanEnd(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
