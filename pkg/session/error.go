package session

import "fmt"

// UnknownDeviceError is returned by operations that require a device the session has not seen.
type UnknownDeviceError struct {
	Address string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("session: unknown device %s", e.Address)
}
