//go:build !linux

package cli

import "flag"

// Only Linux allows selecting among several controllers.
func (c *Config) registerFlagsOsSpecific(_ *flag.FlagSet) {}
