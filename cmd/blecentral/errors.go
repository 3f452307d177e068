package main

import (
	"errors"
	"fmt"

	"github.com/srgg/blecentral/central"
	"github.com/srgg/blecentral/internal/peripheral"
)

// FormatUserError renders err the way a person reading a terminal wants
// to see it: known sentinel/typed errors get a short, specific message;
// anything else falls back to err.Error().
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, central.ErrNotPoweredOn):
		return "Bluetooth adapter is not powered on"
	case errors.Is(err, central.ErrUnknownPeripheral):
		return "no such peripheral (not discovered yet, or evicted as stale)"
	case errors.Is(err, peripheral.ErrAlreadyConnected):
		return "already connected to this peripheral"
	case errors.Is(err, peripheral.ErrNotPresent):
		return "characteristic or service not present on this peripheral"
	case errors.Is(err, peripheral.ErrConcurrentWrite):
		return "a write to this characteristic is already in progress"
	case errors.Is(err, peripheral.ErrTimeout):
		return "operation timed out"
	default:
		return fmt.Sprintf("%v", err)
	}
}
