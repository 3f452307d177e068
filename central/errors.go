package central

import "errors"

var (
	// ErrNotPoweredOn is returned by ScanNearbyDevices when the
	// adapter reports poweredOff, unsupported, unauthorized or
	// resetting, per spec.md §4.2's "Fails only if adapter is not
	// powered on." An adapter still in the unknown state may scan.
	ErrNotPoweredOn = errors.New("central: adapter not powered on")

	// ErrUnknownPeripheral is returned by Connect and Disconnect
	// for an id the discovered-peripherals table has never
	// seen (or has since evicted).
	ErrUnknownPeripheral = errors.New("central: unknown peripheral")
)
