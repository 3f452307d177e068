package osble

import "errors"

// Sentinel errors an Adapter implementation returns synchronously from
// the per-peripheral methods, before any OS-level request is even
// attempted — distinct from the errors a Delegate callback later
// reports asynchronously for a request that was attempted and failed.
var (
	// ErrNotConnected is returned when an operation names a
	// peripheralID with no live connection on this adapter.
	ErrNotConnected = errors.New("osble: peripheral not connected")

	// ErrNotPresent is returned when a CharacteristicRef or service
	// UUID has not been discovered on the named peripheral.
	ErrNotPresent = errors.New("osble: characteristic or service not discovered")

	// ErrUnsupported is returned when the underlying OS/adapter
	// backend does not implement the requested capability (e.g. live
	// RSSI reads on some go-ble platform backends).
	ErrUnsupported = errors.New("osble: operation not supported by adapter backend")
)
