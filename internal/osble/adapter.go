// Package osble defines the host BLE stack interface spec.md §6 asks
// the core to consume (adapter state, scan, per-peripheral connect/
// discover/read/write/notify, and the delegate callbacks that report
// their results) plus the one concrete implementation this module
// ships, goBLEAdapter, over github.com/go-ble/ble.
package osble

import (
	"context"
	"time"

	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
)

// AdapterState mirrors CoreBluetooth's CBManagerState / the teacher's
// adapter-state vocabulary.
type AdapterState int

const (
	StateUnknown AdapterState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s AdapterState) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "poweredOff"
	case StatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// Properties is the GATT characteristic property bitfield, spec.md §3
// GATTCharacteristic's "properties" field.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

func (p Properties) Has(f Properties) bool { return p&f != 0 }

// CharacteristicRef addresses a characteristic by (service UUID,
// characteristic UUID) — the only address stable across rediscovery
// that the core needs to look operations up by.
type CharacteristicRef struct {
	ServiceUUID gatt.UUID
	UUID        gatt.UUID
}

func (r CharacteristicRef) String() string {
	return r.ServiceUUID.String() + "/" + r.UUID.String()
}

// CharacteristicInfo is what DiscoverCharacteristics reports per
// characteristic found. Handle is the OS-level object identity (spec's
// "Equality by underlying OS handle identity"); the core never
// interprets it, only compares it.
type CharacteristicInfo struct {
	Ref        CharacteristicRef
	Properties Properties
	Handle     any
}

// ServiceInfo is what DiscoverServices reports per service found.
type ServiceInfo struct {
	UUID    gatt.UUID
	Primary bool
	Handle  any
}

// ConnectOptions carries the per-connection tunables spec.md's OS
// interface leaves adapter-specific (connect timeout today).
type ConnectOptions struct {
	Timeout time.Duration
}

// Delegate receives every callback spec.md §6 names. All calls are
// marshalled by the adapter onto whatever goroutine issues the
// underlying OS event; the peripheral runtime (internal/peripheral)
// re-marshals onto its own serial queue, so Delegate implementations
// must not assume a particular calling goroutine.
type Delegate interface {
	OnAdapterStateChanged(state AdapterState)

	OnDiscovered(peripheralID string, adv discovery.AdvertisementData, rssi int)
	OnConnected(peripheralID string)
	OnFailedToConnect(peripheralID string, err error)
	OnDisconnected(peripheralID string, err error)

	OnDidDiscoverServices(peripheralID string, services []ServiceInfo, err error)
	OnDidDiscoverCharacteristics(peripheralID string, serviceUUID gatt.UUID, chars []CharacteristicInfo, err error)
	OnDidModifyServices(peripheralID string, invalidatedServiceUUIDs []gatt.UUID)

	OnDidUpdateValue(peripheralID string, ref CharacteristicRef, value []byte, err error)
	OnDidWriteValue(peripheralID string, ref CharacteristicRef, err error)
	OnIsReadyToSendWriteWithoutResponse(peripheralID string)
	OnDidUpdateNotificationState(peripheralID string, ref CharacteristicRef, notifying bool, err error)
	OnDidReadRSSI(peripheralID string, rssi int, err error)
}

// Adapter is the host BLE stack interface spec.md §6 names. Every
// per-peripheral operation is fire-and-forget: the result arrives on
// Delegate, never as a return value, matching the async, callback-
// driven shape of both CoreBluetooth and go-ble's event model.
type Adapter interface {
	SetDelegate(d Delegate)
	State() AdapterState

	Scan(ctx context.Context, serviceUUIDs []gatt.UUID, allowDuplicates bool) error
	StopScan()

	Connect(ctx context.Context, peripheralID string, opts *ConnectOptions) error
	CancelConnection(peripheralID string) error

	DiscoverServices(peripheralID string, uuids []gatt.UUID) error
	DiscoverCharacteristics(peripheralID string, serviceUUID gatt.UUID, uuids []gatt.UUID) error
	DiscoverDescriptors(peripheralID string, ref CharacteristicRef) error

	Read(peripheralID string, ref CharacteristicRef) error
	Write(peripheralID string, ref CharacteristicRef, data []byte, withResponse bool) error
	SetNotify(peripheralID string, ref CharacteristicRef, enabled bool) error
	ReadRSSI(peripheralID string) error
}
