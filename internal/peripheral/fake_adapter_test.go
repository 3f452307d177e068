package peripheral

import (
	"context"
	"sync"

	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
)

// fakeAdapter records every call the runtime makes against the OS BLE
// interface; tests drive the delegate side by calling the Peripheral's
// HandleX methods directly, the same way central.Manager would after
// demuxing a real adapter's callbacks.
type fakeAdapter struct {
	mu sync.Mutex

	state    osble.AdapterState
	delegate osble.Delegate

	readCalls   []osble.CharacteristicRef
	writeCalls  []fakeWrite
	notifyCalls []fakeNotify
	rssiReads   int

	discoverServicesCalls        [][]gatt.UUID
	discoverCharacteristicsCalls []gatt.UUID

	readErr   error
	writeErr  error
	notifyErr error
}

type fakeWrite struct {
	Ref          osble.CharacteristicRef
	Data         []byte
	WithResponse bool
}

type fakeNotify struct {
	Ref     osble.CharacteristicRef
	Enabled bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{state: osble.StatePoweredOn}
}

func (f *fakeAdapter) SetDelegate(d osble.Delegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegate = d
}

func (f *fakeAdapter) State() osble.AdapterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAdapter) Scan(context.Context, []gatt.UUID, bool) error { return nil }
func (f *fakeAdapter) StopScan()                                     {}

func (f *fakeAdapter) Connect(context.Context, string, *osble.ConnectOptions) error { return nil }
func (f *fakeAdapter) CancelConnection(string) error                                { return nil }

func (f *fakeAdapter) DiscoverServices(_ string, uuids []gatt.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoverServicesCalls = append(f.discoverServicesCalls, uuids)
	return nil
}

func (f *fakeAdapter) DiscoverCharacteristics(_ string, serviceUUID gatt.UUID, _ []gatt.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discoverCharacteristicsCalls = append(f.discoverCharacteristicsCalls, serviceUUID)
	return nil
}

func (f *fakeAdapter) DiscoverDescriptors(string, osble.CharacteristicRef) error { return nil }

func (f *fakeAdapter) Read(_ string, ref osble.CharacteristicRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	f.readCalls = append(f.readCalls, ref)
	return nil
}

func (f *fakeAdapter) Write(_ string, ref osble.CharacteristicRef, data []byte, withResponse bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writeCalls = append(f.writeCalls, fakeWrite{Ref: ref, Data: append([]byte(nil), data...), WithResponse: withResponse})
	return nil
}

func (f *fakeAdapter) SetNotify(_ string, ref osble.CharacteristicRef, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notifyCalls = append(f.notifyCalls, fakeNotify{Ref: ref, Enabled: enabled})
	return nil
}

func (f *fakeAdapter) ReadRSSI(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssiReads++
	return nil
}

func (f *fakeAdapter) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readCalls)
}

func (f *fakeAdapter) writes() []fakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeWrite(nil), f.writeCalls...)
}

func (f *fakeAdapter) rssiReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rssiReads
}

// testRef is the (service, characteristic) pair the runtime tests
// exercise: the blood-pressure service's Record Access Control Point.
var testRef = osble.CharacteristicRef{
	ServiceUUID: gatt.UUID16(gatt.ServiceBloodPressure),
	UUID:        gatt.UUID16(gatt.CharRecordAccessControlPoint),
}

// newConnectedPeripheral builds a Peripheral whose GATT table already
// holds testRef, skipping the discovery dance the Manager normally
// drives.
func newConnectedPeripheral(adapter *fakeAdapter) *Peripheral {
	p := NewPeripheral("AA:BB:CC:DD:EE:FF", adapter, nil)
	p.Storage.setServices([]osble.ServiceInfo{{UUID: testRef.ServiceUUID, Primary: true}})
	p.Storage.setCharacteristics(testRef.ServiceUUID, []osble.CharacteristicInfo{{
		Ref:        testRef,
		Properties: osble.PropRead | osble.PropWrite | osble.PropNotify | osble.PropIndicate,
		Handle:     "handle-racp",
	}})
	p.Storage.setState(StateConnected)
	return p
}
