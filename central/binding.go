package central

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/srgg/blecentral/internal/peripheral"
)

// Service is a named grouping of typed characteristic slots — the
// "BluetoothService" protocol-polymorphism surface spec.md §9 calls
// for: it exposes its UUID and a Walk hook used at binding time.
type Service struct {
	UUID  gatt.UUID
	chars []injectable
}

// NewService declares a service by UUID.
func NewService(uuid gatt.UUID) *Service {
	return &Service{UUID: uuid}
}

// With registers a characteristic slot on this service and returns the
// service for chaining, mirroring ServiceDescription.WithCharacteristic's
// builder style.
func (s *Service) With(c injectable) *Service {
	s.chars = append(s.chars, c)
	return s
}

// Walk visits every characteristic slot declared on this service, the
// visitor hook spec.md §9 names.
func (s *Service) Walk(visit func(injectable)) {
	for _, c := range s.chars {
		visit(c)
	}
}

func (s *Service) describe() *discovery.ServiceDescription {
	sd := discovery.NewServiceDescription(s.UUID)
	for _, c := range s.chars {
		sd.WithCharacteristic(c.descriptor())
	}
	return sd
}

// Device is a declarative device type: ambient state references (name,
// state, RSSI, advertisement, connect/disconnect) plus a collection of
// services, each a collection of characteristics, per spec.md §4.4(a)-(b).
type Device struct {
	mu           sync.Mutex
	peripheral   *peripheral.Peripheral
	services     []*Service
	persistCount int32
	cancel       context.CancelFunc

	// onReleased is called once the persistence count reaches zero, so
	// the owning central.Manager can consider the peripheral for
	// removal, per spec.md §4.4's last sentence.
	onReleased func()
}

// NewDevice constructs an unbound device description.
func NewDevice() *Device {
	return &Device{}
}

// WithService registers a service and returns the device for chaining.
func (d *Device) WithService(s *Service) *Device {
	d.services = append(d.services, s)
	return d
}

// Walk visits every declared service.
func (d *Device) Walk(visit func(*Service)) {
	for _, s := range d.services {
		visit(s)
	}
}

// Describe builds the discovery.DeviceDescription that spec.md §4.3
// step 1 discovers against, derived from the declared services and
// characteristics.
func (d *Device) Describe() *discovery.DeviceDescription {
	dd := discovery.NewDeviceDescription()
	for _, s := range d.services {
		dd.WithService(s.describe())
	}
	return dd
}

// Bind walks the service/characteristic tree and installs a
// PeripheralInjection for each characteristic against p — spec.md
// §4.4's "Binding step". The device starts with a persistence count of
// one; Release drops it and, once it reaches zero, cancels every
// injection's background watcher.
func (d *Device) Bind(p *peripheral.Peripheral) {
	d.mu.Lock()
	d.peripheral = p
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.persistCount = 1
	d.mu.Unlock()

	p.SetDeviceDescription(d.Describe())
	for _, s := range d.services {
		s.Walk(func(c injectable) { c.bind(ctx, p) })
	}
}

// Peripheral returns the live peripheral this device is bound to, or
// nil before Bind is called.
func (d *Device) Peripheral() *peripheral.Peripheral {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peripheral
}

// Connect dials the bound peripheral.
func (d *Device) Connect(ctx context.Context, opts *osble.ConnectOptions) error {
	p := d.Peripheral()
	if p == nil {
		return fmt.Errorf("central: device not bound to a peripheral")
	}
	return p.Connect(ctx, opts)
}

// Disconnect requests disconnection of the bound peripheral.
func (d *Device) Disconnect() error {
	p := d.Peripheral()
	if p == nil {
		return fmt.Errorf("central: device not bound to a peripheral")
	}
	return p.Disconnect()
}

// Name is the peripheral's last-known advertised or GAP name.
func (d *Device) Name() string {
	if p := d.Peripheral(); p != nil {
		return p.Storage.Name()
	}
	return ""
}

// State is the peripheral connection state machine's current state.
func (d *Device) State() peripheral.State {
	if p := d.Peripheral(); p != nil {
		return p.Storage.State()
	}
	return peripheral.StateDisconnected
}

// RSSI is the last-observed received signal strength.
func (d *Device) RSSI() int {
	if p := d.Peripheral(); p != nil {
		return p.Storage.RSSI()
	}
	return 0
}

// Advertisement is the last-observed advertising PDU.
func (d *Device) Advertisement() discovery.AdvertisementData {
	if p := d.Peripheral(); p != nil {
		return p.Storage.Advertisement()
	}
	return discovery.AdvertisementData{}
}

// Retain increments the persistence count, keeping the device's
// injections alive across an additional owner.
func (d *Device) Retain() {
	atomic.AddInt32(&d.persistCount, 1)
}

// Release decrements the persistence count; when it reaches zero, every
// injection's background watcher is cancelled and onReleased (if set)
// is invoked so the owning Manager can consider the peripheral for
// removal, per spec.md §4.4.
func (d *Device) Release() {
	if atomic.AddInt32(&d.persistCount, -1) != 0 {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	onReleased := d.onReleased
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if onReleased != nil {
		onReleased()
	}
}
