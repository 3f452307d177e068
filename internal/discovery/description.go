package discovery

import (
	"github.com/srgg/blecentral/internal/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CharacteristicDescription names a characteristic a ServiceDescription
// is interested in, plus how the binding should treat it once discovered.
type CharacteristicDescription struct {
	UUID gatt.UUID

	// DiscoverDescriptors requests the characteristic's descriptors
	// (e.g. CCCD, presentation format) be enumerated.
	DiscoverDescriptors bool

	// AutoRead requests a read as soon as the characteristic is
	// discovered after connecting, if its properties include read.
	AutoRead bool
}

// ServiceDescription names a service and, optionally, the
// characteristics of interest within it. A nil Characteristics map
// means "discover all characteristics of this service".
type ServiceDescription struct {
	UUID            gatt.UUID
	Characteristics *orderedmap.OrderedMap[gatt.UUID, CharacteristicDescription]
}

func NewServiceDescription(uuid gatt.UUID) *ServiceDescription {
	return &ServiceDescription{UUID: uuid}
}

// WithCharacteristic registers (or replaces) a characteristic
// description, preserving first-registration order.
func (s *ServiceDescription) WithCharacteristic(c CharacteristicDescription) *ServiceDescription {
	if s.Characteristics == nil {
		s.Characteristics = orderedmap.New[gatt.UUID, CharacteristicDescription]()
	}
	s.Characteristics.Set(c.UUID, c)
	return s
}

// DeviceDescription is an optional set of ServiceDescriptions keyed by
// service UUID. A nil Services map means "discover all services".
type DeviceDescription struct {
	Services *orderedmap.OrderedMap[gatt.UUID, *ServiceDescription]
}

func NewDeviceDescription() *DeviceDescription {
	return &DeviceDescription{}
}

func (d *DeviceDescription) WithService(s *ServiceDescription) *DeviceDescription {
	if d.Services == nil {
		d.Services = orderedmap.New[gatt.UUID, *ServiceDescription]()
	}
	d.Services.Set(s.UUID, s)
	return d
}

// DiscoveryDescription pairs the matching criteria with the device
// shape to bind once a peripheral satisfying it is found. The central
// manager's registry (Manager.RegisterDiscovery) keys each registration
// by a token it hands out, so registering equal criteria twice yields two
// separate registrations.
type DiscoveryDescription struct {
	Criteria DiscoveryCriteria
	Device   *DeviceDescription
}

func NewDiscoveryDescription(criteria DiscoveryCriteria, device *DeviceDescription) DiscoveryDescription {
	return DiscoveryDescription{Criteria: criteria, Device: device}
}
