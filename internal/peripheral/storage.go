package peripheral

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/srgg/blecentral/internal/asyncutil"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
)

// State is the peripheral connection state machine named in spec.md §3.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnectingState
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnectingState:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// GATTCharacteristic is a reference to a discovered characteristic:
// its identity, current value, properties, and notification state.
// Equality of the underlying OS handle is by osble.CharacteristicInfo.Handle
// identity, compared only by the adapter layer — the runtime never
// interprets it.
type GATTCharacteristic struct {
	UUID        gatt.UUID
	ServiceUUID gatt.UUID
	Value       []byte
	Properties  osble.Properties
	Notifying   bool
	Handle      any
	// Descriptors holds raw descriptor values keyed by descriptor
	// UUID. The runtime does not read descriptor values, so it never
	// fills this map, and no package decodes it.
	Descriptors map[gatt.UUID][]byte
}

// GATTService is a discovered service and its characteristics, keyed
// by characteristic UUID.
type GATTService struct {
	UUID            gatt.UUID
	Primary         bool
	Characteristics map[gatt.UUID]*GATTCharacteristic
}

// Storage is the observable, thread-safe container of one peripheral's
// mutable state (spec.md §3 PeripheralStorage). Scalars are atomics so
// they can be read off the central executor without a lock, per §5's
// "last-activity is stored as raw f64 bits in an atomic" requirement;
// the composite advertisement/services snapshot is guarded by a single
// RWLock so readers see a consistent view within one acquisition.
type Storage struct {
	ID string

	rssi         atomic.Int32
	lastActivity atomic.Uint64 // math.Float64bits of a monotonic-ish unix-seconds instant
	nearby       atomic.Bool
	state        atomic.Int32

	lock          asyncutil.RWLock
	name          string
	advertisement discovery.AdvertisementData
	services      map[gatt.UUID]*GATTService

	// changes fires whenever the services/characteristics table
	// structurally changes (discovery, invalidation) so a declarative
	// binding's injections know to re-resolve their characteristic
	// reference (spec.md §4.4 per-injection contract).
	changes *asyncutil.Stream[struct{}]
}

const storageChangeStreamCapacity = 4

// NewStorage constructs an empty, disconnected peripheral storage record.
func NewStorage(id string) *Storage {
	s := &Storage{
		ID:       id,
		services: make(map[gatt.UUID]*GATTService),
		changes:  asyncutil.NewStream[struct{}](storageChangeStreamCapacity),
	}
	s.state.Store(int32(StateDisconnected))
	return s
}

// SubscribeChanges returns a subscription fired on every structural
// change to the services/characteristics table.
func (s *Storage) SubscribeChanges() *asyncutil.Subscription[struct{}] {
	return s.changes.Subscribe()
}

// Characteristic looks up a discovered characteristic by
// (service, characteristic) UUID. Exported for the declarative binding
// layer (central), which lives outside this package.
func (s *Storage) Characteristic(serviceUUID, charUUID gatt.UUID) (*GATTCharacteristic, bool) {
	return s.characteristic(serviceUUID, charUUID)
}

func (s *Storage) State() State { return State(s.state.Load()) }
func (s *Storage) setState(v State) { s.state.Store(int32(v)) }

func (s *Storage) RSSI() int { return int(s.rssi.Load()) }
func (s *Storage) setRSSI(v int) { s.rssi.Store(int32(v)) }

func (s *Storage) Nearby() bool     { return s.nearby.Load() }
func (s *Storage) setNearby(v bool) { s.nearby.Store(v) }

// LastActivity returns the last-activity instant as seconds since the
// Unix epoch (fractional), read lock-free.
func (s *Storage) LastActivity() float64 {
	return math.Float64frombits(s.lastActivity.Load())
}

func (s *Storage) setLastActivity(t time.Time) {
	s.lastActivity.Store(math.Float64bits(float64(t.UnixNano()) / 1e9))
}

// backdateLastActivity shifts last-activity earlier by d, used on
// disconnect so a peripheral lingers briefly before stale-eviction
// (spec.md §4.2: "back-dated by stale_interval × 0.25").
func (s *Storage) backdateLastActivity(d time.Duration) {
	cur := s.LastActivity()
	s.lastActivity.Store(math.Float64bits(cur - d.Seconds()))
}

func (s *Storage) Name() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.name
}

func (s *Storage) Advertisement() discovery.AdvertisementData {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.advertisement
}

// updateAdvertisement records a fresh advertisement/RSSI observation
// and refreshes last-activity and nearby, per spec.md §4.2 scan-event
// handling step 1.
func (s *Storage) updateAdvertisement(adv discovery.AdvertisementData, rssi int, now time.Time) {
	s.lock.Lock()
	s.advertisement = adv
	if adv.LocalName != nil {
		s.name = *adv.LocalName
	}
	s.lock.Unlock()

	s.setRSSI(rssi)
	s.setNearby(true)
	s.setLastActivity(now)
}

// Services returns a snapshot of the discovered services map.
func (s *Storage) Services() map[gatt.UUID]*GATTService {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make(map[gatt.UUID]*GATTService, len(s.services))
	for k, v := range s.services {
		out[k] = v
	}
	return out
}

func (s *Storage) service(uuid gatt.UUID) (*GATTService, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	svc, ok := s.services[uuid]
	return svc, ok
}

func (s *Storage) characteristic(serviceUUID, charUUID gatt.UUID) (*GATTCharacteristic, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	svc, ok := s.services[serviceUUID]
	if !ok {
		return nil, false
	}
	c, ok := svc.Characteristics[charUUID]
	return c, ok
}

func (s *Storage) setServices(svcs []osble.ServiceInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, info := range svcs {
		if _, ok := s.services[info.UUID]; !ok {
			s.services[info.UUID] = &GATTService{
				UUID:            info.UUID,
				Primary:         info.Primary,
				Characteristics: make(map[gatt.UUID]*GATTCharacteristic),
			}
		}
	}
	s.changes.Publish(struct{}{})
}

func (s *Storage) setCharacteristics(serviceUUID gatt.UUID, chars []osble.CharacteristicInfo) {
	s.lock.Lock()
	svc, ok := s.services[serviceUUID]
	if !ok {
		svc = &GATTService{UUID: serviceUUID, Primary: true, Characteristics: make(map[gatt.UUID]*GATTCharacteristic)}
		s.services[serviceUUID] = svc
	}
	for _, info := range chars {
		svc.Characteristics[info.Ref.UUID] = &GATTCharacteristic{
			UUID:        info.Ref.UUID,
			ServiceUUID: serviceUUID,
			Properties:  info.Properties,
			Handle:      info.Handle,
		}
	}
	s.lock.Unlock()
	s.changes.Publish(struct{}{})
}

// invalidateServices removes the named services from storage, per
// spec.md §4.3's didModifyServices handling.
func (s *Storage) invalidateServices(uuids []gatt.UUID) {
	s.lock.Lock()
	for _, u := range uuids {
		delete(s.services, u)
	}
	s.lock.Unlock()
	s.changes.Publish(struct{}{})
}

func (s *Storage) setValue(serviceUUID, charUUID gatt.UUID, value []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	svc, ok := s.services[serviceUUID]
	if !ok {
		return
	}
	if c, ok := svc.Characteristics[charUUID]; ok {
		c.Value = value
	}
}

func (s *Storage) setNotifying(serviceUUID, charUUID gatt.UUID, notifying bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	svc, ok := s.services[serviceUUID]
	if !ok {
		return
	}
	if c, ok := svc.Characteristics[charUUID]; ok {
		c.Notifying = notifying
	}
}
