package central

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srgg/blecentral/internal/asyncutil"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/groutine"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/srgg/blecentral/internal/peripheral"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// registration pairs a discovery criteria with the factory that builds
// the declarative Device to bind once a matching peripheral is found,
// spec.md §4.1's "ordered, first-registered-wins" DiscoveryDescription
// registry.
type registration struct {
	criteria discovery.DiscoveryCriteria
	factory  func() *Device
}

// Manager owns the OS adapter handle, the discovered-peripherals table,
// the ordered discovery registry, and the stale-eviction timer — spec.md
// §4.2's "Central manager". Grounded on the teacher's scanner.Scanner
// (device table, Range-based eviction sweep) and internal/devicefactory
// (criteria-to-device dispatch), generalized from "one factory function"
// into an ordered multi-registration registry and from a one-shot scan
// into persistent auto-connect lifecycle management.
//
// Every OS callback and every table mutation is funneled through a
// single dedicated goroutine (the "central-executor"), so the
// discovered-peripherals table and the discovery registry never need
// their own locks beyond what hashmap.Map/orderedmap already provide
// internally — only the executor goroutine ever iterates-then-mutates
// across both.
type Manager struct {
	logger  *logrus.Logger
	cfg     *Config
	adapter osble.Adapter

	// nowFunc is the injectable clock the stale-eviction timer reads,
	// overridable in tests to exercise spec.md §8 scenario 7 without
	// a real 10-second wait.
	nowFunc func() time.Time

	peripherals *hashmap.Map[string, *peripheral.Peripheral]
	devices     *hashmap.Map[string, *Device]

	descMu       sync.Mutex
	descriptions *orderedmap.OrderedMap[int, registration]
	nextDescID   int

	stateVal atomic.Int32

	scanning     atomic.Bool
	wantScanning atomic.Bool
	autoConnect  atomic.Bool

	stateStream *asyncutil.Stream[osble.AdapterState]
	scanStream  *asyncutil.Stream[bool]

	staleMu    sync.Mutex
	staleTimer *time.Timer

	cmdCh chan func()
}

// NewManager constructs a Manager bound to adapter, installing itself
// as the adapter's Delegate. cfg nil defaults to DefaultConfig(); logger
// nil defaults to cfg.NewLogger().
func NewManager(adapter osble.Adapter, cfg *Config, logger *logrus.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	m := &Manager{
		logger:       logger,
		cfg:          cfg,
		adapter:      adapter,
		nowFunc:      time.Now,
		peripherals:  hashmap.New[string, *peripheral.Peripheral](),
		devices:      hashmap.New[string, *Device](),
		descriptions: orderedmap.New[int, registration](),
		stateStream:  asyncutil.NewStream[osble.AdapterState](2),
		scanStream:   asyncutil.NewStream[bool](2),
		cmdCh:        make(chan func(), 64),
	}
	m.stateVal.Store(int32(adapter.State()))
	adapter.SetDelegate(m)
	return m
}

// Start launches the central-executor goroutine that serializes every
// delegate callback and table mutation, per spec.md §5's single-writer
// concurrency model. It returns immediately; the goroutine exits once
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	groutine.Go(ctx, "central-executor", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-m.cmdCh:
				fn()
			}
		}
	})
}

// exec runs fn on the central-executor goroutine and waits for it to
// complete, serializing every table mutation behind the single writer
// spec.md §5 requires. Must only be called after Start.
func (m *Manager) exec(fn func()) {
	done := make(chan struct{})
	m.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// RegisterDiscovery adds criteria to the ordered discovery registry.
// factory is invoked, and its Device bound, the first time a peripheral
// matching criteria is discovered — ambiguity between multiple
// registrations is resolved in favor of the earliest-registered match,
// per spec.md §4.1's last sentence. The returned token unregisters via
// UnregisterDiscovery.
func (m *Manager) RegisterDiscovery(criteria discovery.DiscoveryCriteria, factory func() *Device) int {
	m.descMu.Lock()
	defer m.descMu.Unlock()
	id := m.nextDescID
	m.nextDescID++
	m.descriptions.Set(id, registration{criteria: criteria, factory: factory})
	return id
}

// UnregisterDiscovery removes a previously registered criteria/factory
// pair; already-bound devices are unaffected.
func (m *Manager) UnregisterDiscovery(token int) {
	m.descMu.Lock()
	defer m.descMu.Unlock()
	m.descriptions.Delete(token)
}

func (m *Manager) discoveryIDs() []gatt.UUID {
	m.descMu.Lock()
	defer m.descMu.Unlock()
	seen := make(map[gatt.UUID]bool)
	var ids []gatt.UUID
	for pair := m.descriptions.Oldest(); pair != nil; pair = pair.Next() {
		for _, u := range pair.Value.criteria.DiscoveryIDs() {
			if !seen[u] {
				seen[u] = true
				ids = append(ids, u)
			}
		}
	}
	return ids
}

// ScanNearbyDevices starts scanning, constrained to the service UUIDs
// named by every registered discovery criteria (or unconstrained if
// none name any), per spec.md §4.2. autoConnect records whether a
// power-cycle (poweredOff→poweredOn) should resume scanning
// automatically. Returns ErrNotPoweredOn if the adapter reports
// poweredOff, unsupported, unauthorized or resetting, and otherwise any
// error the adapter's Scan returns.
func (m *Manager) ScanNearbyDevices(ctx context.Context, autoConnect bool) error {
	switch m.adapter.State() {
	case osble.StatePoweredOff, osble.StateUnsupported, osble.StateUnauthorized, osble.StateResetting:
		return ErrNotPoweredOn
	}
	m.autoConnect.Store(autoConnect)
	m.wantScanning.Store(true)
	if err := m.adapter.Scan(ctx, m.discoveryIDs(), true); err != nil {
		return err
	}
	// Some adapters (e.g. the go-ble one) only transition out of
	// StateUnknown lazily, on first use, rather than via
	// OnAdapterStateChanged; refresh our cached view now that Scan
	// has succeeded.
	if state := m.adapter.State(); state != osble.AdapterState(m.stateVal.Load()) {
		m.stateVal.Store(int32(state))
		m.stateStream.Publish(state)
	}
	if !m.scanning.Swap(true) {
		m.scanStream.Publish(true)
	}
	return nil
}

// StopScanning stops the active scan and drops every peripheral that is
// still disconnected, per spec.md §4.2's scan lifecycle.
func (m *Manager) StopScanning() {
	m.wantScanning.Store(false)
	m.adapter.StopScan()
	if m.scanning.Swap(false) {
		m.scanStream.Publish(false)
	}
	m.exec(func() {
		var stale []string
		m.peripherals.Range(func(id string, p *peripheral.Peripheral) bool {
			if p.Storage.State() == peripheral.StateDisconnected {
				stale = append(stale, id)
			}
			return true
		})
		for _, id := range stale {
			m.evict(id)
		}
	})
}

// IsScanning reports whether a scan is currently active.
func (m *Manager) IsScanning() bool { return m.scanning.Load() }

// SubscribeScanning returns a subscription to scan start/stop events.
func (m *Manager) SubscribeScanning() *asyncutil.Subscription[bool] { return m.scanStream.Subscribe() }

// State returns the adapter's last-known power state.
func (m *Manager) State() osble.AdapterState { return osble.AdapterState(m.stateVal.Load()) }

// SubscribeState returns a subscription to adapter power-state changes.
func (m *Manager) SubscribeState() *asyncutil.Subscription[osble.AdapterState] {
	return m.stateStream.Subscribe()
}

// Peripheral looks up a runtime by peripheral id.
func (m *Manager) Peripheral(id string) (*peripheral.Peripheral, bool) {
	return m.peripherals.Get(id)
}

// Device looks up a declarative device bound against a discovered
// peripheral by peripheral id.
func (m *Manager) Device(id string) (*Device, bool) {
	return m.devices.Get(id)
}

// NearbyPeripherals snapshots every peripheral currently in the table.
func (m *Manager) NearbyPeripherals() []*peripheral.Peripheral {
	out := make([]*peripheral.Peripheral, 0, m.peripherals.Len())
	m.peripherals.Range(func(_ string, p *peripheral.Peripheral) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Connect dials a known peripheral by id.
func (m *Manager) Connect(ctx context.Context, id string, opts *osble.ConnectOptions) error {
	p, ok := m.peripherals.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeripheral, id)
	}
	return p.Connect(ctx, opts)
}

// Disconnect requests disconnection of a known peripheral by id.
func (m *Manager) Disconnect(id string) error {
	p, ok := m.peripherals.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeripheral, id)
	}
	return p.Disconnect()
}

// --- osble.Delegate ---

func (m *Manager) OnAdapterStateChanged(state osble.AdapterState) {
	prev := osble.AdapterState(m.stateVal.Swap(int32(state)))
	m.stateStream.Publish(state)
	m.logger.WithFields(logrus.Fields{"from": prev, "to": state}).Debug("adapter state changed")

	if prev != osble.StatePoweredOn && state == osble.StatePoweredOn && m.wantScanning.Load() {
		if err := m.ScanNearbyDevices(context.Background(), m.autoConnect.Load()); err != nil {
			m.logger.WithError(err).Warn("resume scan on power-on failed")
		}
	}
}

func (m *Manager) OnDiscovered(peripheralID string, adv discovery.AdvertisementData, rssi int) {
	if rssi == 127 || int8(rssi) < m.cfg.MinRSSI {
		return
	}
	m.exec(func() { m.handleDiscovered(peripheralID, adv, rssi) })
}

// handleDiscovered is spec.md §4.2's scan-event handling: update an
// already-known peripheral's advertisement/RSSI/last-activity, or
// create and register a new one, then reschedule the stale timer for
// whichever disconnected peripheral is now oldest.
func (m *Manager) handleDiscovered(id string, adv discovery.AdvertisementData, rssi int) {
	now := m.nowFunc()
	if p, ok := m.peripherals.Get(id); ok {
		p.HandleDiscovered(adv, rssi, now)
		m.rescheduleStaleTimer()
		return
	}

	p := peripheral.NewPeripheral(id, m.adapter, m.logger)
	p.HandleDiscovered(adv, rssi, now)
	m.peripherals.Set(id, p)
	m.matchAndBind(id, p, adv)
	m.rescheduleStaleTimer()
}

// matchAndBind resolves the first registered discovery criteria that
// matches adv and binds its declarative Device to p, per spec.md §4.1's
// ambiguity rule and §4.4's binding step.
func (m *Manager) matchAndBind(id string, p *peripheral.Peripheral, adv discovery.AdvertisementData) {
	m.descMu.Lock()
	var matches []registration
	for pair := m.descriptions.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.criteria.Matches(nil, adv) {
			matches = append(matches, pair.Value)
		}
	}
	m.descMu.Unlock()

	if len(matches) == 0 {
		return
	}
	if len(matches) > 1 {
		m.logger.WithField("peripheral", id).Warn("multiple discovery criteria matched; binding the first registered")
	}
	if matches[0].factory == nil {
		return
	}
	dev := matches[0].factory()
	dev.onReleased = func() { m.exec(func() { m.evict(id) }) }
	dev.Bind(p)
	m.devices.Set(id, dev)
}

// evict removes a peripheral and its bound device from the tables. Must
// only be called from the central-executor goroutine.
func (m *Manager) evict(id string) {
	m.peripherals.Del(id)
	m.devices.Del(id)
}

func (m *Manager) OnConnected(peripheralID string) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleConnected()
		}
	})
}

func (m *Manager) OnFailedToConnect(peripheralID string, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleFailedToConnect(err)
		}
	})
}

func (m *Manager) OnDisconnected(peripheralID string, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDisconnected(m.cfg.AdvertisementStaleInterval)
			m.rescheduleStaleTimer()
		}
	})
}

func (m *Manager) OnDidDiscoverServices(peripheralID string, services []osble.ServiceInfo, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidDiscoverServices(services, err)
		}
	})
}

func (m *Manager) OnDidDiscoverCharacteristics(peripheralID string, serviceUUID gatt.UUID, chars []osble.CharacteristicInfo, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidDiscoverCharacteristics(serviceUUID, chars, err)
		}
	})
}

func (m *Manager) OnDidModifyServices(peripheralID string, invalidatedServiceUUIDs []gatt.UUID) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidModifyServices(invalidatedServiceUUIDs)
		}
	})
}

func (m *Manager) OnDidUpdateValue(peripheralID string, ref osble.CharacteristicRef, value []byte, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidUpdateValue(ref, value, err)
		}
	})
}

func (m *Manager) OnDidWriteValue(peripheralID string, ref osble.CharacteristicRef, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidWriteValue(ref, err)
		}
	})
}

func (m *Manager) OnIsReadyToSendWriteWithoutResponse(peripheralID string) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleIsReadyToSendWriteWithoutResponse()
		}
	})
}

func (m *Manager) OnDidUpdateNotificationState(peripheralID string, ref osble.CharacteristicRef, notifying bool, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidUpdateNotificationState(ref, notifying, err)
		}
	})
}

func (m *Manager) OnDidReadRSSI(peripheralID string, rssi int, err error) {
	m.exec(func() {
		if p, ok := m.peripherals.Get(peripheralID); ok {
			p.HandleDidReadRSSI(rssi, err)
		}
	})
}

// --- stale-eviction timer, spec.md §4.2 ---

// rescheduleStaleTimer arms a single timer for the disconnected
// peripheral with the oldest last-activity, per spec.md §4.2: "at all
// times at most one pending timer exists". Must be called with the
// central-executor goroutine as the only mutator of m.peripherals.
func (m *Manager) rescheduleStaleTimer() {
	m.staleMu.Lock()
	defer m.staleMu.Unlock()
	if m.staleTimer != nil {
		m.staleTimer.Stop()
		m.staleTimer = nil
	}

	_, oldest, ok := m.oldestDisconnected()
	if !ok {
		return
	}
	delay := m.cfg.AdvertisementStaleInterval - m.nowFunc().Sub(oldest)
	if delay < 0 {
		delay = 0
	}
	m.staleTimer = time.AfterFunc(delay, func() {
		m.exec(m.fireStaleEviction)
	})
}

func (m *Manager) oldestDisconnected() (string, time.Time, bool) {
	var (
		id    string
		at    time.Time
		found bool
	)
	m.peripherals.Range(func(pid string, p *peripheral.Peripheral) bool {
		if p.Storage.State() != peripheral.StateDisconnected {
			return true
		}
		t := secondsToTime(p.Storage.LastActivity())
		if !found || t.Before(at) {
			id, at, found = pid, t, true
		}
		return true
	})
	return id, at, found
}

// fireStaleEviction removes every disconnected peripheral whose
// last-activity is at least stale_interval old, then rearms for the
// next oldest, per spec.md §4.2 and §8 scenario 7.
func (m *Manager) fireStaleEviction() {
	now := m.nowFunc()
	var toEvict []string
	m.peripherals.Range(func(id string, p *peripheral.Peripheral) bool {
		if p.Storage.State() != peripheral.StateDisconnected {
			return true
		}
		if now.Sub(secondsToTime(p.Storage.LastActivity())) >= m.cfg.AdvertisementStaleInterval {
			toEvict = append(toEvict, id)
		}
		return true
	})
	for _, id := range toEvict {
		m.evict(id)
		m.logger.WithField("peripheral", id).Debug("stale peripheral evicted")
	}
	m.rescheduleStaleTimer()
}

func secondsToTime(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}
