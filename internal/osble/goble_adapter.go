package osble

import (
	"context"
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/groutine"
)

// DeviceFactory creates the go-ble host device. Overridable in tests,
// same convention as the teacher's internal/device.DeviceFactory and
// internal/devicefactory.DeviceFactory package vars.
var DeviceFactory = func() (blelib.Device, error) {
	return nil, fmt.Errorf("osble: no platform device factory registered (set osble.DeviceFactory)")
}

// goBLEAdapter is the one Adapter implementation this module ships,
// grounded wholesale on the teacher's internal/device/go-ble package:
// BLEConnection's per-peripheral ble.Client bookkeeping, generalized
// from "one always-connected device" into "N independently dialled
// peripherals behind a single adapter."
type goBLEAdapter struct {
	logger *logrus.Logger

	mu       sync.Mutex
	dev      blelib.Device
	delegate Delegate
	state    AdapterState

	scanCancel context.CancelFunc

	peripherals map[string]*goBLEPeripheral
}

// goBLEPeripheral tracks one dialled connection's client and the
// service/characteristic handles discovered on it so later
// DiscoverCharacteristics/Read/Write calls can resolve a
// CharacteristicRef back to a *ble.Characteristic.
type goBLEPeripheral struct {
	client   blelib.Client
	profile  *blelib.Profile
	services map[gatt.UUID]*blelib.Service
	chars    map[CharacteristicRef]*blelib.Characteristic
}

// NewGoBLEAdapter builds an Adapter over github.com/go-ble/ble. The
// adapter reports StatePoweredOn once a host device is obtained from
// DeviceFactory — go-ble itself does not expose the CoreBluetooth
// adapter-state machine spec.md's OS interface assumes, so this is the
// best-effort equivalent: unsupported/unauthorized states surface by
// DeviceFactory returning an error instead.
func NewGoBLEAdapter(logger *logrus.Logger) Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &goBLEAdapter{
		logger:      logger,
		state:       StateUnknown,
		peripherals: make(map[string]*goBLEPeripheral),
	}
}

func (a *goBLEAdapter) SetDelegate(d Delegate) {
	a.mu.Lock()
	a.delegate = d
	a.mu.Unlock()
}

func (a *goBLEAdapter) emit(fn func(d Delegate)) {
	a.mu.Lock()
	d := a.delegate
	a.mu.Unlock()
	if d != nil {
		fn(d)
	}
}

func (a *goBLEAdapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *goBLEAdapter) ensureDevice() (blelib.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		a.state = StateUnsupported
		return nil, err
	}
	blelib.SetDefaultDevice(dev)
	a.dev = dev
	a.state = StatePoweredOn
	return dev, nil
}

func (a *goBLEAdapter) Scan(ctx context.Context, serviceUUIDs []gatt.UUID, allowDuplicates bool) error {
	if _, err := a.ensureDevice(); err != nil {
		return fmt.Errorf("osble: adapter not powered on: %w", err)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.scanCancel = cancel
	a.mu.Unlock()

	filter := func(blelib.Advertisement) bool { return true }
	if len(serviceUUIDs) > 0 {
		bleUUIDs := make([]blelib.UUID, len(serviceUUIDs))
		for i, u := range serviceUUIDs {
			bleUUIDs[i] = toBLEUUID(u)
		}
		filter = func(adv blelib.Advertisement) bool {
			for _, want := range bleUUIDs {
				for _, have := range adv.Services() {
					if want.Equal(have) {
						return true
					}
				}
			}
			return false
		}
	}

	groutine.Go(scanCtx, "osble-scan", func(ctx context.Context) {
		err := blelib.Scan(ctx, allowDuplicates, func(adv blelib.Advertisement) {
			if !filter(adv) {
				return
			}
			a.emit(func(d Delegate) {
				d.OnDiscovered(adv.Addr().String(), convertAdvertisement(adv), adv.RSSI())
			})
		}, nil)
		if err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Warn("osble: scan ended with error")
		}
	})
	return nil
}

func (a *goBLEAdapter) StopScan() {
	a.mu.Lock()
	cancel := a.scanCancel
	a.scanCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Connect dials the peripheral and immediately runs a full profile
// discovery, exactly as the teacher's BLEConnection.Connect does via
// client.DiscoverProfile(true): go-ble has no separate per-service or
// per-characteristic discovery call, so DiscoverServices and
// DiscoverCharacteristics below replay the cached profile rather than
// issuing their own OS requests.
func (a *goBLEAdapter) Connect(ctx context.Context, peripheralID string, opts *ConnectOptions) error {
	groutine.Go(ctx, "osble-connect-"+peripheralID, func(goCtx context.Context) {
		dialCtx := ctx
		if opts != nil && opts.Timeout > 0 {
			var dialCancel context.CancelFunc
			dialCtx, dialCancel = context.WithTimeout(ctx, opts.Timeout)
			defer dialCancel()
		}

		client, err := blelib.Dial(dialCtx, blelib.NewAddr(peripheralID))
		if err != nil {
			a.emit(func(d Delegate) { d.OnFailedToConnect(peripheralID, err) })
			return
		}

		profile, err := client.DiscoverProfile(true)
		if err != nil {
			if cancelErr := client.CancelConnection(); cancelErr != nil {
				a.logger.WithError(cancelErr).Warn("osble: cancel connection after failed profile discovery")
			}
			a.emit(func(d Delegate) { d.OnFailedToConnect(peripheralID, err) })
			return
		}

		p := &goBLEPeripheral{
			client:   client,
			services: make(map[gatt.UUID]*blelib.Service),
			chars:    make(map[CharacteristicRef]*blelib.Characteristic),
			profile:  profile,
		}
		for _, svc := range profile.Services {
			if u, convErr := fromBLEUUID(svc.UUID); convErr == nil {
				p.services[u] = svc
			}
		}
		a.mu.Lock()
		a.peripherals[peripheralID] = p
		a.mu.Unlock()

		// Darwin's CoreBluetooth-backed client exposes an explicit
		// disconnect channel; other platform backends surface
		// disconnection only as an error from the next operation, so
		// the watch goroutine is best-effort.
		if darwinClient, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
			groutine.Go(context.Background(), "osble-disconnect-watch-"+peripheralID, func(context.Context) {
				<-darwinClient.Disconnected()
				a.mu.Lock()
				delete(a.peripherals, peripheralID)
				a.mu.Unlock()
				a.emit(func(d Delegate) { d.OnDisconnected(peripheralID, nil) })
			})
		}

		a.emit(func(d Delegate) { d.OnConnected(peripheralID) })
	})
	return nil
}

func (a *goBLEAdapter) CancelConnection(peripheralID string) error {
	p, ok := a.peripheral(peripheralID)
	if !ok {
		return fmt.Errorf("osble: %s: %w", peripheralID, ErrNotConnected)
	}
	return p.client.CancelConnection()
}

func (a *goBLEAdapter) peripheral(peripheralID string) (*goBLEPeripheral, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peripherals[peripheralID]
	return p, ok
}

// DiscoverServices reports the services already captured from Connect's
// DiscoverProfile(true) call, optionally filtered to uuids.
func (a *goBLEAdapter) DiscoverServices(peripheralID string, uuids []gatt.UUID) error {
	p, ok := a.peripheral(peripheralID)
	if !ok {
		return fmt.Errorf("osble: %s: %w", peripheralID, ErrNotConnected)
	}

	groutine.Go(context.Background(), "osble-discover-services-"+peripheralID, func(context.Context) {
		want := uuidSet(uuids)
		infos := make([]ServiceInfo, 0, len(p.profile.Services))
		for _, svc := range p.profile.Services {
			u, convErr := fromBLEUUID(svc.UUID)
			if convErr != nil {
				continue
			}
			if want != nil && !want[u] {
				continue
			}
			infos = append(infos, ServiceInfo{UUID: u, Primary: true, Handle: svc})
		}
		a.emit(func(d Delegate) { d.OnDidDiscoverServices(peripheralID, infos, nil) })
	})
	return nil
}

// DiscoverCharacteristics reports the characteristics of serviceUUID
// already captured from Connect's profile discovery.
func (a *goBLEAdapter) DiscoverCharacteristics(peripheralID string, serviceUUID gatt.UUID, uuids []gatt.UUID) error {
	p, ok := a.peripheral(peripheralID)
	if !ok {
		return fmt.Errorf("osble: %s: %w", peripheralID, ErrNotConnected)
	}
	a.mu.Lock()
	svc, svcOK := p.services[serviceUUID]
	a.mu.Unlock()
	if !svcOK {
		return fmt.Errorf("osble: %s: service %s not discovered: %w", peripheralID, serviceUUID, ErrNotPresent)
	}

	groutine.Go(context.Background(), "osble-discover-chars-"+peripheralID, func(context.Context) {
		want := uuidSet(uuids)
		infos := make([]CharacteristicInfo, 0, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			u, convErr := fromBLEUUID(c.UUID)
			if convErr != nil {
				continue
			}
			if want != nil && !want[u] {
				continue
			}
			ref := CharacteristicRef{ServiceUUID: serviceUUID, UUID: u}
			a.mu.Lock()
			p.chars[ref] = c
			a.mu.Unlock()
			infos = append(infos, CharacteristicInfo{
				Ref:        ref,
				Properties: convertProperties(c.Property),
				Handle:     c,
			})
		}
		a.emit(func(d Delegate) { d.OnDidDiscoverCharacteristics(peripheralID, serviceUUID, infos, nil) })
	})
	return nil
}

// DiscoverDescriptors only checks that ref is a known characteristic
// (ErrNotPresent otherwise): go-ble's
// DiscoverProfile(true) already discovered every characteristic's
// descriptors up front (the teacher's connection.go comments note the
// Darwin backend doesn't even populate descriptor handles for reads),
// so there is nothing further to request from the OS here.
func (a *goBLEAdapter) DiscoverDescriptors(peripheralID string, ref CharacteristicRef) error {
	if _, _, ok := a.resolveChar(peripheralID, ref); !ok {
		return fmt.Errorf("osble: %s: %w", ref, ErrNotPresent)
	}
	return nil
}

func uuidSet(uuids []gatt.UUID) map[gatt.UUID]bool {
	if len(uuids) == 0 {
		return nil
	}
	m := make(map[gatt.UUID]bool, len(uuids))
	for _, u := range uuids {
		m[u] = true
	}
	return m
}

func (a *goBLEAdapter) resolveChar(peripheralID string, ref CharacteristicRef) (*goBLEPeripheral, *blelib.Characteristic, bool) {
	p, ok := a.peripheral(peripheralID)
	if !ok {
		return nil, nil, false
	}
	a.mu.Lock()
	c, ok := p.chars[ref]
	a.mu.Unlock()
	return p, c, ok
}

func (a *goBLEAdapter) Read(peripheralID string, ref CharacteristicRef) error {
	p, char, ok := a.resolveChar(peripheralID, ref)
	if !ok {
		return fmt.Errorf("osble: %s: %w", ref, ErrNotPresent)
	}
	groutine.Go(context.Background(), "osble-read-"+peripheralID, func(context.Context) {
		data, err := p.client.ReadCharacteristic(char)
		a.emit(func(d Delegate) { d.OnDidUpdateValue(peripheralID, ref, data, err) })
	})
	return nil
}

func (a *goBLEAdapter) Write(peripheralID string, ref CharacteristicRef, data []byte, withResponse bool) error {
	p, char, ok := a.resolveChar(peripheralID, ref)
	if !ok {
		return fmt.Errorf("osble: %s: %w", ref, ErrNotPresent)
	}
	groutine.Go(context.Background(), "osble-write-"+peripheralID, func(context.Context) {
		err := p.client.WriteCharacteristic(char, data, !withResponse)
		a.emit(func(d Delegate) { d.OnDidWriteValue(peripheralID, ref, err) })
		if err == nil && !withResponse {
			// go-ble's write-without-response blocks until the local
			// stack has accepted the packet, which is exactly the
			// signal the write-without-response back-pressure queue
			// (internal/peripheral) is waiting for.
			a.emit(func(d Delegate) { d.OnIsReadyToSendWriteWithoutResponse(peripheralID) })
		}
	})
	return nil
}

func (a *goBLEAdapter) SetNotify(peripheralID string, ref CharacteristicRef, enabled bool) error {
	p, char, ok := a.resolveChar(peripheralID, ref)
	if !ok {
		return fmt.Errorf("osble: %s: %w", ref, ErrNotPresent)
	}
	groutine.Go(context.Background(), "osble-notify-"+peripheralID, func(context.Context) {
		var err error
		indicate := char.Property&blelib.CharIndicate != 0 && char.Property&blelib.CharNotify == 0
		if enabled {
			err = p.client.Subscribe(char, indicate, func(data []byte) {
				a.emit(func(d Delegate) { d.OnDidUpdateValue(peripheralID, ref, data, nil) })
			})
		} else {
			err = p.client.Unsubscribe(char, indicate)
		}
		a.emit(func(d Delegate) { d.OnDidUpdateNotificationState(peripheralID, ref, enabled && err == nil, err) })
	})
	return nil
}

// rssiReader is satisfied by go-ble clients that expose a live RSSI
// read (not all platform backends do); absent it, ReadRSSI returns an
// error wrapping ErrUnsupported rather than blocking forever.
type rssiReader interface {
	ReadRSSI() (int, error)
}

func (a *goBLEAdapter) ReadRSSI(peripheralID string) error {
	p, ok := a.peripheral(peripheralID)
	if !ok {
		return fmt.Errorf("osble: %s: %w", peripheralID, ErrNotConnected)
	}
	reader, ok := p.client.(rssiReader)
	if !ok {
		return fmt.Errorf("osble: %s: %w", peripheralID, ErrUnsupported)
	}
	groutine.Go(context.Background(), "osble-rssi-"+peripheralID, func(context.Context) {
		rssi, err := reader.ReadRSSI()
		a.emit(func(d Delegate) { d.OnDidReadRSSI(peripheralID, rssi, err) })
	})
	return nil
}

func toBLEUUID(u gatt.UUID) blelib.UUID {
	return blelib.MustParse(u.String())
}

func fromBLEUUID(u blelib.UUID) (gatt.UUID, error) {
	return gatt.ParseUUID(u.String())
}

func convertProperties(p blelib.Property) Properties {
	var out Properties
	if p&blelib.CharBroadcast != 0 {
		out |= PropBroadcast
	}
	if p&blelib.CharRead != 0 {
		out |= PropRead
	}
	if p&blelib.CharWriteNR != 0 {
		out |= PropWriteWithoutResponse
	}
	if p&blelib.CharWrite != 0 {
		out |= PropWrite
	}
	if p&blelib.CharNotify != 0 {
		out |= PropNotify
	}
	if p&blelib.CharIndicate != 0 {
		out |= PropIndicate
	}
	return out
}

func convertAdvertisement(adv blelib.Advertisement) discovery.AdvertisementData {
	var localName *string
	if n := adv.LocalName(); n != "" {
		localName = &n
	}

	data := discovery.AdvertisementData{
		LocalName:        localName,
		ManufacturerData: adv.ManufacturerData(),
		Connectable:      adv.Connectable(),
	}

	for _, u := range adv.Services() {
		if gu, err := fromBLEUUID(u); err == nil {
			data.ServiceUUIDs = append(data.ServiceUUIDs, gu)
		}
	}
	for _, u := range adv.OverflowService() {
		if gu, err := fromBLEUUID(u); err == nil {
			data.OverflowServiceUUIDs = append(data.OverflowServiceUUIDs, gu)
		}
	}
	for _, u := range adv.SolicitedService() {
		if gu, err := fromBLEUUID(u); err == nil {
			data.SolicitedServiceUUIDs = append(data.SolicitedServiceUUIDs, gu)
		}
	}
	if sd := adv.ServiceData(); len(sd) > 0 {
		data.ServiceData = make(map[gatt.UUID][]byte, len(sd))
		for _, entry := range sd {
			if gu, err := fromBLEUUID(entry.UUID); err == nil {
				data.ServiceData[gu] = entry.Data
			}
		}
	}
	if tx := adv.TxPowerLevel(); tx != 0 {
		v := int8(tx)
		data.TxPower = &v
	}
	return data
}
