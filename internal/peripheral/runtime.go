package peripheral

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srgg/blecentral/internal/asyncutil"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/groutine"
	"github.com/srgg/blecentral/internal/osble"
)

// CharRef addresses one characteristic; reused verbatim from the OS
// adapter layer since the runtime never needs a different identity for
// it than the adapter already hands back in every delegate callback.
type CharRef = osble.CharacteristicRef

const defaultWWRQueueSize = 64
const notificationHistorySize = 8

// charState tracks the in-flight-exclusivity state for one
// characteristic: at most one write-with-response,
// write-without-response-pending, or read initiation in flight.
type charState struct {
	read *coalescedAccess[[]byte]

	writeMu   sync.Mutex
	writeDone chan error // non-nil while a write-with-response is outstanding

	// notifyRequested short-circuits the control-point "must be
	// notifying" precondition between SetNotify being issued and the OS
	// acknowledging it (spec.md §4.5 step 1).
	notifyRequested atomic.Bool

	stream  *asyncutil.Stream[[]byte]
	history *notificationHistory
	cp      *controlPointState
}

// Peripheral is the per-peripheral connection state machine and GATT
// operation serializer (spec.md §4.3), grounded on the teacher's
// internal/device/ble_connection.go (BLECharacteristic bookkeeping,
// per-characteristic update channels) generalized from "one
// always-connected device" into "state machine driven purely by
// osble.Delegate callbacks demultiplexed by central.Manager."
type Peripheral struct {
	ID      string
	logger  *logrus.Logger
	adapter osble.Adapter

	Storage *Storage

	mu          sync.Mutex
	description *discovery.DeviceDescription
	chars       map[CharRef]*charState
	rssi        *coalescedAccess[int]

	servicesRemaining map[gatt.UUID]struct{}
	connectedCh       chan struct{} // closed once signal_fully_discovered fires

	wwrQueue mpmc.RichOverlappedRingBuffer[chan struct{}]
}

// NewPeripheral constructs a runtime bound to the given adapter. logger
// nil defaults to logrus.New(), matching the teacher's null-object
// logging convention.
func NewPeripheral(id string, adapter osble.Adapter, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		ID:          id,
		logger:      logger,
		adapter:     adapter,
		Storage:     NewStorage(id),
		chars:       make(map[CharRef]*charState),
		rssi:        newCoalescedAccess[int](),
		connectedCh: make(chan struct{}),
		wwrQueue:    mpmc.NewOverlappedRingBuffer[chan struct{}](defaultWWRQueueSize),
	}
}

// SetDeviceDescription installs the declarative shape to discover once
// connected (spec.md §4.3 step 1). Must be called before Connect.
func (p *Peripheral) SetDeviceDescription(d *discovery.DeviceDescription) {
	p.mu.Lock()
	p.description = d
	p.mu.Unlock()
}

func (p *Peripheral) charState(ref CharRef) *charState {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, ok := p.chars[ref]
	if !ok {
		cs = &charState{
			read:    newCoalescedAccess[[]byte](),
			stream:  asyncutil.NewStream[[]byte](notificationHistorySize),
			history: newNotificationHistory(notificationHistoryBytes),
			cp:      newControlPointState(),
		}
		p.chars[ref] = cs
	}
	return cs
}

// Connect dials the peripheral. The connected-and-observable transition
// is gated on full discovery (spec.md §4.3): Connected() does not
// return until signal_fully_discovered fires or ctx is done.
func (p *Peripheral) Connect(ctx context.Context, opts *osble.ConnectOptions) error {
	if p.Storage.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	p.Storage.setState(StateConnecting)
	return p.adapter.Connect(ctx, p.ID, opts)
}

// Connected blocks until service/characteristic discovery completes
// after a successful Connect, or ctx is cancelled.
func (p *Peripheral) Connected(ctx context.Context) error {
	select {
	case <-p.connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect requests the OS cancel the connection; the resulting
// OnDisconnected callback completes the transition and cancels every
// in-flight continuation, per spec.md §4.3's failure semantics.
func (p *Peripheral) Disconnect() error {
	p.Storage.setState(StateDisconnectingState)
	return p.adapter.CancelConnection(p.ID)
}

// --- osble.Delegate callback handlers, invoked by central.Manager after it demuxes by peripheralID ---

// HandleDiscovered records a fresh advertisement/RSSI observation, per
// spec.md §4.2 scan-event handling step 1. central.Manager calls this
// on every scan event for a peripheral already in its table.
func (p *Peripheral) HandleDiscovered(adv discovery.AdvertisementData, rssi int, now time.Time) {
	p.Storage.updateAdvertisement(adv, rssi, now)
}

func (p *Peripheral) HandleConnected() {
	want := p.discoverServiceUUIDs()
	if err := p.adapter.DiscoverServices(p.ID, want); err != nil {
		p.logger.WithError(err).WithField("peripheral", p.ID).Warn("discover services failed to start")
	}
}

func (p *Peripheral) discoverServiceUUIDs() []gatt.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.description == nil || p.description.Services == nil {
		return nil
	}
	uuids := make([]gatt.UUID, 0, p.description.Services.Len())
	for pair := p.description.Services.Oldest(); pair != nil; pair = pair.Next() {
		uuids = append(uuids, pair.Key)
	}
	return uuids
}

func (p *Peripheral) HandleFailedToConnect(err error) {
	p.Storage.setState(StateDisconnected)
	p.cancelAll(fmt.Errorf("%w: %v", ErrCancelled, err))
}

func (p *Peripheral) HandleDisconnected(stale time.Duration) {
	p.Storage.setState(StateDisconnected)
	p.Storage.backdateLastActivity(stale / 4)
	p.cancelAll(ErrCancelled)
	p.mu.Lock()
	p.connectedCh = make(chan struct{})
	p.mu.Unlock()
}

func (p *Peripheral) cancelAll(err error) {
	p.mu.Lock()
	states := make([]*charState, 0, len(p.chars))
	for _, cs := range p.chars {
		states = append(states, cs)
	}
	p.mu.Unlock()
	for _, cs := range states {
		cs.read.CancelAll(err)
	}
	p.rssi.CancelAll(err)
}

func (p *Peripheral) HandleDidDiscoverServices(services []osble.ServiceInfo, err error) {
	if err != nil {
		p.logger.WithError(err).WithField("peripheral", p.ID).Warn("discover services failed")
		return
	}
	p.Storage.setServices(services)

	p.mu.Lock()
	p.servicesRemaining = make(map[gatt.UUID]struct{}, len(services))
	for _, s := range services {
		p.servicesRemaining[s.UUID] = struct{}{}
	}
	remaining := len(p.servicesRemaining)
	p.mu.Unlock()

	if remaining == 0 {
		p.finishDiscovery()
		return
	}
	for _, s := range services {
		uuids := p.discoverCharacteristicUUIDs(s.UUID)
		if err := p.adapter.DiscoverCharacteristics(p.ID, s.UUID, uuids); err != nil {
			p.logger.WithError(err).WithField("service", s.UUID).Warn("discover characteristics failed to start")
		}
	}
}

func (p *Peripheral) discoverCharacteristicUUIDs(serviceUUID gatt.UUID) []gatt.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.description == nil || p.description.Services == nil {
		return nil
	}
	svcDesc, ok := p.description.Services.Get(serviceUUID)
	if !ok || svcDesc.Characteristics == nil {
		return nil
	}
	uuids := make([]gatt.UUID, 0, svcDesc.Characteristics.Len())
	for pair := svcDesc.Characteristics.Oldest(); pair != nil; pair = pair.Next() {
		uuids = append(uuids, pair.Key)
	}
	return uuids
}

func (p *Peripheral) HandleDidDiscoverCharacteristics(serviceUUID gatt.UUID, chars []osble.CharacteristicInfo, err error) {
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{"peripheral": p.ID, "service": serviceUUID}).Warn("discover characteristics failed")
	} else {
		p.Storage.setCharacteristics(serviceUUID, chars)
		p.autoReadAndSubscribe(serviceUUID, chars)
	}

	p.mu.Lock()
	delete(p.servicesRemaining, serviceUUID)
	remaining := len(p.servicesRemaining)
	p.mu.Unlock()

	if remaining == 0 {
		p.finishDiscovery()
	}
}

// autoReadAndSubscribe implements spec.md §4.3 step 2: it issues reads
// for autoRead characteristics and requests descriptor discovery for
// characteristics that ask for it. It does not enable notifications;
// central's Characteristic enables them for default-notify
// characteristics once, when its Device is bound.
func (p *Peripheral) autoReadAndSubscribe(serviceUUID gatt.UUID, chars []osble.CharacteristicInfo) {
	p.mu.Lock()
	var svcDesc *discovery.ServiceDescription
	if p.description != nil && p.description.Services != nil {
		svcDesc, _ = p.description.Services.Get(serviceUUID)
	}
	p.mu.Unlock()
	if svcDesc == nil || svcDesc.Characteristics == nil {
		return
	}

	for _, c := range chars {
		desc, ok := svcDesc.Characteristics.Get(c.Ref.UUID)
		if !ok {
			continue
		}
		ref := CharRef{ServiceUUID: serviceUUID, UUID: c.Ref.UUID}
		if desc.DiscoverDescriptors {
			if err := p.adapter.DiscoverDescriptors(p.ID, ref); err != nil {
				p.logger.WithError(err).WithField("char", ref).Debug("discover descriptors failed")
			}
		}
		if desc.AutoRead && c.Properties.Has(osble.PropRead) {
			groutine.Go(context.Background(), "peripheral-"+p.ID+"-autoread", func(ctx context.Context) {
				if _, err := p.Read(ctx, ref); err != nil {
					p.logger.WithError(err).WithField("char", ref).Debug("autoRead failed")
				}
			})
		}
	}
}

// finishDiscovery is spec.md's signal_fully_discovered: the peripheral
// only becomes observably Connected once every targeted service's
// characteristics have been discovered.
func (p *Peripheral) finishDiscovery() {
	p.Storage.setState(StateConnected)
	p.mu.Lock()
	select {
	case <-p.connectedCh:
	default:
		close(p.connectedCh)
	}
	p.mu.Unlock()
}

// HandleDidModifyServices implements spec.md §4.3's didModifyServices
// handling: invalidate removed services and trigger rediscovery of the
// same ids.
func (p *Peripheral) HandleDidModifyServices(invalidated []gatt.UUID) {
	p.Storage.invalidateServices(invalidated)
	p.mu.Lock()
	for ref, cs := range p.chars {
		for _, u := range invalidated {
			if ref.ServiceUUID == u {
				cs.read.CancelAll(ErrNotPresent)
			}
		}
	}
	p.mu.Unlock()
	if err := p.adapter.DiscoverServices(p.ID, invalidated); err != nil {
		p.logger.WithError(err).Warn("rediscovery after didModifyServices failed to start")
	}
}

func (p *Peripheral) HandleDidUpdateValue(ref CharRef, value []byte, err error) {
	cs := p.charState(ref)
	if err != nil {
		cs.read.Resume(nil, err)
		return
	}
	p.Storage.setValue(ref.ServiceUUID, ref.UUID, value)
	cs.read.Resume(value, nil)
	cs.cp.deliver(value)
	cs.history.record(value)
	cs.stream.Publish(value)
}

func (p *Peripheral) HandleDidWriteValue(ref CharRef, err error) {
	cs := p.charState(ref)
	cs.writeMu.Lock()
	done := cs.writeDone
	cs.writeDone = nil
	cs.writeMu.Unlock()
	if done != nil {
		done <- err
	}
}

// HandleIsReadyToSendWriteWithoutResponse drains one queued
// write-without-response waiter, FIFO, per spec.md §4.3.
func (p *Peripheral) HandleIsReadyToSendWriteWithoutResponse() {
	if waiter, err := p.wwrQueue.Dequeue(); err == nil {
		close(waiter)
	}
}

func (p *Peripheral) HandleDidUpdateNotificationState(ref CharRef, notifying bool, err error) {
	if err != nil {
		p.logger.WithError(err).WithField("char", ref).Warn("set notify failed")
		return
	}
	p.Storage.setNotifying(ref.ServiceUUID, ref.UUID, notifying)
}

func (p *Peripheral) HandleDidReadRSSI(rssi int, err error) {
	p.rssi.Resume(rssi, err)
	if err == nil {
		p.Storage.setRSSI(rssi)
	}
}

// --- GATT operation serializer: application-facing entry points ---

// Read issues a characteristic read, coalescing with any in-flight
// read on the same characteristic (spec.md §4.3, §8 "read coalescing").
// A read attempted while a write is pending on the same characteristic
// is rejected: the per-characteristic invariant allows one write or
// read initiation in flight, never both.
func (p *Peripheral) Read(ctx context.Context, ref CharRef) ([]byte, error) {
	if _, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPresent, ref)
	}
	cs := p.charState(ref)

	cs.writeMu.Lock()
	writePending := cs.writeDone != nil
	cs.writeMu.Unlock()
	if writePending {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentWrite, ref)
	}

	return cs.read.Perform(ctx, func() error {
		return p.adapter.Read(p.ID, ref)
	})
}

// Write issues a write-with-response; a concurrent write, or a read
// still in flight, on the same characteristic is rejected with
// ErrConcurrentWrite rather than queued, per spec.md §4.3.
func (p *Peripheral) Write(ctx context.Context, ref CharRef, data []byte) error {
	if _, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID); !ok {
		return fmt.Errorf("%w: %s", ErrNotPresent, ref)
	}
	cs := p.charState(ref)

	cs.writeMu.Lock()
	if cs.writeDone != nil || cs.read.InFlight() {
		cs.writeMu.Unlock()
		return fmt.Errorf("%w: %s", ErrConcurrentWrite, ref)
	}
	done := make(chan error, 1)
	cs.writeDone = done
	cs.writeMu.Unlock()

	if err := p.adapter.Write(p.ID, ref, data, true); err != nil {
		cs.writeMu.Lock()
		if cs.writeDone == done {
			cs.writeDone = nil
		}
		cs.writeMu.Unlock()
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// WriteWithoutResponse queues data onto the FIFO back-pressure queue
// spec.md §4.3 requires: the call blocks until the OS signals it is
// ready to accept another write-without-response, then issues the
// write. Uses the teacher's hedzr/go-ringbuf mpmc queue (internal/lua's
// bounded-collector pattern) as the FIFO of waiters.
func (p *Peripheral) WriteWithoutResponse(ctx context.Context, ref CharRef, data []byte) error {
	if _, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID); !ok {
		return fmt.Errorf("%w: %s", ErrNotPresent, ref)
	}
	cs := p.charState(ref)

	cs.writeMu.Lock()
	if cs.writeDone != nil || cs.read.InFlight() {
		cs.writeMu.Unlock()
		return fmt.Errorf("%w: %s", ErrConcurrentWrite, ref)
	}
	done := make(chan error, 1)
	cs.writeDone = done
	cs.writeMu.Unlock()
	defer func() {
		cs.writeMu.Lock()
		if cs.writeDone == done {
			cs.writeDone = nil
		}
		cs.writeMu.Unlock()
	}()

	waiter := make(chan struct{})
	if _, err := p.wwrQueue.EnqueueM(waiter); err != nil {
		return fmt.Errorf("osble: write-without-response queue full: %w", err)
	}

	select {
	case <-waiter:
	case <-ctx.Done():
		return ErrCancelled
	}

	if err := p.adapter.Write(p.ID, ref, data, false); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// EnableNotifications toggles notifications/indications on ref. The
// request is recorded before the OS acknowledges it, so a control-point
// transaction issued immediately afterwards is not rejected for a
// not-yet-confirmed subscription.
func (p *Peripheral) EnableNotifications(ref CharRef, enabled bool) error {
	if _, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID); !ok {
		return fmt.Errorf("%w: %s", ErrNotPresent, ref)
	}
	cs := p.charState(ref)
	if err := p.adapter.SetNotify(p.ID, ref, enabled); err != nil {
		return err
	}
	cs.notifyRequested.Store(enabled)
	return nil
}

// ReadRSSI issues a serialized RSSI read, coalescing concurrent callers
// exactly like characteristic reads (spec.md §4.3).
func (p *Peripheral) ReadRSSI(ctx context.Context) (int, error) {
	return p.rssi.Perform(ctx, func() error {
		return p.adapter.ReadRSSI(p.ID)
	})
}

// Subscribe returns a live subscription to a characteristic's value
// updates. initial controls spec.md §4.3's "initial value" semantics:
// when true and a value is already known, the subscription's first
// receive is that value; otherwise it only sees values received after
// this call.
func (p *Peripheral) Subscribe(ref CharRef, initial bool) *asyncutil.Subscription[[]byte] {
	cs := p.charState(ref)
	sub := cs.stream.Subscribe()
	if initial {
		// Seed exactly once with the current value. The history's
		// newest frame is that value whenever any update has been
		// recorded; the storage lookup only covers a characteristic
		// whose history was evicted wholesale (payload larger than the
		// buffer).
		if frames := cs.history.snapshot(); len(frames) > 0 {
			sub.Seed(frames[len(frames)-1])
		} else if c, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID); ok && c.Value != nil {
			sub.Seed(c.Value)
		}
	}
	return sub
}
