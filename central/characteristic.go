package central

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/srgg/blecentral/internal/asyncutil"
	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/groutine"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/srgg/blecentral/internal/peripheral"
)

// ErrNotBound is returned by a Characteristic's operations before its
// owning Device has been bound to a live peripheral.
var ErrNotBound = errors.New("central: characteristic not bound to a peripheral")

const valueStreamCapacity = 8

// injectable is the narrow surface Service.Walk needs to install a
// PeripheralInjection for a heterogeneously-typed characteristic slot,
// without Service itself needing to be generic over T.
type injectable interface {
	descriptor() discovery.CharacteristicDescription
	bind(ctx context.Context, p *peripheral.Peripheral)
}

// Characteristic is a typed, codec-bound declarative slot — spec.md
// §4.4's "PeripheralInjection": it carries the (service, characteristic)
// UUID pair, a default-notify flag, a decoder/encoder pair at the byte
// codec boundary, and a pointer to the observable decoded value.
type Characteristic[T any] struct {
	ref                 osble.CharacteristicRef
	discoverDescriptors bool
	autoRead            bool
	defaultNotify       bool
	decode              func([]byte) (T, bool)
	encode              func(T) []byte

	mu    sync.RWMutex
	p     *peripheral.Peripheral
	value *T

	stream *asyncutil.Stream[T]
}

// NewCharacteristic declares a characteristic slot decodable/encodable
// via decode/encode, the byte codec contract spec.md §4.7 requires of
// every GATT payload type.
func NewCharacteristic[T any](serviceUUID, charUUID gatt.UUID, decode func([]byte) (T, bool), encode func(T) []byte) *Characteristic[T] {
	return &Characteristic[T]{
		ref:    osble.CharacteristicRef{ServiceUUID: serviceUUID, UUID: charUUID},
		decode: decode,
		encode: encode,
		stream: asyncutil.NewStream[T](valueStreamCapacity),
	}
}

// WithAutoRead marks this characteristic for a read as soon as it is
// discovered after connecting, per spec.md §4.3 step 2 (requires the
// read property).
func (c *Characteristic[T]) WithAutoRead() *Characteristic[T] {
	c.autoRead = true
	return c
}

// WithDiscoverDescriptors requests the characteristic's descriptors be
// enumerated at discovery time.
func (c *Characteristic[T]) WithDiscoverDescriptors() *Characteristic[T] {
	c.discoverDescriptors = true
	return c
}

// WithDefaultNotify enables notifications on bind, per spec.md §4.3
// step 3 / §4.4's "default-notify flag". The request is made once, when
// the Device is bound; if the characteristic is not in the peripheral's
// GATT table at that moment, notifications stay off.
func (c *Characteristic[T]) WithDefaultNotify() *Characteristic[T] {
	c.defaultNotify = true
	return c
}

func (c *Characteristic[T]) descriptor() discovery.CharacteristicDescription {
	return discovery.CharacteristicDescription{
		UUID:                c.ref.UUID,
		DiscoverDescriptors: c.discoverDescriptors,
		AutoRead:            c.autoRead,
	}
}

// bind installs this injection against a live peripheral: spec.md
// §4.4's per-injection contract. It seeds the observable value from
// whatever is already known, then watches both the characteristic's
// raw byte stream (for live updates) and the storage's structural
// change stream (for rediscovery/invalidation after reconnects or
// didModifyServices) until ctx is cancelled (Device.Release).
func (c *Characteristic[T]) bind(ctx context.Context, p *peripheral.Peripheral) {
	c.mu.Lock()
	c.p = p
	c.mu.Unlock()

	c.refresh()

	byteSub := p.Subscribe(c.ref, false)
	changeSub := p.Storage.SubscribeChanges()

	groutine.Go(ctx, "binding-"+c.ref.String(), func(ctx context.Context) {
		defer byteSub.Cancel()
		defer changeSub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-byteSub.C():
				if !ok {
					return
				}
				c.setFromBytes(raw)
			case _, ok := <-changeSub.C():
				if !ok {
					return
				}
				c.refresh()
			}
		}
	})

	if c.defaultNotify {
		_ = p.EnableNotifications(c.ref, true)
	}
}

// refresh re-resolves the characteristic against the peripheral's
// current GATT table: clears the value if the characteristic
// disappeared, or re-decodes if a value is present.
func (c *Characteristic[T]) refresh() {
	c.mu.RLock()
	p := c.p
	c.mu.RUnlock()
	if p == nil {
		return
	}
	gc, ok := p.Storage.Characteristic(c.ref.ServiceUUID, c.ref.UUID)
	if !ok {
		c.mu.Lock()
		c.value = nil
		c.mu.Unlock()
		return
	}
	if gc.Value != nil {
		c.setFromBytes(gc.Value)
	}
}

func (c *Characteristic[T]) setFromBytes(raw []byte) {
	v, ok := c.decode(raw)
	if !ok {
		return
	}
	c.setValue(v)
}

func (c *Characteristic[T]) setValue(v T) {
	c.mu.Lock()
	c.value = &v
	c.mu.Unlock()
	c.stream.Publish(v)
}

// Value returns the last decoded value and whether one is known.
func (c *Characteristic[T]) Value() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		var zero T
		return zero, false
	}
	return *c.value, true
}

func (c *Characteristic[T]) peripheralOrNil() *peripheral.Peripheral {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p
}

// Read issues a characteristic read through the peripheral's GATT
// serializer and decodes the result, per spec.md §4.4's "read() calls
// through the runtime's serializer with codec at the boundary."
func (c *Characteristic[T]) Read(ctx context.Context) (T, error) {
	var zero T
	p := c.peripheralOrNil()
	if p == nil {
		return zero, ErrNotBound
	}
	raw, err := p.Read(ctx, c.ref)
	if err != nil {
		return zero, err
	}
	v, ok := c.decode(raw)
	if !ok {
		return zero, fmt.Errorf("%w: %s", peripheral.ErrIncompatibleFormat, c.ref)
	}
	c.setValue(v)
	return v, nil
}

// Write encodes v and issues a write-with-response.
func (c *Characteristic[T]) Write(ctx context.Context, v T) error {
	p := c.peripheralOrNil()
	if p == nil {
		return ErrNotBound
	}
	return p.Write(ctx, c.ref, c.encode(v))
}

// WriteWithoutResponse encodes v and issues a write-without-response.
func (c *Characteristic[T]) WriteWithoutResponse(ctx context.Context, v T) error {
	p := c.peripheralOrNil()
	if p == nil {
		return ErrNotBound
	}
	return p.WriteWithoutResponse(ctx, c.ref, c.encode(v))
}

// EnableNotifications toggles notifications on the underlying
// characteristic.
func (c *Characteristic[T]) EnableNotifications(enabled bool) error {
	p := c.peripheralOrNil()
	if p == nil {
		return ErrNotBound
	}
	return p.EnableNotifications(c.ref, enabled)
}

// OnChange returns a subscription to decoded value changes. initial
// mirrors spec.md §4.3's "initial value" semantics at the decoded-value
// layer: when true and a value is already known, the subscription's
// first receive is that value.
func (c *Characteristic[T]) OnChange(initial bool) *asyncutil.Subscription[T] {
	sub := c.stream.Subscribe()
	if initial {
		if v, ok := c.Value(); ok {
			sub.Seed(v)
		}
	}
	return sub
}
