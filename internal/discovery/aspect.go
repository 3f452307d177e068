package discovery

import (
	"strings"

	"github.com/srgg/blecentral/internal/gatt"
)

// AspectKind discriminates the DescriptorAspect sum type.
type AspectKind int

const (
	AspectNameSubstring AspectKind = iota
	AspectService
	AspectManufacturer
	AspectBluetoothRange
	AspectSupportOptions
)

// DescriptorAspect is one matching predicate within a DiscoveryCriteria.
// Exactly one field group is meaningful, selected by Kind; construct
// instances with the Aspect* helpers below rather than the zero value.
type DescriptorAspect struct {
	Kind AspectKind

	// AspectNameSubstring
	NameSubstring string

	// AspectService
	ServiceUUID gatt.UUID
	ServiceData *DataDescriptor

	// AspectManufacturer
	ManufacturerID   ManufacturerIdentifier
	ManufacturerData *DataDescriptor

	// AspectBluetoothRange / AspectSupportOptions: passive during
	// advertisement matching, surfaced verbatim to the OS accessory-
	// setup subsystem when registering a descriptor.
	RangeOrOptions int
}

func AspectNameSubstringOf(substring string) DescriptorAspect {
	return DescriptorAspect{Kind: AspectNameSubstring, NameSubstring: substring}
}

func AspectServiceOf(uuid gatt.UUID, data *DataDescriptor) DescriptorAspect {
	return DescriptorAspect{Kind: AspectService, ServiceUUID: uuid, ServiceData: data}
}

func AspectManufacturerOf(id ManufacturerIdentifier, data *DataDescriptor) DescriptorAspect {
	return DescriptorAspect{Kind: AspectManufacturer, ManufacturerID: id, ManufacturerData: data}
}

func AspectBluetoothRangeOf(n int) DescriptorAspect {
	return DescriptorAspect{Kind: AspectBluetoothRange, RangeOrOptions: n}
}

func AspectSupportOptionsOf(n int) DescriptorAspect {
	return DescriptorAspect{Kind: AspectSupportOptions, RangeOrOptions: n}
}

// Matches implements the per-aspect semantics of spec §4.1.
// peripheralGAPName is the peripheral's last-known GAP device name,
// used only as a fallback when the advertisement carries no local name.
func (a DescriptorAspect) Matches(peripheralGAPName *string, adv AdvertisementData) bool {
	switch a.Kind {
	case AspectNameSubstring:
		if adv.LocalName != nil {
			return strings.Contains(*adv.LocalName, a.NameSubstring)
		}
		if peripheralGAPName != nil {
			return strings.Contains(*peripheralGAPName, a.NameSubstring)
		}
		return false

	case AspectService:
		if !adv.hasServiceUUID(a.ServiceUUID) {
			return false
		}
		if a.ServiceData == nil {
			return true
		}
		payload, ok := adv.ServiceData[a.ServiceUUID]
		if !ok {
			return false
		}
		return a.ServiceData.Matches(payload)

	case AspectManufacturer:
		id, ok := ManufacturerIdentifierFromData(adv.ManufacturerData)
		if !ok || id != a.ManufacturerID {
			return false
		}
		if a.ManufacturerData == nil {
			return true
		}
		return a.ManufacturerData.Matches(adv.ManufacturerData[2:])

	case AspectBluetoothRange, AspectSupportOptions:
		return true

	default:
		return false
	}
}
