// Package discovery implements the predicates an application composes
// to describe which BLE peripherals it is interested in, and the
// declarative device/service/characteristic shape bound to them once
// found.
package discovery

import (
	"encoding/binary"

	"github.com/srgg/blecentral/internal/gatt"
)

// AdvertisementData is a parsed advertising PDU. It is immutable once
// constructed; callers build a new value for each advertisement event
// rather than mutating one in place.
type AdvertisementData struct {
	LocalName             *string
	ServiceUUIDs          []gatt.UUID
	OverflowServiceUUIDs  []gatt.UUID
	ServiceData           map[gatt.UUID][]byte
	ManufacturerData      []byte
	TxPower               *int8
	Connectable           bool
	SolicitedServiceUUIDs []gatt.UUID
}

func (a AdvertisementData) hasServiceUUID(u gatt.UUID) bool {
	for _, s := range a.ServiceUUIDs {
		if s == u {
			return true
		}
	}
	for _, s := range a.OverflowServiceUUIDs {
		if s == u {
			return true
		}
	}
	return false
}

// ManufacturerIdentifier is the 16-bit little-endian company ID
// prefixing a manufacturer-data payload.
type ManufacturerIdentifier uint16

// ManufacturerIdentifierFromData extracts the identifier from the
// first two bytes of manufacturer data.
func ManufacturerIdentifierFromData(data []byte) (ManufacturerIdentifier, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return ManufacturerIdentifier(binary.LittleEndian.Uint16(data[:2])), true
}

// DataDescriptor is a (data, mask) pair of equal length. Matches holds
// iff, for every bit set in mask, the corresponding bit in payload
// equals the corresponding bit in data. A payload shorter than the
// mask never matches.
type DataDescriptor struct {
	Data []byte
	Mask []byte
}

func (d DataDescriptor) Matches(payload []byte) bool {
	if len(payload) < len(d.Mask) {
		return false
	}
	for i, m := range d.Mask {
		if payload[i]&m != d.Data[i]&m {
			return false
		}
	}
	return true
}
