package gatt

import (
	"strings"
	"unicode/utf8"

	"github.com/srgg/blecentral/internal/codec"
)

// ClientCharacteristicConfig is the CCCD value (0x2902): the two bits
// that turn notifications/indications on and off.
type ClientCharacteristicConfig struct {
	Notifications bool
	Indications   bool
}

func (c *ClientCharacteristicConfig) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 2 {
		return false
	}
	v, ok := codec.NewReader(data, end).ReadUint16()
	if !ok {
		return false
	}
	c.Notifications = v&0x0001 != 0
	c.Indications = v&0x0002 != 0
	return true
}

func (c ClientCharacteristicConfig) Encode(end codec.Endianness) []byte {
	var v uint16
	if c.Notifications {
		v |= 0x0001
	}
	if c.Indications {
		v |= 0x0002
	}
	w := codec.NewWriter(end)
	w.WriteUint16(v)
	return w.Bytes()
}

// CharacteristicExtendedProperties is the 0x2900 descriptor value.
type CharacteristicExtendedProperties struct {
	ReliableWrite       bool
	WritableAuxiliaries bool
}

func (e *CharacteristicExtendedProperties) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 2 {
		return false
	}
	v, ok := codec.NewReader(data, end).ReadUint16()
	if !ok {
		return false
	}
	e.ReliableWrite = v&0x0001 != 0
	e.WritableAuxiliaries = v&0x0002 != 0
	return true
}

func (e CharacteristicExtendedProperties) Encode(end codec.Endianness) []byte {
	var v uint16
	if e.ReliableWrite {
		v |= 0x0001
	}
	if e.WritableAuxiliaries {
		v |= 0x0002
	}
	w := codec.NewWriter(end)
	w.WriteUint16(v)
	return w.Bytes()
}

// DecodeCharacteristicUserDescription trims a trailing NUL and
// validates the remaining bytes as UTF-8.
func DecodeCharacteristicUserDescription(data []byte) (string, bool) {
	s := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(s) {
		return "", false
	}
	return s, true
}

// CharacteristicPresentationFormat is the 0x2904 descriptor value.
type CharacteristicPresentationFormat struct {
	Format      uint8
	Exponent    int8
	Unit        uint16 // Bluetooth SIG unit UUID (16-bit)
	Namespace   uint8
	Description uint16
}

func (p *CharacteristicPresentationFormat) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 7 {
		return false
	}
	r := codec.NewReader(data, end)
	format, ok := r.ReadUint8()
	if !ok {
		return false
	}
	exponent, ok := r.ReadInt8()
	if !ok {
		return false
	}
	unit, ok := r.ReadUint16()
	if !ok {
		return false
	}
	namespace, ok := r.ReadUint8()
	if !ok {
		return false
	}
	description, ok := r.ReadUint16()
	if !ok {
		return false
	}
	p.Format, p.Exponent, p.Unit, p.Namespace, p.Description = format, exponent, unit, namespace, description
	return true
}

func (p CharacteristicPresentationFormat) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint8(p.Format)
	w.WriteInt8(p.Exponent)
	w.WriteUint16(p.Unit)
	w.WriteUint8(p.Namespace)
	w.WriteUint16(p.Description)
	return w.Bytes()
}

// ValidRange is the 0x2906 descriptor value. Its wire format depends
// on the owning characteristic's value format; min/max are split
// evenly across the buffer, matching the teacher's descriptor_types.go
// convention for this descriptor.
type ValidRange struct {
	Min []byte
	Max []byte
}

func (v *ValidRange) Decode(data []byte, _ codec.Endianness) bool {
	if len(data) < 2 {
		return false
	}
	mid := len(data) / 2
	v.Min = append([]byte(nil), data[:mid]...)
	v.Max = append([]byte(nil), data[mid:]...)
	return true
}

func (v ValidRange) Encode(_ codec.Endianness) []byte {
	out := make([]byte, 0, len(v.Min)+len(v.Max))
	out = append(out, v.Min...)
	out = append(out, v.Max...)
	return out
}
