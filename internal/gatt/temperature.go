package gatt

import "github.com/srgg/blecentral/internal/codec"

const (
	tempFlagFahrenheit uint8 = 1 << 0
	tempFlagTimestamp  uint8 = 1 << 1
	tempFlagType       uint8 = 1 << 2
)

// TemperatureUnit distinguishes Celsius from Fahrenheit.
type TemperatureUnit int

const (
	TemperatureCelsius TemperatureUnit = iota
	TemperatureFahrenheit
)

// TemperatureType is the body-location enumeration used by the
// optional Temperature Type byte (0x2A1D) and the optional trailing
// byte of Temperature Measurement.
type TemperatureType uint8

const (
	TemperatureTypeArmpit           TemperatureType = 1
	TemperatureTypeBody             TemperatureType = 2
	TemperatureTypeEar              TemperatureType = 3
	TemperatureTypeFinger           TemperatureType = 4
	TemperatureTypeGastroIntestinal TemperatureType = 5
	TemperatureTypeMouth            TemperatureType = 6
	TemperatureTypeRectum           TemperatureType = 7
	TemperatureTypeToe              TemperatureType = 8
	TemperatureTypeTympanum         TemperatureType = 9
)

// TemperatureMeasurement is the Temperature Measurement characteristic
// (0x2A1C): 1-byte flags, a MedFloat32 reading, optional timestamp and
// optional temperature type.
type TemperatureMeasurement struct {
	Unit      TemperatureUnit
	Value     codec.MedFloat32
	Timestamp *DateTime
	Type      *TemperatureType
}

func (m *TemperatureMeasurement) Decode(data []byte, end codec.Endianness) bool {
	r := codec.NewReader(data, end)
	flags, ok := r.ReadUint8()
	if !ok {
		return false
	}
	valBytes, ok := r.ReadBytes(4)
	if !ok {
		return false
	}
	val, ok := codec.DecodeMedFloat32(valBytes, end)
	if !ok {
		return false
	}

	m.Unit = TemperatureCelsius
	if flags&tempFlagFahrenheit != 0 {
		m.Unit = TemperatureFahrenheit
	}
	m.Value = val
	m.Timestamp, m.Type = nil, nil

	if flags&tempFlagTimestamp != 0 {
		b, ok := r.ReadBytes(7)
		if !ok {
			return false
		}
		var ts DateTime
		if !ts.Decode(b, end) {
			return false
		}
		m.Timestamp = &ts
	}
	if flags&tempFlagType != 0 {
		t, ok := r.ReadUint8()
		if !ok {
			return false
		}
		tt := TemperatureType(t)
		m.Type = &tt
	}
	return true
}

func (m TemperatureMeasurement) Encode(end codec.Endianness) []byte {
	var flags uint8
	if m.Unit == TemperatureFahrenheit {
		flags |= tempFlagFahrenheit
	}
	if m.Timestamp != nil {
		flags |= tempFlagTimestamp
	}
	if m.Type != nil {
		flags |= tempFlagType
	}

	w := codec.NewWriter(end)
	w.WriteUint8(flags)
	w.WriteBytes(m.Value.Encode(end))
	if m.Timestamp != nil {
		w.WriteBytes(m.Timestamp.Encode(end))
	}
	if m.Type != nil {
		w.WriteUint8(uint8(*m.Type))
	}
	return w.Bytes()
}

// MeasurementInterval is the 16-bit characteristic (0x2A21); 0 means
// "no periodic measurement".
type MeasurementInterval uint16

func DecodeMeasurementInterval(data []byte, end codec.Endianness) (MeasurementInterval, bool) {
	r := codec.NewReader(data, end)
	v, ok := r.ReadUint16()
	if !ok {
		return 0, false
	}
	return MeasurementInterval(v), true
}

func (m MeasurementInterval) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint16(uint16(m))
	return w.Bytes()
}

func (m MeasurementInterval) IsPeriodic() bool { return m != 0 }
