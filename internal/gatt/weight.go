package gatt

import "github.com/srgg/blecentral/internal/codec"

// Weight Measurement flag bits (0x2A9D).
const (
	weightFlagImperial  uint8 = 1 << 0
	weightFlagTimestamp uint8 = 1 << 1
	weightFlagUserID    uint8 = 1 << 2
	weightFlagBMIHeight uint8 = 1 << 3
)

// WeightUnit distinguishes SI (kg/m) from imperial (lb/in) units, as
// determined by the measurement's flag byte.
type WeightUnit int

const (
	WeightUnitSI WeightUnit = iota
	WeightUnitImperial
)

// WeightMeasurement is the Weight Measurement characteristic (0x2A9D).
// Resolution of the raw Weight/BMI/Height fields depends on
// WeightScaleFeature, reported by a separate characteristic (0x2A9E);
// callers combine the two to compute real-world units.
type WeightMeasurement struct {
	Unit   WeightUnit
	Weight uint16

	Timestamp *DateTime
	UserID    *uint8
	BMI       *uint16
	Height    *uint16
}

func (m *WeightMeasurement) Decode(data []byte, end codec.Endianness) bool {
	r := codec.NewReader(data, end)
	flags, ok := r.ReadUint8()
	if !ok {
		return false
	}
	weight, ok := r.ReadUint16()
	if !ok {
		return false
	}

	m.Unit = WeightUnitSI
	if flags&weightFlagImperial != 0 {
		m.Unit = WeightUnitImperial
	}
	m.Weight = weight
	m.Timestamp, m.UserID, m.BMI, m.Height = nil, nil, nil, nil

	if flags&weightFlagTimestamp != 0 {
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
	if flags&weightFlagUserID != 0 {
		uid, ok := r.ReadUint8()
		if !ok {
			return false
		}
		m.UserID = &uid
	}
	if flags&weightFlagBMIHeight != 0 {
		bmi, ok := r.ReadUint16()
		if !ok {
			return false
		}
		height, ok := r.ReadUint16()
		if !ok {
			return false
		}
		m.BMI, m.Height = &bmi, &height
	}
	return true
}

func (m WeightMeasurement) Encode(end codec.Endianness) []byte {
	var flags uint8
	if m.Unit == WeightUnitImperial {
		flags |= weightFlagImperial
	}
	if m.Timestamp != nil {
		flags |= weightFlagTimestamp
	}
	if m.UserID != nil {
		flags |= weightFlagUserID
	}
	if m.BMI != nil && m.Height != nil {
		flags |= weightFlagBMIHeight
	}

	w := codec.NewWriter(end)
	w.WriteUint8(flags)
	w.WriteUint16(m.Weight)
	if m.Timestamp != nil {
		w.WriteBytes(m.Timestamp.Encode(end))
	}
	if m.UserID != nil {
		w.WriteUint8(*m.UserID)
	}
	if m.BMI != nil && m.Height != nil {
		w.WriteUint16(*m.BMI)
		w.WriteUint16(*m.Height)
	}
	return w.Bytes()
}

// WeightScaleFeature is the 32-bit feature bitfield (0x2A9E): bits 0-2
// report optional supported capabilities, bits 3-6 give the
// weight-resolution code and bits 7-9 the height-resolution code.
type WeightScaleFeature uint32

const (
	WeightScaleFeatureTimeStampSupported      WeightScaleFeature = 1 << 0
	WeightScaleFeatureMultipleUsersSupported  WeightScaleFeature = 1 << 1
	WeightScaleFeatureBMISupported            WeightScaleFeature = 1 << 2
)

// WeightResolution decodes the 4-bit weight-resolution code (bits 3-6).
func (f WeightScaleFeature) WeightResolution() uint8 {
	return uint8((f >> 3) & 0xF)
}

// HeightResolution decodes the 3-bit height-resolution code (bits 7-9).
func (f WeightScaleFeature) HeightResolution() uint8 {
	return uint8((f >> 7) & 0x7)
}

func DecodeWeightScaleFeature(data []byte, end codec.Endianness) (WeightScaleFeature, bool) {
	r := codec.NewReader(data, end)
	v, ok := r.ReadUint32()
	if !ok {
		return 0, false
	}
	return WeightScaleFeature(v), true
}

func (f WeightScaleFeature) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint32(uint32(f))
	return w.Bytes()
}

// RealWeightKg converts a raw Weight field to kilograms. The base
// characteristic definition fixes the SI step at 0.005 kg regardless
// of the resolution code WeightScaleFeature advertises; that code
// only tells the application how many of the low decimal digits are
// actually meaningful for the attached hardware.
func RealWeightKg(raw uint16, feature WeightScaleFeature) float64 {
	_ = feature
	return float64(raw) * 0.005
}

// RealWeightLb converts a raw Weight field to pounds (imperial unit step is 0.01 lb).
func RealWeightLb(raw uint16) float64 {
	return float64(raw) * 0.01
}
