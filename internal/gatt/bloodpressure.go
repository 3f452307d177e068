package gatt

import (
	"github.com/srgg/blecentral/internal/codec"
)

// Blood Pressure Measurement flag bits (0x2A35).
const (
	bpFlagKPa           uint8 = 1 << 0
	bpFlagTimestamp     uint8 = 1 << 1
	bpFlagPulseRate     uint8 = 1 << 2
	bpFlagUserID        uint8 = 1 << 3
	bpFlagMeasurementStatus uint8 = 1 << 4
)

// BloodPressureUnit indicates the unit the measurement's three
// pressure fields are expressed in.
type BloodPressureUnit int

const (
	UnitMmHg BloodPressureUnit = iota
	UnitKPa
)

// BloodPressureStatus is the optional status bitfield (bit layout per
// the current Bluetooth GATT Specification Supplement). Open Question
// in spec.md §9 ("are the two pulse-rate limit bits swapped?") is
// resolved here in favor of the current supplement's convention: see
// SPEC_FULL.md §12.
type BloodPressureStatus uint16

const (
	StatusBodyMovementDetected   BloodPressureStatus = 1 << 0
	StatusCuffTooLoose           BloodPressureStatus = 1 << 1
	StatusIrregularPulse         BloodPressureStatus = 1 << 2
	StatusPulseRateExceedsUpper  BloodPressureStatus = 1 << 3
	StatusPulseRateBelowLower    BloodPressureStatus = 1 << 4
	StatusImproperMeasurementPosition BloodPressureStatus = 1 << 5
)

// BloodPressureMeasurement is the Blood Pressure Measurement
// characteristic (0x2A35): 1-byte flags, three MedFloat16 pressure
// readings, and optional timestamp/pulse/user-id/status fields gated
// by the flag bits.
type BloodPressureMeasurement struct {
	Unit      BloodPressureUnit
	Systolic  codec.MedFloat16
	Diastolic codec.MedFloat16
	MAP       codec.MedFloat16

	Timestamp *DateTime
	PulseRate *codec.MedFloat16
	UserID    *uint8
	Status    *BloodPressureStatus
}

func (m *BloodPressureMeasurement) Decode(data []byte, end codec.Endianness) bool {
	r := codec.NewReader(data, end)
	flags, ok := r.ReadUint8()
	if !ok {
		return false
	}

	readMed := func() (codec.MedFloat16, bool) {
		b, ok := r.ReadBytes(2)
		if !ok {
			return codec.MedFloat16{}, false
		}
		return codec.DecodeMedFloat16(b, end)
	}

	sys, ok := readMed()
	if !ok {
		return false
	}
	dia, ok := readMed()
	if !ok {
		return false
	}
	mapVal, ok := readMed()
	if !ok {
		return false
	}

	m.Unit = UnitMmHg
	if flags&bpFlagKPa != 0 {
		m.Unit = UnitKPa
	}
	m.Systolic, m.Diastolic, m.MAP = sys, dia, mapVal
	m.Timestamp, m.PulseRate, m.UserID, m.Status = nil, nil, nil, nil

	if flags&bpFlagTimestamp != 0 {
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
	if flags&bpFlagPulseRate != 0 {
		pr, ok := readMed()
		if !ok {
			return false
		}
		m.PulseRate = &pr
	}
	if flags&bpFlagUserID != 0 {
		uid, ok := r.ReadUint8()
		if !ok {
			return false
		}
		m.UserID = &uid
	}
	if flags&bpFlagMeasurementStatus != 0 {
		st, ok := r.ReadUint16()
		if !ok {
			return false
		}
		status := BloodPressureStatus(st)
		m.Status = &status
	}
	return true
}

func (m BloodPressureMeasurement) Encode(end codec.Endianness) []byte {
	var flags uint8
	if m.Unit == UnitKPa {
		flags |= bpFlagKPa
	}
	if m.Timestamp != nil {
		flags |= bpFlagTimestamp
	}
	if m.PulseRate != nil {
		flags |= bpFlagPulseRate
	}
	if m.UserID != nil {
		flags |= bpFlagUserID
	}
	if m.Status != nil {
		flags |= bpFlagMeasurementStatus
	}

	w := codec.NewWriter(end)
	w.WriteUint8(flags)
	w.WriteBytes(m.Systolic.Encode(end))
	w.WriteBytes(m.Diastolic.Encode(end))
	w.WriteBytes(m.MAP.Encode(end))
	if m.Timestamp != nil {
		w.WriteBytes(m.Timestamp.Encode(end))
	}
	if m.PulseRate != nil {
		w.WriteBytes(m.PulseRate.Encode(end))
	}
	if m.UserID != nil {
		w.WriteUint8(*m.UserID)
	}
	if m.Status != nil {
		w.WriteUint16(uint16(*m.Status))
	}
	return w.Bytes()
}

// Equal compares codec-level identity of two measurements, treating
// NaN-valued pressure fields as equal to themselves (via MedFloat16.Equal).
func (m BloodPressureMeasurement) Equal(other BloodPressureMeasurement) bool {
	if m.Unit != other.Unit || !m.Systolic.Equal(other.Systolic) ||
		!m.Diastolic.Equal(other.Diastolic) || !m.MAP.Equal(other.MAP) {
		return false
	}
	if (m.Timestamp == nil) != (other.Timestamp == nil) {
		return false
	}
	if m.Timestamp != nil && *m.Timestamp != *other.Timestamp {
		return false
	}
	if (m.PulseRate == nil) != (other.PulseRate == nil) {
		return false
	}
	if m.PulseRate != nil && !m.PulseRate.Equal(*other.PulseRate) {
		return false
	}
	if (m.UserID == nil) != (other.UserID == nil) {
		return false
	}
	if m.UserID != nil && *m.UserID != *other.UserID {
		return false
	}
	if (m.Status == nil) != (other.Status == nil) {
		return false
	}
	if m.Status != nil && *m.Status != *other.Status {
		return false
	}
	return true
}

// IntermediateCuffPressure (0x2A36) shares the Blood Pressure
// Measurement layout; diastolic and MAP are always NaN per spec.
type IntermediateCuffPressure struct {
	BloodPressureMeasurement
}

func NewIntermediateCuffPressure(cuffPressure codec.MedFloat16) IntermediateCuffPressure {
	return IntermediateCuffPressure{BloodPressureMeasurement{
		Systolic:  cuffPressure,
		Diastolic: codec.MedFloat16NaN(),
		MAP:       codec.MedFloat16NaN(),
	}}
}

// BloodPressureFeature is the 16-bit feature bitfield (0x2A49).
type BloodPressureFeature uint16

const (
	FeatureBodyMovementDetectionSupported       BloodPressureFeature = 1 << 0
	FeatureCuffFitDetectionSupported            BloodPressureFeature = 1 << 1
	FeatureIrregularPulseDetectionSupported     BloodPressureFeature = 1 << 2
	FeaturePulseRateRangeDetectionSupported     BloodPressureFeature = 1 << 3
	FeatureMeasurementPositionDetectionSupported BloodPressureFeature = 1 << 4
	FeatureMultipleBondSupported                BloodPressureFeature = 1 << 5
)

func DecodeBloodPressureFeature(data []byte, end codec.Endianness) (BloodPressureFeature, bool) {
	r := codec.NewReader(data, end)
	v, ok := r.ReadUint16()
	if !ok {
		return 0, false
	}
	return BloodPressureFeature(v), true
}

func (f BloodPressureFeature) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint16(uint16(f))
	return w.Bytes()
}
