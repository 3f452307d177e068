package gatt

import "github.com/srgg/blecentral/internal/codec"

// Pulse Oximeter Service payloads (0x1822): PLX Spot-Check Measurement
// (0x2A5E), PLX Continuous Measurement (0x2A5F), PLX Features (0x2A60).

const (
	plxSpotFlagTimestamp      uint8 = 1 << 0
	plxSpotFlagMeasStatus     uint8 = 1 << 1
	plxSpotFlagSensorStatus   uint8 = 1 << 2
	plxSpotFlagPulseAmpIndex  uint8 = 1 << 3
	plxSpotFlagClockNotSet    uint8 = 1 << 4
)

// PLXMeasurementStatus is the 16-bit measurement-status bitfield
// shared by both spot-check and continuous measurements.
type PLXMeasurementStatus uint16

// PLXSensorStatus is the 24-bit device-and-sensor-status bitfield.
type PLXSensorStatus uint32

// PLXSpotCheckMeasurement is the PLX Spot-Check Measurement characteristic.
type PLXSpotCheckMeasurement struct {
	SpO2PR            PLXReading
	Timestamp         *DateTime
	MeasurementStatus *PLXMeasurementStatus
	SensorStatus      *PLXSensorStatus
	PulseAmplitudeIndex *codec.MedFloat16
	DeviceClockNotSet bool
}

// PLXReading is the SFLOAT(SpO2), SFLOAT(PR) pair common to both
// spot-check and continuous measurements.
type PLXReading struct {
	SpO2 codec.MedFloat16
	PR   codec.MedFloat16
}

func decodePLXReading(r *codec.Reader, end codec.Endianness) (PLXReading, bool) {
	b, ok := r.ReadBytes(4)
	if !ok {
		return PLXReading{}, false
	}
	spo2, ok := codec.DecodeMedFloat16(b[0:2], end)
	if !ok {
		return PLXReading{}, false
	}
	pr, ok := codec.DecodeMedFloat16(b[2:4], end)
	if !ok {
		return PLXReading{}, false
	}
	return PLXReading{SpO2: spo2, PR: pr}, true
}

func (v PLXReading) encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteBytes(v.SpO2.Encode(end))
	w.WriteBytes(v.PR.Encode(end))
	return w.Bytes()
}

func (m *PLXSpotCheckMeasurement) Decode(data []byte, end codec.Endianness) bool {
	r := codec.NewReader(data, end)
	flags, ok := r.ReadUint8()
	if !ok {
		return false
	}
	reading, ok := decodePLXReading(r, end)
	if !ok {
		return false
	}
	m.SpO2PR = reading
	m.Timestamp, m.MeasurementStatus, m.SensorStatus, m.PulseAmplitudeIndex = nil, nil, nil, nil
	m.DeviceClockNotSet = flags&plxSpotFlagClockNotSet != 0

	if flags&plxSpotFlagTimestamp != 0 {
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
	if flags&plxSpotFlagMeasStatus != 0 {
		v, ok := r.ReadUint16()
		if !ok {
			return false
		}
		st := PLXMeasurementStatus(v)
		m.MeasurementStatus = &st
	}
	if flags&plxSpotFlagSensorStatus != 0 {
		v, ok := r.ReadUint24()
		if !ok {
			return false
		}
		st := PLXSensorStatus(v)
		m.SensorStatus = &st
	}
	if flags&plxSpotFlagPulseAmpIndex != 0 {
		b, ok := r.ReadBytes(2)
		if !ok {
			return false
		}
		v, ok := codec.DecodeMedFloat16(b, end)
		if !ok {
			return false
		}
		m.PulseAmplitudeIndex = &v
	}
	return true
}

func (m PLXSpotCheckMeasurement) Encode(end codec.Endianness) []byte {
	var flags uint8
	if m.Timestamp != nil {
		flags |= plxSpotFlagTimestamp
	}
	if m.MeasurementStatus != nil {
		flags |= plxSpotFlagMeasStatus
	}
	if m.SensorStatus != nil {
		flags |= plxSpotFlagSensorStatus
	}
	if m.PulseAmplitudeIndex != nil {
		flags |= plxSpotFlagPulseAmpIndex
	}
	if m.DeviceClockNotSet {
		flags |= plxSpotFlagClockNotSet
	}

	w := codec.NewWriter(end)
	w.WriteUint8(flags)
	w.WriteBytes(m.SpO2PR.encode(end))
	if m.Timestamp != nil {
		w.WriteBytes(m.Timestamp.Encode(end))
	}
	if m.MeasurementStatus != nil {
		w.WriteUint16(uint16(*m.MeasurementStatus))
	}
	if m.SensorStatus != nil {
		w.WriteUint24(uint32(*m.SensorStatus))
	}
	if m.PulseAmplitudeIndex != nil {
		w.WriteBytes(m.PulseAmplitudeIndex.Encode(end))
	}
	return w.Bytes()
}

const (
	plxContFlagFast          uint8 = 1 << 0
	plxContFlagSlow          uint8 = 1 << 1
	plxContFlagMeasStatus    uint8 = 1 << 2
	plxContFlagSensorStatus  uint8 = 1 << 3
	plxContFlagPulseAmpIndex uint8 = 1 << 4
)

// PLXContinuousMeasurement is the PLX Continuous Measurement characteristic.
type PLXContinuousMeasurement struct {
	Normal PLXReading
	Fast   *PLXReading
	Slow   *PLXReading

	MeasurementStatus   *PLXMeasurementStatus
	SensorStatus        *PLXSensorStatus
	PulseAmplitudeIndex *codec.MedFloat16
}

func (m *PLXContinuousMeasurement) Decode(data []byte, end codec.Endianness) bool {
	r := codec.NewReader(data, end)
	flags, ok := r.ReadUint8()
	if !ok {
		return false
	}
	normal, ok := decodePLXReading(r, end)
	if !ok {
		return false
	}
	m.Normal = normal
	m.Fast, m.Slow, m.MeasurementStatus, m.SensorStatus, m.PulseAmplitudeIndex = nil, nil, nil, nil, nil

	if flags&plxContFlagFast != 0 {
		v, ok := decodePLXReading(r, end)
		if !ok {
			return false
		}
		m.Fast = &v
	}
	if flags&plxContFlagSlow != 0 {
		v, ok := decodePLXReading(r, end)
		if !ok {
			return false
		}
		m.Slow = &v
	}
	if flags&plxContFlagMeasStatus != 0 {
		v, ok := r.ReadUint16()
		if !ok {
			return false
		}
		st := PLXMeasurementStatus(v)
		m.MeasurementStatus = &st
	}
	if flags&plxContFlagSensorStatus != 0 {
		v, ok := r.ReadUint24()
		if !ok {
			return false
		}
		st := PLXSensorStatus(v)
		m.SensorStatus = &st
	}
	if flags&plxContFlagPulseAmpIndex != 0 {
		b, ok := r.ReadBytes(2)
		if !ok {
			return false
		}
		v, ok := codec.DecodeMedFloat16(b, end)
		if !ok {
			return false
		}
		m.PulseAmplitudeIndex = &v
	}
	return true
}

func (m PLXContinuousMeasurement) Encode(end codec.Endianness) []byte {
	var flags uint8
	if m.Fast != nil {
		flags |= plxContFlagFast
	}
	if m.Slow != nil {
		flags |= plxContFlagSlow
	}
	if m.MeasurementStatus != nil {
		flags |= plxContFlagMeasStatus
	}
	if m.SensorStatus != nil {
		flags |= plxContFlagSensorStatus
	}
	if m.PulseAmplitudeIndex != nil {
		flags |= plxContFlagPulseAmpIndex
	}

	w := codec.NewWriter(end)
	w.WriteUint8(flags)
	w.WriteBytes(m.Normal.encode(end))
	if m.Fast != nil {
		w.WriteBytes(m.Fast.encode(end))
	}
	if m.Slow != nil {
		w.WriteBytes(m.Slow.encode(end))
	}
	if m.MeasurementStatus != nil {
		w.WriteUint16(uint16(*m.MeasurementStatus))
	}
	if m.SensorStatus != nil {
		w.WriteUint24(uint32(*m.SensorStatus))
	}
	if m.PulseAmplitudeIndex != nil {
		w.WriteBytes(m.PulseAmplitudeIndex.Encode(end))
	}
	return w.Bytes()
}

// PLXFeatures is the PLX Features characteristic (0x2A60).
const (
	PLXFeatureMeasurementStatusSupported   PLXFeatures = 1 << 0
	PLXFeatureSensorStatusSupported        PLXFeatures = 1 << 1
	PLXFeatureSpotCheckStorageSupported    PLXFeatures = 1 << 2
	PLXFeatureTimestampSupported           PLXFeatures = 1 << 3
	PLXFeatureSpO2PRFastSupported          PLXFeatures = 1 << 4
	PLXFeatureSpO2PRSlowSupported          PLXFeatures = 1 << 5
	PLXFeaturePulseAmplitudeIndexSupported PLXFeatures = 1 << 6
	PLXFeatureMultipleBondsSupported       PLXFeatures = 1 << 7
)

type PLXFeatures uint16

func DecodePLXFeatures(data []byte, end codec.Endianness) (PLXFeatures, bool) {
	r := codec.NewReader(data, end)
	v, ok := r.ReadUint16()
	if !ok {
		return 0, false
	}
	return PLXFeatures(v), true
}

func (f PLXFeatures) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint16(uint16(f))
	return w.Bytes()
}
