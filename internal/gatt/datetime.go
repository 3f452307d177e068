package gatt

import (
	"fmt"

	"github.com/srgg/blecentral/internal/codec"
)

// Month values for DateTime.Month; 0 means unknown.
const (
	MonthUnknown = 0
)

// DayOfWeek enumerates the Day of Week characteristic's values.
// Reserved/out-of-range values are preserved verbatim rather than
// rejected, per the spec's bit/value-preservation invariant.
type DayOfWeek uint8

const (
	DayUnknown   DayOfWeek = 0
	DayMonday    DayOfWeek = 1
	DayTuesday   DayOfWeek = 2
	DayWednesday DayOfWeek = 3
	DayThursday  DayOfWeek = 4
	DayFriday    DayOfWeek = 5
	DaySaturday  DayOfWeek = 6
	DaySunday    DayOfWeek = 7
)

// DecodeDayOfWeek decodes the single-byte Day of Week characteristic
// (0x2A09). Reserved/out-of-range byte values round-trip unchanged.
func DecodeDayOfWeek(data []byte) (DayOfWeek, bool) {
	if len(data) != 1 {
		return 0, false
	}
	return DayOfWeek(data[0]), true
}

func (d DayOfWeek) Encode() []byte { return []byte{byte(d)} }

// DateTime is the 7-byte Date Time characteristic (0x2A08).
type DateTime struct {
	Year   uint16 // 0 = unknown, else 1582-9999
	Month  uint8  // 0 = unknown, 1 = Jan .. 12 = Dec
	Day    uint8  // 0 = unknown, else 1-31
	Hour   uint8  // 0-23
	Minute uint8  // 0-59
	Second uint8  // 0-59
}

func (d *DateTime) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 7 {
		return false
	}
	r := codec.NewReader(data, end)
	year, ok := r.ReadUint16()
	if !ok {
		return false
	}
	fields := make([]uint8, 5)
	for i := range fields {
		v, ok := r.ReadUint8()
		if !ok {
			return false
		}
		fields[i] = v
	}
	d.Year = year
	d.Month, d.Day, d.Hour, d.Minute, d.Second = fields[0], fields[1], fields[2], fields[3], fields[4]
	return true
}

func (d DateTime) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint16(d.Year)
	w.WriteUint8(d.Month)
	w.WriteUint8(d.Day)
	w.WriteUint8(d.Hour)
	w.WriteUint8(d.Minute)
	w.WriteUint8(d.Second)
	return w.Bytes()
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// DayDateTime is DateTime plus a trailing Day of Week byte (0x2A0A).
type DayDateTime struct {
	DateTime
	DayOfWeek DayOfWeek
}

func (d *DayDateTime) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 8 {
		return false
	}
	if !d.DateTime.Decode(data[:7], end) {
		return false
	}
	d.DayOfWeek = DayOfWeek(data[7])
	return true
}

func (d DayDateTime) Encode(end codec.Endianness) []byte {
	out := d.DateTime.Encode(end)
	return append(out, byte(d.DayOfWeek))
}

// ExactTime256 is DayDateTime plus a fractions256 byte (seconds_fraction = fractions256/256).
type ExactTime256 struct {
	DayDateTime
	Fractions256 uint8
}

func (e *ExactTime256) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 9 {
		return false
	}
	if !e.DayDateTime.Decode(data[:8], end) {
		return false
	}
	e.Fractions256 = data[8]
	return true
}

func (e ExactTime256) Encode(end codec.Endianness) []byte {
	out := e.DayDateTime.Encode(end)
	return append(out, e.Fractions256)
}

// SecondsFraction returns the fractional-second component as a float in [0,1).
func (e ExactTime256) SecondsFraction() float64 {
	return float64(e.Fractions256) / 256.0
}

// NormalizeExactTime256 folds an overflowing nanosecond count into the
// seconds/fractions256 pair (spec.md §8 scenario 6): e.g. seconds=26
// with a fraction > 1 carries into seconds=27.
func NormalizeExactTime256(base ExactTime256, extraNanos int64) ExactTime256 {
	const nanosPerFraction = 1e9 / 256.0
	totalFractions := int64(base.Fractions256) + int64(float64(extraNanos)/nanosPerFraction+0.5)
	carrySeconds := totalFractions / 256
	base.Fractions256 = uint8(totalFractions % 256)
	base.Second += uint8(carrySeconds)
	for base.Second >= 60 {
		base.Second -= 60
		base.Minute++
	}
	return base
}

// AdjustReason bit flags for CurrentTime (0x2A2B).
type AdjustReason uint8

const (
	AdjustManualTimeUpdate            AdjustReason = 1 << 0
	AdjustExternalReferenceTimeUpdate AdjustReason = 1 << 1
	AdjustChangeOfTimeZone            AdjustReason = 1 << 2
	AdjustChangeOfDST                 AdjustReason = 1 << 3
)

// CurrentTime is ExactTime256 plus an Adjust Reason bitfield.
type CurrentTime struct {
	ExactTime256
	AdjustReason AdjustReason
}

func (c *CurrentTime) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 10 {
		return false
	}
	if !c.ExactTime256.Decode(data[:9], end) {
		return false
	}
	c.AdjustReason = AdjustReason(data[9])
	return true
}

func (c CurrentTime) Encode(end codec.Endianness) []byte {
	out := c.ExactTime256.Encode(end)
	return append(out, byte(c.AdjustReason))
}
