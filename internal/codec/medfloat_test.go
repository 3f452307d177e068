package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedFloat16RoundTrip(t *testing.T) {
	cases := []MedFloat16{
		NewMedFloat16(1205, -1), // 120.5
		NewMedFloat16(805, -1),  // 80.5
		NewMedFloat16(600, -1),  // 60.0
		MedFloat16NaN(),
		MedFloat16NRes(),
		MedFloat16PosInf(),
		MedFloat16NegInf(),
		NewMedFloat16(-2048, -8),
	}
	for _, c := range cases {
		encoded := c.Encode(LittleEndian)
		require.Len(t, encoded, 2)
		decoded, ok := DecodeMedFloat16(encoded, LittleEndian)
		require.True(t, ok)
		assert.True(t, c.Equal(decoded), "round-trip mismatch for mantissa=%d exp=%d", c.Mantissa(), c.Exponent())
	}
}

func TestMedFloat16NaNEqualsNaN(t *testing.T) {
	a := MedFloat16NaN()
	b := MedFloat16NaN()
	assert.True(t, a.Equal(b))
	assert.True(t, math.IsNaN(a.Float64()))
}

func TestMedFloat16Float64(t *testing.T) {
	v := NewMedFloat16(1205, -1)
	assert.InDelta(t, 120.5, v.Float64(), 0.0001)
}

func TestMedFloat16FromFloat64RoundTrips(t *testing.T) {
	for _, f := range []float64{120.5, 80.5, 60, -5.25, 0} {
		v := MedFloat16FromFloat64(f)
		assert.InDelta(t, f, v.Float64(), 0.01)
	}
}

func TestMedFloat32RoundTrip(t *testing.T) {
	cases := []MedFloat32{
		NewMedFloat32(373, -1), // 37.3 C
		MedFloat32NaN(),
		MedFloat32NRes(),
	}
	for _, c := range cases {
		encoded := c.Encode(LittleEndian)
		require.Len(t, encoded, 4)
		decoded, ok := DecodeMedFloat32(encoded, LittleEndian)
		require.True(t, ok)
		assert.True(t, c.Equal(decoded))
	}
}

func TestMedFloat32Float64(t *testing.T) {
	v := NewMedFloat32(373, -1)
	assert.InDelta(t, 37.3, v.Float64(), 0.0001)
}

func TestDecodeMedFloat16WrongLength(t *testing.T) {
	_, ok := DecodeMedFloat16([]byte{0x01}, LittleEndian)
	assert.False(t, ok)
}
