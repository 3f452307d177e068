package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID16ExpandsToBaseUUID(t *testing.T) {
	u := UUID16(CharBloodPressureMeasurement)
	assert.Equal(t, "00002a35-0000-1000-8000-00805f9b34fb", u.String())

	short, ok := u.Short()
	require.True(t, ok)
	assert.Equal(t, uint16(CharBloodPressureMeasurement), short)
}

func TestUUID32DoesNotReduceToShortForm(t *testing.T) {
	u := UUID32(0x12345678)
	_, ok := u.Short()
	assert.False(t, ok)
}

func TestParseUUIDAcceptsAllForms(t *testing.T) {
	short, err := ParseUUID("2A35")
	require.NoError(t, err)
	assert.Equal(t, UUID16(0x2A35), short)

	full, err := ParseUUID("00002a35-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)
	assert.Equal(t, short, full)
}

func TestParseUUIDRejectsGarbage(t *testing.T) {
	_, err := ParseUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestKnownNameResolvesWellKnownShortUUIDs(t *testing.T) {
	assert.Equal(t, "Blood Pressure Measurement", KnownName(CharBloodPressureMeasurement))
	assert.Equal(t, "", KnownName(0xFFFF))
}
