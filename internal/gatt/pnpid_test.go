package gatt

import (
	"testing"

	"github.com/srgg/blecentral/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPnPIDRoundTrip(t *testing.T) {
	p := PnPID{
		VendorIDSource: VendorIDSourceBluetoothSIG,
		VendorID:       0x0059,
		ProductID:      0x0001,
		ProductVersion: 0x0100,
	}
	encoded := p.Encode(codec.LittleEndian)
	assert.Len(t, encoded, 7)

	var decoded PnPID
	require.True(t, decoded.Decode(encoded, codec.LittleEndian))
	assert.Equal(t, p, decoded)
}
