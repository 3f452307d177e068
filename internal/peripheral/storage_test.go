package peripheral

import (
	"testing"
	"time"

	"github.com/srgg/blecentral/internal/discovery"
	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageStartsDisconnectedAndEmpty(t *testing.T) {
	s := NewStorage("id")
	assert.Equal(t, StateDisconnected, s.State())
	assert.Empty(t, s.Services())
	assert.False(t, s.Nearby())
}

func TestUpdateAdvertisementRefreshesNameRSSIAndActivity(t *testing.T) {
	s := NewStorage("id")
	name := "Thermo"
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	s.updateAdvertisement(discovery.AdvertisementData{LocalName: &name}, -50, now)

	assert.Equal(t, "Thermo", s.Name())
	assert.Equal(t, -50, s.RSSI())
	assert.True(t, s.Nearby())
	assert.InDelta(t, float64(now.UnixNano())/1e9, s.LastActivity(), 1e-6)
}

func TestAdvertisementWithoutLocalNameKeepsPreviousName(t *testing.T) {
	s := NewStorage("id")
	name := "Thermo"
	s.updateAdvertisement(discovery.AdvertisementData{LocalName: &name}, -50, time.Now())
	s.updateAdvertisement(discovery.AdvertisementData{}, -55, time.Now())
	assert.Equal(t, "Thermo", s.Name())
}

func TestBackdateLastActivityShiftsEarlier(t *testing.T) {
	s := NewStorage("id")
	now := time.Now()
	s.setLastActivity(now)
	before := s.LastActivity()

	s.backdateLastActivity(2500 * time.Millisecond)
	assert.InDelta(t, before-2.5, s.LastActivity(), 1e-6)
}

func TestInvalidateServicesRemovesThemAndFiresChange(t *testing.T) {
	s := NewStorage("id")
	svcUUID := gatt.UUID16(gatt.ServiceHealthThermo)
	s.setServices([]osble.ServiceInfo{{UUID: svcUUID, Primary: true}})
	s.setCharacteristics(svcUUID, []osble.CharacteristicInfo{{
		Ref: osble.CharacteristicRef{ServiceUUID: svcUUID, UUID: gatt.UUID16(gatt.CharTemperatureMeasurement)},
	}})

	sub := s.SubscribeChanges()
	defer sub.Cancel()

	s.invalidateServices([]gatt.UUID{svcUUID})
	_, ok := s.service(svcUUID)
	assert.False(t, ok)

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("change not published")
	}
}

func TestServicesReturnsSnapshot(t *testing.T) {
	s := NewStorage("id")
	svcUUID := gatt.UUID16(gatt.ServiceDeviceInfo)
	s.setServices([]osble.ServiceInfo{{UUID: svcUUID, Primary: true}})

	snap := s.Services()
	require.Len(t, snap, 1)
	delete(snap, svcUUID)

	_, ok := s.service(svcUUID)
	assert.True(t, ok, "mutating the snapshot must not affect storage")
}

func TestSetValueIgnoresUnknownCharacteristic(t *testing.T) {
	s := NewStorage("id")
	s.setValue(gatt.UUID16(0x1234), gatt.UUID16(0x5678), []byte{0x01})
	assert.Empty(t, s.Services())
}
