package main

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/srgg/blecentral/internal/osble"
)

// Wire the platform host device, mirroring the teacher's go-ble
// connection package: this CLI targets macOS's CoreBluetooth binding.
func init() {
	osble.DeviceFactory = func() (ble.Device, error) {
		return darwin.NewDevice()
	}
}
