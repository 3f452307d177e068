package gatt

import "github.com/srgg/blecentral/internal/codec"

// VendorIDSource identifies the registry a PnPID.VendorID is assigned from.
type VendorIDSource uint8

const (
	VendorIDSourceBluetoothSIG VendorIDSource = 1
	VendorIDSourceUSBIF        VendorIDSource = 2
)

// PnPID is the Device Information Service's PnP ID characteristic (0x2A50).
type PnPID struct {
	VendorIDSource VendorIDSource
	VendorID       uint16
	ProductID      uint16
	ProductVersion uint16
}

func (p *PnPID) Decode(data []byte, end codec.Endianness) bool {
	if len(data) != 7 {
		return false
	}
	r := codec.NewReader(data, end)
	src, ok := r.ReadUint8()
	if !ok {
		return false
	}
	vid, ok := r.ReadUint16()
	if !ok {
		return false
	}
	pid, ok := r.ReadUint16()
	if !ok {
		return false
	}
	ver, ok := r.ReadUint16()
	if !ok {
		return false
	}
	p.VendorIDSource = VendorIDSource(src)
	p.VendorID, p.ProductID, p.ProductVersion = vid, pid, ver
	return true
}

func (p PnPID) Encode(end codec.Endianness) []byte {
	w := codec.NewWriter(end)
	w.WriteUint8(uint8(p.VendorIDSource))
	w.WriteUint16(p.VendorID)
	w.WriteUint16(p.ProductID)
	w.WriteUint16(p.ProductVersion)
	return w.Bytes()
}
