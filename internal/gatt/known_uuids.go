package gatt

// Well-known 16-bit service and characteristic UUIDs used by the
// payload catalog below. Kept as plain uint16 constants, mirroring the
// teacher's characteristic_known_types.go naming convention, rather
// than a generated lookup table (internal/bledb/gen's role, which this
// module has no build-time generator for).
const (
	ServiceBloodPressure    uint16 = 0x1810
	ServiceHealthThermo     uint16 = 0x1809
	ServiceWeightScale      uint16 = 0x181D
	ServicePulseOximeter    uint16 = 0x1822
	ServiceCurrentTime      uint16 = 0x1805
	ServiceDeviceInfo       uint16 = 0x180A
	ServiceGenericAccess    uint16 = 0x1800
	ServiceGenericAttribute uint16 = 0x1801

	CharBloodPressureMeasurement     uint16 = 0x2A35
	CharIntermediateCuffPressure     uint16 = 0x2A36
	CharBloodPressureFeature         uint16 = 0x2A49
	CharTemperatureMeasurement       uint16 = 0x2A1C
	CharTemperatureType              uint16 = 0x2A1D
	CharMeasurementInterval          uint16 = 0x2A21
	CharWeightMeasurement            uint16 = 0x2A9D
	CharWeightScaleFeature           uint16 = 0x2A9E
	CharPnPID                        uint16 = 0x2A50
	CharPLXSpotCheckMeasurement      uint16 = 0x2A5E
	CharPLXContinuousMeasurement     uint16 = 0x2A5F
	CharPLXFeatures                  uint16 = 0x2A60
	CharRecordAccessControlPoint     uint16 = 0x2A52
	CharCurrentTime                  uint16 = 0x2A2B
	CharDateTime                     uint16 = 0x2A08
	CharDayOfWeek                    uint16 = 0x2A09
	CharDayDateTime                  uint16 = 0x2A0A
	CharAppearance                   uint16 = 0x2A01
	CharDeviceName                   uint16 = 0x2A00

	DescriptorExtendedProperties uint16 = 0x2900
	DescriptorUserDescription    uint16 = 0x2901
	DescriptorClientConfig       uint16 = 0x2902
	DescriptorServerConfig       uint16 = 0x2903
	DescriptorPresentationFormat uint16 = 0x2904
	DescriptorValidRange         uint16 = 0x2906
)

var knownNames = map[uint16]string{
	ServiceBloodPressure:    "Blood Pressure",
	ServiceHealthThermo:     "Health Thermometer",
	ServiceWeightScale:      "Weight Scale",
	ServicePulseOximeter:    "Pulse Oximeter",
	ServiceCurrentTime:      "Current Time",
	ServiceDeviceInfo:       "Device Information",
	ServiceGenericAccess:    "Generic Access",
	ServiceGenericAttribute: "Generic Attribute",

	CharBloodPressureMeasurement: "Blood Pressure Measurement",
	CharIntermediateCuffPressure: "Intermediate Cuff Pressure",
	CharBloodPressureFeature:     "Blood Pressure Feature",
	CharTemperatureMeasurement:   "Temperature Measurement",
	CharTemperatureType:          "Temperature Type",
	CharMeasurementInterval:      "Measurement Interval",
	CharWeightMeasurement:        "Weight Measurement",
	CharWeightScaleFeature:       "Weight Scale Feature",
	CharPnPID:                    "PnP ID",
	CharPLXSpotCheckMeasurement:  "PLX Spot-Check Measurement",
	CharPLXContinuousMeasurement: "PLX Continuous Measurement",
	CharPLXFeatures:              "PLX Features",
	CharRecordAccessControlPoint: "Record Access Control Point",
	CharCurrentTime:              "Current Time",
	CharDateTime:                 "Date Time",
	CharDayOfWeek:                "Day of Week",
	CharDayDateTime:              "Day Date Time",
	CharAppearance:               "Appearance",
	CharDeviceName:               "Device Name",

	DescriptorExtendedProperties: "Characteristic Extended Properties",
	DescriptorUserDescription:    "Characteristic User Description",
	DescriptorClientConfig:       "Client Characteristic Configuration",
	DescriptorServerConfig:       "Server Characteristic Configuration",
	DescriptorPresentationFormat: "Characteristic Presentation Format",
	DescriptorValidRange:         "Valid Range",
}

// KnownName returns the human-readable Bluetooth SIG name for a
// well-known 16-bit UUID, or "" if it isn't in the catalog above.
func KnownName(short uint16) string {
	return knownNames[short]
}
