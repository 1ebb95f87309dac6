package device

import (
  "strings"
)

type SensorKey string

const (
  KeySignalStrength SensorKey = "signal_strength"
  KeyBatteryPercent SensorKey = "battery_percent"

  // OralB toothbrush sensors.
  KeyBrushingTime    SensorKey = "time"
  KeySector          SensorKey = "sector"
  KeyNumberOfSectors SensorKey = "number_of_sectors"
  KeySectorTimer     SensorKey = "sector_timer"
  KeyToothbrushState SensorKey = "toothbrush_state"
  KeyPressure        SensorKey = "pressure"
  KeyMode            SensorKey = "mode"
)

type DeviceClass string

const (
  DeviceClassNone           DeviceClass = ""
  DeviceClassSignalStrength DeviceClass = "signal_strength"
  DeviceClassBattery        DeviceClass = "battery"
  DeviceClassDuration       DeviceClass = "duration"
  DeviceClassEnum           DeviceClass = "enum"
)

// Description carries the presentation hints of a sensor key.
type Description struct {
  Key         SensorKey
  Name        string
  Unit        string
  DeviceClass DeviceClass
  Diagnostic  bool
}

var library = map[SensorKey]Description{
  KeySignalStrength: {
    Key: KeySignalStrength, Name: "Signal Strength", Unit: "dBm",
    DeviceClass: DeviceClassSignalStrength, Diagnostic: true,
  },
  KeyBatteryPercent: {
    Key: KeyBatteryPercent, Name: "Battery", Unit: "%",
    DeviceClass: DeviceClassBattery, Diagnostic: true,
  },
  KeyBrushingTime: {
    Key: KeyBrushingTime, Name: "Time", Unit: "s", DeviceClass: DeviceClassDuration,
  },
  KeySector: {Key: KeySector, Name: "Sector", Diagnostic: true},
  KeyNumberOfSectors: {Key: KeyNumberOfSectors, Name: "Number of sectors", Diagnostic: true},
  KeySectorTimer: {Key: KeySectorTimer, Name: "Sector timer", Unit: "s", Diagnostic: true},
  KeyToothbrushState: {Key: KeyToothbrushState, Name: "Toothbrush state", DeviceClass: DeviceClassEnum},
  KeyPressure: {Key: KeyPressure, Name: "Pressure", DeviceClass: DeviceClassEnum},
  KeyMode: {Key: KeyMode, Name: "Mode", DeviceClass: DeviceClassEnum, Diagnostic: true},
}

// LookupDescription returns the predefined description for key, or a best-effort one derived
// from the key itself ("number_of_sectors" -> "Number of sectors").
func LookupDescription(key SensorKey) (Description, bool) {
  if d, ok := library[key]; ok {
    return d, true
  }

  return Description{Key: key, Name: displayName(key)}, false
}

func displayName(key SensorKey) string {
  name := strings.TrimSpace(strings.ReplaceAll(string(key), "_", " "))

  if name == "" {
    return ""
  }

  return strings.ToUpper(name[:1]) + name[1:]
}
