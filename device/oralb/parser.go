package oralb

import (
  "fmt"

  "github.com/pkg/errors"
  "github.com/robertof/go-ble-sensor-bridge/device"
)

// minPayloadLength covers everything up to the sector byte; newer brushes append more.
const minPayloadLength = 9

var states = map[byte]string{
  0x00: "unknown",
  0x01: "initializing",
  0x02: "idle",
  0x03: "running",
  0x04: "charging",
  0x05: "setup",
  0x06: "flight_menu",
  0x08: "selection_menu",
  0x09: "off",
  0x71: "final_test",
  0x72: "pcb_test",
  0x73: "sleeping",
  0x74: "transport",
}

var pressures = map[byte]string{
  0x32: "normal",
  0x72: "normal",
  0x90: "power_button_pressed",
  0xb2: "power_button_pressed",
  0xf2: "high",
}

var modes = map[byte]string{
  0x00: "off",
  0x01: "daily_clean",
  0x02: "sensitive",
  0x03: "gum_care",
  0x04: "intense",
  0x05: "whitening",
  0x06: "super_sensitive",
  0x07: "tongue_cleaning",
  0x08: "settings",
}

func lookup(table map[byte]string, b byte) string {
  if v, ok := table[b]; ok {
    return v
  }

  return fmt.Sprintf("unknown_%d", b)
}

// parseManufacturerData decodes the brushing session carried by the manufacturer data (company id
// already stripped):
//
//   [0] protocol version, [1] type, [2] software version, [3] state, [4] pressure,
//   [5] minutes, [6] seconds, [7] mode, [8] sector, [9] sector timer, [10] number of sectors.
//
// The last two are only sent by brushes with a sector-aware routine.
func parseManufacturerData(data []byte) (s device.Snapshot, err error) {
  if len(data) < minPayloadLength {
    return s, errors.Wrapf(device.ErrInvalidData, "oralb: payload too short (%d bytes, wanted >= %d)",
      len(data), minPayloadLength)
  }

  s = device.NewSnapshot()

  pressure := lookup(pressures, data[4])

  s.Set(device.KeyToothbrushState, device.Enum(lookup(states, data[3])))
  s.Set(device.KeyPressure, device.Enum(pressure))
  s.Set(device.KeyBrushingTime, device.Number(float64(int(data[5]) * 60 + int(data[6]))))
  s.Set(device.KeyMode, device.Enum(lookup(modes, data[7])))
  s.Set(device.KeySector, device.Number(float64(data[8])))

  if len(data) > 9 {
    s.Set(device.KeySectorTimer, device.Number(float64(data[9])))
  }

  if len(data) > 10 {
    s.Set(device.KeyNumberOfSectors, device.Number(float64(data[10])))
  }

  if pressure == "high" {
    s.AddEvent(device.Event{Key: device.KeyPressure, Type: "high_pressure"})
  }

  return s, nil
}
