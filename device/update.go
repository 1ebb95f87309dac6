package device

import (
  "github.com/robertof/go-ble-sensor-bridge/utils"
)

// StartUpdate builds the passive part every family shares: identity derived from the address,
// signal strength, and the standard Battery Service data when advertised.
func StartUpdate(rec AdvertisementRecord, manufacturer, deviceType string) Snapshot {
  s := NewSnapshot()
  short := utils.ShortAddress(rec.Addr())

  s.DeviceInfo = DeviceInfo{
    Title:        deviceType + " " + short,
    Name:         deviceType + " " + short,
    Type:         deviceType,
    Manufacturer: manufacturer,
  }

  s.SetSignalStrength(rec.RSSI())

  if data, ok := rec.ServiceDataFor(UUIDBatteryService.String()); ok {
    if level, err := ParseBatteryLevel(data); err == nil {
      s.Set(KeyBatteryPercent, Number(float64(level)))
    }
  }

  s.UpdatedAt = rec.ReceivedAt()

  return s
}
