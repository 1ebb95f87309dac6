package qing

import (
  "strings"

  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/rs/zerolog/log"
)

// serviceDataUUID is the 16-bit UUID registered to Qingping.
const serviceDataUUID = "fdcd"

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  base, err := device.NewBase(Family, spec)
  if err != nil {
    return nil, err
  }

  interval, err := spec.Duration(device.DeviceSpecFieldPollInterval, DefaultPollInterval)
  if err != nil {
    return nil, err
  }

  d := &Device{
    Base: base,
    adapter: NewAdapter(interval),
  }

  log.Debug().
    Stringer("Device", d).
    Dur("PollInterval", interval).
    Msg("qing: created device")

  return d, nil
}

func (f *Factory) Matches(rec device.AdvertisementRecord) bool {
  if _, ok := rec.ServiceDataFor(serviceDataUUID); ok {
    return true
  }

  return strings.HasPrefix(strings.ToLower(rec.LocalName()), "qing")
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this Qing device
name (string): Name of this Qing device
sleepy (bool): Treat the device as one that stops advertising when idle (default: no)
poll-interval (duration): Minimum time between two battery/firmware polls (default: 5m)`
}
