package oralb

import (
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/rs/zerolog/log"
)

// CompanyID is the Bluetooth SIG company identifier of Procter & Gamble.
const CompanyID uint16 = 0x00dc

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
    Msg("oralb: created device")

  return d, nil
}

func (f *Factory) Matches(rec device.AdvertisementRecord) bool {
  return rec.HasManufacturer(CompanyID)
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this Oral-B toothbrush
name (string): Name of this Oral-B toothbrush
sleepy (bool): Override the sleepy-device default (default: yes, toothbrushes stop advertising when idle)
poll-interval (duration): Minimum time between two polls (default: 30m)`
}
