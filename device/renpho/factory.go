package renpho

import (
  "strings"

  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/rs/zerolog/log"
)

// discoveryNameMarker identifies Renpho devices by their advertised local name.
const discoveryNameMarker = "T001"

const DeviceSpecFieldNotifyTimeout = "notify-timeout"

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

  notifyTimeout, err := spec.Duration(DeviceSpecFieldNotifyTimeout, DefaultNotifyTimeout)
  if err != nil {
    return nil, err
  }

  d := &Device{
    Base: base,
    adapter: NewAdapter(interval, notifyTimeout),
  }

  log.Debug().
    Stringer("Device", d).
    Dur("PollInterval", interval).
    Dur("NotifyTimeout", notifyTimeout).
    Msg("renpho: created device")

  return d, nil
}

func (f *Factory) Matches(rec device.AdvertisementRecord) bool {
  return strings.Contains(rec.LocalName(), discoveryNameMarker)
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this Renpho device
name (string): Name of this Renpho device
sleepy (bool): Treat the device as one that stops advertising when idle (default: no)
poll-interval (duration): Minimum time between two polls (default: 1m)
notify-timeout (duration): How long to wait for the battery notification while polling (default: 5s)`
}
