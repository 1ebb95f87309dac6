package renpho

import (
  "github.com/robertof/go-ble-sensor-bridge/device"
)

const Family = "renpho"

type Device struct {
  device.Base
  adapter *Adapter
}

// Renpho devices only put their local name in scan responses.
func (d *Device) Flags() device.Flags {
  return device.FlagRequiresBleActiveScan
}

func (d *Device) Adapter() device.Adapter {
  return d.adapter
}
