package oralb

import (
  "github.com/robertof/go-ble-sensor-bridge/device"
)

const Family = "oralb"

type Device struct {
  device.Base
  adapter *Adapter
}

func (d *Device) Flags() device.Flags {
  return 0
}

func (d *Device) Adapter() device.Adapter {
  return d.adapter
}
