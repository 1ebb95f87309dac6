package qing

import (
  "github.com/robertof/go-ble-sensor-bridge/device"
)

const Family = "qing"

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
