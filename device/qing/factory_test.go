package qing_test

import (
  "testing"

  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/qing"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestFactory_FromSpec(t *testing.T) {
  f := &qing.Factory{}

  d, err := f.FromSpec(device.NewDeviceSpec("addr=AA:BB:CC:DD:EE:FF,name=office,sleepy=true"))
  require.NoError(t, err)

  assert.Equal(t, "office", d.Name())
  assert.Equal(t, qing.Family, d.Family())
  assert.NotNil(t, d.Adapter())

  sleepy, ok := d.SleepyOverride()
  assert.True(t, ok)
  assert.True(t, sleepy)
  assert.False(t, d.Adapter().SleepyDevice())
}

func TestFactory_FromSpec_InvalidInterval(t *testing.T) {
  _, err := (&qing.Factory{}).FromSpec(device.NewDeviceSpec("addr=AA:BB:CC:DD:EE:FF,poll-interval=never"))
  assert.ErrorIs(t, err, device.ErrConfiguration)
}

func TestFactory_Matches(t *testing.T) {
  f := &qing.Factory{}

  assert.True(t, f.Matches(device.NewRecord(testAddr, 0, device.WithLocalName("Qingping Temp RH M"))))
  assert.True(t, f.Matches(device.NewRecord(testAddr, 0, device.WithServiceData("FDCD", []byte{0x08}))))
  assert.False(t, f.Matches(device.NewRecord(testAddr, 0, device.WithLocalName("T001"))))
}
