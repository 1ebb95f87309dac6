package metrics_test

import (
  "strings"
  "testing"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/testutil"
  "github.com/robertof/go-ble-sensor-bridge/coordinator"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/qing"
  "github.com/robertof/go-ble-sensor-bridge/metrics"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func testStates(t *testing.T) []coordinator.DeviceState {
  kitchen, err := (&qing.Factory{}).FromSpec(device.NewDeviceSpec("addr=AA:BB:CC:DD:EE:FF,name=kitchen"))
  require.NoError(t, err)

  silent, err := (&qing.Factory{}).FromSpec(device.NewDeviceSpec("addr=11:22:33:44:55:66,name=cellar"))
  require.NoError(t, err)

  s := device.NewSnapshot()
  s.DeviceInfo = device.DeviceInfo{
    Title: "Qing Sensor EEFF",
    Name: "Qing Sensor EEFF",
    Type: "Qing Sensor",
    Manufacturer: "Qingping",
    SoftwareVersion: "1.0.4",
  }
  s.SetSignalStrength(-70)
  s.Set(device.KeyBatteryPercent, device.Number(80))
  s.Set(device.KeyToothbrushState, device.Enum("running"))
  s.UpdatedAt = time.Unix(1700000000, 0)

  return []coordinator.DeviceState{
    {Device: kitchen, Snapshot: s, Available: true},
    {Device: silent, Snapshot: device.NewSnapshot()},
  }
}

func TestCollector(t *testing.T) {
  states := testStates(t)
  reg := prometheus.NewPedanticRegistry()

  metrics.RegisterCollector(func() []coordinator.DeviceState { return states }, reg)

  expected := `
# HELP ble_sensor_available Whether the device values can be trusted: 1 = available, 0 = stale or never seen.
# TYPE ble_sensor_available gauge
ble_sensor_available{address="11:22:33:44:55:66",family="qing",name="cellar"} 0
ble_sensor_available{address="aa:bb:cc:dd:ee:ff",family="qing",name="kitchen"} 1
# HELP ble_sensor_info Identity of the device, always 1.
# TYPE ble_sensor_info gauge
ble_sensor_info{address="aa:bb:cc:dd:ee:ff",family="qing",hw_version="",manufacturer="Qingping",model="Qing Sensor",name="kitchen",sw_version="1.0.4",title="Qing Sensor EEFF"} 1
# HELP ble_sensor_last_update_timestamp_seconds Time of the most recent snapshot published for the device.
# TYPE ble_sensor_last_update_timestamp_seconds gauge
ble_sensor_last_update_timestamp_seconds{address="aa:bb:cc:dd:ee:ff",family="qing",name="kitchen"} 1.7e+09
`

  err := testutil.GatherAndCompare(
    reg,
    strings.NewReader(expected),
    "ble_sensor_available",
    "ble_sensor_info",
    "ble_sensor_last_update_timestamp_seconds",
  )
  assert.NoError(t, err)

  count, err := testutil.GatherAndCount(reg, "ble_sensor_value", "ble_sensor_enum_info")
  require.NoError(t, err)
  // signal strength + battery, and the toothbrush state.
  assert.Equal(t, 3, count)
}

func TestCollector_Empty(t *testing.T) {
  reg := prometheus.NewRegistry()

  metrics.RegisterCollector(func() []coordinator.DeviceState { return nil }, reg)

  count, err := testutil.GatherAndCount(reg)
  require.NoError(t, err)
  assert.Zero(t, count)
}
