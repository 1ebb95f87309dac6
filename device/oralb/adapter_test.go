package oralb_test

import (
  "context"
  "testing"

  "github.com/go-ble/ble"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/devicetest"
  "github.com/robertof/go-ble-sensor-bridge/device/oralb"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

var testAddr = devicetest.MustMAC("AA:BB:CC:DD:EE:FF")

func TestUpdate(t *testing.T) {
  a := oralb.NewAdapter(oralb.DefaultPollInterval)

  s := a.Update(device.NewRecord(testAddr, -58,
    device.WithManufacturerData(oralb.CompanyID, []byte{0x02, 0x01, 0x08, 0x03, 0x32, 0x00, 0x1e, 0x02, 0x03})))

  assert.Equal(t, "Oral-B Toothbrush EEFF", s.Title)
  assert.Equal(t, device.Number(-58), s.Values[device.KeySignalStrength])
  assert.Equal(t, device.Enum("running"), s.Values[device.KeyToothbrushState])
  assert.Equal(t, device.Enum("sensitive"), s.Values[device.KeyMode])
  assert.Equal(t, device.Number(30), s.Values[device.KeyBrushingTime])
}

func TestUpdate_MalformedPayload(t *testing.T) {
  a := oralb.NewAdapter(oralb.DefaultPollInterval)

  s := a.Update(device.NewRecord(testAddr, -58, device.WithManufacturerData(oralb.CompanyID, []byte{0x02})))

  assert.Equal(t, device.Number(-58), s.Values[device.KeySignalStrength])
  assert.NotContains(t, s.Values, device.KeyToothbrushState)
}

func TestPoll(t *testing.T) {
  battery := devicetest.Characteristic(device.UUIDBatteryLevel, ble.CharRead)
  model := devicetest.Characteristic(device.UUIDModelNumber, ble.CharRead)
  profile := devicetest.Profile(device.UUIDBatteryService, battery, model)

  client := &devicetest.MockGATTClient{}
  client.On("DiscoverProfile", false).Return(profile, nil)
  client.On("ReadCharacteristic", battery).Return([]byte{100}, nil)
  client.On("ReadCharacteristic", model).Return([]byte("IO Series 9"), nil)
  client.On("CancelConnection").Return(nil).Once()

  a := oralb.NewAdapter(oralb.DefaultPollInterval)
  s, err := a.Poll(context.Background(), &devicetest.FakeHandle{Address: testAddr, Client: client})

  require.NoError(t, err)
  assert.Equal(t, device.Number(100), s.Values[device.KeyBatteryPercent])
  assert.Equal(t, "IO Series 9", s.HardwareVersion)
  assert.Empty(t, s.SoftwareVersion)
  client.AssertExpectations(t)
}

func TestPoll_BatteryFailure(t *testing.T) {
  battery := devicetest.Characteristic(device.UUIDBatteryLevel, ble.CharRead)

  client := &devicetest.MockGATTClient{}
  client.On("DiscoverProfile", false).Return(devicetest.Profile(device.UUIDBatteryService, battery), nil)
  client.On("ReadCharacteristic", battery).Return(nil, ble.ErrReadNotPerm)
  client.On("CancelConnection").Return(nil).Once()

  a := oralb.NewAdapter(oralb.DefaultPollInterval)
  s, err := a.Poll(context.Background(), &devicetest.FakeHandle{Address: testAddr, Client: client})

  assert.ErrorIs(t, err, device.ErrTransport)
  assert.True(t, s.IsEmpty())
  client.AssertExpectations(t)
}

func TestSleepyByDefault(t *testing.T) {
  d, err := (&oralb.Factory{}).FromSpec(device.NewDeviceSpec("addr=AA:BB:CC:DD:EE:FF"))
  require.NoError(t, err)

  assert.True(t, d.Adapter().SleepyDevice())

  _, overridden := d.SleepyOverride()
  assert.False(t, overridden)
}

func TestMatches(t *testing.T) {
  f := &oralb.Factory{}

  assert.True(t, f.Matches(device.NewRecord(testAddr, 0, device.WithManufacturerData(oralb.CompanyID, []byte{0x02}))))
  assert.False(t, f.Matches(device.NewRecord(testAddr, 0, device.WithManufacturerData(0x004c, []byte{0x02}))))
}
