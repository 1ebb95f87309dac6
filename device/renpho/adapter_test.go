package renpho_test

import (
  "context"
  "testing"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/devicetest"
  "github.com/robertof/go-ble-sensor-bridge/device/renpho"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/mock"
  "github.com/stretchr/testify/require"
)

var testAddr = devicetest.MustMAC("AA:BB:CC:DD:EE:FF")

func TestUpdate(t *testing.T) {
  a := renpho.NewAdapter(renpho.DefaultPollInterval, renpho.DefaultNotifyTimeout)

  first := a.Update(device.NewRecord(testAddr, -70, device.WithLocalName("T001")))
  second := a.Update(device.NewRecord(testAddr, -55))

  assert.Equal(t, "Renpho Scale EEFF", first.Title)
  assert.Equal(t, first.DeviceInfo, second.DeviceInfo)
  assert.Equal(t, device.Number(-55), second.Values[device.KeySignalStrength])
}

func TestPoll_Notification(t *testing.T) {
  char := devicetest.Characteristic(device.UUIDBatteryLevel, ble.CharRead|ble.CharNotify)

  client := &devicetest.MockGATTClient{}
  client.On("DiscoverProfile", false).Return(devicetest.Profile(device.UUIDBatteryService, char), nil)
  client.On("Subscribe", char, false, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
    go args.Get(2).(ble.NotificationHandler)([]byte{55})
  })
  client.On("Unsubscribe", char, false).Return(nil).Once()
  client.On("CancelConnection").Return(nil).Once()

  a := renpho.NewAdapter(renpho.DefaultPollInterval, time.Second)
  s, err := a.Poll(context.Background(), &devicetest.FakeHandle{Address: testAddr, Client: client})

  require.NoError(t, err)
  assert.Equal(t, device.Number(55), s.Values[device.KeyBatteryPercent])
  client.AssertExpectations(t)
}

func TestPoll_NotificationNeverArrives(t *testing.T) {
  char := devicetest.Characteristic(device.UUIDBatteryLevel, ble.CharNotify)

  client := &devicetest.MockGATTClient{}
  client.On("DiscoverProfile", false).Return(devicetest.Profile(device.UUIDBatteryService, char), nil)
  client.On("Subscribe", char, false, mock.Anything).Return(nil)
  client.On("Unsubscribe", char, false).Return(nil).Once()
  client.On("CancelConnection").Return(nil).Once()

  a := renpho.NewAdapter(renpho.DefaultPollInterval, 20*time.Millisecond)
  s, err := a.Poll(context.Background(), &devicetest.FakeHandle{Address: testAddr, Client: client})

  assert.ErrorIs(t, err, device.ErrPollTimeout)
  assert.True(t, s.IsEmpty())
  client.AssertExpectations(t)
}

func TestPoll_ReadFallback(t *testing.T) {
  char := devicetest.Characteristic(device.UUIDBatteryLevel, ble.CharRead)

  client := &devicetest.MockGATTClient{}
  client.On("DiscoverProfile", false).Return(devicetest.Profile(device.UUIDBatteryService, char), nil)
  client.On("ReadCharacteristic", char).Return([]byte{12}, nil)
  client.On("CancelConnection").Return(nil).Once()

  a := renpho.NewAdapter(renpho.DefaultPollInterval, renpho.DefaultNotifyTimeout)
  s, err := a.Poll(context.Background(), &devicetest.FakeHandle{Address: testAddr, Client: client})

  require.NoError(t, err)
  assert.Equal(t, device.Number(12), s.Values[device.KeyBatteryPercent])
  client.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestFactory(t *testing.T) {
  f := &renpho.Factory{}

  d, err := f.FromSpec(device.NewDeviceSpec("addr=AA:BB:CC:DD:EE:FF,notify-timeout=2s"))
  require.NoError(t, err)

  assert.Equal(t, "renpho-aabbccddeeff", d.Name())
  assert.Equal(t, device.FlagRequiresBleActiveScan, d.Flags())

  assert.True(t, f.Matches(device.NewRecord(testAddr, 0, device.WithLocalName("QN-Scale T001"))))
  assert.False(t, f.Matches(device.NewRecord(testAddr, 0, device.WithLocalName("Qingping"))))
}
