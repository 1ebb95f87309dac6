package qing

import (
  "context"
  "errors"
  "sync/atomic"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/rs/zerolog"
)

const (
  Manufacturer = "Qingping"
  DeviceType = "Qing Sensor"

  DefaultPollInterval = 5 * time.Minute
)

type Adapter struct {
  policy device.PollPolicy

  // value handle of the battery level characteristic learnt from a previous discovery.
  batteryHandle atomic.Uint32
}

func NewAdapter(interval time.Duration) *Adapter {
  return &Adapter{
    policy: device.PollPolicy{MinInterval: interval},
  }
}

func (a *Adapter) Update(rec device.AdvertisementRecord) device.Snapshot {
  return device.StartUpdate(rec, Manufacturer, DeviceType)
}

func (a *Adapter) PollNeeded(rec device.AdvertisementRecord, lastPoll time.Time) bool {
  return a.policy.Due(lastPoll)
}

func (a *Adapter) SleepyDevice() bool {
  return false
}

func (a *Adapter) Poll(ctx context.Context, h device.ConnectableHandle) (device.Snapshot, error) {
  logger := zerolog.Ctx(ctx)
  s := device.NewSnapshot()

  err := device.WithSession(ctx, h, func(c device.GATTClient) error {
    level, err := a.readBattery(ctx, c)
    if err != nil {
      return err
    }

    s.Set(device.KeyBatteryPercent, device.Number(float64(level)))

    fw, err := device.ReadString(c, device.UUIDFirmwareRevision)

    switch {
    case errors.Is(err, device.ErrCharacteristicNotFound):
      logger.Trace().Stringer("Addr", h.Addr()).Msg("qing: device exposes no firmware revision")
    case err != nil:
      return err
    default:
      s.SoftwareVersion = fw
    }

    return nil
  })

  if err != nil {
    logger.Warn().
      Err(err).
      Stringer("Addr", h.Addr()).
      Stringer("Partial", s).
      Msg("qing: poll failed, returning partial result")
  }

  if !s.IsEmpty() {
    s.UpdatedAt = time.Now()
  }

  return s, err
}

func (a *Adapter) readBattery(ctx context.Context, c device.GATTClient) (uint8, error) {
  // fast path: read through the handle learnt last time. if it doesn't work, rediscover.
  if handle := uint16(a.batteryHandle.Load()); handle != 0 {
    char := ble.Characteristic{
      UUID: device.UUIDBatteryLevel,
      ValueHandle: handle,
    }

    data, err := c.ReadCharacteristic(&char)

    if err == nil && len(data) == 1 && data[0] <= 100 {
      return data[0], nil
    }

    if err != nil && !utils.ErrorIsAnyOf(err, ble.ErrInvalidHandle, ble.ErrReadNotPerm) {
      return 0, errors.Join(device.ErrTransport, err)
    }

    a.batteryHandle.Store(0)

    zerolog.Ctx(ctx).Debug().
      Err(err).
      Msg("qing: cached battery handle is stale, falling back to discovery")
  }

  char, err := device.FindCharacteristic(c, device.UUIDBatteryLevel)
  if err != nil {
    return 0, err
  }

  data, err := c.ReadCharacteristic(char)
  if err != nil {
    return 0, errors.Join(device.ErrTransport, err)
  }

  level, err := device.ParseBatteryLevel(data)
  if err != nil {
    return 0, err
  }

  a.batteryHandle.Store(uint32(char.ValueHandle))

  return level, nil
}
