package renpho

import (
  "context"
  "fmt"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/rs/zerolog"
)

const (
  Manufacturer = "Renpho"
  DeviceType = "Renpho Scale"

  // values on a scale go stale quickly.
  DefaultPollInterval = time.Minute
  DefaultNotifyTimeout = 5 * time.Second
)

type Adapter struct {
  policy device.PollPolicy
  notifyTimeout time.Duration
}

func NewAdapter(interval, notifyTimeout time.Duration) *Adapter {
  if notifyTimeout <= 0 {
    notifyTimeout = DefaultNotifyTimeout
  }

  return &Adapter{
    policy: device.PollPolicy{MinInterval: interval},
    notifyTimeout: notifyTimeout,
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

// Poll performs one notification-based exchange: the battery level is requested through a
// notification subscription, falling back to a plain read when the characteristic can't notify.
func (a *Adapter) Poll(ctx context.Context, h device.ConnectableHandle) (device.Snapshot, error) {
  logger := zerolog.Ctx(ctx)
  s := device.NewSnapshot()

  logger.Debug().Stringer("Addr", h.Addr()).Msg("renpho: polling device")

  err := device.WithSession(ctx, h, func(c device.GATTClient) error {
    char, err := device.FindCharacteristic(c, device.UUIDBatteryLevel)
    if err != nil {
      return err
    }

    var payload []byte

    if char.Property&ble.CharNotify != 0 {
      payload, err = device.AwaitNotification(ctx, c, char, a.notifyTimeout)
    } else if payload, err = c.ReadCharacteristic(char); err != nil {
      err = fmt.Errorf("%w: failed to read battery level: %w", device.ErrTransport, err)
    }

    if err != nil {
      return err
    }

    level, err := device.ParseBatteryLevel(payload)
    if err != nil {
      return err
    }

    s.Set(device.KeyBatteryPercent, device.Number(float64(level)))

    return nil
  })

  if err != nil {
    logger.Warn().
      Err(err).
      Stringer("Addr", h.Addr()).
      Msg("renpho: reading GATT characteristics failed")
  } else {
    s.UpdatedAt = time.Now()
  }

  return s, err
}
