package oralb

import (
  "context"
  "errors"
  "time"

  "github.com/go-ble/ble"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/rs/zerolog"
)

const (
  Manufacturer = "Oral-B"
  DeviceType = "Oral-B Toothbrush"

  DefaultPollInterval = 30 * time.Minute
)

type Adapter struct {
  policy device.PollPolicy
}

func NewAdapter(interval time.Duration) *Adapter {
  return &Adapter{
    policy: device.PollPolicy{MinInterval: interval},
  }
}

// Update reports the brushing session when the advertisement carries one. Malformed payloads
// still yield the identity and signal strength.
func (a *Adapter) Update(rec device.AdvertisementRecord) device.Snapshot {
  s := device.StartUpdate(rec, Manufacturer, DeviceType)

  data, ok := rec.ManufacturerData()[CompanyID]

  if !ok {
    return s
  }

  session, err := parseManufacturerData(data)

  if err != nil {
    return s
  }

  return s.Merge(session)
}

func (a *Adapter) PollNeeded(rec device.AdvertisementRecord, lastPoll time.Time) bool {
  return a.policy.Due(lastPoll)
}

// Toothbrushes stop advertising as soon as they're put down.
func (a *Adapter) SleepyDevice() bool {
  return true
}

func (a *Adapter) Poll(ctx context.Context, h device.ConnectableHandle) (device.Snapshot, error) {
  logger := zerolog.Ctx(ctx)
  s := device.NewSnapshot()

  err := device.WithSession(ctx, h, func(c device.GATTClient) error {
    level, err := device.ReadBatteryLevel(c)
    if err != nil {
      return err
    }

    s.Set(device.KeyBatteryPercent, device.Number(float64(level)))

    // device information is optional; keep whatever the brush exposes.
    for _, field := range []struct {
      uuid ble.UUID
      dst  *string
    }{
      {device.UUIDModelNumber, &s.HardwareVersion},
      {device.UUIDFirmwareRevision, &s.SoftwareVersion},
    } {
      v, err := device.ReadString(c, field.uuid)

      if errors.Is(err, device.ErrCharacteristicNotFound) {
        continue
      } else if err != nil {
        return err
      }

      *field.dst = v
    }

    return nil
  })

  if err != nil {
    logger.Warn().
      Err(err).
      Stringer("Addr", h.Addr()).
      Msg("oralb: reading GATT characteristics failed")
  }

  if !s.IsEmpty() {
    s.UpdatedAt = time.Now()
  }

  return s, err
}
