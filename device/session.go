package device

import (
  "context"
  "errors"
  "fmt"
  "strings"
  "sync"
  "time"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog"
)

var (
  UUIDBatteryService      = ble.UUID16(0x180f)
  UUIDBatteryLevel        = ble.UUID16(0x2a19)
  UUIDModelNumber         = ble.UUID16(0x2a24)
  UUIDFirmwareRevision    = ble.UUID16(0x2a26)
  UUIDHardwareRevision    = ble.UUID16(0x2a27)
  UUIDManufacturerName    = ble.UUID16(0x2a29)

  ErrCharacteristicNotFound = errors.New("characteristic not found")
)

// WithSession dials over h and runs fn with the connected client. The GATT session is cancelled
// on every exit path, including ctx expiring while fn is blocked on the radio.
func WithSession(ctx context.Context, h ConnectableHandle, fn func(GATTClient) error) error {
  logger := zerolog.Ctx(ctx)

  client, err := h.Dial(ctx)

  if err != nil {
    return fmt.Errorf("%w: failed to connect to %v: %w", ErrTransport, h.Addr(), err)
  }

  var once sync.Once

  disconnect := func() {
    once.Do(func() {
      if err := client.CancelConnection(); err != nil {
        logger.Debug().Err(err).Stringer("Addr", h.Addr()).Msg("device: failed to cancel GATT session")
        return
      }

      logger.Trace().Stringer("Addr", h.Addr()).Msg("device: GATT session closed")
    })
  }

  stop := context.AfterFunc(ctx, disconnect)

  defer func() {
    stop()
    disconnect()
  }()

  return fn(client)
}

// FindCharacteristic discovers the profile (cached by the client when possible) and returns the
// first characteristic matching uuid.
func FindCharacteristic(client GATTClient, uuid ble.UUID) (*ble.Characteristic, error) {
  p, err := client.DiscoverProfile(false)

  if err != nil {
    return nil, fmt.Errorf("%w: cannot discover profile for device: %w", ErrTransport, err)
  }

  if p != nil {
    for _, svc := range p.Services {
      for _, char := range svc.Characteristics {
        if char.UUID.Equal(uuid) {
          return char, nil
        }
      }
    }
  }

  return nil, fmt.Errorf("%w: %v", ErrCharacteristicNotFound, uuid)
}

func ReadUUID(client GATTClient, uuid ble.UUID) ([]byte, error) {
  char, err := FindCharacteristic(client, uuid)

  if err != nil {
    return nil, err
  }

  data, err := client.ReadCharacteristic(char)

  if err != nil {
    return nil, fmt.Errorf("%w: failed to read characteristic '%v': %w", ErrTransport, uuid, err)
  }

  return data, nil
}

// ReadBatteryLevel reads the standard Battery Level characteristic (percentage, one byte).
func ReadBatteryLevel(client GATTClient) (uint8, error) {
  data, err := ReadUUID(client, UUIDBatteryLevel)

  if err != nil {
    return 0, err
  }

  return ParseBatteryLevel(data)
}

func ParseBatteryLevel(data []byte) (uint8, error) {
  if len(data) < 1 {
    return 0, fmt.Errorf("%w: empty battery level", ErrInvalidData)
  }

  if data[0] > 100 {
    return 0, fmt.Errorf("%w: battery level out of range: %d", ErrInvalidData, data[0])
  }

  return data[0], nil
}

// AwaitNotification subscribes to char and waits for a single notification.
func AwaitNotification(
  ctx context.Context,
  client GATTClient,
  char *ble.Characteristic,
  timeout time.Duration,
) ([]byte, error) {
  ch := make(chan []byte, 1)

  err := client.Subscribe(char, false, func(data []byte) {
    select {
    case ch <- append([]byte(nil), data...):
    default:
    }
  })

  if err != nil {
    return nil, fmt.Errorf("%w: failed to subscribe to '%v': %w", ErrTransport, char.UUID, err)
  }

  defer func() {
    if err := client.Unsubscribe(char, false); err != nil {
      zerolog.Ctx(ctx).Debug().Err(err).Stringer("UUID", char.UUID).Msg("device: unsubscribe failed")
    }
  }()

  timer := time.NewTimer(timeout)
  defer timer.Stop()

  select {
  case data := <-ch:
    return data, nil
  case <-timer.C:
    return nil, fmt.Errorf("%w: %w: no notification from '%v' within %v",
      ErrTransport, ErrPollTimeout, char.UUID, timeout)
  case <-ctx.Done():
    return nil, ctx.Err()
  }
}

// ReadString reads a UTF-8 characteristic (Device Information strings), trimming NUL padding.
func ReadString(client GATTClient, uuid ble.UUID) (string, error) {
  data, err := ReadUUID(client, uuid)

  if err != nil {
    return "", err
  }

  return strings.TrimRight(string(data), "\x00 "), nil
}
