package device

import (
  "context"
  "net"
  "time"

  "github.com/go-ble/ble"
)

// Adapter translates BLE data of one device family into snapshots.
//
// Update and Poll may run concurrently for the same device (a passive update can arrive while a
// poll is in flight), so implementations must not share mutable state between them: both return
// fresh snapshots which the coordinator merges.
type Adapter interface {
  // Update interprets one advertisement. Must not block.
  Update(rec AdvertisementRecord) Snapshot
  // PollNeeded decides whether an active poll is due. A zero lastPoll means "never polled".
  PollNeeded(rec AdvertisementRecord, lastPoll time.Time) bool
  // Poll fetches values over a GATT connection. Errors are non-fatal: the returned snapshot
  // holds whatever could be read.
  Poll(ctx context.Context, h ConnectableHandle) (Snapshot, error)
  // SleepyDevice is the family default for devices that stop advertising when idle.
  SleepyDevice() bool
}

// GATTClient is the subset of ble.Client used by adapters.
type GATTClient interface {
  Name() string
  DiscoverProfile(force bool) (*ble.Profile, error)
  ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
  Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
  Unsubscribe(c *ble.Characteristic, ind bool) error
  CancelConnection() error
}

// ConnectableHandle is a radio path currently able to open a GATT connection to one address. It
// is borrowed for a single poll and released by its owner.
type ConnectableHandle interface {
  Addr() net.HardwareAddr
  Dial(ctx context.Context) (GATTClient, error)
  Release() error
}

const DefaultPollInterval = 5 * time.Minute

// PollPolicy is the elapsed-time re-poll policy shared by the families.
type PollPolicy struct {
  MinInterval time.Duration

  // Now defaults to time.Now.
  Now func() time.Time
}

func (p PollPolicy) Due(lastPoll time.Time) bool {
  if lastPoll.IsZero() {
    return true
  }

  interval := p.MinInterval

  if interval <= 0 {
    interval = DefaultPollInterval
  }

  now := time.Now

  if p.Now != nil {
    now = p.Now
  }

  return now().Sub(lastPoll) >= interval
}
