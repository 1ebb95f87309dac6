package coordinator_test

import (
  "context"
  "strings"
  "sync"
  "sync/atomic"
  "testing"
  "time"

  "github.com/robertof/go-ble-sensor-bridge/coordinator"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/devicetest"
  "github.com/stretchr/testify/require"
)

const testFamily = "test"

var testAddr = devicetest.MustMAC("AA:BB:CC:DD:EE:FF")

type fakeAdapter struct {
  sleepy bool

  pollNeeded func(rec device.AdvertisementRecord, lastPoll time.Time) bool
  poll       func(ctx context.Context, h device.ConnectableHandle) (device.Snapshot, error)

  polls     atomic.Int32
  active    atomic.Int32
  maxActive atomic.Int32
}

func (a *fakeAdapter) Update(rec device.AdvertisementRecord) device.Snapshot {
  return device.StartUpdate(rec, "Acme", "Test Sensor")
}

func (a *fakeAdapter) PollNeeded(rec device.AdvertisementRecord, lastPoll time.Time) bool {
  if a.pollNeeded == nil {
    return false
  }

  return a.pollNeeded(rec, lastPoll)
}

func (a *fakeAdapter) Poll(ctx context.Context, h device.ConnectableHandle) (device.Snapshot, error) {
  a.polls.Add(1)
  n := a.active.Add(1)
  defer a.active.Add(-1)

  for {
    max := a.maxActive.Load()

    if n <= max || a.maxActive.CompareAndSwap(max, n) {
      break
    }
  }

  return a.poll(ctx, h)
}

func (a *fakeAdapter) SleepyDevice() bool {
  return a.sleepy
}

type fakeDevice struct {
  device.Base
  adapter *fakeAdapter
}

func (d *fakeDevice) Flags() device.Flags {
  return 0
}

func (d *fakeDevice) Adapter() device.Adapter {
  return d.adapter
}

func newFakeDevice(t *testing.T, spec string, a *fakeAdapter) *fakeDevice {
  base, err := device.NewBase(testFamily, device.NewDeviceSpec(spec))
  require.NoError(t, err)

  return &fakeDevice{Base: base, adapter: a}
}

type fakeResolver struct {
  err    error
  handle *devicetest.FakeHandle

  calls atomic.Int32
}

func (r *fakeResolver) Resolve(ctx context.Context, rec device.AdvertisementRecord) (device.ConnectableHandle, error) {
  r.calls.Add(1)

  if r.err != nil {
    return nil, r.err
  }

  return r.handle, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
  mu  sync.Mutex
  now time.Time
}

func newFakeClock() *fakeClock {
  return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
  c.mu.Lock()
  defer c.mu.Unlock()

  return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
  c.mu.Lock()
  defer c.mu.Unlock()

  c.now = c.now.Add(d)
}

// recorder collects published snapshots.
type recorder struct {
  mu        sync.Mutex
  snapshots []device.Snapshot
}

func (r *recorder) listen(dev device.Device, s device.Snapshot) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.snapshots = append(r.snapshots, s)
}

func (r *recorder) count() int {
  r.mu.Lock()
  defer r.mu.Unlock()

  return len(r.snapshots)
}

func (r *recorder) last() device.Snapshot {
  r.mu.Lock()
  defer r.mu.Unlock()

  return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) waitFor(t *testing.T, n int) {
  t.Helper()

  require.Eventually(t, func() bool {
    return r.count() >= n
  }, time.Second, time.Millisecond, "expected %d published snapshots", n)
}

func record(rssi int, opts ...device.RecordOption) device.AdvertisementRecord {
  return device.NewRecord(testAddr, rssi, opts...)
}

func batterySnapshot(level float64) device.Snapshot {
  s := device.NewSnapshot()
  s.Set(device.KeyBatteryPercent, device.Number(level))
  s.SoftwareVersion = "1.0.4"
  s.UpdatedAt = time.Now()

  return s
}

func startCoordinator(t *testing.T, c *coordinator.Coordinator) {
  t.Helper()

  c.Start(context.Background())
  t.Cleanup(c.Stop)
}

// testFactory creates fake devices and recognizes advertisements by local name.
type testFactory struct {
  namePrefix string
}

func (f *testFactory) FromSpec(spec device.DeviceSpec) (device.Device, error) {
  base, err := device.NewBase(testFamily, spec)

  if err != nil {
    return nil, err
  }

  return &fakeDevice{Base: base, adapter: &fakeAdapter{}}, nil
}

func (f *testFactory) Matches(rec device.AdvertisementRecord) bool {
  return strings.HasPrefix(rec.LocalName(), f.namePrefix)
}

type fakeSource struct {
  records []device.AdvertisementRecord
  err     error
  // finite sources return as soon as their records are replayed.
  finite bool
}

func (s *fakeSource) ScanRecords(ctx context.Context, onRecord func(device.AdvertisementRecord)) error {
  for _, rec := range s.records {
    onRecord(rec)
  }

  if s.err != nil || s.finite {
    return s.err
  }

  <-ctx.Done()
  return nil
}
