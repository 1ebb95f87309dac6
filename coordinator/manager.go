package coordinator

import (
  "context"
  "fmt"
  "sort"
  "strings"
  "sync"
  "time"

  "github.com/cornelk/hashmap"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/rs/zerolog"
  "golang.org/x/sync/errgroup"
)

const DefaultAvailabilityInterval = 30 * time.Second

// AdvertisementSource delivers advertisement records until ctx is done.
type AdvertisementSource interface {
  ScanRecords(ctx context.Context, onRecord func(device.AdvertisementRecord)) error
}

// DeviceState is a point-in-time view of one device session.
type DeviceState struct {
  Device    device.Device
  Snapshot  device.Snapshot
  Available bool
  LastPoll  time.Time
  State     State
}

// Manager owns the sessions of every configured device and routes advertisements to them.
type Manager struct {
  // How often availability changes are checked and logged.
  AvailabilityInterval time.Duration

  registry device.Registry
  resolver Resolver
  opts     Options
  logger   zerolog.Logger

  // lower-case address -> session
  sessions *hashmap.Map[string, *Coordinator]
  // lower-case address -> spec of a device whose family is identified on first sighting
  pending *hashmap.Map[string, device.DeviceSpec]

  mu     sync.Mutex
  runCtx context.Context

  listenersMu  sync.Mutex
  listeners    map[uint64]Listener
  nextListener uint64
}

func NewManager(registry device.Registry, resolver Resolver, opts Options) *Manager {
  opts = opts.withDefaults()

  return &Manager{
    AvailabilityInterval: DefaultAvailabilityInterval,
    registry: registry,
    resolver: resolver,
    opts: opts,
    logger: opts.Logger,
    sessions: hashmap.New[string, *Coordinator](),
    pending: hashmap.New[string, device.DeviceSpec](),
    listeners: make(map[uint64]Listener),
  }
}

func addrKey(s string) string {
  return strings.ToLower(s)
}

// Add creates the session of dev. Adding the same address twice is a configuration error.
func (m *Manager) Add(dev device.Device) (*Coordinator, error) {
  key := addrKey(dev.Addr().String())

  if _, ok := m.pending.Get(key); ok {
    return nil, fmt.Errorf("%w: duplicate device address %v", device.ErrConfiguration, dev.Addr())
  }

  c := New(dev, m.resolver, m.opts)
  c.RegisterListener(m.dispatch)

  // sessions added while running are started here, the others by Run.
  m.mu.Lock()
  defer m.mu.Unlock()

  if _, loaded := m.sessions.GetOrInsert(key, c); loaded {
    return nil, fmt.Errorf("%w: duplicate device address %v", device.ErrConfiguration, dev.Addr())
  }

  if m.runCtx != nil {
    c.Start(m.runCtx)
  }

  m.logger.Debug().Stringer("Device", dev).Msg("coordinator: device session added")

  return c, nil
}

// AddAuto registers a device whose family is identified from its first advertisement.
func (m *Manager) AddAuto(spec device.DeviceSpec) error {
  addr := spec.Addr()

  if addr == "" {
    return fmt.Errorf("%w: %s: missing required %q", device.ErrConfiguration, device.FamilyAuto, device.DeviceSpecFieldAddress)
  }

  key := addrKey(addr)

  if _, ok := m.sessions.Get(key); ok {
    return fmt.Errorf("%w: duplicate device address %v", device.ErrConfiguration, addr)
  }

  if !m.pending.Insert(key, spec) {
    return fmt.Errorf("%w: duplicate device address %v", device.ErrConfiguration, addr)
  }

  return nil
}

// Route hands rec to the session of its address, creating it first for auto-identified devices.
// It reports whether any session took the record.
func (m *Manager) Route(rec device.AdvertisementRecord) bool {
  key := addrKey(rec.Addr().String())

  if c, ok := m.sessions.Get(key); ok {
    c.OnAdvertisement(rec)
    return true
  }

  spec, ok := m.pending.Get(key)

  if !ok {
    return false
  }

  family, ok := m.registry.Identify(rec)

  if !ok {
    m.logger.Trace().Stringer("Record", rec).Msg("coordinator: advertisement not recognized by any family yet")
    return false
  }

  dev, err := m.registry.Create(family, spec)

  if err != nil {
    m.pending.Del(key)
    m.logger.Error().Err(err).Str("Family", family).Stringer("Record", rec).Msg("coordinator: failed to create identified device")
    return false
  }

  m.pending.Del(key)

  c, err := m.Add(dev)

  if err != nil {
    // lost a race with another identification of the same address.
    if c, ok := m.sessions.Get(key); ok {
      c.OnAdvertisement(rec)
      return true
    }

    return false
  }

  m.logger.Info().Stringer("Device", dev).Msg("coordinator: identified device family")

  c.OnAdvertisement(rec)
  return true
}

// Run starts every session and feeds them from src until ctx is done or src returns. All
// sessions are stopped before Run returns.
func (m *Manager) Run(ctx context.Context, src AdvertisementSource) error {
  // a scan that ends cleanly still has to bring the availability watcher down.
  ctx, cancel := context.WithCancel(ctx)
  defer cancel()

  eg, ctx := errgroup.WithContext(ctx)

  m.mu.Lock()
  if m.runCtx != nil {
    m.mu.Unlock()
    panic("attempted to call coordinator.Manager.Run() twice")
  }

  m.runCtx = ctx

  m.sessions.Range(func(_ string, c *Coordinator) bool {
    c.Start(ctx)
    return true
  })

  m.mu.Unlock()

  m.logger.Info().
    Array("Devices", utils.StringerArray[device.Device](m.Devices())).
    Int("PendingIdentification", m.pending.Len()).
    Msg("coordinator: starting device sessions")

  defer m.stopAll()

  eg.Go(func() error {
    defer cancel()

    return src.ScanRecords(ctx, func(rec device.AdvertisementRecord) {
      m.Route(rec)
    })
  })

  eg.Go(func() error {
    m.watchAvailability(ctx)
    return nil
  })

  return eg.Wait()
}

func (m *Manager) stopAll() {
  var eg errgroup.Group

  m.sessions.Range(func(_ string, c *Coordinator) bool {
    eg.Go(func() error {
      c.Stop()
      return nil
    })

    return true
  })

  _ = eg.Wait()
}

func (m *Manager) watchAvailability(ctx context.Context) {
  if m.AvailabilityInterval <= 0 {
    return
  }

  ticker := time.NewTicker(m.AvailabilityInterval)
  defer ticker.Stop()

  known := make(map[string]bool)

  for {
    select {
    case <-ctx.Done():
      return
    case <-ticker.C:
    }

    now := m.opts.Now()

    m.sessions.Range(func(key string, c *Coordinator) bool {
      available := c.Available(now)

      if prev, ok := known[key]; ok && prev != available {
        m.logger.Info().
          Stringer("Device", c).
          Bool("Available", available).
          Msg("coordinator: device availability changed")
      }

      known[key] = available
      return true
    })
  }
}

func (m *Manager) dispatch(dev device.Device, s device.Snapshot) {
  m.listenersMu.Lock()
  listeners := make([]Listener, 0, len(m.listeners))

  for _, l := range m.listeners {
    listeners = append(listeners, l)
  }

  m.listenersMu.Unlock()

  for _, l := range listeners {
    l(dev, s.Clone())
  }
}

// RegisterListener subscribes l to the snapshots published by every session.
func (m *Manager) RegisterListener(l Listener) (unregister func()) {
  m.listenersMu.Lock()
  defer m.listenersMu.Unlock()

  id := m.nextListener
  m.nextListener++
  m.listeners[id] = l

  return func() {
    m.listenersMu.Lock()
    defer m.listenersMu.Unlock()

    delete(m.listeners, id)
  }
}

// Coordinator looks up the session of addr.
func (m *Manager) Coordinator(addr string) (*Coordinator, bool) {
  return m.sessions.Get(addrKey(addr))
}

// Snapshots returns the state of every session, ordered by device name.
func (m *Manager) Snapshots() []DeviceState {
  now := m.opts.Now()
  var out []DeviceState

  m.sessions.Range(func(_ string, c *Coordinator) bool {
    out = append(out, DeviceState{
      Device: c.Device(),
      Snapshot: c.Snapshot(),
      Available: c.Available(now),
      LastPoll: c.LastPoll(),
      State: c.State(),
    })

    return true
  })

  sort.Slice(out, func(i, j int) bool {
    return out[i].Device.Name() < out[j].Device.Name()
  })

  return out
}

// Devices lists the devices with a running or startable session.
func (m *Manager) Devices() []device.Device {
  var devices []device.Device

  m.sessions.Range(func(_ string, c *Coordinator) bool {
    devices = append(devices, c.Device())
    return true
  })

  return devices
}
