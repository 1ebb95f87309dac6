package coordinator

import (
  "context"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/rs/zerolog"
)

const (
  DefaultPollTimeout = 15 * time.Second
  DefaultBackoff = 30 * time.Second
  DefaultMaxBackoff = 30 * time.Minute
  DefaultStaleAfter = 15 * time.Minute
  DefaultQueueSize = 16
)

// Resolver hands out connectable handles. It fails with device.ErrNoConnectablePath when no radio
// path can currently reach the device.
type Resolver interface {
  Resolve(ctx context.Context, rec device.AdvertisementRecord) (device.ConnectableHandle, error)
}

// Listener receives every published snapshot. Snapshots are private copies.
type Listener func(dev device.Device, s device.Snapshot)

type Options struct {
  // Bound on handle resolution plus the adapter poll.
  PollTimeout time.Duration
  // First pause after a failed poll, doubled on every further failure up to MaxBackoff.
  Backoff time.Duration
  MaxBackoff time.Duration
  // Non-sleepy devices are unavailable when not heard from for longer than this.
  StaleAfter time.Duration
  QueueSize int

  Logger zerolog.Logger
  // Now defaults to time.Now.
  Now func() time.Time
}

func (o Options) withDefaults() Options {
  if o.PollTimeout <= 0 {
    o.PollTimeout = DefaultPollTimeout
  }

  if o.Backoff <= 0 {
    o.Backoff = DefaultBackoff
  }

  if o.MaxBackoff <= 0 {
    o.MaxBackoff = DefaultMaxBackoff
  }

  if o.MaxBackoff < o.Backoff {
    o.MaxBackoff = o.Backoff
  }

  if o.StaleAfter <= 0 {
    o.StaleAfter = DefaultStaleAfter
  }

  if o.QueueSize <= 0 {
    o.QueueSize = DefaultQueueSize
  }

  if o.Now == nil {
    o.Now = time.Now
  }

  return o
}

// Coordinator owns the session of one device: it turns advertisements into published snapshots
// and runs at most one active poll at a time when the adapter asks for one.
type Coordinator struct {
  dev      device.Device
  adapter  device.Adapter
  resolver Resolver
  opts     Options
  logger   zerolog.Logger

  records chan device.AdvertisementRecord

  mu          sync.RWMutex
  state       State
  snapshot    device.Snapshot
  lastPoll    time.Time
  lastSeen    time.Time
  failures    int
  lastFailure time.Time
  running     bool

  listenersMu  sync.Mutex
  listeners    map[uint64]Listener
  nextListener uint64

  lifecycleMu sync.Mutex
  cancel      context.CancelFunc
  done        chan struct{}
}

type pollResult struct {
  snapshot device.Snapshot
  err      error
  outcome  string
}

func New(dev device.Device, resolver Resolver, opts Options) *Coordinator {
  opts = opts.withDefaults()

  return &Coordinator{
    dev: dev,
    adapter: dev.Adapter(),
    resolver: resolver,
    opts: opts,
    logger: opts.Logger.With().
      Str("Device", dev.Name()).
      Stringer("Addr", dev.Addr()).
      Str("Family", dev.Family()).
      Logger(),
    records: make(chan device.AdvertisementRecord, opts.QueueSize),
    snapshot: device.NewSnapshot(),
    listeners: make(map[uint64]Listener),
  }
}

func (c *Coordinator) Device() device.Device {
  return c.dev
}

// OnAdvertisement queues rec for the session. It never blocks; records are dropped when the
// session falls behind.
func (c *Coordinator) OnAdvertisement(rec device.AdvertisementRecord) {
  select {
  case c.records <- rec:
    advertisementsCounter.WithLabelValues(c.dev.Family()).Inc()
  default:
    droppedAdvertisementsCounter.WithLabelValues(c.dev.Family()).Inc()
    c.logger.Warn().Stringer("Record", rec).Msg("coordinator: session queue full, dropping advertisement")
  }
}

// Start runs the session in the background until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
  c.lifecycleMu.Lock()
  defer c.lifecycleMu.Unlock()

  if c.done != nil {
    panic("attempted to call coordinator.Start() twice")
  }

  ctx, cancel := context.WithCancel(ctx)
  c.cancel = cancel
  c.done = make(chan struct{})

  go func() {
    defer close(c.done)
    c.Run(ctx)
  }()
}

// Stop cancels the session, including any poll in flight, and waits for it to wind down.
func (c *Coordinator) Stop() {
  c.lifecycleMu.Lock()
  cancel, done := c.cancel, c.done
  c.lifecycleMu.Unlock()

  if cancel == nil {
    return
  }

  cancel()
  <-done
}

// Run processes advertisements and poll results until ctx is done. A poll still running when ctx
// ends is cancelled and waited for.
func (c *Coordinator) Run(ctx context.Context) {
  c.mu.Lock()
  c.running = true
  c.mu.Unlock()

  c.logger.Debug().
    Dur("PollTimeout", c.opts.PollTimeout).
    Bool("Sleepy", c.SleepyDevice()).
    Msg("coordinator: session started")

  var pollWG sync.WaitGroup
  results := make(chan pollResult, 1)
  inflight := false

  defer func() {
    pollWG.Wait()

    c.mu.Lock()
    c.running = false
    c.state = StateIdle
    c.mu.Unlock()

    c.logger.Debug().Msg("coordinator: session stopped")
  }()

  for {
    select {
    case <-ctx.Done():
      return
    case rec := <-c.records:
      c.handleAdvertisement(rec, inflight)

      if !inflight && c.needsPoll(rec) {
        inflight = true
        c.setState(StateResolving)

        pollWG.Add(1)
        go func() {
          defer pollWG.Done()
          results <- c.poll(ctx, rec)
        }()
      } else if !inflight {
        c.setState(StateIdle)
      }
    case res := <-results:
      inflight = false
      c.handlePollResult(res)
      c.setState(StateIdle)
    }
  }
}

func (c *Coordinator) handleAdvertisement(rec device.AdvertisementRecord, inflight bool) {
  update := c.adapter.Update(rec)

  c.mu.Lock()
  if !inflight {
    c.state = StatePublishing
  }

  c.lastSeen = c.opts.Now()
  c.snapshot = c.snapshot.WithoutEvents().Merge(update).Normalize()
  published := c.snapshot.Clone()
  c.mu.Unlock()

  c.logger.Trace().Stringer("Snapshot", published).Msg("coordinator: publishing passive update")

  c.publish(published)

  if !inflight {
    c.setState(StateEvaluating)
  }
}

func (c *Coordinator) needsPoll(rec device.AdvertisementRecord) bool {
  c.mu.RLock()
  lastPoll := c.lastPoll
  running := c.running
  c.mu.RUnlock()

  if !running {
    return false
  }

  if until, ok := c.backoffUntil(); ok && c.opts.Now().Before(until) {
    c.logger.Trace().Time("Until", until).Msg("coordinator: poll skipped, backing off")
    return false
  }

  return c.adapter.PollNeeded(rec, lastPoll)
}

// backoffUntil reports when polling may resume after consecutive failures.
func (c *Coordinator) backoffUntil() (time.Time, bool) {
  c.mu.RLock()
  defer c.mu.RUnlock()

  if c.failures == 0 {
    return time.Time{}, false
  }

  return c.lastFailure.Add(c.backoffFor(c.failures)), true
}

func (c *Coordinator) backoffFor(failures int) time.Duration {
  backoff := c.opts.Backoff

  for i := 1; i < failures; i++ {
    backoff <<= 1

    if backoff <= 0 || backoff >= c.opts.MaxBackoff {
      return c.opts.MaxBackoff
    }
  }

  return backoff
}

func (c *Coordinator) poll(ctx context.Context, rec device.AdvertisementRecord) pollResult {
  ctx, cancel := context.WithTimeout(ctx, c.opts.PollTimeout)
  defer cancel()

  ctx = c.logger.WithContext(ctx)

  h, err := c.resolver.Resolve(ctx, rec)

  if err != nil {
    outcome := outcomeError

    switch {
    case errors.Is(err, device.ErrNoConnectablePath):
      outcome = outcomeNoPath
    case utils.ErrorIsAnyOf(err, context.DeadlineExceeded, device.ErrPollTimeout):
      outcome = outcomeTimeout
    }

    return pollResult{err: err, outcome: outcome}
  }

  var releaseOnce sync.Once

  release := func() {
    releaseOnce.Do(func() {
      if err := h.Release(); err != nil {
        c.logger.Debug().Err(err).Msg("coordinator: failed to release connectable handle")
      }
    })
  }

  defer release()

  c.setState(StatePolling)

  type adapterResult struct {
    snapshot device.Snapshot
    err      error
  }

  ch := make(chan adapterResult, 1)

  go func() {
    defer func() {
      if r := recover(); r != nil {
        ch <- adapterResult{err: fmt.Errorf("%w: adapter panicked: %v", device.ErrTransport, r)}
      }
    }()

    s, err := c.adapter.Poll(ctx, h)
    ch <- adapterResult{snapshot: s, err: err}
  }()

  select {
  case res := <-ch:
    switch {
    case res.err == nil:
      return pollResult{snapshot: res.snapshot, outcome: outcomeSuccess}
    case utils.ErrorIsAnyOf(res.err, device.ErrPollTimeout, context.DeadlineExceeded):
      return pollResult{snapshot: res.snapshot, err: res.err, outcome: outcomeTimeout}
    default:
      return pollResult{snapshot: res.snapshot, err: res.err, outcome: outcomeError}
    }
  case <-ctx.Done():
    // The handle stays leased and the poll stays in flight until the adapter gives up, even when
    // it ignores ctx. Its result is discarded.
    c.logger.Debug().Msg("coordinator: poll deadline reached, waiting for the adapter to return")
    <-ch

    err := ctx.Err()

    if errors.Is(err, context.DeadlineExceeded) {
      err = fmt.Errorf("%w: %w: no result within %v", device.ErrTransport, device.ErrPollTimeout, c.opts.PollTimeout)
    }

    return pollResult{err: err, outcome: outcomeTimeout}
  }
}

func (c *Coordinator) handlePollResult(res pollResult) {
  pollsCounter.WithLabelValues(c.dev.Family(), res.outcome).Inc()

  now := c.opts.Now()

  switch res.outcome {
  case outcomeSuccess:
    c.mu.Lock()
    c.lastPoll = now
    c.failures = 0
    c.mu.Unlock()

    c.logger.Debug().Stringer("Snapshot", res.snapshot).Msg("coordinator: poll succeeded")
  case outcomeNoPath:
    // not a device failure: retried on the next advertisement.
    c.logger.Debug().Err(res.err).Msg("coordinator: no connectable path, skipping poll")
    return
  default:
    c.mu.Lock()
    c.failures++
    c.lastFailure = now
    failures := c.failures
    c.mu.Unlock()

    c.logger.Warn().
      Err(res.err).
      Int("ConsecutiveFailures", failures).
      Dur("Backoff", c.backoffFor(failures)).
      Msg("coordinator: poll failed")
  }

  if res.outcome == outcomeTimeout || res.snapshot.IsEmpty() {
    return
  }

  c.setState(StateMerging)

  c.mu.Lock()
  c.snapshot = c.snapshot.WithoutEvents().Merge(res.snapshot).Normalize()
  published := c.snapshot.Clone()
  c.state = StatePublishing
  c.mu.Unlock()

  c.publish(published)
}

func (c *Coordinator) setState(s State) {
  c.mu.Lock()
  c.state = s
  c.mu.Unlock()
}

func (c *Coordinator) publish(s device.Snapshot) {
  c.listenersMu.Lock()
  listeners := make([]Listener, 0, len(c.listeners))

  for _, l := range c.listeners {
    listeners = append(listeners, l)
  }

  c.listenersMu.Unlock()

  for _, l := range listeners {
    c.notify(l, s.Clone())
  }
}

func (c *Coordinator) notify(l Listener, s device.Snapshot) {
  defer func() {
    if r := recover(); r != nil {
      c.logger.Error().Interface("Panic", r).Msg("coordinator: listener panicked")
    }
  }()

  l(c.dev, s)
}

// RegisterListener subscribes l to published snapshots until the returned function is called.
func (c *Coordinator) RegisterListener(l Listener) (unregister func()) {
  c.listenersMu.Lock()
  defer c.listenersMu.Unlock()

  id := c.nextListener
  c.nextListener++
  c.listeners[id] = l

  return func() {
    c.listenersMu.Lock()
    defer c.listenersMu.Unlock()

    delete(c.listeners, id)
  }
}

// SleepyDevice reports whether the device stops advertising when idle. The configured override
// wins over the family default.
func (c *Coordinator) SleepyDevice() bool {
  if sleepy, ok := c.dev.SleepyOverride(); ok {
    return sleepy
  }

  return c.adapter.SleepyDevice()
}

// Available reports whether the device values can be trusted at now. Sleepy devices stay
// available once heard from.
func (c *Coordinator) Available(now time.Time) bool {
  c.mu.RLock()
  lastSeen := c.lastSeen
  c.mu.RUnlock()

  if lastSeen.IsZero() {
    return false
  }

  if c.SleepyDevice() {
    return true
  }

  return now.Sub(lastSeen) <= c.opts.StaleAfter
}

func (c *Coordinator) State() State {
  c.mu.RLock()
  defer c.mu.RUnlock()

  return c.state
}

// Snapshot returns a copy of the latest published snapshot.
func (c *Coordinator) Snapshot() device.Snapshot {
  c.mu.RLock()
  defer c.mu.RUnlock()

  return c.snapshot.Clone()
}

// LastPoll is the time of the last successful poll, zero if none.
func (c *Coordinator) LastPoll() time.Time {
  c.mu.RLock()
  defer c.mu.RUnlock()

  return c.lastPoll
}

func (c *Coordinator) String() string {
  return c.dev.String()
}
