package device

import (
  "errors"
  "fmt"
  "net"
  "strings"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrCorruptedData = errors.New("corrupted data")

  // ErrTransport covers GATT connect/read/notify failures. Never fatal: the device keeps its
  // last known values.
  ErrTransport = errors.New("transport error")
  ErrPollTimeout = errors.New("poll timed out")
  ErrNoConnectablePath = errors.New("no connectable path to device")

  // ErrConfiguration is only returned while setting up devices.
  ErrConfiguration = errors.New("configuration error")
)

type Flags uint8

const (
  FlagRequiresBleActiveScan Flags = 1 << iota
)

type Device interface {
  Name() string
  Addr() net.HardwareAddr
  Family() string
  Flags() Flags
  Adapter() Adapter
  // SleepyOverride reports the configured sleepy-device flag, if the user set one.
  SleepyOverride() (sleepy bool, ok bool)
  String() string
}

// Base holds the configuration shared by every device family. Families embed it.
type Base struct {
  family string
  name   string
  addr   net.HardwareAddr
  sleepy *bool
}

func NewBase(family string, spec DeviceSpec) (Base, error) {
  b := Base{family: family}

  addr := spec.Addr()

  if addr == "" {
    return b, fmt.Errorf("%w: %s: missing required %q", ErrConfiguration, family, DeviceSpecFieldAddress)
  }

  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return b, fmt.Errorf("%w: invalid addr: %v", ErrConfiguration, err)
  }

  b.addr = hwAddr

  if name := spec.Name(); name != "" {
    b.name = name
  } else {
    b.name = family + "-" + strings.ToLower(strings.ReplaceAll(addr, ":", ""))
  }

  sleepy, ok, err := spec.Bool(DeviceSpecFieldSleepy)
  if err != nil {
    return b, fmt.Errorf("%w: %v", ErrConfiguration, err)
  }

  if ok {
    b.sleepy = &sleepy
  }

  return b, nil
}

func (b *Base) Name() string {
  return b.name
}

func (b *Base) Addr() net.HardwareAddr {
  return b.addr
}

func (b *Base) Family() string {
  return b.family
}

func (b *Base) SleepyOverride() (bool, bool) {
  if b.sleepy == nil {
    return false, false
  }

  return *b.sleepy, true
}

func (b *Base) String() string {
  return fmt.Sprintf("%s[name=%q, addr=%v]", b.family, b.name, b.addr.String())
}
