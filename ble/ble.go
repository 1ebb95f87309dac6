package ble

import (
  "context"
  "fmt"
  "net"
  "time"

  "github.com/cornelk/hashmap"
  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/rs/zerolog/log"
)

const DefaultConnectableTTL = 5 * time.Minute

type Advertisement = ble.Advertisement

// radio is the part of the HCI device used for scanning and connecting.
type radio interface {
  Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
  Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
  Stop() error
}

type Handle struct {
  // A non-connectable advertisement still resolves to a connectable path if the same address
  // advertised as connectable within ConnectableTTL.
  ConnectableTTL time.Duration

  dev   *linux.Device
  radio radio

  leases *leaseRegistry
  // lower-case address -> last connectable sighting
  sightings *hashmap.Map[string, time.Time]

  now func() time.Time
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    leaseConflictsCounter,
    disconnectsCounter,
  )
}

func newHandle(r radio) *Handle {
  return &Handle{
    ConnectableTTL: DefaultConnectableTTL,
    radio: r,
    leases: newLeaseRegistry(),
    sightings: hashmap.New[string, time.Time](),
    now: time.Now,
  }
}

func Init(deviceId int, flags Flags) (*Handle, error) {
  return InitWithConnParams(
    deviceId,
    ConnParamsDefault,
    flags,
  )
}

// InitWithConnParams opens the HCI device deviceId. Scans start passive unless flags ask for an
// active scan.
func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
  log.Debug().
    Stringer("ScanType", flags.scanType()).
    Stringer("FilterPolicy", flags.filterPolicy()).
    Stringer("ConnParams", &connParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(flags.scanParams()),
    ble.OptConnParams(connParams.AdapterOptions()),
  )

  if err != nil {
    return nil, errors.Wrap(err, "failed to init bluetooth device")
  }

  ble.SetDefaultDevice(dev)

  h := newHandle(dev)
  h.dev = dev

  return h, nil
}

// hciCommandError turns the status of an HCI command response into an error.
func hciCommandError(status uint8, format string, args ...any) error {
  if status == 0 {
    return nil
  }

  return fmt.Errorf(format + ": got status: %#02x", append(args, status)...)
}

// SetAllowListedAddresses replaces the controller allow-list with the configured sensors, so
// that scans with FlagEnableDeviceAllowList only report them.
func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
  log.Debug().
    Array("DeviceAddresses", utils.AddressArray(a)).
    Msg("Allow-listing the requested Bluetooth devices")

  var clearRes cmd.LEClearWhiteListRP

  if err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &clearRes); err != nil {
    return errors.Wrap(err, "failed to clear allow-list")
  }

  if err := hciCommandError(clearRes.Status, "failed to clear allow-list"); err != nil {
    return err
  }

  for _, addr := range a {
    if len(addr) != 6 {
      return fmt.Errorf("%w: cannot allow-list %q: not a 6 byte MAC address", device.ErrConfiguration, addr.String())
    }

    add := cmd.LEAddDeviceToWhiteList{AddressType: 0x00} // public
    // HCI wants addresses in little endian.
    copy(add.Address[:], utils.Reverse(addr))

    var addRes cmd.LEAddDeviceToWhiteListRP

    if err := h.dev.HCI.Send(&add, &addRes); err != nil {
      return errors.Wrapf(err, "failed to allow-list device %q", addr.String())
    }

    if err := hciCommandError(addRes.Status, "failed to allow-list device %q", addr.String()); err != nil {
      return err
    }
  }

  return nil
}

func (h *Handle) Stop() {
  h.ReleaseAll()

  if err := h.radio.Stop(); err != nil {
    log.Warn().Err(err).Msg("ble: failed to stop Bluetooth device")
  }
}
