package main

import (
  "fmt"
  "net"
  "os"
  "sort"
  "time"

  "github.com/mcuadros/go-defaults"
  "github.com/pkg/errors"
  "github.com/robertof/go-ble-sensor-bridge/ble"
  "github.com/robertof/go-ble-sensor-bridge/coordinator"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/device/oralb"
  "github.com/robertof/go-ble-sensor-bridge/device/qing"
  "github.com/robertof/go-ble-sensor-bridge/device/renpho"
  "github.com/spf13/pflag"
  "gopkg.in/yaml.v3"
)

type config struct {
  Debug bool `yaml:"debug"`
  Trace bool `yaml:"trace"`
  BindAddress string `yaml:"bind" default:"localhost:9102"`
  EnableMetamonitoring bool `yaml:"metamonitoring" default:"true"`

  BluetoothDeviceId int `yaml:"bluetooth-device" default:"0"`
  BluetoothConnParams ble.ConnParams `yaml:"bluetooth-connection-params" default:"default"`
  ActiveScan bool `yaml:"active-scan"`
  ConnectableTTL time.Duration `yaml:"connectable-ttl" default:"5m"`

  PollTimeout time.Duration `yaml:"poll-timeout" default:"15s"`
  Backoff time.Duration `yaml:"backoff" default:"30s"`
  MaxBackoff time.Duration `yaml:"max-backoff" default:"30m"`
  StaleAfter time.Duration `yaml:"stale-after" default:"15m"`

  NATSURL string `yaml:"nats-url"`
  NATSSubjectPrefix string `yaml:"nats-subject-prefix" default:"ble.sensors"`

  DiscoveryDuration time.Duration `yaml:"discovery-duration" default:"5s"`

  // family (or "auto") -> device specs in the `key=value,key=value` form
  Devices map[string][]string `yaml:"devices"`

  ConfigFile string `yaml:"-"`
}

var deviceFactories = device.Registry{
  qing.Family: &qing.Factory{},
  renpho.Family: &renpho.Factory{},
  oralb.Family: &oralb.Factory{},
}

func newConfig() *config {
  cfg := &config{}
  defaults.SetDefaults(cfg)

  return cfg
}

func (cfg *config) bindFlags(fs *pflag.FlagSet) {
  fs.StringVar(&cfg.ConfigFile, "config", "", "YAML configuration file. Flags override its values")
  fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Enable trace logs")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", cfg.BluetoothDeviceId, "Bluetooth (HCI) device ID")
}

func (cfg *config) bindRunFlags(fs *pflag.FlagSet) {
  fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "Where the metrics endpoint will bind to")
  fs.BoolVar(&cfg.EnableMetamonitoring, "metamonitoring", cfg.EnableMetamonitoring, "Enable metamonitoring metrics")
  fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params",
    "Bluetooth connection parameters (one of 'default' or 'power-saving')")
  fs.BoolVar(&cfg.ActiveScan, "active-scan", cfg.ActiveScan, "Always run active scans")
  fs.DurationVar(&cfg.ConnectableTTL, "connectable-ttl", cfg.ConnectableTTL,
    "How long a connectable advertisement makes a device reachable for polls")
  fs.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "Bound on a single active poll")
  fs.DurationVar(&cfg.Backoff, "backoff", cfg.Backoff, "Pause after a failed poll, doubled on each further failure")
  fs.DurationVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "Upper bound of the poll backoff")
  fs.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter,
    "Non-sleepy devices become unavailable when silent for this long")
  fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "Publish snapshots to this NATS server (disabled when empty)")
  fs.StringVar(&cfg.NATSSubjectPrefix, "nats-subject-prefix", cfg.NATSSubjectPrefix, "Subject prefix for published snapshots")

  if cfg.Devices == nil {
    cfg.Devices = make(map[string][]string)
  }

  for _, family := range append(deviceFactories.Families(), device.FamilyAuto) {
    help := "Device spec for this device in the form of `key=value,key=value`. Repeatable."

    if family == device.FamilyAuto {
      help += "\nThe family is identified from the first advertisement of the device. " +
        "Supported parameters: addr (required), name, sleepy."
    } else if docs, ok := deviceFactories[family].(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    fs.Var(&boundDeviceList{family: family, devices: cfg.Devices}, family, help)
  }
}

func (cfg *config) bindDiscoveryFlags(fs *pflag.FlagSet) {
  fs.DurationVar(&cfg.DiscoveryDuration, "duration", cfg.DiscoveryDuration, "How long to scan for devices")
}

// boundDeviceList collects the specs passed to a repeatable per-family flag.
type boundDeviceList struct {
  family string
  devices map[string][]string
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  d.devices[d.family] = append(d.devices[d.family], v)
  return nil
}

func (d *boundDeviceList) Type() string {
  return "spec"
}

// load applies the configuration file, if any, underneath the flags set on the command line.
func (cfg *config) load(fs *pflag.FlagSet) error {
  if cfg.ConfigFile == "" {
    return nil
  }

  data, err := os.ReadFile(cfg.ConfigFile)

  if err != nil {
    return errors.Wrap(err, "failed to read config file")
  }

  changed := make(map[string]string)

  fs.Visit(func(f *pflag.Flag) {
    if _, ok := f.Value.(*boundDeviceList); !ok {
      changed[f.Name] = f.Value.String()
    }
  })

  flagDevices := cfg.Devices
  cfg.Devices = nil

  if err := yaml.Unmarshal(data, cfg); err != nil {
    return fmt.Errorf("%w: invalid config file %q: %v", device.ErrConfiguration, cfg.ConfigFile, err)
  }

  for name, value := range changed {
    if err := fs.Set(name, value); err != nil {
      return errors.Wrapf(err, "failed to re-apply flag %q", name)
    }
  }

  // devices from flags are added to the ones from the file.
  if cfg.Devices == nil {
    cfg.Devices = make(map[string][]string)
  }

  for family, specs := range flagDevices {
    cfg.Devices[family] = append(cfg.Devices[family], specs...)
  }

  return nil
}

func (cfg *config) validate() error {
  if err := cfg.BluetoothConnParams.Set(string(cfg.BluetoothConnParams)); err != nil {
    return fmt.Errorf("%w: %v", device.ErrConfiguration, err)
  }

  for family := range cfg.Devices {
    if _, ok := deviceFactories[family]; !ok && family != device.FamilyAuto {
      return fmt.Errorf("%w: unknown device family %q (known: %v)",
        device.ErrConfiguration, family, append(deviceFactories.Families(), device.FamilyAuto))
    }
  }

  if cfg.deviceCount() == 0 {
    return fmt.Errorf("%w: at least one device is required", device.ErrConfiguration)
  }

  return nil
}

func (cfg *config) deviceCount() (n int) {
  for _, specs := range cfg.Devices {
    n += len(specs)
  }

  return n
}

func (cfg *config) coordinatorOptions() coordinator.Options {
  return coordinator.Options{
    PollTimeout: cfg.PollTimeout,
    Backoff: cfg.Backoff,
    MaxBackoff: cfg.MaxBackoff,
    StaleAfter: cfg.StaleAfter,
  }
}

// deviceSetup holds the configured devices and what they need from the Bluetooth adapter.
type deviceSetup struct {
  devices []device.Device
  // devices whose family is identified from their first advertisement
  auto []device.DeviceSpec

  addresses []net.HardwareAddr
  activeScan bool
}

func (cfg *config) buildDevices() (setup deviceSetup, err error) {
  setup.activeScan = cfg.ActiveScan

  families := make([]string, 0, len(cfg.Devices))

  for family := range cfg.Devices {
    families = append(families, family)
  }

  sort.Strings(families)

  for _, family := range families {
    for _, raw := range cfg.Devices[family] {
      spec := device.NewDeviceSpec(raw)

      if family == device.FamilyAuto {
        addr, err := net.ParseMAC(spec.Addr())

        if err != nil {
          return setup, fmt.Errorf("%w: %s: invalid addr %q: %v", device.ErrConfiguration, family, spec.Addr(), err)
        }

        setup.auto = append(setup.auto, spec)
        setup.addresses = append(setup.addresses, addr)
        // names are often only in scan responses.
        setup.activeScan = true
        continue
      }

      dev, err := deviceFactories.Create(family, spec)

      if err != nil {
        return setup, errors.Wrapf(err, "failed to create %s device", family)
      }

      setup.devices = append(setup.devices, dev)
      setup.addresses = append(setup.addresses, dev.Addr())

      if dev.Flags() & device.FlagRequiresBleActiveScan == device.FlagRequiresBleActiveScan {
        setup.activeScan = true
      }
    }
  }

  return setup, nil
}

// register creates a session for every device of the setup.
func (setup deviceSetup) register(m *coordinator.Manager) error {
  for _, dev := range setup.devices {
    if _, err := m.Add(dev); err != nil {
      return err
    }
  }

  for _, spec := range setup.auto {
    if err := m.AddAuto(spec); err != nil {
      return err
    }
  }

  return nil
}
