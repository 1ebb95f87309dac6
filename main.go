package main

import (
  "context"
  "errors"
  "net/http"
  "os"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promhttp"
  "github.com/robertof/go-ble-sensor-bridge/ble"
  "github.com/robertof/go-ble-sensor-bridge/coordinator"
  "github.com/robertof/go-ble-sensor-bridge/metrics"
  "github.com/robertof/go-ble-sensor-bridge/publish"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
  "github.com/spf13/cobra"
  "golang.org/x/sync/errgroup"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  if err := newRootCmd().Execute(); err != nil {
    os.Exit(1)
  }
}

func newRootCmd() *cobra.Command {
  cfg := newConfig()

  root := &cobra.Command{
    Use: "go-ble-sensor-bridge",
    Short: "Bridge BLE sensors (Qing, Renpho, Oral-B) to Prometheus and NATS",
    SilenceUsage: true,
    PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
      if err := cfg.load(cmd.Flags()); err != nil {
        return err
      }

      configureLogging(cfg)
      return nil
    },
  }

  cfg.bindFlags(root.PersistentFlags())

  run := &cobra.Command{
    Use: "run",
    Short: "Scan, poll and publish the configured devices",
    Args: cobra.NoArgs,
    RunE: func(cmd *cobra.Command, args []string) error {
      if err := cfg.validate(); err != nil {
        return err
      }

      return runBridge(cmd.Context(), cfg)
    },
  }

  cfg.bindRunFlags(run.Flags())

  discover := &cobra.Command{
    Use: "discover",
    Short: "Discover available BLE devices and quit",
    Args: cobra.NoArgs,
    RunE: func(cmd *cobra.Command, args []string) error {
      return doDeviceDiscovery(cmd.Context(), cfg)
    },
  }

  cfg.bindDiscoveryFlags(discover.Flags())

  root.AddCommand(run, discover)

  return root
}

func configureLogging(cfg *config) {
  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }
}

func runBridge(parent context.Context, cfg *config) error {
  if parent == nil {
    parent = context.Background()
  }

  ctx, cancel := context.WithCancel(parent)
  ctx = ble.WrapContextWithSigHandler(ctx, cancel)
  defer cancel()

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Interface("Devices", cfg.Devices).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  setup, err := cfg.buildDevices()

  if err != nil {
    return err
  }

  bleHandle, err := initBle(cfg, setup)

  if err != nil {
    return err
  }

  defer bleHandle.Stop()

  opts := cfg.coordinatorOptions()
  opts.Logger = log.Logger

  manager := coordinator.NewManager(deviceFactories, bleHandle, opts)

  if err := setup.register(manager); err != nil {
    return err
  }

  registry := prometheus.NewRegistry()

  if cfg.EnableMetamonitoring {
    ble.RegisterMetrics(registry)
    coordinator.RegisterMetrics(registry)
    publish.RegisterMetrics(registry)
  }

  metrics.RegisterCollector(manager.Snapshots, registry)

  if cfg.NATSURL != "" {
    nc, err := publish.Connect(cfg.NATSURL, log.Logger)

    if err != nil {
      return err
    }

    defer func() {
      if err := nc.Drain(); err != nil {
        log.Warn().Err(err).Msg("Failed to drain NATS connection")
      }
    }()

    publisher := publish.NewPublisher(nc, cfg.NATSSubjectPrefix, log.Logger)
    manager.RegisterListener(publisher.Publish)

    log.Info().
      Str("URL", cfg.NATSURL).
      Str("SubjectPrefix", cfg.NATSSubjectPrefix).
      Msg("Publishing snapshots to NATS")
  }

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  srv := &http.Server{
    Addr: cfg.BindAddress,
    Handler: mux,
    ReadHeaderTimeout: 10 * time.Second,
  }

  eg, ctx := errgroup.WithContext(ctx)

  eg.Go(func() error {
    return manager.Run(ctx, bleHandle)
  })

  eg.Go(func() error {
    log.Info().
        Str("ListenAddress", cfg.BindAddress).
        Msg("Starting Prometheus server")

    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      return err
    }

    return nil
  })

  eg.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    return srv.Shutdown(shutdownCtx)
  })

  err = eg.Wait()

  if err != nil {
    log.Error().Err(err).Msg("Bridge stopped with an error")
  } else {
    log.Info().Msg("Bridge stopped")
  }

  return err
}

func initBle(cfg *config, setup deviceSetup) (*ble.Handle, error) {
  var bleFlags ble.Flags = ble.FlagEnableDeviceAllowList

  if setup.activeScan {
    bleFlags |= ble.FlagScanTypeActive
  }

  bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags)

  if err != nil {
    log.Error().Err(err).Msg("Failed to initialize Bluetooth device")
    return nil, err
  }

  bleHandle.ConnectableTTL = cfg.ConnectableTTL

  if err := bleHandle.SetAllowListedAddresses(setup.addresses); err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle, nil
}
