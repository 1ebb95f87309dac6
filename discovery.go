package main

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-ble-sensor-bridge/ble"
	"github.com/robertof/go-ble-sensor-bridge/device"
)

type discoveredDevice struct {
  name string
  family string
  connectable bool
  services map[string]bool
}

// merge folds a new advertisement of the same address into d.
func (d *discoveredDevice) merge(a ble.Advertisement, family string) {
  if d.name == "" {
    d.name = a.LocalName()
  }

  if d.family == "" {
    d.family = family
  }

  d.connectable = d.connectable || a.Connectable()

  for _, uuid := range a.Services() {
    d.services[uuid.String()] = true
  }

  for _, sd := range a.ServiceData() {
    d.services[sd.UUID.String()] = true
  }
}

func (d *discoveredDevice) serviceList() []string {
  services := maps.Keys(d.services)
  sort.Strings(services)

  return services
}

// identifyFamily returns the family recognizing a, or an empty string.
func identifyFamily(registry device.Registry, a ble.Advertisement) string {
  rec, err := ble.RecordFromAdvertisement(a)

  if err != nil {
    return ""
  }

  family, _ := registry.Identify(rec)

  return family
}

func doDeviceDiscovery(parent context.Context, cfg *config) error {
  log.Info().
    Dur("Duration", cfg.DiscoveryDuration).
    Msg("Starting in device discovery mode")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive)

  if err != nil {
    log.Error().Err(err).Msg("Failed to initialize Bluetooth device")
    return err
  }

  defer handle.Stop()

  if parent == nil {
    parent = context.Background()
  }

  ctx, cancel := context.WithTimeout(parent, cfg.DiscoveryDuration)
  ctx = ble.WrapContextWithSigHandler(ctx, cancel)
  defer cancel()

  devices := make(map[string]*discoveredDevice)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    addr := a.Addr().String()
    info, ok := devices[addr]

    if !ok {
      info = &discoveredDevice{services: make(map[string]bool)}
      devices[addr] = info
    }

    family := identifyFamily(deviceFactories, a)
    info.merge(a, family)

    log.Debug().
      Str("Addr", addr).
      Str("Name", a.LocalName()).
      Str("Family", family).
      Bool("Connectable", a.Connectable()).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received device advertisement")
  })

  if err != nil && ctx.Err() == nil {
    log.Error().Err(err).Msg("Failed to initiate scan")
    return err
  }

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  addrs := maps.Keys(devices)
  sort.Strings(addrs)

  for _, addr := range addrs {
    data := devices[addr]

    ev := log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Bool("Connectable", data.connectable).
      Strs("Services", data.serviceList())

    if data.family != "" {
      ev = ev.Str("Family", data.family)
    }

    ev.Msg("Found device")
  }

  return nil
}
