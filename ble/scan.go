package ble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ble/ble"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-ble-sensor-bridge/device"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// RecordFromAdvertisement converts a go-ble advertisement into an immutable record. The first two
// bytes of the manufacturer data are the little endian company identifier.
func RecordFromAdvertisement(a Advertisement) (device.AdvertisementRecord, error) {
  addr, err := net.ParseMAC(a.Addr().String())

  if err != nil {
    return device.AdvertisementRecord{}, fmt.Errorf("%w: bad advertisement address %q: %w",
      device.ErrInvalidData, a.Addr().String(), err)
  }

  opts := []device.RecordOption{
    device.WithLocalName(a.LocalName()),
    device.WithConnectable(a.Connectable()),
  }

  for _, sd := range a.ServiceData() {
    opts = append(opts, device.WithServiceData(sd.UUID.String(), sd.Data))
  }

  if md := a.ManufacturerData(); len(md) >= 2 {
    opts = append(opts, device.WithManufacturerData(binary.LittleEndian.Uint16(md), md[2:]))
  }

  return device.NewRecord(addr, a.RSSI(), opts...), nil
}

// Perform an active or passive scan and return every advertisement found.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
  err := h.radio.Scan(ctx, true, onDevice)

  if err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

// ScanRecords scans until ctx is done, handing every advertisement to onRecord. Connectable
// sightings are remembered for Resolve.
func (h *Handle) ScanRecords(ctx context.Context, onRecord func(device.AdvertisementRecord)) error {
  callback := func(a Advertisement) {
    // the BLE lib could send an advertisement even after `Scan()` returns.
    select {
    case <-ctx.Done():
      return
    default:
    }

    rec, err := RecordFromAdvertisement(a)

    if err != nil {
      log.Debug().Err(err).Msg("ble: dropping advertisement")
      return
    }

    if rec.Connectable() {
      h.sightings.Set(strings.ToLower(rec.Addr().String()), rec.ReceivedAt())
    }

    log.Trace().Stringer("Record", rec).Msg("ble: received advertisement")

    onRecord(rec)
  }

  err := h.radio.Scan(ctx, true, callback)

  // swallow errors caused by our own cancellation.
  if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
    err = nil
  }

  if err != nil {
    return fmt.Errorf("%w: scan failed: %w", device.ErrTransport, err)
  }

  return nil
}

// Resolve returns a connectable handle for the address of rec, leased until released.
func (h *Handle) Resolve(ctx context.Context, rec device.AdvertisementRecord) (device.ConnectableHandle, error) {
  if err := ctx.Err(); err != nil {
    return nil, err
  }

  addr := rec.Addr()

  if !rec.Connectable() {
    seen, ok := h.sightings.Get(strings.ToLower(addr.String()))

    if !ok || h.now().Sub(seen) > h.ConnectableTTL {
      return nil, fmt.Errorf("%w: %v", device.ErrNoConnectablePath, addr)
    }
  }

  l, err := h.acquire(addr)

  if err != nil {
    return nil, fmt.Errorf("%v: %w", addr, err)
  }

  return l, nil
}
