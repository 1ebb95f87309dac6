package device

import (
  "fmt"
  "net"
  "strings"
  "time"
)

// AdvertisementRecord is a read-only capture of one BLE advertisement.
type AdvertisementRecord struct {
  addr             net.HardwareAddr
  localName        string
  rssi             int
  serviceData      map[string][]byte
  manufacturerData map[uint16][]byte
  connectable      bool
  receivedAt       time.Time
}

type RecordOption func(*AdvertisementRecord)

func NewRecord(addr net.HardwareAddr, rssi int, opts ...RecordOption) AdvertisementRecord {
  r := AdvertisementRecord{
    addr:       append(net.HardwareAddr(nil), addr...),
    rssi:       rssi,
    receivedAt: time.Now(),
  }

  for _, opt := range opts {
    opt(&r)
  }

  return r
}

func WithLocalName(name string) RecordOption {
  return func(r *AdvertisementRecord) {
    r.localName = name
  }
}

// WithServiceData adds a service data entry. UUIDs are normalized to lower case.
func WithServiceData(uuid string, data []byte) RecordOption {
  return func(r *AdvertisementRecord) {
    if r.serviceData == nil {
      r.serviceData = make(map[string][]byte)
    }

    r.serviceData[strings.ToLower(uuid)] = append([]byte(nil), data...)
  }
}

func WithManufacturerData(companyID uint16, data []byte) RecordOption {
  return func(r *AdvertisementRecord) {
    if r.manufacturerData == nil {
      r.manufacturerData = make(map[uint16][]byte)
    }

    r.manufacturerData[companyID] = append([]byte(nil), data...)
  }
}

func WithConnectable(connectable bool) RecordOption {
  return func(r *AdvertisementRecord) {
    r.connectable = connectable
  }
}

func WithReceivedAt(t time.Time) RecordOption {
  return func(r *AdvertisementRecord) {
    r.receivedAt = t
  }
}

func (r AdvertisementRecord) Addr() net.HardwareAddr {
  return append(net.HardwareAddr(nil), r.addr...)
}

func (r AdvertisementRecord) LocalName() string {
  return r.localName
}

func (r AdvertisementRecord) RSSI() int {
  return r.rssi
}

func (r AdvertisementRecord) Connectable() bool {
  return r.connectable
}

func (r AdvertisementRecord) ReceivedAt() time.Time {
  return r.receivedAt
}

func (r AdvertisementRecord) ServiceData() map[string][]byte {
  out := make(map[string][]byte, len(r.serviceData))

  for k, v := range r.serviceData {
    out[k] = append([]byte(nil), v...)
  }

  return out
}

// ServiceDataFor looks up a single service data payload.
func (r AdvertisementRecord) ServiceDataFor(uuid string) ([]byte, bool) {
  data, ok := r.serviceData[strings.ToLower(uuid)]

  if !ok {
    return nil, false
  }

  return append([]byte(nil), data...), true
}

func (r AdvertisementRecord) ManufacturerData() map[uint16][]byte {
  out := make(map[uint16][]byte, len(r.manufacturerData))

  for k, v := range r.manufacturerData {
    out[k] = append([]byte(nil), v...)
  }

  return out
}

func (r AdvertisementRecord) HasManufacturer(companyID uint16) bool {
  _, ok := r.manufacturerData[companyID]
  return ok
}

func (r AdvertisementRecord) String() string {
  return fmt.Sprintf("advertisement[addr=%v, name=%q, rssi=%d, connectable=%v]",
    r.addr, r.localName, r.rssi, r.connectable)
}
