// Package publish forwards published device snapshots to a NATS subject per device.
package publish

import (
  "encoding/json"
  "fmt"
  "time"

  "github.com/nats-io/nats.go"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/rs/zerolog"
)

const DefaultSubjectPrefix = "ble.sensors"

var publishFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
  Name: "ble_sensor_bridge_publish_failures_total",
  Help: "Snapshots that could not be handed to NATS.",
})

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(publishFailuresCounter)
}

// Conn is the part of *nats.Conn used for publishing.
type Conn interface {
  Publish(subj string, data []byte) error
}

type Value struct {
  Kind        string  `json:"kind"`
  Number      float64 `json:"number,omitempty"`
  Enum        string  `json:"enum,omitempty"`
  Binary      bool    `json:"binary,omitempty"`
  Name        string  `json:"name"`
  Unit        string  `json:"unit,omitempty"`
  DeviceClass string  `json:"device_class,omitempty"`
}

type Event struct {
  Key        string            `json:"key"`
  Type       string            `json:"type"`
  Properties map[string]string `json:"properties,omitempty"`
}

// Message is the JSON document published for every snapshot.
type Message struct {
  Address         string           `json:"address"`
  Name            string           `json:"name"`
  Family          string           `json:"family"`
  Title           string           `json:"title"`
  Type            string           `json:"type"`
  Manufacturer    string           `json:"manufacturer"`
  SoftwareVersion string           `json:"sw_version,omitempty"`
  HardwareVersion string           `json:"hw_version,omitempty"`
  Values          map[string]Value `json:"values"`
  Events          []Event          `json:"events,omitempty"`
  UpdatedAt       time.Time        `json:"updated_at"`
}

func NewMessage(dev device.Device, s device.Snapshot) Message {
  m := Message{
    Address: dev.Addr().String(),
    Name: dev.Name(),
    Family: dev.Family(),
    Title: s.Title,
    Type: s.Type,
    Manufacturer: s.Manufacturer,
    SoftwareVersion: s.SoftwareVersion,
    HardwareVersion: s.HardwareVersion,
    Values: make(map[string]Value, len(s.Values)),
    UpdatedAt: s.UpdatedAt,
  }

  for key, v := range s.Values {
    d, ok := s.Descriptions[key]

    if !ok {
      d, _ = device.LookupDescription(key)
    }

    m.Values[string(key)] = Value{
      Kind: v.Kind.String(),
      Number: v.Number,
      Enum: v.Enum,
      Binary: v.Binary,
      Name: d.Name,
      Unit: d.Unit,
      DeviceClass: string(d.DeviceClass),
    }
  }

  for _, e := range s.Events {
    m.Events = append(m.Events, Event{Key: string(e.Key), Type: e.Type, Properties: e.Properties})
  }

  return m
}

type Publisher struct {
  conn   Conn
  prefix string
  logger zerolog.Logger
}

func NewPublisher(conn Conn, prefix string, logger zerolog.Logger) *Publisher {
  if prefix == "" {
    prefix = DefaultSubjectPrefix
  }

  return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject is "<prefix>.<address without separators>".
func (p *Publisher) Subject(dev device.Device) string {
  return p.prefix + "." + utils.CompactAddress(dev.Addr())
}

// Publish sends s. Failures are logged and counted, never returned: it runs as a snapshot listener.
func (p *Publisher) Publish(dev device.Device, s device.Snapshot) {
  if err := p.publish(dev, s); err != nil {
    publishFailuresCounter.Inc()
    p.logger.Warn().Err(err).Stringer("Device", dev).Msg("publish: failed to publish snapshot")
  }
}

func (p *Publisher) publish(dev device.Device, s device.Snapshot) error {
  data, err := json.Marshal(NewMessage(dev, s))

  if err != nil {
    return fmt.Errorf("failed to marshal snapshot: %w", err)
  }

  subject := p.Subject(dev)

  if err := p.conn.Publish(subject, data); err != nil {
    return fmt.Errorf("failed to publish to %q: %w", subject, err)
  }

  p.logger.Trace().Str("Subject", subject).Int("Bytes", len(data)).Msg("publish: snapshot published")

  return nil
}

// Connect opens a NATS connection that logs its lifecycle and keeps reconnecting.
func Connect(url string, logger zerolog.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
  opts := []nats.Option{
    nats.Name("go-ble-sensor-bridge"),
    nats.MaxReconnects(-1),
    nats.ReconnectWait(2 * time.Second),
    nats.RetryOnFailedConnect(true),
    nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
      logger.Warn().Err(err).Msg("publish: NATS error")
    }),
    nats.ConnectHandler(func(nc *nats.Conn) {
      logger.Info().Str("URL", nc.ConnectedUrl()).Msg("publish: connected to NATS")
    }),
    nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
      logger.Warn().Err(err).Msg("publish: disconnected from NATS")
    }),
    nats.ReconnectHandler(func(nc *nats.Conn) {
      logger.Info().Str("URL", nc.ConnectedUrl()).Msg("publish: reconnected to NATS")
    }),
  }

  nc, err := nats.Connect(url, append(opts, extraOpts...)...)

  if err != nil {
    return nil, fmt.Errorf("failed to connect to NATS: %w", err)
  }

  return nc, nil
}
