package metrics

import (
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ble-sensor-bridge/coordinator"
  "github.com/robertof/go-ble-sensor-bridge/device"
)

var deviceLabels = []string{"name", "address", "family"}

var (
  descValue = prometheus.NewDesc(
    "ble_sensor_value",
    "Numeric or binary sensor value reported by the device.",
    append(deviceLabels, "sensor", "unit", "device_class"),
    nil,
  )

  descEnum = prometheus.NewDesc(
    "ble_sensor_enum_info",
    "Current member of an enum sensor, always 1.",
    append(deviceLabels, "sensor", "value"),
    nil,
  )

  descInfo = prometheus.NewDesc(
    "ble_sensor_info",
    "Identity of the device, always 1.",
    append(deviceLabels, "title", "manufacturer", "model", "sw_version", "hw_version"),
    nil,
  )

  descAvailable = prometheus.NewDesc(
    "ble_sensor_available",
    "Whether the device values can be trusted: 1 = available, 0 = stale or never seen.",
    deviceLabels,
    nil,
  )

  descLastUpdate = prometheus.NewDesc(
    "ble_sensor_last_update_timestamp_seconds",
    "Time of the most recent snapshot published for the device.",
    deviceLabels,
    nil,
  )
)

type CollectFunc func() []coordinator.DeviceState

type collector struct {
  CollectFunc
}

// Describe lists every descriptor up front: which ones Collect emits depends on what the
// devices reported so far.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  for _, desc := range []*prometheus.Desc{descValue, descEnum, descInfo, descAvailable, descLastUpdate} {
    ch <- desc
  }
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for _, state := range c.CollectFunc() {
    dev := state.Device
    s := state.Snapshot
    labels := []string{dev.Name(), dev.Addr().String(), dev.Family()}

    available := 0.0

    if state.Available {
      available = 1
    }

    ch <- prometheus.MustNewConstMetric(descAvailable, prometheus.GaugeValue, available, labels...)

    // never heard from: nothing else to report.
    if s.UpdatedAt.IsZero() {
      continue
    }

    ch <- prometheus.MustNewConstMetric(
      descLastUpdate,
      prometheus.GaugeValue,
      float64(s.UpdatedAt.UnixNano()) / 1e9,
      labels...,
    )

    ch <- prometheus.MustNewConstMetric(
      descInfo,
      prometheus.GaugeValue,
      1,
      append(labels, s.Title, s.Manufacturer, s.Type, s.SoftwareVersion, s.HardwareVersion)...,
    )

    for _, key := range s.Keys() {
      value := s.Values[key]
      desc, ok := s.Descriptions[key]

      if !ok {
        desc, _ = device.LookupDescription(key)
      }

      if value.Kind == device.ValueKindEnum {
        enum := prometheus.MustNewConstMetric(
          descEnum,
          prometheus.GaugeValue,
          1,
          append(labels, string(key), value.Enum)...,
        )

        ch <- prometheus.NewMetricWithTimestamp(s.UpdatedAt, enum)
        continue
      }

      f, ok := value.Float()

      if !ok {
        continue
      }

      metric := prometheus.MustNewConstMetric(
        descValue,
        prometheus.GaugeValue,
        f,
        append(labels, string(key), desc.Unit, string(desc.DeviceClass))...,
      )

      ch <- prometheus.NewMetricWithTimestamp(s.UpdatedAt, metric)
    }
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
