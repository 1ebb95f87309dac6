package coordinator

import (
  "github.com/prometheus/client_golang/prometheus"
)

const (
  outcomeSuccess = "success"
  outcomeError = "error"
  outcomeTimeout = "timeout"
  outcomeNoPath = "no_path"
)

var (
  pollsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "ble_sensor_bridge_polls_total",
    Help: "Active polls attempted, by device family and outcome.",
  }, []string{"family", "outcome"})

  advertisementsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "ble_sensor_bridge_advertisements_total",
    Help: "Advertisements routed to a device session.",
  }, []string{"family"})

  droppedAdvertisementsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "ble_sensor_bridge_dropped_advertisements_total",
    Help: "Advertisements dropped because a device session queue was full.",
  }, []string{"family"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    pollsCounter,
    advertisementsCounter,
    droppedAdvertisementsCounter,
  )
}
