package device_test

import (
  "testing"
  "time"

  "github.com/robertof/go-ble-sensor-bridge/device"
  "github.com/stretchr/testify/assert"
)

func TestPollPolicy(t *testing.T) {
  now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
  clock := func() time.Time { return now }

  tests := []struct {
    name     string
    interval time.Duration
    lastPoll time.Time
    want     bool
  }{
    {"never polled", 300 * time.Second, time.Time{}, true},
    {"polled 10s ago", 300 * time.Second, now.Add(-10 * time.Second), false},
    {"interval elapsed", 300 * time.Second, now.Add(-300 * time.Second), true},
    {"default interval", 0, now.Add(-time.Minute), false},
    {"default interval elapsed", 0, now.Add(-device.DefaultPollInterval), true},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      p := device.PollPolicy{MinInterval: tt.interval, Now: clock}
      assert.Equal(t, tt.want, p.Due(tt.lastPoll))
    })
  }
}

func TestPollPolicy_WallClock(t *testing.T) {
  p := device.PollPolicy{MinInterval: 300 * time.Second}

  assert.False(t, p.Due(time.Now().Add(-10*time.Second)))
  assert.True(t, p.Due(time.Time{}))
}
