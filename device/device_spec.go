package device

import (
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/rs/zerolog/log"
)

// DeviceSpec is the `key=value,key=value` description of one device.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
  DeviceSpecFieldSleepy = "sleepy"
  DeviceSpecFieldPollInterval = "poll-interval"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}

// Bool parses a boolean entry. ok is false when the key is absent.
func (ds DeviceSpec) Bool(key string) (v bool, ok bool, err error) {
  raw, ok := ds[key]

  if !ok || raw == "" {
    return false, false, nil
  }

  switch strings.ToLower(raw) {
  case "yes", "y", "on":
    return true, true, nil
  case "no", "n", "off":
    return false, true, nil
  }

  v, err = strconv.ParseBool(raw)

  if err != nil {
    return false, false, fmt.Errorf("invalid boolean for %q: %q", key, raw)
  }

  return v, true, nil
}

// Duration parses a duration entry, returning def when the key is absent.
func (ds DeviceSpec) Duration(key string, def time.Duration) (time.Duration, error) {
  raw, ok := ds[key]

  if !ok || raw == "" {
    return def, nil
  }

  d, err := time.ParseDuration(raw)

  if err != nil {
    return def, fmt.Errorf("%w: invalid duration for %q: %v", ErrConfiguration, key, err)
  }

  if d <= 0 {
    return def, fmt.Errorf("%w: %q must be positive, got %v", ErrConfiguration, key, d)
  }

  return d, nil
}
