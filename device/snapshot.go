package device

import (
  "fmt"
  "sort"
  "strconv"
  "strings"
  "time"
)

type ValueKind uint8

const (
  ValueKindNumber ValueKind = iota
  ValueKindEnum
  ValueKindBinary
)

func (k ValueKind) String() string {
  switch k {
  case ValueKindNumber:
    return "number"
  case ValueKindEnum:
    return "enum"
  case ValueKindBinary:
    return "binary"
  default:
    panic("unknown value kind: " + strconv.Itoa(int(k)))
  }
}

// Value is a typed sensor value: a number, an enum member or a binary state.
type Value struct {
  Kind   ValueKind
  Number float64
  Enum   string
  Binary bool
}

func Number(f float64) Value {
  return Value{Kind: ValueKindNumber, Number: f}
}

func Enum(s string) Value {
  return Value{Kind: ValueKindEnum, Enum: s}
}

func Binary(b bool) Value {
  return Value{Kind: ValueKindBinary, Binary: b}
}

// Float renders the value as a gauge sample. Enums have no numeric form.
func (v Value) Float() (float64, bool) {
  switch v.Kind {
  case ValueKindNumber:
    return v.Number, true
  case ValueKindBinary:
    if v.Binary {
      return 1, true
    }
    return 0, true
  default:
    return 0, false
  }
}

func (v Value) String() string {
  switch v.Kind {
  case ValueKindNumber:
    return strconv.FormatFloat(v.Number, 'f', -1, 64)
  case ValueKindEnum:
    return v.Enum
  case ValueKindBinary:
    if v.Binary {
      return "on"
    }
    return "off"
  default:
    return "?"
  }
}

type DeviceInfo struct {
  Title           string
  Name            string
  Type            string
  Manufacturer    string
  SoftwareVersion string
  HardwareVersion string
}

// merge copies the non-empty fields of other on top of i.
func (i DeviceInfo) merge(other DeviceInfo) DeviceInfo {
  pick := func(a, b string) string {
    if b != "" {
      return b
    }
    return a
  }

  return DeviceInfo{
    Title:           pick(i.Title, other.Title),
    Name:            pick(i.Name, other.Name),
    Type:            pick(i.Type, other.Type),
    Manufacturer:    pick(i.Manufacturer, other.Manufacturer),
    SoftwareVersion: pick(i.SoftwareVersion, other.SoftwareVersion),
    HardwareVersion: pick(i.HardwareVersion, other.HardwareVersion),
  }
}

// Event is a transient occurrence (e.g. a button press). Events never outlive the update that
// produced them.
type Event struct {
  Key        SensorKey
  Type       string
  Properties map[string]string
}

// Snapshot is the accumulated sensor view of one device.
type Snapshot struct {
  DeviceInfo

  Values       map[SensorKey]Value
  Descriptions map[SensorKey]Description
  Events       []Event
  UpdatedAt    time.Time
}

func NewSnapshot() Snapshot {
  return Snapshot{
    Values:       make(map[SensorKey]Value),
    Descriptions: make(map[SensorKey]Description),
  }
}

func (s Snapshot) IsEmpty() bool {
  return len(s.Values) == 0 && len(s.Events) == 0 && s.DeviceInfo == DeviceInfo{}
}

// Set stores a value together with its predefined (or derived) description.
func (s *Snapshot) Set(key SensorKey, v Value) {
  if s.Values == nil {
    s.Values = make(map[SensorKey]Value)
  }

  if s.Descriptions == nil {
    s.Descriptions = make(map[SensorKey]Description)
  }

  s.Values[key] = v

  if _, ok := s.Descriptions[key]; !ok {
    s.Descriptions[key], _ = LookupDescription(key)
  }
}

func (s *Snapshot) SetSignalStrength(rssi int) {
  s.Set(KeySignalStrength, Number(float64(rssi)))
}

func (s *Snapshot) AddEvent(e Event) {
  s.Events = append(s.Events, e)
}

func (s Snapshot) Value(key SensorKey) (Value, bool) {
  v, ok := s.Values[key]
  return v, ok
}

func (s Snapshot) Clone() Snapshot {
  out := Snapshot{
    DeviceInfo:   s.DeviceInfo,
    Values:       make(map[SensorKey]Value, len(s.Values)),
    Descriptions: make(map[SensorKey]Description, len(s.Descriptions)),
    UpdatedAt:    s.UpdatedAt,
  }

  for k, v := range s.Values {
    out.Values[k] = v
  }

  for k, d := range s.Descriptions {
    out.Descriptions[k] = d
  }

  for _, e := range s.Events {
    props := make(map[string]string, len(e.Properties))

    for k, v := range e.Properties {
      props[k] = v
    }

    e.Properties = props
    out.Events = append(out.Events, e)
  }

  return out
}

// WithoutEvents returns a copy with the transient events cleared.
func (s Snapshot) WithoutEvents() Snapshot {
  out := s.Clone()
  out.Events = nil

  return out
}

// Merge returns a new snapshot made of s with other applied on top. Keys other does not carry
// are kept untouched; events are taken from other only.
func (s Snapshot) Merge(other Snapshot) Snapshot {
  out := s.Clone()
  out.DeviceInfo = s.DeviceInfo.merge(other.DeviceInfo)
  out.Events = other.Clone().Events

  for k, v := range other.Values {
    out.Values[k] = v
  }

  for k, d := range other.Descriptions {
    out.Descriptions[k] = d
  }

  if other.UpdatedAt.After(out.UpdatedAt) {
    out.UpdatedAt = other.UpdatedAt
  }

  return out
}

// Normalize makes sure every value has a description.
func (s Snapshot) Normalize() Snapshot {
  out := s.Clone()

  for k := range out.Values {
    if d, ok := out.Descriptions[k]; !ok || d.Name == "" {
      out.Descriptions[k], _ = LookupDescription(k)
    }
  }

  return out
}

// Validate reports values lacking a description.
func (s Snapshot) Validate() error {
  var missing []string

  for k := range s.Values {
    if _, ok := s.Descriptions[k]; !ok {
      missing = append(missing, string(k))
    }
  }

  if len(missing) > 0 {
    sort.Strings(missing)
    return fmt.Errorf("%w: no description for sensors %v", ErrInvalidData, missing)
  }

  return nil
}

// Keys returns the sensor keys in a stable order.
func (s Snapshot) Keys() []SensorKey {
  keys := make([]SensorKey, 0, len(s.Values))

  for k := range s.Values {
    keys = append(keys, k)
  }

  sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

  return keys
}

func (s Snapshot) String() string {
  fields := make([]string, 0, len(s.Values))

  for _, k := range s.Keys() {
    fields = append(fields, fmt.Sprintf("%s=%v", k, s.Values[k]))
  }

  return fmt.Sprintf("Snapshot[Title=%q,Values=%v,Events=%d]",
    s.Title, strings.Join(fields, ","), len(s.Events))
}
