package device

import (
  "fmt"
  "sort"
)

const FamilyAuto = "auto"

type Factory interface {
  FromSpec(spec DeviceSpec) (Device, error)
}

type FactoryDocs interface {
  Help() string
}

// Identifier recognizes advertisements belonging to a family.
type Identifier interface {
  Matches(rec AdvertisementRecord) bool
}

// Registry maps family names to their factories.
type Registry map[string]Factory

func (r Registry) Families() []string {
  names := make([]string, 0, len(r))

  for name := range r {
    names = append(names, name)
  }

  sort.Strings(names)

  return names
}

func (r Registry) Create(family string, spec DeviceSpec) (Device, error) {
  f, ok := r[family]

  if !ok {
    return nil, fmt.Errorf("%w: unknown device family %q (known: %v)", ErrConfiguration, family, r.Families())
  }

  return f.FromSpec(spec)
}

// Identify returns the first family (in name order) whose factory recognizes rec.
func (r Registry) Identify(rec AdvertisementRecord) (string, bool) {
  for _, name := range r.Families() {
    if id, ok := r[name].(Identifier); ok && id.Matches(rec) {
      return name, true
    }
  }

  return "", false
}
