package ble

import (
  "strconv"
  "strings"

  "github.com/go-ble/ble/linux/hci/cmd"
)

type Flags int

const (
  // Request scan responses. Needed by families that only put their local name in them.
  FlagScanTypeActive Flags = 1 << iota
  // Drop advertisements of unknown devices in the controller. Addresses come from
  // `SetAllowListedAddresses()`.
  FlagEnableDeviceAllowList
)

var flagNames = []struct {
  flag Flags
  name string
}{
  {FlagScanTypeActive, "active scan"},
  {FlagEnableDeviceAllowList, "device allow-list"},
}

func (f Flags) Has(flag Flags) bool {
  return f & flag == flag
}

func (f Flags) String() string {
  var names []string

  for _, fn := range flagNames {
    if f.Has(fn.flag) {
      names = append(names, fn.name)
    }
  }

  if len(names) == 0 {
    return "none"
  }

  return strings.Join(names, ", ")
}

func (f Flags) scanType() scanType {
  if f.Has(FlagScanTypeActive) {
    return scanTypeActive
  }

  return scanTypePassive
}

func (f Flags) filterPolicy() filterPolicy {
  if f.Has(FlagEnableDeviceAllowList) {
    return filterPolicyAllowListedOnly
  }

  return filterPolicyAcceptAll
}

// scanParams keeps the radio listening all the time: sensors advertise rarely and a missed
// advertisement delays both the passive update and the next poll.
func (f Flags) scanParams() cmd.LESetScanParameters {
  return cmd.LESetScanParameters{
    LEScanType:           uint8(f.scanType()),     // 0x00: passive, 0x01: active
    LEScanInterval:       0x0004,                  // 0x0004 - 0x4000; N * 0.625msec
    LEScanWindow:         0x0004,                  // 0x0004 - 0x4000; N * 0.625msec
    OwnAddressType:       0x00,                    // 0x00: public, 0x01: random
    ScanningFilterPolicy: uint8(f.filterPolicy()), // 0x00: accept all, 0x01: ignore non-allow-listed.
  }
}

type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

func (s scanType) String() string {
  switch s {
  case scanTypeActive:
    return "Active"
  case scanTypePassive:
    return "Passive"
  default:
    panic("unknown scanType value: " + strconv.Itoa(int(s)))
  }
}

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (f filterPolicy) String() string {
  switch f {
  case filterPolicyAcceptAll:
    return "Accept All"
  case filterPolicyAllowListedOnly:
    return "Allow-listed Only"
  default:
    panic("unknown filterPolicy value: " + strconv.Itoa(int(f)))
  }
}
