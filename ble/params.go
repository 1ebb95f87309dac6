package ble

import (
  "fmt"
  "sort"

  "github.com/go-ble/ble/linux/hci/cmd"
  "golang.org/x/exp/maps"
)

// ConnParams names a preset of link parameters used when dialing a sensor for a poll.
type ConnParams string

const (
  ConnParamsDefault     ConnParams = "default"
  ConnParamsPowerSaving ConnParams = "power-saving"
)

// baseConnParams gets a poll done as fast as possible, which suits mains-powered adapters and
// short GATT exchanges.
var baseConnParams = cmd.LECreateConnection{
  LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
  LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
  InitiatorFilterPolicy: 0x00,      // White list is not used
  PeerAddressType:       0x00,      // Public Device Address
  PeerAddress:           [6]byte{}, //
  OwnAddressType:        0x00,      // Public Device Address
  ConnIntervalMin:       0x0006,    // 0x0006 - 0x0C80; N * 1.25 msec
  ConnIntervalMax:       0x0006,    // 0x0006 - 0x0C80; N * 1.25 msec
  ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
  SupervisionTimeout:    0x0048,    // 0x000A - 0x0C80; N * 10 msec
  MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
  MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
}

var connParamPresets = map[ConnParams]func(p *cmd.LECreateConnection){
  ConnParamsDefault: func(p *cmd.LECreateConnection) {},
  // Coin cell sensors (toothbrushes, some thermometers) drop fast links.
  // https://developer.apple.com/accessories/Accessory-Design-Guidelines.pdf
  // section "Connection Parameters"
  // - supervision timeout between 6 to 18 secs
  // - interval max * (latency + 1) <= 6 secs
  // - supervision timeout > interval max * (latency + 1) * 3
  // - interval max * (latency + 1) <= 1/2 supervision timeout (core spec, link layer)
  ConnParamsPowerSaving: func(p *cmd.LECreateConnection) {
    p.ConnIntervalMin    = 0x00f0 // 300ms
    p.ConnIntervalMax    = 0x00f0 // 300ms
    p.ConnLatency        = 0x0014 // 20
    p.SupervisionTimeout = 0x0708 // 18s
  },
}

func knownConnParams() []ConnParams {
  known := maps.Keys(connParamPresets)
  sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

  return known
}

// pflag.Value
func (c *ConnParams) String() string {
  return string(*c)
}

func (c *ConnParams) Type() string {
  return "conn-params"
}

func (c *ConnParams) Set(v string) error {
  if v == "" {
    *c = ConnParamsDefault
    return nil
  }

  p := ConnParams(v)

  if _, ok := connParamPresets[p]; !ok {
    return fmt.Errorf("unknown connection param %v (must be one of %v)", p, knownConnParams())
  }

  *c = p
  return nil
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
  apply, ok := connParamPresets[c]

  if !ok {
    panic("unknown Bluetooth connection param: " + c)
  }

  p := baseConnParams
  apply(&p)

  return p
}
