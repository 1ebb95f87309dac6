package utils_test

import (
  "net"
  "testing"

  "github.com/robertof/go-ble-sensor-bridge/utils"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestShortAddress(t *testing.T) {
  addr, err := net.ParseMAC("AA:BB:CC:DD:EE:FF")
  require.NoError(t, err)

  assert.Equal(t, "EEFF", utils.ShortAddress(addr))
  assert.Equal(t, "aabbccddeeff", utils.CompactAddress(addr))
}

func TestShortAddress_Short(t *testing.T) {
  assert.Equal(t, "0A", utils.ShortAddress(net.HardwareAddr{0x0a}))
}

func TestReverse(t *testing.T) {
  in := []byte{1, 2, 3}

  assert.Equal(t, []byte{3, 2, 1}, utils.Reverse(in))
  assert.Equal(t, []byte{1, 2, 3}, in, "input must not be modified")
}

func TestErrorIsAnyOf(t *testing.T) {
  a, b := assert.AnError, net.ErrClosed

  assert.True(t, utils.ErrorIsAnyOf(a, b, a))
  assert.False(t, utils.ErrorIsAnyOf(nil, a))
  assert.False(t, utils.ErrorIsAnyOf(b, a))
}
