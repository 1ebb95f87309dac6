package utils

import (
  "fmt"
  "net"
  "strings"
)

// props to: https://stackoverflow.com/a/28058324
func Reverse[S ~[]E, E any](s S) S {
  out := make(S, len(s))
  copy(out, s)

  for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
    out[i], out[j] = out[j], out[i]
  }

  return out
}

// ShortAddress returns the last two octets of a hardware address as upper-case hex without
// separators ("AA:BB:CC:DD:EE:FF" -> "EEFF"). Shorter addresses are rendered entirely.
func ShortAddress(addr net.HardwareAddr) string {
  tail := []byte(addr)

  if len(tail) > 2 {
    tail = tail[len(tail)-2:]
  }

  return strings.ToUpper(fmt.Sprintf("%x", tail))
}

// CompactAddress lower-cases an address and strips its separators ("AA:BB:..." -> "aabb...").
func CompactAddress(addr net.HardwareAddr) string {
  return strings.ToLower(strings.ReplaceAll(addr.String(), ":", ""))
}
