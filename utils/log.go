package utils

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// StringerArray logs every element through its String method.
type StringerArray[T fmt.Stringer] []T

func (a StringerArray[T]) MarshalZerologArray(arr *zerolog.Array) {
	for _, elem := range a {
		arr.Str(elem.String())
	}
}

// AddressArray logs hardware addresses the way sensors print them on their labels
// ("AA:BB:CC:DD:EE:FF").
type AddressArray []net.HardwareAddr

func (a AddressArray) MarshalZerologArray(arr *zerolog.Array) {
	for _, addr := range a {
		arr.Str(strings.ToUpper(addr.String()))
	}
}
