// Package devicetest provides GATT client mocks and fake connectable handles for adapter and
// coordinator tests.
package devicetest

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"

	"github.com/robertof/go-ble-sensor-bridge/device"
)

type MockGATTClient struct {
	mock.Mock
}

func (m *MockGATTClient) Name() string {
	return m.Called().String(0)
}

func (m *MockGATTClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockGATTClient) CancelConnection() error {
	return m.Called().Error(0)
}

// Characteristic builds a characteristic with the given UUID and properties.
func Characteristic(uuid ble.UUID, props ble.Property) *ble.Characteristic {
	return &ble.Characteristic{UUID: uuid, Property: props}
}

// Profile wraps characteristics into a single-service profile.
func Profile(service ble.UUID, chars ...*ble.Characteristic) *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{{UUID: service, Characteristics: chars}},
	}
}

// FakeHandle is a ConnectableHandle counting dials and releases.
type FakeHandle struct {
	Address net.HardwareAddr
	Client  device.GATTClient
	DialErr error

	dials    atomic.Int32
	releases atomic.Int32
}

func (h *FakeHandle) Addr() net.HardwareAddr {
	return h.Address
}

func (h *FakeHandle) Dial(ctx context.Context) (device.GATTClient, error) {
	h.dials.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h.DialErr != nil {
		return nil, h.DialErr
	}

	return h.Client, nil
}

func (h *FakeHandle) Release() error {
	h.releases.Add(1)
	return nil
}

func (h *FakeHandle) Dials() int {
	return int(h.dials.Load())
}

func (h *FakeHandle) Releases() int {
	return int(h.releases.Load())
}

func MustMAC(s string) net.HardwareAddr {
	addr, err := net.ParseMAC(s)

	if err != nil {
		panic(err)
	}

	return addr
}
