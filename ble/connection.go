package ble

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-ble-sensor-bridge/device"
)

// ErrHandleBusy is returned when a poll already holds the connectable handle of an address. For
// the caller it is one more way of having no connectable path right now.
var ErrHandleBusy = fmt.Errorf("%w: connectable handle already leased", device.ErrNoConnectablePath)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble_sensor_bridge_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble_sensor_bridge_ble_failed_connections_total",
	})
	leaseConflictsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble_sensor_bridge_ble_lease_conflicts_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ble_sensor_bridge_ble_disconnections_total",
	})
)

type leaseRegistry struct {
	mu sync.Mutex

	leases map[string]*lease
	// connections whose lease is gone but which failed to close, by address.
	stale map[string]ble.Client
}

func newLeaseRegistry() *leaseRegistry {
	return &leaseRegistry{
		leases: make(map[string]*lease),
		stale:  make(map[string]ble.Client),
	}
}

// lease is the connectable handle handed to a single poll.
type lease struct {
	h    *Handle
	addr net.HardwareAddr
	key  string

	mu     sync.Mutex
	client ble.Client

	once sync.Once
}

func (h *Handle) acquire(addr net.HardwareAddr) (*lease, error) {
	key := strings.ToLower(addr.String())

	h.leases.mu.Lock()
	defer h.leases.mu.Unlock()

	if _, ok := h.leases.leases[key]; ok {
		leaseConflictsCounter.Inc()
		return nil, ErrHandleBusy
	}

	l := &lease{h: h, addr: addr, key: key}
	h.leases.leases[key] = l

	return l, nil
}

func (l *lease) Addr() net.HardwareAddr {
	return l.addr
}

func (l *lease) Dial(ctx context.Context) (device.GATTClient, error) {
	if err := l.h.closeStaleConnection(l.key); err != nil {
		log.Warn().Err(err).Stringer("Addr", l.addr).Msg("ble: failed to close stale connection before dialing")
	}

	c, err := l.h.radio.Dial(ctx, ble.NewAddr(l.key))

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, err
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Stringer("Addr", l.addr).Msg("ble: successfully opened new connection to device")

	l.mu.Lock()
	l.client = c
	l.mu.Unlock()

	// watchdog counting disconnections, whoever caused them.
	go func() {
		<-c.Disconnected()

		disconnectsCounter.Inc()
		log.Debug().Stringer("Addr", l.addr).Msg("ble: connection with device closed")
	}()

	return c, nil
}

// Release drops the lease and closes any connection still open on it. Safe to call more than once.
func (l *lease) Release() error {
	var err error

	l.once.Do(func() {
		l.mu.Lock()
		c := l.client
		l.client = nil
		l.mu.Unlock()

		if c != nil {
			select {
			case <-c.Disconnected():
			default:
				err = c.CancelConnection()
			}
		}

		l.h.leases.mu.Lock()
		defer l.h.leases.mu.Unlock()

		if err != nil {
			l.h.leases.stale[l.key] = c
		}

		if l.h.leases.leases[l.key] == l {
			delete(l.h.leases.leases, l.key)
		}
	})

	return err
}

// closeStaleConnection cancels the connection to key left open by an earlier lease, if any.
// Connections left over by a previous process are already gone: opening the device resets the
// controller.
func (h *Handle) closeStaleConnection(key string) error {
	h.leases.mu.Lock()
	c, ok := h.leases.stale[key]
	delete(h.leases.stale, key)
	h.leases.mu.Unlock()

	if !ok {
		return nil
	}

	select {
	case <-c.Disconnected():
		return nil
	default:
	}

	log.Debug().Str("Addr", key).Msg("ble: closing stale connection to device")

	return c.CancelConnection()
}

// Release every outstanding lease and close their connections.
func (h *Handle) ReleaseAll() {
	h.leases.mu.Lock()
	outstanding := make([]*lease, 0, len(h.leases.leases))

	for _, l := range h.leases.leases {
		outstanding = append(outstanding, l)
	}

	h.leases.mu.Unlock()

	for _, l := range outstanding {
		if err := l.Release(); err != nil {
			log.Debug().Err(err).Stringer("Addr", l.addr).Msg("ble: failed to cancel connection on release")
		}
	}

	h.leases.mu.Lock()
	stale := make([]string, 0, len(h.leases.stale))

	for key := range h.leases.stale {
		stale = append(stale, key)
	}

	h.leases.mu.Unlock()

	for _, key := range stale {
		if err := h.closeStaleConnection(key); err != nil {
			log.Debug().Err(err).Str("Addr", key).Msg("ble: failed to close stale connection")
		}
	}
}
