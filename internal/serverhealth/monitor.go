// Package serverhealth implements the server liveness monitor (C8,
// spec.md §4.8): a 30-second ticker that probes every registered server
// and records whether it is reachable. A server marked is_local is always
// online (ployer runs on it, so liveness is definitionally true); every
// other server is probed with a TCP dial and a 10-second deadline.
//
// Grounded on the teacher's imagesync.Syncer for the ticker loop shape,
// generalized from an image-registry sync to a per-server reachability
// probe the teacher never needed (basepod only ever ran on one host).
package serverhealth

import (
	"context"
	"time"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/logging"
	"github.com/nusendra/ployer/internal/storage"
	"github.com/nusendra/ployer/internal/sysprobe"
)

// TickInterval is the cadence between liveness rounds.
const TickInterval = 30 * time.Second

// DialTimeout bounds how long a single reachability probe may take.
const DialTimeout = 10 * time.Second

// Monitor periodically probes every registered server's reachability.
type Monitor struct {
	store  *storage.Storage
	bus    *eventbus.Bus
	log    *logging.Logger
	stopCh chan struct{}

	lastEmitted map[string]domain.ServerStatus
}

// NewMonitor wires a Monitor from its dependencies.
func NewMonitor(store *storage.Storage, bus *eventbus.Bus) *Monitor {
	return &Monitor{
		store:       store,
		bus:         bus,
		log:         logging.New().With("component", "serverhealth"),
		stopCh:      make(chan struct{}),
		lastEmitted: make(map[string]domain.ServerStatus),
	}
}

// Start runs an immediate probe pass and then ticks every TickInterval.
func (m *Monitor) Start() {
	go func() {
		m.tick(context.Background())

		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tick(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) tick(ctx context.Context) {
	servers, err := m.store.Servers().List()
	if err != nil {
		m.log.Printf("list servers: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, s := range servers {
		status := m.probe(ctx, s)
		if err := m.store.Servers().UpdateStatus(s.ID, status, now); err != nil {
			m.log.Printf("update server status for %s: %v", s.Name, err)
		}
		m.emitIfChanged(s.ID, status)
	}
}

func (m *Monitor) probe(ctx context.Context, s domain.Server) domain.ServerStatus {
	if s.IsLocal {
		return domain.ServerOnline
	}

	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, err := sysprobe.DialTCPTuned(dialCtx, s.Host, s.Port)
	if err != nil {
		return domain.ServerOffline
	}
	conn.Close()
	return domain.ServerOnline
}

func (m *Monitor) emitIfChanged(serverID string, status domain.ServerStatus) {
	if m.lastEmitted[serverID] == status {
		return
	}
	m.lastEmitted[serverID] = status
	m.bus.Publish(eventbus.NewServerHealth(serverID, string(status)))
}
