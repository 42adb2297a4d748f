// Package proxy implements the ReverseProxy contract (spec.md §4.6 /
// SPEC_FULL.md §5.9): registering and tearing down per-application routes
// against Caddy's admin API, and reporting SSL provisioning status.
//
// Grounded on the teacher's internal/caddy.Client (ID-keyed route upsert,
// PUT-init-server-on-404) with internal/proxy.Manager's storage-aware
// wrapper layer folded in, generalized from one static Caddyfile covering a
// fixed UI+API vhost to dynamic per-application routes registered and
// removed as applications deploy and are destroyed.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/nusendra/ployer/internal/caddy"
	"github.com/nusendra/ployer/internal/domain"
)

// Manager is the ReverseProxy adapter applications and domains are routed
// through. One Manager serves the whole daemon; its methods are safe for
// concurrent use since each acts on one route at a time via the admin API.
type Manager struct {
	client *caddy.Client
	mu     sync.Mutex
}

// NewManager returns a Manager talking to the Caddy admin API at adminURL.
func NewManager(adminURL string) *Manager {
	return &Manager{client: caddy.NewClient(adminURL)}
}

// IsReady reports whether the Caddy admin API is reachable.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.client.Ping(ctx) == nil
}

func routeID(d *domain.Domain) string {
	return "ployer-domain-" + d.ID
}

// AddRoute registers d, forwarding its hostname to the application's
// upstream (host:port on the local engine). Calling it again for the same
// domain (e.g. after a rolling-swap host-port change) replaces the prior
// route rather than leaving a stale upstream reachable. The replacement is
// two admin calls (remove, then add), not one atomic update.
func (m *Manager) AddRoute(ctx context.Context, d *domain.Domain, upstream string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.client.AddRoute(ctx, caddy.Route{
		ID:       routeID(d),
		Domain:   d.DomainName,
		Upstream: upstream,
	})
}

// RemoveRoute tears down d's route. Safe to call on a domain that was
// never registered.
func (m *Manager) RemoveRoute(ctx context.Context, d *domain.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.client.RemoveRoute(ctx, routeID(d))
}

// GetSSLStatus reports whether Caddy has issued a managed certificate for
// d's hostname yet. Automatic HTTPS provisioning happens asynchronously
// after a route is added, so callers poll this rather than assuming SSL is
// active the moment AddRoute returns.
func (m *Manager) GetSSLStatus(ctx context.Context, d *domain.Domain) (bool, error) {
	active, err := m.client.CertificateStatus(ctx, d.DomainName)
	if err != nil {
		return false, fmt.Errorf("ssl status for %s: %w", d.DomainName, err)
	}
	return active, nil
}
