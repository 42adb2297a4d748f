// Package health implements the application health controller (C6,
// spec.md §4.3): a 15-second ticker that probes every configured health
// check, classifies the result, and restarts a container once it has
// crossed the unhealthy-threshold consecutive failures.
//
// Grounded on the teacher's imagesync.Syncer (internal/imagesync/sync.go)
// for the ticker-pair start/stop shape (an initial pass plus a
// time.NewTicker loop selecting on a stop channel), and on the HealthCheck/
// HealthCheckResult fields original_source's app_health_monitor.rs defines,
// which spec.md §3/§4.3 summarize.
package health

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/engine"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/logging"
	"github.com/nusendra/ployer/internal/storage"
)

// TickInterval is the cadence spec.md §4.3 requires between probe rounds.
const TickInterval = 15 * time.Second

// Controller periodically probes every application with a configured
// health check and restarts one that has gone unhealthy past its
// threshold.
type Controller struct {
	store  *storage.Storage
	engine engine.ContainerEngine
	bus    *eventbus.Bus
	client *http.Client
	log    *logging.Logger

	stopCh chan struct{}

	// lastEmitted tracks the last AppHealth status published per
	// application, so Publish only fires on a change — spec.md's
	// change-only emission rule for the AppHealth event kind.
	lastEmitted map[string]domain.HealthCheckStatus
}

// NewController wires a Controller from its dependencies.
func NewController(store *storage.Storage, eng engine.ContainerEngine, bus *eventbus.Bus) *Controller {
	return &Controller{
		store:       store,
		engine:      eng,
		bus:         bus,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         logging.New().With("component", "health"),
		stopCh:      make(chan struct{}),
		lastEmitted: make(map[string]domain.HealthCheckStatus),
	}
}

// Start runs an immediate probe pass and then ticks every TickInterval
// until Stop is called.
func (c *Controller) Start() {
	go func() {
		c.tick(context.Background())

		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.tick(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the probe loop.
func (c *Controller) Stop() {
	close(c.stopCh)
}

func (c *Controller) tick(ctx context.Context) {
	checks, err := c.store.HealthChecks().ListAll()
	if err != nil {
		c.log.Printf("list health checks: %v", err)
		return
	}

	for _, hc := range checks {
		c.probeOne(ctx, hc)
	}
}

func (c *Controller) probeOne(ctx context.Context, hc domain.HealthCheck) {
	app, err := c.store.Applications().FindByID(hc.ApplicationID)
	if err != nil {
		c.log.Printf("load application %s: %v", hc.ApplicationID, err)
		return
	}
	if app.Status != domain.AppRunning {
		return
	}

	result := c.probe(ctx, app, hc)
	if err := c.store.HealthCheckResults().Create(result); err != nil {
		c.log.Printf("record health check result for %s: %v", app.Name, err)
	}

	c.emitIfChanged(app.ID, result.Status)

	if result.Status != domain.HealthUnhealthy {
		return
	}

	recent, err := c.store.HealthCheckResults().RecentByApplication(app.ID, hc.UnhealthyThreshold)
	if err != nil {
		c.log.Printf("load recent health results for %s: %v", app.Name, err)
		return
	}
	if consecutiveUnhealthy(recent) < hc.UnhealthyThreshold {
		return
	}

	c.log.Printf("application %s unhealthy for %d consecutive checks, restarting", app.Name, hc.UnhealthyThreshold)
	if err := c.engine.RestartContainer(ctx, result.ContainerID); err != nil {
		c.log.Printf("restart container for %s: %v", app.Name, err)
	}

	// A restart invalidates every prior probe's basis for comparison, so
	// the next tick must re-establish health from scratch rather than
	// comparing against the unhealthy streak that triggered this restart.
	c.lastEmitted[app.ID] = domain.HealthUnknown
	c.bus.Publish(eventbus.NewAppHealth(app.ID, string(domain.HealthUnknown)))
}

// consecutiveUnhealthy counts how many of the most-recent-first results
// (as RecentByApplication returns them) are unhealthy, stopping at the
// first healthy or unknown one — a run of failures must be unbroken to
// trigger a restart, matching the hysteresis original_source's
// app_health_monitor.rs applies.
func consecutiveUnhealthy(results []domain.HealthCheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status != domain.HealthUnhealthy {
			break
		}
		n++
	}
	return n
}

func (c *Controller) probe(ctx context.Context, app *domain.Application, hc domain.HealthCheck) *domain.HealthCheckResult {
	result := &domain.HealthCheckResult{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		CheckedAt:     time.Now().UTC(),
	}

	deployments, err := c.store.Deployments().ListByApplication(app.ID)
	if err != nil || len(deployments) == 0 || deployments[0].ContainerID == nil {
		result.Status = domain.HealthUnknown
		return result
	}
	containerID := *deployments[0].ContainerID
	result.ContainerID = containerID

	inspect, err := c.engine.InspectContainer(ctx, containerID)
	if err != nil || !inspect.Running {
		result.Status = domain.HealthUnhealthy
		msg := "container not running"
		if err != nil {
			msg = err.Error()
		}
		result.ErrorMessage = &msg
		return result
	}

	port := inspect.FirstHostPort()
	if port == 0 {
		result.Status = domain.HealthUnknown
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(hc.TimeoutSeconds)*time.Second)
	defer cancel()

	url := "http://localhost:" + strconv.Itoa(port) + hc.Path
	started := time.Now()
	req, _ := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	resp, err := c.client.Do(req)
	elapsed := int(time.Since(started).Milliseconds())
	result.ResponseTimeMs = &elapsed

	if err != nil {
		result.Status = domain.HealthUnhealthy
		msg := err.Error()
		result.ErrorMessage = &msg
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = &resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Status = domain.HealthHealthy
	} else {
		result.Status = domain.HealthUnhealthy
	}
	return result
}

func (c *Controller) emitIfChanged(applicationID string, status domain.HealthCheckStatus) {
	if c.lastEmitted[applicationID] == status {
		return
	}
	c.lastEmitted[applicationID] = status
	c.bus.Publish(eventbus.NewAppHealth(applicationID, string(status)))
}
