// Package stats implements the container stats aggregator (C7, spec.md
// §4.4): a 60-second sampler that records one resource-usage row per
// running application, and an hourly retention GC that prunes samples
// older than the retention window.
//
// Grounded on the teacher's imagesync.Syncer for the ticker-pair
// start/stop shape, and on original_source's stats_aggregator.rs for the
// exact interval pair (60s sample / 3600s cleanup), the CPU-percent
// formula ((cpu_delta/system_delta)*online_cpus*100, zero when either
// delta is non-positive), and the MB divisor (1,048,576 i.e. 1024*1024)
// applied to both memory and network counters.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/engine"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/logging"
	"github.com/nusendra/ployer/internal/storage"
)

// SampleInterval is the cadence between stats samples.
const SampleInterval = 60 * time.Second

// RetentionCheckInterval is the cadence of the retention GC pass.
const RetentionCheckInterval = 3600 * time.Second

// RetentionWindow is how long a sample is kept before the GC prunes it.
const RetentionWindow = 24 * time.Hour

const bytesPerMB = 1048576.0

// Aggregator periodically samples every running application's container
// stats and keeps the series pruned to RetentionWindow.
type Aggregator struct {
	store  *storage.Storage
	engine engine.ContainerEngine
	bus    *eventbus.Bus
	log    *logging.Logger
	stopCh chan struct{}
}

// NewAggregator wires an Aggregator from its dependencies.
func NewAggregator(store *storage.Storage, eng engine.ContainerEngine, bus *eventbus.Bus) *Aggregator {
	return &Aggregator{
		store:  store,
		engine: eng,
		bus:    bus,
		log:    logging.New().With("component", "stats"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the sample and retention-GC tickers.
func (a *Aggregator) Start() {
	go func() {
		sampleTicker := time.NewTicker(SampleInterval)
		gcTicker := time.NewTicker(RetentionCheckInterval)
		defer sampleTicker.Stop()
		defer gcTicker.Stop()

		for {
			select {
			case <-sampleTicker.C:
				a.sampleAll(context.Background())
			case <-gcTicker.C:
				a.gc()
			case <-a.stopCh:
				return
			}
		}
	}()
}

// Stop halts both tickers.
func (a *Aggregator) Stop() {
	close(a.stopCh)
}

func (a *Aggregator) sampleAll(ctx context.Context) {
	apps, err := a.store.Applications().List()
	if err != nil {
		a.log.Printf("list applications: %v", err)
		return
	}

	for _, app := range apps {
		if app.Status != domain.AppRunning {
			continue
		}
		a.sampleOne(ctx, app)
	}
}

func (a *Aggregator) sampleOne(ctx context.Context, app domain.Application) {
	deployments, err := a.store.Deployments().ListByApplication(app.ID)
	if err != nil || len(deployments) == 0 || deployments[0].ContainerID == nil {
		return
	}
	containerID := *deployments[0].ContainerID

	raw, err := a.engine.ContainerStats(ctx, containerID)
	if err != nil {
		a.log.Printf("fetch stats for %s: %v", app.Name, err)
		return
	}

	sample := computeSample(containerID, &app.ID, raw)
	if err := a.store.ContainerStats().Create(sample); err != nil {
		a.log.Printf("record stats sample for %s: %v", app.Name, err)
		return
	}

	a.bus.Publish(eventbus.NewContainerStats(containerID, sample.CPUPercent, sample.MemoryMB))
}

// computeSample derives a domain.ContainerStatsSample from the engine's raw
// counters. CPU percent is (cpu_delta/system_delta)*online_cpus*100,
// clamped to 0 when either delta is non-positive (a fresh container's
// first sample has no meaningful delta yet). Memory and network counters
// convert bytes to MB by dividing by 1,048,576.
func computeSample(containerID string, applicationID *string, raw *engine.StatsResult) *domain.ContainerStatsSample {
	cpuPercent := 0.0
	if raw.SystemDelta > 0 && raw.CPUDelta > 0 {
		onlineCPUs := raw.OnlineCPUs
		if onlineCPUs <= 0 {
			onlineCPUs = 1
		}
		cpuPercent = (raw.CPUDelta / raw.SystemDelta) * onlineCPUs * 100
	}

	memoryMB := float64(raw.MemUsageBytes) / bytesPerMB
	memoryLimitMB := float64(raw.MemLimitBytes) / bytesPerMB
	rxMB := float64(raw.NetRxBytes) / bytesPerMB
	txMB := float64(raw.NetTxBytes) / bytesPerMB

	return &domain.ContainerStatsSample{
		ID:            uuid.NewString(),
		ContainerID:   containerID,
		ApplicationID: applicationID,
		CPUPercent:    cpuPercent,
		MemoryMB:      memoryMB,
		MemoryLimitMB: &memoryLimitMB,
		NetworkRxMB:   &rxMB,
		NetworkTxMB:   &txMB,
		RecordedAt:    time.Now().UTC(),
	}
}

func (a *Aggregator) gc() {
	cutoff := time.Now().UTC().Add(-RetentionWindow)
	n, err := a.store.ContainerStats().DeleteOlderThan(cutoff)
	if err != nil {
		a.log.Printf("prune old stats: %v", err)
		return
	}
	if n > 0 {
		a.log.Printf("pruned %d stats samples older than %s", n, RetentionWindow)
	}
}
