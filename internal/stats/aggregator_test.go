package stats

import (
	"testing"

	"github.com/nusendra/ployer/internal/engine"
)

func TestComputeSampleCPUPercent(t *testing.T) {
	cases := []struct {
		name       string
		raw        *engine.StatsResult
		wantCPU    float64
	}{
		{
			name: "normal delta",
			raw: &engine.StatsResult{
				CPUDelta: 2, SystemDelta: 10, OnlineCPUs: 4,
			},
			wantCPU: (2.0 / 10.0) * 4 * 100,
		},
		{
			name:    "zero system delta clamps to zero",
			raw:     &engine.StatsResult{CPUDelta: 2, SystemDelta: 0, OnlineCPUs: 4},
			wantCPU: 0,
		},
		{
			name:    "zero cpu delta clamps to zero",
			raw:     &engine.StatsResult{CPUDelta: 0, SystemDelta: 10, OnlineCPUs: 4},
			wantCPU: 0,
		},
		{
			name:    "negative system delta clamps to zero",
			raw:     &engine.StatsResult{CPUDelta: 2, SystemDelta: -5, OnlineCPUs: 4},
			wantCPU: 0,
		},
		{
			name:    "non-positive online cpus defaults to 1",
			raw:     &engine.StatsResult{CPUDelta: 1, SystemDelta: 10, OnlineCPUs: 0},
			wantCPU: (1.0 / 10.0) * 1 * 100,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sample := computeSample("container-1", nil, c.raw)
			if sample.CPUPercent != c.wantCPU {
				t.Errorf("got %v, want %v", sample.CPUPercent, c.wantCPU)
			}
		})
	}
}

func TestComputeSampleMemoryAndNetworkMB(t *testing.T) {
	raw := &engine.StatsResult{
		MemUsageBytes: 1048576 * 2,
		MemLimitBytes: 1048576 * 8,
		NetRxBytes:    1048576,
		NetTxBytes:    1048576 * 3,
	}

	sample := computeSample("container-1", nil, raw)

	if sample.MemoryMB != 2 {
		t.Errorf("MemoryMB = %v, want 2", sample.MemoryMB)
	}
	if sample.MemoryLimitMB == nil || *sample.MemoryLimitMB != 8 {
		t.Errorf("MemoryLimitMB = %v, want 8", sample.MemoryLimitMB)
	}
	if sample.NetworkRxMB == nil || *sample.NetworkRxMB != 1 {
		t.Errorf("NetworkRxMB = %v, want 1", sample.NetworkRxMB)
	}
	if sample.NetworkTxMB == nil || *sample.NetworkTxMB != 3 {
		t.Errorf("NetworkTxMB = %v, want 3", sample.NetworkTxMB)
	}
}
