package health

import (
	"context"
	"io"

	"github.com/nusendra/ployer/internal/engine"
)

// fakeEngine is a minimal engine.ContainerEngine stub driven entirely by
// the fields callers set before invoking the controller, mirroring the
// hand-rolled fakes the pack uses ahead of a real container runtime.
type fakeEngine struct {
	inspect       *engine.ContainerInspect
	inspectErr    error
	restartCalls  []string
	restartErr    error
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func (f *fakeEngine) CreateContainer(ctx context.Context, opts engine.CreateContainerOpts) (string, error) {
	return "", nil
}
func (f *fakeEngine) StartContainer(ctx context.Context, id string) error { return nil }
func (f *fakeEngine) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	return nil
}
func (f *fakeEngine) RemoveContainer(ctx context.Context, id string, force, removeVolumes bool) error {
	return nil
}

func (f *fakeEngine) RestartContainer(ctx context.Context, id string) error {
	f.restartCalls = append(f.restartCalls, id)
	return f.restartErr
}

func (f *fakeEngine) InspectContainer(ctx context.Context, id string) (*engine.ContainerInspect, error) {
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	return f.inspect, nil
}

func (f *fakeEngine) ContainerLogs(ctx context.Context, id string, tail string) (io.ReadCloser, error) {
	return nil, nil
}

func (f *fakeEngine) ContainerStats(ctx context.Context, id string) (*engine.StatsResult, error) {
	return nil, nil
}

func (f *fakeEngine) BuildImage(ctx context.Context, opts engine.BuildOpts) (<-chan string, <-chan error) {
	return nil, nil
}
