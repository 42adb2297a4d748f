package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/engine"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/storage"
)

var _ = Describe("consecutiveUnhealthy", func() {
	It("stops counting at the first non-unhealthy result", func() {
		results := []domain.HealthCheckResult{
			{Status: domain.HealthUnhealthy},
			{Status: domain.HealthUnhealthy},
			{Status: domain.HealthHealthy},
			{Status: domain.HealthUnhealthy},
		}
		Expect(consecutiveUnhealthy(results)).To(Equal(2))
	})

	It("returns zero when the most recent result is healthy", func() {
		results := []domain.HealthCheckResult{{Status: domain.HealthHealthy}}
		Expect(consecutiveUnhealthy(results)).To(Equal(0))
	})

	It("returns the full length when every result is unhealthy", func() {
		results := []domain.HealthCheckResult{
			{Status: domain.HealthUnhealthy}, {Status: domain.HealthUnhealthy},
		}
		Expect(consecutiveUnhealthy(results)).To(Equal(2))
	})

	It("returns zero for an empty slice", func() {
		Expect(consecutiveUnhealthy(nil)).To(Equal(0))
	})
})

var _ = Describe("Controller.probeOne", func() {
	var (
		store   *storage.Storage
		fake    *fakeEngine
		bus     *eventbus.Bus
		ctrl    *Controller
		app     *domain.Application
		backend *httptest.Server
	)

	BeforeEach(func() {
		var err error
		store, err = storage.Open(":memory:")
		Expect(err).ToNot(HaveOccurred())

		now := time.Now().UTC()
		srv := &domain.Server{ID: "srv-1", Name: "local", Host: "127.0.0.1", Port: 22, Username: "root", IsLocal: true, Status: domain.ServerOnline, CreatedAt: now, UpdatedAt: now}
		Expect(store.Servers().Create(srv)).To(Succeed())

		app = &domain.Application{
			ID: "app-1", Name: "myapp", ServerID: "srv-1", GitBranch: "main",
			BuildStrategy: domain.BuildDockerfile, Status: domain.AppRunning,
			AutoDeploy: true, CreatedAt: now, UpdatedAt: now,
		}
		Expect(store.Applications().Create(app)).To(Succeed())

		fake = &fakeEngine{}
		bus = eventbus.New(0)
		ctrl = NewController(store, fake, bus)
	})

	AfterEach(func() {
		store.Close()
		if backend != nil {
			backend.Close()
		}
	})

	It("marks the result unknown when the application has no deployment yet", func() {
		hc := domain.HealthCheck{ApplicationID: app.ID, Path: "/", TimeoutSeconds: 5, UnhealthyThreshold: 3}
		ctrl.probeOne(context.Background(), hc)

		results, err := store.HealthCheckResults().RecentByApplication(app.ID, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Status).To(Equal(domain.HealthUnknown))
	})

	Context("with a running container", func() {
		BeforeEach(func() {
			containerID := "container-1"
			now := time.Now().UTC()
			dep := &domain.Deployment{
				ID: "dep-1", ApplicationID: app.ID, ServerID: "srv-1", Status: domain.DeployRunning,
				ContainerID: &containerID, ImageTag: "myapp:latest", StartedAt: now,
			}
			Expect(store.Deployments().Create(dep)).To(Succeed())
		})

		It("records a healthy result for a 2xx response and does not restart", func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			port := backend.Listener.Addr().(*net.TCPAddr).Port
			fake.inspect = &engine.ContainerInspect{ID: "container-1", Running: true, Ports: []engine.PortBinding{{ContainerPort: 80, HostPort: port}}}

			hc := domain.HealthCheck{ApplicationID: app.ID, Path: "/", TimeoutSeconds: 5, UnhealthyThreshold: 3}
			ctrl.probeOne(context.Background(), hc)

			results, err := store.HealthCheckResults().RecentByApplication(app.ID, 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(results[0].Status).To(Equal(domain.HealthHealthy))
			Expect(fake.restartCalls).To(BeEmpty())
		})

		It("restarts only after crossing the unhealthy threshold of consecutive failures", func() {
			fake.inspect = &engine.ContainerInspect{ID: "container-1", Running: false}
			hc := domain.HealthCheck{ApplicationID: app.ID, Path: "/", TimeoutSeconds: 5, UnhealthyThreshold: 2}

			ctrl.probeOne(context.Background(), hc)
			Expect(fake.restartCalls).To(BeEmpty(), "must not restart before the threshold is crossed")

			ctrl.probeOne(context.Background(), hc)
			Expect(fake.restartCalls).To(Equal([]string{"container-1"}))
		})

		It("publishes an AppHealth event only when the status changes", func() {
			fake.inspect = &engine.ContainerInspect{ID: "container-1", Running: false}
			hc := domain.HealthCheck{ApplicationID: app.ID, Path: "/", TimeoutSeconds: 5, UnhealthyThreshold: 5}

			sub := bus.Subscribe()
			defer sub.Unsubscribe()

			ctrl.probeOne(context.Background(), hc)
			Eventually(sub.Events).Should(Receive())

			ctrl.probeOne(context.Background(), hc)
			Consistently(sub.Events, 50*time.Millisecond).ShouldNot(Receive())
		})
	})
})
