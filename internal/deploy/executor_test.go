package deploy

import (
	"context"
	"os"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nusendra/ployer/internal/crypto"
	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/proxy"
	"github.com/nusendra/ployer/internal/storage"
)

// newTestExecutor wires an Executor against a fresh in-memory database, a
// fakeEngine/fakeSCM pair, and a proxy.Manager that is never actually hit
// in these tests since no domain is ever registered against the test
// application — matching the teacher's habit of exercising the real
// dependent types directly rather than mocking everything.
func newTestExecutor(buildsRoot string) (*Executor, *storage.Storage, *fakeEngine, *fakeSCM, *eventbus.Bus) {
	store, err := storage.Open(":memory:")
	Expect(err).NotTo(HaveOccurred())

	eng := newFakeEngine()
	scm := newFakeSCM()
	bus := eventbus.New(0)
	envelope := crypto.New("test-secret-key-0123456789abcdef")
	proxyMgr := proxy.NewManager("http://127.0.0.1:0")

	exec := NewExecutor(store, eng, scm, proxyMgr, bus, envelope, buildsRoot)
	return exec, store, eng, scm, bus
}

func mustCreateServer(store *storage.Storage) *domain.Server {
	srv := &domain.Server{
		ID:        "srv-1",
		Name:      "local",
		Host:      "127.0.0.1",
		Port:      22,
		Username:  "root",
		IsLocal:   true,
		Status:    domain.ServerOnline,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	Expect(store.Servers().Create(srv)).To(Succeed())
	return srv
}

func mustCreateApp(store *storage.Storage, serverID string, port *int) *domain.Application {
	url := "https://example.test/repo.git"
	app := &domain.Application{
		ID:            "app-1",
		Name:          "demo",
		ServerID:      serverID,
		GitURL:        &url,
		GitBranch:     "main",
		BuildStrategy: domain.BuildDockerfile,
		Port:          port,
		Status:        domain.AppIdle,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	Expect(store.Applications().Create(app)).To(Succeed())
	return app
}

func waitForStatus(store *storage.Storage, deploymentID string, want domain.DeploymentStatus) {
	Eventually(func() domain.DeploymentStatus {
		got, err := store.Deployments().FindByID(deploymentID)
		Expect(err).NotTo(HaveOccurred())
		return got.Status
	}, 2*time.Second, 10*time.Millisecond).Should(Equal(want))
}

func drainEvents(sub *eventbus.Subscription) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev := <-sub.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

var _ = Describe("Executor", func() {
	var buildsRoot string

	BeforeEach(func() {
		var err error
		buildsRoot, err = os.MkdirTemp("", "ployer-deploy-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(buildsRoot)
	})

	Describe("rolling swap", func() {
		It("rolls the previous running deployment back and swaps in the new one", func() {
			exec, store, eng, _, bus := newTestExecutor(buildsRoot)
			srv := mustCreateServer(store)
			app := mustCreateApp(store, srv.ID, nil)

			oldContainerID := "old-container"
			prev := &domain.Deployment{
				ID:            "deploy-old",
				ApplicationID: app.ID,
				ServerID:      srv.ID,
				Status:        domain.DeployRunning,
				ContainerID:   &oldContainerID,
				ImageTag:      "ployer-demo:old",
				StartedAt:     time.Now().UTC().Add(-time.Hour),
			}
			Expect(store.Deployments().Create(prev)).To(Succeed())

			sub := bus.Subscribe()
			defer sub.Unsubscribe()

			d, err := exec.Deploy(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())

			waitForStatus(store, d.ID, domain.DeployRunning)

			rolled, err := store.Deployments().FindByID(prev.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rolled.Status).To(Equal(domain.DeployRolledBack))
			Expect(rolled.FinishedAt).NotTo(BeNil())

			finished, err := store.Deployments().FindByID(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(finished.FinishedAt).NotTo(BeNil()) // running is a terminal pipeline state too

			Expect(eng.calledStop()).To(ContainElement(oldContainerID))

			removeCalls := eng.calledRemove()
			found := false
			for _, rc := range removeCalls {
				if rc.id == oldContainerID {
					Expect(rc.force).To(BeTrue())
					Expect(rc.removeVolumes).To(BeTrue())
					found = true
				}
			}
			Expect(found).To(BeTrue())

			events := drainEvents(sub)
			runningEvents := 0
			for _, ev := range events {
				if ev.Kind == eventbus.KindDeploymentStatus && ev.DeploymentStatus.DeploymentID == d.ID && ev.DeploymentStatus.Status == string(domain.DeployRunning) {
					runningEvents++
				}
			}
			Expect(runningEvents).To(Equal(1))
		})

		It("honors Application.Port for the host binding when set", func() {
			exec, store, eng, _, _ := newTestExecutor(buildsRoot)
			srv := mustCreateServer(store)
			port := 4321
			app := mustCreateApp(store, srv.ID, &port)

			d, err := exec.Deploy(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())

			waitForStatus(store, d.ID, domain.DeployRunning)

			calls := eng.calledCreate()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].BindPublic).To(BeTrue())
			Expect(calls[0].Ports).To(HaveKeyWithValue("4321/tcp", "4321"))
		})

		It("falls back to the deterministic auto-assigned port when Application.Port is unset", func() {
			exec, store, eng, _, _ := newTestExecutor(buildsRoot)
			srv := mustCreateServer(store)
			app := mustCreateApp(store, srv.ID, nil)

			d, err := exec.Deploy(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())

			waitForStatus(store, d.ID, domain.DeployRunning)

			calls := eng.calledCreate()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].BindPublic).To(BeFalse())

			expected := AssignHostPort(app.ID)
			Expect(calls[0].Ports).To(HaveKeyWithValue("8080/tcp", strconv.Itoa(expected)))
		})
	})

	Describe("cancellation", func() {
		It("leaves a queued deployment cancelled and never creates a container", func() {
			exec, store, eng, scm, _ := newTestExecutor(buildsRoot)
			srv := mustCreateServer(store)
			app := mustCreateApp(store, srv.ID, nil)

			gate := make(chan struct{})
			scm.mu.Lock()
			scm.cloneGate = gate
			scm.mu.Unlock()

			d, err := exec.Deploy(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Status).To(Equal(domain.DeployQueued))

			Expect(exec.Cancel(app.ID, d.ID)).To(Succeed())

			cancelled, err := store.Deployments().FindByID(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled.Status).To(Equal(domain.DeployCancelled))
			Expect(cancelled.FinishedAt).NotTo(BeNil())

			close(gate)

			Consistently(func() domain.DeploymentStatus {
				got, err := store.Deployments().FindByID(d.ID)
				Expect(err).NotTo(HaveOccurred())
				return got.Status
			}, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(domain.DeployCancelled))

			Expect(eng.calledCreate()).To(BeEmpty())
		})
	})

	Describe("concurrent deploys", func() {
		It("rejects a second deploy for an application with one already in flight", func() {
			exec, store, eng, _, _ := newTestExecutor(buildsRoot)
			srv := mustCreateServer(store)
			app := mustCreateApp(store, srv.ID, nil)

			gate := make(chan struct{})
			eng.mu.Lock()
			eng.buildGate = gate
			eng.mu.Unlock()
			defer close(gate)

			_, err := exec.Deploy(context.Background(), app)
			Expect(err).NotTo(HaveOccurred())

			_, err = exec.Deploy(context.Background(), app)
			Expect(err).To(HaveOccurred())
		})
	})
})
