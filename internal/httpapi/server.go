// Package httpapi wires the thin HTTP surface spec.md treats as an external
// collaborator (§1: "the HTTP/JSON CRUD surface ... thin glue over the
// repositories") into a concrete router: webhook ingress, the WebSocket
// event stream, and a minimal CRUD surface over the repositories needed to
// drive a deployment end to end.
//
// Grounded on NanoPaas's cmd/nanopaas main.go (other_examples/) for the
// chi.Router assembly shape — middleware chain, r.Route grouping, the
// webhooks/apps/containers route layout — since the teacher itself routes
// over a bare http.ServeMux and has no webhook-plus-CRUD-plus-WS surface of
// comparable shape to imitate directly.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nusendra/ployer/internal/crypto"
	"github.com/nusendra/ployer/internal/deploy"
	"github.com/nusendra/ployer/internal/eventbus"
	"github.com/nusendra/ployer/internal/logging"
	"github.com/nusendra/ployer/internal/proxy"
	"github.com/nusendra/ployer/internal/storage"
	"github.com/nusendra/ployer/internal/webhook"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	store     *storage.Storage
	executor  *deploy.Executor
	ingress   *webhook.Ingress
	proxyMgr  *proxy.Manager
	bus       *eventbus.Bus
	envelope  *crypto.Envelope
	authToken string
	dataDir   string
	log       *logging.Logger
}

// New wires a Server from its dependencies. dataDir is the local data
// directory reported by the /servers/local/disk endpoint.
func New(store *storage.Storage, executor *deploy.Executor, proxyMgr *proxy.Manager, bus *eventbus.Bus, envelope *crypto.Envelope, authToken, dataDir string, allowedOrigins []string) http.Handler {
	s := &Server{
		store:     store,
		executor:  executor,
		ingress:   webhook.NewIngress(store, executor),
		proxyMgr:  proxyMgr,
		bus:       bus,
		envelope:  envelope,
		authToken: authToken,
		dataDir:   dataDir,
		log:       logging.New().With("component", "httpapi"),
	}
	return s.router(allowedOrigins)
}

func (s *Server) router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)

	// Webhook ingress is authenticated by provider signature, not the
	// bearer token — matching spec.md §4.6's "external collaborator" model,
	// where GitHub/GitLab themselves are the caller.
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Get("/events", s.handleEvents)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", s.listServers)
			r.Post("/", s.createServer)
			r.Get("/local/disk", s.getLocalDiskUsage)
			r.Get("/{id}", s.getServer)
			r.Delete("/{id}", s.deleteServer)
		})

		r.Route("/apps", func(r chi.Router) {
			r.Get("/", s.listApplications)
			r.Post("/", s.createApplication)
			r.Get("/{id}", s.getApplication)
			r.Delete("/{id}", s.deleteApplication)

			r.Post("/{id}/deploy", s.triggerDeploy)
			r.Get("/{id}/deployments", s.listDeployments)
			r.Post("/{id}/deployments/{deploymentId}/cancel", s.cancelDeployment)

			r.Put("/{id}/env/{key}", s.setEnvVar)
			r.Delete("/{id}/env/{key}", s.deleteEnvVar)

			r.Get("/{id}/domains", s.listDomains)
			r.Post("/{id}/domains", s.createDomain)
			r.Post("/{id}/domains/{domainId}/primary", s.setPrimaryDomain)
			r.Delete("/{id}/domains/{domainId}", s.deleteDomain)

			r.Put("/{id}/health-check", s.upsertHealthCheck)
			r.Get("/{id}/health-check", s.getHealthCheck)

			r.Post("/{id}/webhook", s.createWebhook)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
