package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nusendra/ployer/internal/deploy"
	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/logging"
	"github.com/nusendra/ployer/internal/perr"
	"github.com/nusendra/ployer/internal/storage"
)

// Ingress verifies, records, and (when the pushed branch matches the
// application's configured branch and auto-deploy is enabled) acts on
// inbound webhook deliveries.
type Ingress struct {
	store    *storage.Storage
	executor *deploy.Executor
	log      *logging.Logger
}

// NewIngress wires an Ingress from its dependencies.
func NewIngress(store *storage.Storage, executor *deploy.Executor) *Ingress {
	return &Ingress{store: store, executor: executor, log: logging.New().With("component", "webhook")}
}

// Handle verifies the inbound request against applicationID's configured
// webhook, records an audit delivery, and triggers a deploy when the
// pushed branch matches and auto-deploy is enabled. It returns the
// delivery it recorded so the caller can shape its HTTP response.
func (i *Ingress) Handle(ctx context.Context, applicationID string, header string, body []byte) (*domain.WebhookDelivery, error) {
	hook, err := i.store.Webhooks().FindByApplication(applicationID)
	if err != nil {
		return nil, err
	}
	if !hook.Enabled {
		return nil, perr.Conflict("webhook is disabled for this application")
	}

	if !Verify(hook.Provider, body, header, hook.Secret) {
		return nil, perr.Unauthorized("invalid webhook signature")
	}

	push, err := Parse(hook.Provider, body)
	if err != nil {
		return nil, err
	}

	delivery := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     hook.ID,
		ApplicationID: applicationID,
		Provider:      hook.Provider,
		EventType:     "push",
		DeliveredAt:   time.Now().UTC(),
	}
	if push.Branch != "" {
		delivery.Branch = &push.Branch
	}
	if push.CommitSHA != "" {
		delivery.CommitSHA = &push.CommitSHA
	}
	if push.CommitMessage != "" {
		delivery.CommitMessage = &push.CommitMessage
	}
	if push.Author != "" {
		delivery.Author = &push.Author
	}

	app, err := i.store.Applications().FindByID(applicationID)
	if err != nil {
		delivery.Status = domain.DeliverySkipped
		i.record(delivery)
		return delivery, err
	}

	if !app.AutoDeploy || push.Branch != app.GitBranch {
		delivery.Status = domain.DeliverySkipped
		i.record(delivery)
		return delivery, nil
	}

	d, err := i.executor.Deploy(ctx, app)
	if err != nil {
		delivery.Status = domain.DeliveryFailed
		i.record(delivery)
		return delivery, err
	}

	delivery.Status = domain.DeliverySuccess
	delivery.DeploymentID = &d.ID
	i.record(delivery)
	return delivery, nil
}

func (i *Ingress) record(d *domain.WebhookDelivery) {
	if err := i.store.WebhookDeliveries().Create(d); err != nil {
		i.log.Printf("record webhook delivery for %s: %v", d.ApplicationID, err)
	}
}
