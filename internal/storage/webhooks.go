package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// WebhookRepo persists the at-most-one webhook receiver per application.
type WebhookRepo struct {
	db *sql.DB
}

func (r *WebhookRepo) Create(w *domain.Webhook) error {
	_, err := r.db.Exec(`
		INSERT INTO webhooks (id, application_id, provider, secret, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.ApplicationID, string(w.Provider), w.Secret, boolToInt(w.Enabled), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return perr.Wrap(perr.KindConflict, "create webhook", err)
	}
	return nil
}

func (r *WebhookRepo) FindByID(id string) (*domain.Webhook, error) {
	return r.scan(r.db.QueryRow(webhookSelect+` WHERE id = ?`, id))
}

// FindByApplication returns the webhook configured for applicationID.
func (r *WebhookRepo) FindByApplication(applicationID string) (*domain.Webhook, error) {
	return r.scan(r.db.QueryRow(webhookSelect+` WHERE application_id = ?`, applicationID))
}

func (r *WebhookRepo) SetEnabled(id string, enabled bool) error {
	res, err := r.db.Exec(`UPDATE webhooks SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update webhook", err)
	}
	return checkRowsAffected(res, "webhook", id)
}

func (r *WebhookRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete webhook", err)
	}
	return checkRowsAffected(res, "webhook", id)
}

const webhookSelect = `SELECT id, application_id, provider, secret, enabled, created_at, updated_at FROM webhooks`

func scanWebhookRow(row rowScanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var enabled int
	if err := row.Scan(&w.ID, &w.ApplicationID, &w.Provider, &w.Secret, &enabled, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Enabled = enabled != 0
	return &w, nil
}

func (r *WebhookRepo) scan(row *sql.Row) (*domain.Webhook, error) {
	w, err := scanWebhookRow(row)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("webhook not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan webhook", err)
	}
	return w, nil
}

// WebhookDeliveryRepo persists the append-only audit log of inbound
// webhook calls.
type WebhookDeliveryRepo struct {
	db *sql.DB
}

func (r *WebhookDeliveryRepo) Create(d *domain.WebhookDelivery) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, webhook_id, application_id, provider, event_type, branch, commit_sha, commit_message, author, status, deployment_id, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.WebhookID, d.ApplicationID, string(d.Provider), d.EventType, d.Branch, d.CommitSHA, d.CommitMessage, d.Author, string(d.Status), d.DeploymentID, d.DeliveredAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create webhook delivery", err)
	}
	return nil
}

// ListByWebhook returns deliveries for webhookID, most recent first.
func (r *WebhookDeliveryRepo) ListByWebhook(webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, webhook_id, application_id, provider, event_type, branch, commit_sha, commit_message, author, status, deployment_id, delivered_at
		FROM webhook_deliveries WHERE webhook_id = ? ORDER BY delivered_at DESC LIMIT ?
	`, webhookID, limit)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list webhook deliveries", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		var branch, commitSHA, commitMessage, author, deploymentID sql.NullString
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.ApplicationID, &d.Provider, &d.EventType, &branch, &commitSHA, &commitMessage, &author, &d.Status, &deploymentID, &d.DeliveredAt); err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan webhook delivery", err)
		}
		if branch.Valid {
			d.Branch = &branch.String
		}
		if commitSHA.Valid {
			d.CommitSHA = &commitSHA.String
		}
		if commitMessage.Valid {
			d.CommitMessage = &commitMessage.String
		}
		if author.Valid {
			d.Author = &author.String
		}
		if deploymentID.Valid {
			d.DeploymentID = &deploymentID.String
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
