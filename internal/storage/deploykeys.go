package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// DeployKeyRepo persists the at-most-one deploy keypair per application.
type DeployKeyRepo struct {
	db *sql.DB
}

func (r *DeployKeyRepo) Create(k *domain.DeployKey) error {
	_, err := r.db.Exec(`
		INSERT INTO deploy_keys (id, application_id, public_key, private_key_sealed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, k.ID, k.ApplicationID, k.PublicKey, k.PrivateKeySealed, k.CreatedAt)
	if err != nil {
		return perr.Wrap(perr.KindConflict, "create deploy key", err)
	}
	return nil
}

// FindByApplication returns the keypair for applicationID, or KindNotFound
// for a public repository that never needed one.
func (r *DeployKeyRepo) FindByApplication(applicationID string) (*domain.DeployKey, error) {
	var k domain.DeployKey
	err := r.db.QueryRow(`
		SELECT id, application_id, public_key, private_key_sealed, created_at
		FROM deploy_keys WHERE application_id = ?
	`, applicationID).Scan(&k.ID, &k.ApplicationID, &k.PublicKey, &k.PrivateKeySealed, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("deploy key not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan deploy key", err)
	}
	return &k, nil
}

func (r *DeployKeyRepo) Delete(applicationID string) error {
	res, err := r.db.Exec(`DELETE FROM deploy_keys WHERE application_id = ?`, applicationID)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete deploy key", err)
	}
	return checkRowsAffected(res, "deploy key", applicationID)
}
