package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// EnvVarRepo persists sealed environment-variable rows for applications.
type EnvVarRepo struct {
	db *sql.DB
}

// Create inserts e. A (application_id, key) collision surfaces as
// KindConflict — ployer.yaml/API callers must update rather than re-create.
func (r *EnvVarRepo) Create(e *domain.EnvironmentVariable) error {
	_, err := r.db.Exec(`
		INSERT INTO environment_variables (id, application_id, key, value_sealed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.ApplicationID, e.Key, e.ValueSealed, e.CreatedAt)
	if err != nil {
		return perr.Wrap(perr.KindConflict, "create environment variable", err)
	}
	return nil
}

// ListByApplication returns every environment variable owned by
// applicationID, sealed values intact for the caller to unseal as needed.
func (r *EnvVarRepo) ListByApplication(applicationID string) ([]domain.EnvironmentVariable, error) {
	rows, err := r.db.Query(`
		SELECT id, application_id, key, value_sealed, created_at
		FROM environment_variables WHERE application_id = ? ORDER BY key ASC
	`, applicationID)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list environment variables", err)
	}
	defer rows.Close()

	var out []domain.EnvironmentVariable
	for rows.Next() {
		var e domain.EnvironmentVariable
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.Key, &e.ValueSealed, &e.CreatedAt); err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan environment variable", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateValue reseals the value for (applicationID, key).
func (r *EnvVarRepo) UpdateValue(applicationID, key, valueSealed string) error {
	res, err := r.db.Exec(`
		UPDATE environment_variables SET value_sealed = ? WHERE application_id = ? AND key = ?
	`, valueSealed, applicationID, key)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update environment variable", err)
	}
	return checkRowsAffected(res, "environment variable", applicationID+"/"+key)
}

// Delete removes the (applicationID, key) pair.
func (r *EnvVarRepo) Delete(applicationID, key string) error {
	res, err := r.db.Exec(`DELETE FROM environment_variables WHERE application_id = ? AND key = ?`, applicationID, key)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete environment variable", err)
	}
	return checkRowsAffected(res, "environment variable", applicationID+"/"+key)
}
