package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// ApplicationRepo persists domain.Application rows.
type ApplicationRepo struct {
	db *sql.DB
}

func (r *ApplicationRepo) Create(a *domain.Application) error {
	_, err := r.db.Exec(`
		INSERT INTO applications (id, name, server_id, git_url, git_branch, build_strategy, dockerfile_path, port, status, auto_deploy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.ServerID, a.GitURL, a.GitBranch, string(a.BuildStrategy), a.DockerfilePath, a.Port, string(a.Status), boolToInt(a.AutoDeploy), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create application", err)
	}
	return nil
}

func (r *ApplicationRepo) FindByID(id string) (*domain.Application, error) {
	return r.scan(r.db.QueryRow(appSelect+` WHERE id = ?`, id))
}

func (r *ApplicationRepo) FindByName(name string) (*domain.Application, error) {
	return r.scan(r.db.QueryRow(appSelect+` WHERE name = ?`, name))
}

func (r *ApplicationRepo) List() ([]domain.Application, error) {
	rows, err := r.db.Query(appSelect + ` ORDER BY created_at ASC`)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list applications", err)
	}
	defer rows.Close()

	var out []domain.Application
	for rows.Next() {
		a, err := scanApplicationRow(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan application", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListByServer returns every application placed on serverID, the set the
// deployment executor and health/stats loops iterate per host.
func (r *ApplicationRepo) ListByServer(serverID string) ([]domain.Application, error) {
	rows, err := r.db.Query(appSelect+` WHERE server_id = ? ORDER BY created_at ASC`, serverID)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list applications by server", err)
	}
	defer rows.Close()

	var out []domain.Application
	for rows.Next() {
		a, err := scanApplicationRow(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan application", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an application's coarse lifecycle status.
func (r *ApplicationRepo) UpdateStatus(id string, status domain.AppStatus) error {
	res, err := r.db.Exec(`UPDATE applications SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(status), id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update application status", err)
	}
	return checkRowsAffected(res, "application", id)
}

// UpdatePort sets the application's configured container port, used by the
// auto-detected-port fallback the deployment executor applies on first
// deploy when no port was configured at all.
func (r *ApplicationRepo) UpdatePort(id string, port int) error {
	res, err := r.db.Exec(`UPDATE applications SET port = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, port, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update application port", err)
	}
	return checkRowsAffected(res, "application", id)
}

func (r *ApplicationRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete application", err)
	}
	return checkRowsAffected(res, "application", id)
}

const appSelect = `SELECT id, name, server_id, git_url, git_branch, build_strategy, dockerfile_path, port, status, auto_deploy, created_at, updated_at FROM applications`

func scanApplicationRow(row rowScanner) (*domain.Application, error) {
	var a domain.Application
	var gitURL, dockerfilePath sql.NullString
	var port sql.NullInt64
	var autoDeploy int
	if err := row.Scan(&a.ID, &a.Name, &a.ServerID, &gitURL, &a.GitBranch, &a.BuildStrategy, &dockerfilePath, &port, &a.Status, &autoDeploy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if gitURL.Valid {
		a.GitURL = &gitURL.String
	}
	if dockerfilePath.Valid {
		a.DockerfilePath = &dockerfilePath.String
	}
	if port.Valid {
		p := int(port.Int64)
		a.Port = &p
	}
	a.AutoDeploy = autoDeploy != 0
	return &a, nil
}

func (r *ApplicationRepo) scan(row *sql.Row) (*domain.Application, error) {
	a, err := scanApplicationRow(row)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("application not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan application", err)
	}
	return a, nil
}
