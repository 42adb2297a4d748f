package storage

import (
	"database/sql"
	"time"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// DeploymentRepo persists domain.Deployment rows and the pipeline's
// state-machine transitions.
type DeploymentRepo struct {
	db *sql.DB
}

func (r *DeploymentRepo) Create(d *domain.Deployment) error {
	_, err := r.db.Exec(`
		INSERT INTO deployments (id, application_id, server_id, commit_sha, commit_message, status, build_log, container_id, image_tag, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ApplicationID, d.ServerID, d.CommitSHA, d.CommitMessage, string(d.Status), d.BuildLog, d.ContainerID, d.ImageTag, d.StartedAt, d.FinishedAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create deployment", err)
	}
	return nil
}

func (r *DeploymentRepo) FindByID(id string) (*domain.Deployment, error) {
	return r.scan(r.db.QueryRow(deploymentSelect+` WHERE id = ?`, id))
}

// ListByApplication returns every deployment attempt for applicationID,
// most recent first.
func (r *DeploymentRepo) ListByApplication(applicationID string) ([]domain.Deployment, error) {
	rows, err := r.db.Query(deploymentSelect+` WHERE application_id = ? ORDER BY started_at DESC`, applicationID)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list deployments", err)
	}
	defer rows.Close()

	var out []domain.Deployment
	for rows.Next() {
		d, err := scanDeploymentRow(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan deployment", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a deployment to status. When status is terminal
// (domain.DeploymentStatus.IsTerminal), finished_at is set to now in the
// same statement; non-terminal transitions leave it NULL. This is the
// single place deployment terminal timestamps are written, so the pipeline
// can never record a running deployment with a finish time or a finished
// one without it.
func (r *DeploymentRepo) UpdateStatus(id string, status domain.DeploymentStatus) error {
	var res sql.Result
	var err error
	if status.IsTerminal() {
		res, err = r.db.Exec(`UPDATE deployments SET status = ?, finished_at = ? WHERE id = ?`,
			string(status), time.Now().UTC(), id)
	} else {
		res, err = r.db.Exec(`UPDATE deployments SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update deployment status", err)
	}
	return checkRowsAffected(res, "deployment", id)
}

// AppendLog atomically appends line (plus a trailing newline) to a
// deployment's build log, so concurrent writers from build-output
// streaming never clobber each other the way a read-modify-write from the
// caller would.
func (r *DeploymentRepo) AppendLog(id, line string) error {
	res, err := r.db.Exec(`UPDATE deployments SET build_log = build_log || ? || char(10) WHERE id = ?`, line, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "append deployment log", err)
	}
	return checkRowsAffected(res, "deployment", id)
}

// SetContainer records the container a deployment produced, once it exists.
func (r *DeploymentRepo) SetContainer(id, containerID string) error {
	res, err := r.db.Exec(`UPDATE deployments SET container_id = ? WHERE id = ?`, containerID, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "set deployment container", err)
	}
	return checkRowsAffected(res, "deployment", id)
}

// Cancel transitions id to cancelled, but only from a non-terminal status;
// cancelling an already-finished deployment is a no-op error rather than a
// silent overwrite of its real terminal status.
func (r *DeploymentRepo) Cancel(id string) error {
	res, err := r.db.Exec(`
		UPDATE deployments SET status = ?, finished_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?, ?)
	`, string(domain.DeployCancelled), time.Now().UTC(), id,
		string(domain.DeployRunning), string(domain.DeployFailed), string(domain.DeployCancelled), string(domain.DeployRolledBack))
	if err != nil {
		return perr.Wrap(perr.KindTransient, "cancel deployment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return perr.Wrap(perr.KindTransient, "check rows affected", err)
	}
	if n == 0 {
		return perr.Conflict("deployment already finished, cannot cancel")
	}
	return nil
}

const deploymentSelect = `SELECT id, application_id, server_id, commit_sha, commit_message, status, build_log, container_id, image_tag, started_at, finished_at FROM deployments`

func scanDeploymentRow(row rowScanner) (*domain.Deployment, error) {
	var d domain.Deployment
	var commitSHA, commitMessage, containerID sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.ApplicationID, &d.ServerID, &commitSHA, &commitMessage, &d.Status, &d.BuildLog, &containerID, &d.ImageTag, &d.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if commitSHA.Valid {
		d.CommitSHA = &commitSHA.String
	}
	if commitMessage.Valid {
		d.CommitMessage = &commitMessage.String
	}
	if containerID.Valid {
		d.ContainerID = &containerID.String
	}
	if finishedAt.Valid {
		d.FinishedAt = &finishedAt.Time
	}
	return &d, nil
}

func (r *DeploymentRepo) scan(row *sql.Row) (*domain.Deployment, error) {
	d, err := scanDeploymentRow(row)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("deployment not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan deployment", err)
	}
	return d, nil
}
