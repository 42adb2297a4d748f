package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// HealthCheckRepo persists the at-most-one probe configuration per
// application, keyed directly on application_id.
type HealthCheckRepo struct {
	db *sql.DB
}

// Upsert inserts or replaces the health check configuration for
// hc.ApplicationID, so callers never need to know whether one already
// exists before configuring it.
func (r *HealthCheckRepo) Upsert(hc *domain.HealthCheck) error {
	_, err := r.db.Exec(`
		INSERT INTO health_checks (application_id, path, interval_seconds, timeout_seconds, healthy_threshold, unhealthy_threshold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(application_id) DO UPDATE SET
			path = excluded.path,
			interval_seconds = excluded.interval_seconds,
			timeout_seconds = excluded.timeout_seconds,
			healthy_threshold = excluded.healthy_threshold,
			unhealthy_threshold = excluded.unhealthy_threshold
	`, hc.ApplicationID, hc.Path, hc.IntervalSeconds, hc.TimeoutSeconds, hc.HealthyThreshold, hc.UnhealthyThreshold)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "upsert health check", err)
	}
	return nil
}

// FindByApplication returns the probe configuration for applicationID, or
// KindNotFound for an application that never configured one (the health
// controller then skips it entirely).
func (r *HealthCheckRepo) FindByApplication(applicationID string) (*domain.HealthCheck, error) {
	var hc domain.HealthCheck
	err := r.db.QueryRow(`
		SELECT application_id, path, interval_seconds, timeout_seconds, healthy_threshold, unhealthy_threshold
		FROM health_checks WHERE application_id = ?
	`, applicationID).Scan(&hc.ApplicationID, &hc.Path, &hc.IntervalSeconds, &hc.TimeoutSeconds, &hc.HealthyThreshold, &hc.UnhealthyThreshold)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("health check not configured")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan health check", err)
	}
	return &hc, nil
}

// ListAll returns every configured health check, the health controller's
// per-tick work list.
func (r *HealthCheckRepo) ListAll() ([]domain.HealthCheck, error) {
	rows, err := r.db.Query(`
		SELECT application_id, path, interval_seconds, timeout_seconds, healthy_threshold, unhealthy_threshold
		FROM health_checks
	`)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list health checks", err)
	}
	defer rows.Close()

	var out []domain.HealthCheck
	for rows.Next() {
		var hc domain.HealthCheck
		if err := rows.Scan(&hc.ApplicationID, &hc.Path, &hc.IntervalSeconds, &hc.TimeoutSeconds, &hc.HealthyThreshold, &hc.UnhealthyThreshold); err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan health check", err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

func (r *HealthCheckRepo) Delete(applicationID string) error {
	res, err := r.db.Exec(`DELETE FROM health_checks WHERE application_id = ?`, applicationID)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete health check", err)
	}
	return checkRowsAffected(res, "health check", applicationID)
}

// HealthCheckResultRepo persists the append-only log of probe outcomes.
type HealthCheckResultRepo struct {
	db *sql.DB
}

func (r *HealthCheckResultRepo) Create(res *domain.HealthCheckResult) error {
	_, err := r.db.Exec(`
		INSERT INTO health_check_results (id, application_id, container_id, status, response_time_ms, status_code, error_message, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.ApplicationID, res.ContainerID, string(res.Status), res.ResponseTimeMs, res.StatusCode, res.ErrorMessage, res.CheckedAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create health check result", err)
	}
	return nil
}

// RecentByApplication returns the last n probe outcomes for applicationID,
// most recent first — the window the hysteresis check in the health
// controller consults to count consecutive unhealthy results.
func (r *HealthCheckResultRepo) RecentByApplication(applicationID string, n int) ([]domain.HealthCheckResult, error) {
	rows, err := r.db.Query(`
		SELECT id, application_id, container_id, status, response_time_ms, status_code, error_message, checked_at
		FROM health_check_results WHERE application_id = ? ORDER BY checked_at DESC LIMIT ?
	`, applicationID, n)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list health check results", err)
	}
	defer rows.Close()

	var out []domain.HealthCheckResult
	for rows.Next() {
		var res domain.HealthCheckResult
		var responseTimeMs, statusCode sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&res.ID, &res.ApplicationID, &res.ContainerID, &res.Status, &responseTimeMs, &statusCode, &errMsg, &res.CheckedAt); err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan health check result", err)
		}
		if responseTimeMs.Valid {
			v := int(responseTimeMs.Int64)
			res.ResponseTimeMs = &v
		}
		if statusCode.Valid {
			v := int(statusCode.Int64)
			res.StatusCode = &v
		}
		if errMsg.Valid {
			res.ErrorMessage = &errMsg.String
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
