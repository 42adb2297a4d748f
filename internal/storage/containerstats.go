package storage

import (
	"database/sql"
	"time"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// ContainerStatsRepo persists the append-only series of resource-usage
// samples the stats aggregator (C7) records every tick.
type ContainerStatsRepo struct {
	db *sql.DB
}

func (r *ContainerStatsRepo) Create(s *domain.ContainerStatsSample) error {
	_, err := r.db.Exec(`
		INSERT INTO container_stats_samples (id, container_id, application_id, cpu_percent, memory_mb, memory_limit_mb, network_rx_mb, network_tx_mb, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ContainerID, s.ApplicationID, s.CPUPercent, s.MemoryMB, s.MemoryLimitMB, s.NetworkRxMB, s.NetworkTxMB, s.RecordedAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create container stats sample", err)
	}
	return nil
}

// RecentByContainer returns the last n samples for containerID, most
// recent first, the window dashboards and the API's stats endpoint read.
func (r *ContainerStatsRepo) RecentByContainer(containerID string, n int) ([]domain.ContainerStatsSample, error) {
	rows, err := r.db.Query(`
		SELECT id, container_id, application_id, cpu_percent, memory_mb, memory_limit_mb, network_rx_mb, network_tx_mb, recorded_at
		FROM container_stats_samples WHERE container_id = ? ORDER BY recorded_at DESC LIMIT ?
	`, containerID, n)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list container stats", err)
	}
	defer rows.Close()
	return scanStatsRows(rows)
}

// DeleteOlderThan removes every sample recorded before cutoff, the stats
// aggregator's hourly retention GC.
func (r *ContainerStatsRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM container_stats_samples WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, perr.Wrap(perr.KindTransient, "prune container stats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, perr.Wrap(perr.KindTransient, "check rows affected", err)
	}
	return n, nil
}

func scanStatsRows(rows *sql.Rows) ([]domain.ContainerStatsSample, error) {
	var out []domain.ContainerStatsSample
	for rows.Next() {
		var s domain.ContainerStatsSample
		var appID sql.NullString
		var memLimit, netRx, netTx sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.ContainerID, &appID, &s.CPUPercent, &s.MemoryMB, &memLimit, &netRx, &netTx, &s.RecordedAt); err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan container stats sample", err)
		}
		if appID.Valid {
			s.ApplicationID = &appID.String
		}
		if memLimit.Valid {
			s.MemoryLimitMB = &memLimit.Float64
		}
		if netRx.Valid {
			s.NetworkRxMB = &netRx.Float64
		}
		if netTx.Valid {
			s.NetworkTxMB = &netTx.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
