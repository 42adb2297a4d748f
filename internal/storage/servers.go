package storage

import (
	"database/sql"
	"time"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// ServerRepo persists domain.Server rows.
type ServerRepo struct {
	db *sql.DB
}

// Create inserts s. Callers set ID/CreatedAt/UpdatedAt before calling.
func (r *ServerRepo) Create(s *domain.Server) error {
	_, err := r.db.Exec(`
		INSERT INTO servers (id, name, host, port, username, ssh_key_sealed, is_local, status, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Host, s.Port, s.Username, nullIfEmpty(s.SSHKeySealed), boolToInt(s.IsLocal), string(s.Status), s.LastSeenAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, "create server", err)
	}
	return nil
}

// FindByID returns the server with the given ID, or KindNotFound.
func (r *ServerRepo) FindByID(id string) (*domain.Server, error) {
	return r.scan(r.db.QueryRow(`
		SELECT id, name, host, port, username, ssh_key_sealed, is_local, status, last_seen_at, created_at, updated_at
		FROM servers WHERE id = ?
	`, id))
}

// List returns every registered server.
func (r *ServerRepo) List() ([]domain.Server, error) {
	rows, err := r.db.Query(`
		SELECT id, name, host, port, username, ssh_key_sealed, is_local, status, last_seen_at, created_at, updated_at
		FROM servers ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list servers", err)
	}
	defer rows.Close()

	var out []domain.Server
	for rows.Next() {
		s, err := scanServerRow(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan server", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateStatus sets status and last_seen_at = seenAt, whatever the status.
func (r *ServerRepo) UpdateStatus(id string, status domain.ServerStatus, seenAt time.Time) error {
	res, err := r.db.Exec(`UPDATE servers SET status = ?, last_seen_at = ?, updated_at = ? WHERE id = ?`,
		string(status), seenAt, time.Now().UTC(), id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update server status", err)
	}
	return checkRowsAffected(res, "server", id)
}

// Delete removes the server with the given ID.
func (r *ServerRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete server", err)
	}
	return checkRowsAffected(res, "server", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServerRow(row rowScanner) (*domain.Server, error) {
	var s domain.Server
	var sshKey sql.NullString
	var lastSeen sql.NullTime
	var isLocal int
	if err := row.Scan(&s.ID, &s.Name, &s.Host, &s.Port, &s.Username, &sshKey, &isLocal, &s.Status, &lastSeen, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SSHKeySealed = sshKey.String
	s.IsLocal = isLocal != 0
	if lastSeen.Valid {
		s.LastSeenAt = &lastSeen.Time
	}
	return &s, nil
}

func (r *ServerRepo) scan(row *sql.Row) (*domain.Server, error) {
	s, err := scanServerRow(row)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("server not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan server", err)
	}
	return s, nil
}
