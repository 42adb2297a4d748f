package storage

import (
	"database/sql"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// DomainRepo persists domain.Domain rows (hostnames routed to an
// application).
type DomainRepo struct {
	db *sql.DB
}

func (r *DomainRepo) Create(d *domain.Domain) error {
	_, err := r.db.Exec(`
		INSERT INTO domains (id, application_id, domain, is_primary, ssl_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.ApplicationID, d.DomainName, boolToInt(d.IsPrimary), boolToInt(d.SSLActive), d.CreatedAt)
	if err != nil {
		return perr.Wrap(perr.KindConflict, "create domain", err)
	}
	return nil
}

func (r *DomainRepo) FindByID(id string) (*domain.Domain, error) {
	return r.scan(r.db.QueryRow(domainSelect+` WHERE id = ?`, id))
}

// ListByApplication returns every hostname routed to applicationID.
func (r *DomainRepo) ListByApplication(applicationID string) ([]domain.Domain, error) {
	rows, err := r.db.Query(domainSelect+` WHERE application_id = ? ORDER BY created_at ASC`, applicationID)
	if err != nil {
		return nil, perr.Wrap(perr.KindTransient, "list domains", err)
	}
	defer rows.Close()

	var out []domain.Domain
	for rows.Next() {
		d, err := scanDomainRow(rows)
		if err != nil {
			return nil, perr.Wrap(perr.KindIntegrity, "scan domain", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// SetPrimary marks id as applicationID's primary domain, unsetting any
// previous primary for that application in the same transaction — an
// application can never end up with zero or two primaries, even if the
// process crashes mid-call, since SQLite's driver rolls back an
// uncommitted transaction.
func (r *DomainRepo) SetPrimary(applicationID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return perr.Wrap(perr.KindTransient, "begin set-primary transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE domains SET is_primary = 0 WHERE application_id = ?`, applicationID); err != nil {
		return perr.Wrap(perr.KindTransient, "unset previous primary domain", err)
	}
	res, err := tx.Exec(`UPDATE domains SET is_primary = 1 WHERE id = ? AND application_id = ?`, id, applicationID)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "set primary domain", err)
	}
	if err := checkRowsAffected(res, "domain", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return perr.Wrap(perr.KindTransient, "commit set-primary transaction", err)
	}
	return nil
}

// SetSSLActive records whether Caddy has issued a managed certificate for
// the domain yet.
func (r *DomainRepo) SetSSLActive(id string, active bool) error {
	res, err := r.db.Exec(`UPDATE domains SET ssl_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "update domain ssl status", err)
	}
	return checkRowsAffected(res, "domain", id)
}

func (r *DomainRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM domains WHERE id = ?`, id)
	if err != nil {
		return perr.Wrap(perr.KindTransient, "delete domain", err)
	}
	return checkRowsAffected(res, "domain", id)
}

const domainSelect = `SELECT id, application_id, domain, is_primary, ssl_active, created_at FROM domains`

func scanDomainRow(row rowScanner) (*domain.Domain, error) {
	var d domain.Domain
	var isPrimary, sslActive int
	if err := row.Scan(&d.ID, &d.ApplicationID, &d.DomainName, &isPrimary, &sslActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.IsPrimary = isPrimary != 0
	d.SSLActive = sslActive != 0
	return &d, nil
}

func (r *DomainRepo) scan(row *sql.Row) (*domain.Domain, error) {
	d, err := scanDomainRow(row)
	if err == sql.ErrNoRows {
		return nil, perr.NotFound("domain not found")
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, "scan domain", err)
	}
	return d, nil
}
