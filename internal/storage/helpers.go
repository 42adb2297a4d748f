package storage

import (
	"database/sql"
	"fmt"

	"github.com/nusendra/ployer/internal/perr"
)

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// checkRowsAffected turns a zero-row UPDATE/DELETE into a KindNotFound
// error, matching the repository contract's find-or-not-found shape for
// mutations as well as reads.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return perr.Wrap(perr.KindTransient, "check rows affected", err)
	}
	if n == 0 {
		return perr.NotFound(fmt.Sprintf("%s %s not found", entity, id))
	}
	return nil
}
