package dbx

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// permanentClasses are the SQLSTATE classes a retry cannot fix: data
// exceptions, integrity constraint violations and syntax or access rule
// violations.
var permanentClasses = map[string]bool{
	"22": true,
	"23": true,
	"42": true,
}

// IsPermanent reports whether err carries a Postgres error that will fail
// the same way on every attempt.
func IsPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	return permanentClasses[pgErr.Code[:2]]
}
