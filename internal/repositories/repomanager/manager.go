package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/actions"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/facts"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/runs"
)

// RepositoryManager vends repositories bound to a caller-chosen handle, so
// the same code runs over the pool, a pinned connection or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Facts(db dbx.DBTX) facts.Repository
	Actions(db dbx.DBTX) actions.Repository
	Runs(db dbx.DBTX) runs.Repository
}
