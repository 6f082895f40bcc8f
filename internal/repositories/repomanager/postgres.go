// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/dmitrijs2005/preservaudit/internal/migrations"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/actions"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/facts"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/runs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Facts returns a facts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Facts(db dbx.DBTX) facts.Repository {
	return facts.NewPostgresRepository(db)
}

// Actions returns an actions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Actions(db dbx.DBTX) actions.Repository {
	return actions.NewPostgresRepository(db)
}

// Runs returns a runs.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Runs(db dbx.DBTX) runs.Repository {
	return runs.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// PoolSize returns the connection limit for the given number of workers:
// one pinned connection per worker plus one shared by the object listing
// and the run bookkeeping. Fewer than one worker counts as one, the same as
// the auditor runs.
func PoolSize(workers int) int {
	return max(workers, 1) + 1
}

// OpenDB opens a pgx-backed *sql.DB sized for the given number of workers
// and verifies the connection.
func OpenDB(ctx context.Context, dsn string, workers int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(PoolSize(workers))
	db.SetMaxIdleConns(PoolSize(workers))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
