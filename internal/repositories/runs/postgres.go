package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Start inserts the run row with its start time.
func (r *PostgresRepository) Start(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `INSERT INTO audit_runs (id, started_at) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, id.String(), at.UTC()); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// Finish stores the counters and finish time of run.
func (r *PostgresRepository) Finish(ctx context.Context, run *Run) error {
	query := `UPDATE audit_runs SET finished_at=$2, objects=$3, failures=$4, actions_created=$5 WHERE id=$1`
	result, err := r.db.ExecContext(ctx, query,
		run.ID.String(), run.FinishedAt.UTC(), run.Objects, run.Failures, run.ActionsCreated)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}
