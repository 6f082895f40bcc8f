// Package runs records one row per auditor run so interrupted and finished
// runs can be told apart.
package runs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run is the bookkeeping row of one auditor pass.
type Run struct {
	ID             uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	Objects        int
	Failures       int
	ActionsCreated int
}

type Repository interface {
	Start(ctx context.Context, id uuid.UUID, at time.Time) error
	Finish(ctx context.Context, run *Run) error
}
