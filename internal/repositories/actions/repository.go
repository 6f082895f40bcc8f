// Package actions is the plan sink: it stores remediation actions keyed by
// their natural key and tracks which ones the executor has completed.
// Pending actions a later audit no longer plans are marked superseded and
// are never executed.
package actions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/google/uuid"
)

// PendingAction is a stored action the executor has not completed yet.
type PendingAction struct {
	ID int64
	audit.Action
}

type Repository interface {
	Upsert(ctx context.Context, runID uuid.UUID, a audit.Action) (bool, error)
	ListPending(ctx context.Context, kind audit.ActionKind, afterID int64, limit int) ([]PendingAction, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	Supersede(ctx context.Context, objectName string, keep []audit.NaturalKey, at time.Time) (int, error)
}
