package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/google/uuid"
)

// PostgresRepository implements the plan sink over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert stores a by its natural key (object, action, tier, path, key).
//
// A new action is inserted. An existing pending action is refreshed when its
// new reference differs, which is how a reference update follows a changed
// authoritative key, or when it was superseded and is planned again.
// Completed actions are never touched, so re-emitting a plan never
// resurrects finished work.
//
// Reports whether a row was inserted or changed.
func (r *PostgresRepository) Upsert(ctx context.Context, runID uuid.UUID, a audit.Action) (bool, error) {
	query := `
		INSERT INTO remediation_actions
			(run_id, object_name, file_path, identifier, action, tier, key, source_tier, old_reference, new_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (object_name, action, tier, file_path, key)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			old_reference = EXCLUDED.old_reference,
			new_reference = EXCLUDED.new_reference,
			superseded_at = NULL
			WHERE remediation_actions.completed_at IS NULL
			AND (remediation_actions.new_reference IS DISTINCT FROM EXCLUDED.new_reference
				OR remediation_actions.superseded_at IS NOT NULL);
	`
	var run any
	if runID != uuid.Nil {
		run = runID.String()
	}

	res, err := r.db.ExecContext(ctx, query,
		run, a.ObjectName, a.FilePath, a.Identifier, string(a.Kind), a.TierName(), a.Key,
		tierText(a.SourceTier), a.OldReference, a.NewReference)
	if err != nil {
		return false, fmt.Errorf("%w: %w", common.ErrPlanPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ListPending returns up to limit pending actions of the given kind with id
// greater than afterID, in id order.
func (r *PostgresRepository) ListPending(ctx context.Context, kind audit.ActionKind, afterID int64, limit int) ([]PendingAction, error) {
	query := `SELECT id, object_name, file_path, identifier, action, tier, key, source_tier, old_reference, new_reference
		FROM remediation_actions
		WHERE completed_at IS NULL AND superseded_at IS NULL AND action=$1 AND id>$2
		ORDER BY id LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, string(kind), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select actions: %w", err)
	}
	defer rows.Close()

	var result []PendingAction
	for rows.Next() {
		var (
			item                       PendingAction
			kindText, tier, sourceTier string
		)
		if err := rows.Scan(&item.ID, &item.ObjectName, &item.FilePath, &item.Identifier, &kindText,
			&tier, &item.Key, &sourceTier, &item.OldReference, &item.NewReference); err != nil {
			return nil, err
		}
		k, ok := audit.ParseActionKind(kindText)
		if !ok {
			return nil, fmt.Errorf("action %d: unknown kind %q", item.ID, kindText)
		}
		item.Kind = k
		if item.Tier, err = parseOptionalTier(tier); err != nil {
			return nil, fmt.Errorf("action %d: %w", item.ID, err)
		}
		if item.SourceTier, err = parseOptionalTier(sourceTier); err != nil {
			return nil, fmt.Errorf("action %d: %w", item.ID, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkCompleted stamps the action with its completion time. Exactly one
// pending row must be affected; otherwise common.ErrNotFound is returned.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE remediation_actions SET completed_at=$2 WHERE id=$1 AND completed_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
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

// Supersede marks every open action of objectName whose natural key is not
// in keep as superseded at the given time, so the executor never acts on a
// plan the latest audit withdrew. Returns the number of actions superseded.
func (r *PostgresRepository) Supersede(ctx context.Context, objectName string, keep []audit.NaturalKey, at time.Time) (int, error) {
	query := `SELECT id, action, tier, file_path, key FROM remediation_actions
		WHERE object_name=$1 AND completed_at IS NULL AND superseded_at IS NULL
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, objectName)
	if err != nil {
		return 0, fmt.Errorf("%w: select open actions: %w", common.ErrPlanPersistence, err)
	}

	planned := make(map[audit.NaturalKey]struct{}, len(keep))
	for _, k := range keep {
		planned[k] = struct{}{}
	}

	var stale []int64
	for rows.Next() {
		var (
			id                   int64
			kindText, tier       string
			filePath, storageKey string
		)
		if err := rows.Scan(&id, &kindText, &tier, &filePath, &storageKey); err != nil {
			rows.Close()
			return 0, err
		}
		nk := audit.NaturalKey{ObjectName: objectName, FilePath: filePath, Key: storageKey}
		k, ok := audit.ParseActionKind(kindText)
		if !ok {
			rows.Close()
			return 0, fmt.Errorf("action %d: unknown kind %q", id, kindText)
		}
		nk.Kind = k
		if nk.Tier, err = parseOptionalTier(tier); err != nil {
			rows.Close()
			return 0, fmt.Errorf("action %d: %w", id, err)
		}
		if _, ok := planned[nk]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range stale {
		_, err := r.db.ExecContext(ctx,
			`UPDATE remediation_actions SET superseded_at=$2 WHERE id=$1 AND completed_at IS NULL`, id, at.UTC())
		if err != nil {
			return 0, fmt.Errorf("%w: supersede action %d: %w", common.ErrPlanPersistence, id, err)
		}
	}
	return len(stale), nil
}

func tierText(t audit.Tier) string {
	if !t.Valid() {
		return ""
	}
	return t.String()
}

func parseOptionalTier(s string) (audit.Tier, error) {
	if s == "" {
		return 0, nil
	}
	return audit.ParseTier(s)
}
