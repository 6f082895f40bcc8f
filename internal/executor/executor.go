// Package executor carries out the pending remediation plan: it copies
// missing keys between tiers, deletes superfluous keys and rewrites stale
// references, marking each action completed as it goes.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/dmitrijs2005/preservaudit/internal/logging"
	"github.com/dmitrijs2005/preservaudit/internal/metrics"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/actions"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/preservaudit/internal/retry"
)

// ErrSourceMissing means an add action found no copy to replicate from.
var ErrSourceMissing = errors.New("source copy missing")

// Order in which pending actions are executed. Copies run before deletes so
// a tier is never left with fewer copies than it started with.
var Order = []audit.ActionKind{audit.ActionAdd, audit.ActionDelete, audit.ActionUpdateReference}

// Store is the storage surface the executor needs.
type Store interface {
	Exists(ctx context.Context, tier audit.Tier, key string) (bool, error)
	Copy(ctx context.Context, key string, from, to audit.Tier) error
	Delete(ctx context.Context, tier audit.Tier, key string) error
}

type Options struct {
	BatchSize  int
	RetryLimit time.Duration
	DryRun     bool
}

// Report counts processed actions per kind.
type Report struct {
	Done   map[audit.ActionKind]int `json:"done"`
	Failed map[audit.ActionKind]int `json:"failed"`
	DryRun map[audit.ActionKind]int `json:"dry_run,omitempty"`
}

func newReport() *Report {
	return &Report{
		Done:   make(map[audit.ActionKind]int),
		Failed: make(map[audit.ActionKind]int),
		DryRun: make(map[audit.ActionKind]int),
	}
}

type Executor struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	store   Store
	log     logging.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

func New(db *sql.DB, repos repomanager.RepositoryManager, store Store, log logging.Logger, m *metrics.Metrics, opts Options) *Executor {
	if opts.BatchSize < 1 {
		opts.BatchSize = 500
	}
	return &Executor{
		db:      db,
		repos:   repos,
		store:   store,
		log:     log.With("module", "executor"),
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// Run executes every pending action, kind by kind in Order and by id within
// a kind. A failing action is logged and left pending for the next run; only
// failures to read the plan abort the run.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	report := newReport()

	for _, kind := range Order {
		if err := e.runKind(ctx, kind, report); err != nil {
			return report, err
		}
	}

	e.log.Info(ctx, "cleanup finished",
		"done", report.Done, "failed", report.Failed, "dry_run", e.opts.DryRun)
	return report, nil
}

func (e *Executor) runKind(ctx context.Context, kind audit.ActionKind, report *Report) error {
	repo := e.repos.Actions(e.db)

	var after int64
	for {
		var page []actions.PendingAction
		err := retry.Do(ctx, e.opts.RetryLimit, func() error {
			var err error
			page, err = repo.ListPending(ctx, kind, after, e.opts.BatchSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("list pending %s actions: %w", kind, err)
		}

		for _, pa := range page {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.process(ctx, pa, report)
		}

		if len(page) < e.opts.BatchSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (e *Executor) process(ctx context.Context, pa actions.PendingAction, report *Report) {
	log := e.log.With("id", pa.ID, "action", string(pa.Kind), "object", pa.ObjectName, "path", pa.FilePath)

	if e.opts.DryRun {
		log.Info(ctx, "would execute", "tier", pa.TierName(), "key", pa.Key,
			"source_tier", tierName(pa.SourceTier), "new_reference", pa.NewReference)
		report.DryRun[pa.Kind]++
		e.metrics.ActionExecuted(string(pa.Kind), "dry_run")
		return
	}

	if err := e.execute(ctx, pa); err != nil {
		log.Warn(ctx, "action failed", "tier", pa.TierName(), "key", pa.Key, "error", err)
		report.Failed[pa.Kind]++
		e.metrics.ActionExecuted(string(pa.Kind), "failed")
		return
	}

	log.Debug(ctx, "action completed", "tier", pa.TierName(), "key", pa.Key)
	report.Done[pa.Kind]++
	e.metrics.ActionExecuted(string(pa.Kind), "done")
}

func (e *Executor) execute(ctx context.Context, pa actions.PendingAction) error {
	switch pa.Kind {
	case audit.ActionAdd:
		if err := e.retry(ctx, func() error { return e.add(ctx, pa) }); err != nil {
			return err
		}
	case audit.ActionDelete:
		if err := e.retry(ctx, func() error { return e.store.Delete(ctx, pa.Tier, pa.Key) }); err != nil {
			return err
		}
	case audit.ActionUpdateReference:
		// reference and completion mark change together
		return e.retry(ctx, func() error {
			return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
				if err := e.repos.Facts(tx).UpdateReference(ctx, pa.ObjectName, pa.FilePath, pa.OldReference, pa.NewReference); err != nil {
					if errors.Is(err, common.ErrNotFound) {
						return retry.Permanent(fmt.Errorf("reference of %s changed since planning: %w", pa.FilePath, err))
					}
					return err
				}
				return e.markCompleted(ctx, tx, pa.ID)
			})
		})
	default:
		return fmt.Errorf("unknown action kind %q", pa.Kind)
	}

	return e.retry(ctx, func() error { return e.markCompleted(ctx, e.db, pa.ID) })
}

func (e *Executor) add(ctx context.Context, pa actions.PendingAction) error {
	ok, err := e.store.Exists(ctx, pa.SourceTier, pa.Key)
	if err != nil {
		return err
	}
	if !ok {
		return retry.Permanent(fmt.Errorf("%w: %s in %s", ErrSourceMissing, pa.Key, tierName(pa.SourceTier)))
	}
	return e.store.Copy(ctx, pa.Key, pa.SourceTier, pa.Tier)
}

// markCompleted treats an action someone else already completed as done.
func (e *Executor) markCompleted(ctx context.Context, db dbx.DBTX, id int64) error {
	err := e.repos.Actions(db).MarkCompleted(ctx, id, e.now().UTC())
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, e.opts.RetryLimit, fn)
}

func tierName(t audit.Tier) string {
	if !t.Valid() {
		return ""
	}
	return t.String()
}
