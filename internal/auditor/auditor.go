// Package auditor drives the reconciliation over the fact store: it loads
// each object, reconciles and summarizes it, and writes the remediation plan
// to the plan sink.
package auditor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/dmitrijs2005/preservaudit/internal/logging"
	"github.com/dmitrijs2005/preservaudit/internal/metrics"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/runs"
	"github.com/dmitrijs2005/preservaudit/internal/retry"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Options tune a run.
//
//   - Workers: objects audited in parallel, each on its own connection.
//   - BatchSize: page size when listing object names.
//   - ResumeAfter: only objects whose name sorts after it are audited.
//   - RetryLimit: retry budget for one fact load or one object's plan write.
//   - DryRun: plans are logged, never written; no run row is recorded.
//   - Inspect: no plan is computed at all; used by report modes.
type Options struct {
	Workers     int
	BatchSize   int
	ResumeAfter string
	RetryLimit  time.Duration
	DryRun      bool
	Inspect     bool
}

// ObjectResult is the outcome of auditing one object.
type ObjectResult struct {
	Audit   *audit.ObjectAudit
	Actions []audit.Action
	// Emitted counts actions inserted or changed in the plan sink.
	Emitted int
	// Superseded counts open actions withdrawn because the plan no longer
	// carries them.
	Superseded int
	// PersistFailures counts actions left unwritten. The plan of an object
	// is written in one transaction, so this is zero or len(Actions).
	PersistFailures int
}

// session is a handle that can both query and open transactions: the pool
// or a pinned connection.
type session interface {
	dbx.DBTX
	dbx.TxBeginner
}

// Visitor receives every successfully audited object. Calls are serialized.
// A Visitor error aborts the run.
type Visitor func(ctx context.Context, r *ObjectResult) error

// RunReport summarizes one run.
type RunReport struct {
	RunID          uuid.UUID            `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	// Objects counts audited objects, including those whose plan was only
	// partially persisted.
	Objects        int                  `json:"objects"`
	Failures       int                  `json:"failures"`
	ActionsCreated int                  `json:"actions_created"`
	Health         map[audit.Health]int `json:"health"`
	Failed         []string             `json:"failed,omitempty"`

	mu   sync.Mutex
	errs *multierror.Error
}

// Err returns every per-object failure of the run, or nil.
func (r *RunReport) Err() error {
	return r.errs.ErrorOrNil()
}

func (r *RunReport) audited(res *ObjectResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Objects++
	r.Health[res.Audit.Summary.Health]++
	r.ActionsCreated += res.Emitted
}

func (r *RunReport) failed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures++
	r.Failed = append(r.Failed, name)
	r.errs = multierror.Append(r.errs, fmt.Errorf("%s: %w", name, err))
}

type Auditor struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	log     logging.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

func New(db *sql.DB, repos repomanager.RepositoryManager, log logging.Logger, m *metrics.Metrics, opts Options) *Auditor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 500
	}
	return &Auditor{
		db:      db,
		repos:   repos,
		log:     log.With("module", "auditor"),
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// Inspect loads and summarizes one object without planning or persisting
// anything.
func (a *Auditor) Inspect(ctx context.Context, name string) (*audit.ObjectAudit, error) {
	obj, err := a.load(ctx, a.db, name)
	if err != nil {
		return nil, err
	}
	return audit.Summarize(obj)
}

// AuditObject audits one object outside of a run: load, summarize, plan and
// persist (unless the auditor is in dry-run or inspect mode).
func (a *Auditor) AuditObject(ctx context.Context, name string) (*ObjectResult, error) {
	return a.auditOn(ctx, a.db, uuid.Nil, name)
}

// Run audits the named objects, or every object after ResumeAfter in name
// order when names is empty. Per-object failures are logged, counted and
// collected in the report; they do not stop the run. The returned error is
// non-nil only when the run itself could not proceed.
func (a *Auditor) Run(ctx context.Context, names []string, visit Visitor) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New(),
		StartedAt: a.now().UTC(),
		Health:    make(map[audit.Health]int),
	}
	log := a.log.With("run", report.RunID.String())

	persist := a.persists()
	if persist {
		if err := a.repos.Runs(a.db).Start(ctx, report.RunID, report.StartedAt); err != nil {
			return nil, err
		}
	}
	log.Info(ctx, "run started", "workers", a.opts.Workers, "resume_after", a.opts.ResumeAfter, "dry_run", a.opts.DryRun)

	var visitMu sync.Mutex
	queue := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		return a.produce(gctx, names, queue)
	})

	for range a.opts.Workers {
		g.Go(func() error {
			return dbx.WithConn(gctx, a.db, func(ctx context.Context, conn *sql.Conn) error {
				for name := range queue {
					res, err := a.auditOn(ctx, conn, report.RunID, name)
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if err != nil {
						report.failed(name, err)
						a.metrics.ObjectFailed(failureReason(err))
						log.Error(ctx, "object audit failed", "object", name, "error", err)
					}
					if res == nil {
						continue
					}
					report.audited(res)
					if visit != nil {
						visitMu.Lock()
						err := visit(ctx, res)
						visitMu.Unlock()
						if err != nil {
							return err
						}
					}
				}
				return nil
			})
		})
	}

	runErr := g.Wait()

	report.FinishedAt = a.now().UTC()
	if persist {
		// recorded even when the run was interrupted
		finishCtx := context.WithoutCancel(ctx)
		if err := a.repos.Runs(a.db).Finish(finishCtx, &runs.Run{
			ID:             report.RunID,
			StartedAt:      report.StartedAt,
			FinishedAt:     report.FinishedAt,
			Objects:        report.Objects,
			Failures:       report.Failures,
			ActionsCreated: report.ActionsCreated,
		}); err != nil {
			log.Error(ctx, "failed to record run", "error", err)
		}
	}

	log.Info(ctx, "run finished",
		"objects", report.Objects, "failures", report.Failures, "actions_created", report.ActionsCreated)
	return report, runErr
}

func (a *Auditor) persists() bool {
	return !a.opts.Inspect && !a.opts.DryRun
}

// produce feeds object names to the workers. Explicit names go out as given;
// otherwise names are paged from the fact store in name order.
func (a *Auditor) produce(ctx context.Context, names []string, queue chan<- string) error {
	send := func(name string) error {
		select {
		case queue <- name:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(names) > 0 {
		for _, n := range names {
			if err := send(n); err != nil {
				return err
			}
		}
		return nil
	}

	repo := a.repos.Facts(a.db)
	after := a.opts.ResumeAfter
	for {
		var page []string
		err := retry.Do(ctx, a.opts.RetryLimit, func() error {
			var err error
			page, err = repo.ListObjectNames(ctx, after, a.opts.BatchSize)
			return err
		})
		if err != nil {
			return fmt.Errorf("list objects after %q: %w", after, err)
		}
		for _, n := range page {
			if err := send(n); err != nil {
				return err
			}
		}
		if len(page) < a.opts.BatchSize {
			return nil
		}
		after = page[len(page)-1]
	}
}

func (a *Auditor) load(ctx context.Context, db dbx.DBTX, name string) (*audit.PreservedObject, error) {
	repo := a.repos.Facts(db)

	var obj *audit.PreservedObject
	err := retry.Do(ctx, a.opts.RetryLimit, func() error {
		var err error
		obj, err = repo.LoadObject(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	return obj, err
}

// auditOn audits name using db for every query. A non-nil result may come
// with an ErrPlanPersistence error when the plan could not be written.
func (a *Auditor) auditOn(ctx context.Context, db session, runID uuid.UUID, name string) (*ObjectResult, error) {
	started := a.now()
	log := a.log.With("object", name)

	obj, err := a.load(ctx, db, name)
	if err != nil {
		return nil, err
	}
	oa, err := audit.Summarize(obj)
	if err != nil {
		return nil, err
	}

	res := &ObjectResult{Audit: oa}
	if !a.opts.Inspect {
		res.Actions = audit.Plan(oa)
	}

	var persistErr error
	switch {
	case a.opts.Inspect:
	case a.opts.DryRun:
		for _, act := range res.Actions {
			log.Info(ctx, "planned action",
				"action", string(act.Kind), "path", act.FilePath, "tier", act.TierName(),
				"key", act.Key, "new_reference", act.NewReference)
		}
	default:
		if persistErr = a.persist(ctx, db, runID, name, res); persistErr != nil {
			res.PersistFailures = len(res.Actions)
			log.Warn(ctx, "plan not persisted", "actions", len(res.Actions), "error", persistErr)
		}
	}

	a.metrics.ObjectAudited(string(oa.Summary.Health), a.now().Sub(started).Seconds())
	log.Info(ctx, "object audited",
		"health", string(oa.Summary.Health), "files", oa.Summary.TotalFiles,
		"actions", len(res.Actions), "emitted", res.Emitted, "superseded", res.Superseded)

	if persistErr != nil {
		return res, fmt.Errorf("%w: plan of %d actions: %w", common.ErrPlanPersistence, len(res.Actions), persistErr)
	}
	return res, nil
}

// persist writes the plan of one object in a single transaction: every
// action is upserted and open actions the plan no longer carries are
// superseded. A failed attempt rolls back and the whole write is retried.
func (a *Auditor) persist(ctx context.Context, db session, runID uuid.UUID, name string, res *ObjectResult) error {
	keep := make([]audit.NaturalKey, 0, len(res.Actions))
	for _, act := range res.Actions {
		keep = append(keep, act.NaturalKey())
	}

	var (
		emitted    []audit.Action
		superseded int
	)
	err := retry.Do(ctx, a.opts.RetryLimit, func() error {
		emitted = emitted[:0]
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := a.repos.Actions(tx)
			for _, act := range res.Actions {
				inserted, err := repo.Upsert(ctx, runID, act)
				if err != nil {
					return fmt.Errorf("%s %s %s: %w", act.Kind, act.FilePath, act.Key, err)
				}
				if inserted {
					emitted = append(emitted, act)
				}
			}
			var err error
			superseded, err = repo.Supersede(ctx, name, keep, a.now())
			return err
		})
	})
	if err != nil {
		return err
	}

	res.Emitted = len(emitted)
	res.Superseded = superseded
	for _, act := range emitted {
		a.metrics.ActionEmitted(string(act.Kind))
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	case errors.Is(err, audit.ErrNoFiles):
		return "no_files"
	case errors.Is(err, common.ErrPlanPersistence):
		return "plan_persistence"
	case errors.Is(err, common.ErrSourceUnavailable):
		return "source_unavailable"
	default:
		return "other"
	}
}
