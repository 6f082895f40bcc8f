package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/auditor"
	"github.com/dmitrijs2005/preservaudit/internal/config"
	"github.com/dmitrijs2005/preservaudit/internal/filex"
)

// Audit runs the auditor over names, or over every object when names is
// empty. In audit mode the plan is written to the plan sink and the run
// report printed; the report modes only read.
func (app *App) Audit(ctx context.Context, names []string) error {
	opts := auditor.Options{
		Workers:     app.config.Workers,
		BatchSize:   app.config.BatchSize,
		ResumeAfter: app.config.ResumeAfter,
		RetryLimit:  app.config.RetryMaxElapsed,
		DryRun:      app.config.DryRun,
	}

	var (
		visit  auditor.Visitor
		finish func(*auditor.RunReport) error
	)

	switch app.config.Mode {
	case config.ModeAudit:
		finish = app.printRunReport
	case config.ModeJSON:
		opts.Inspect = true
		dw := &documentWriter{out: app.out}
		if app.config.OutputDir != "" {
			dir, err := filex.EnsureDir(app.config.OutputDir)
			if err != nil {
				return err
			}
			dw.dir = dir
		}
		visit = dw.visit
	case config.ModeMissing, config.ModeDuplicates:
		opts.Inspect = true
		pc := newProblemCollector(problemKind(app.config.Mode), app.config.ReferencePrefix)
		visit = pc.visit
		finish = func(*auditor.RunReport) error { return pc.write(app.out) }
	default:
		return fmt.Errorf("unknown mode %q", app.config.Mode)
	}

	a := auditor.New(app.db, app.repos, app.logger, app.metrics, opts)

	report, err := a.Run(ctx, names, visit)
	if err != nil {
		return err
	}

	if finish != nil {
		if err := finish(report); err != nil {
			return err
		}
	}

	if report.Failures > 0 {
		return fmt.Errorf("%d objects failed: %w", report.Failures, report.Err())
	}
	return nil
}

func (app *App) printRunReport(report *auditor.RunReport) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func problemKind(mode string) audit.ProblemKind {
	if mode == config.ModeDuplicates {
		return audit.ProblemDuplicates
	}
	return audit.ProblemMissing
}

// documentWriter emits one JSON document per object, to out or to one file
// per object under dir.
type documentWriter struct {
	dir string
	out io.Writer
}

func (w *documentWriter) visit(_ context.Context, res *auditor.ObjectResult) error {
	if w.dir == "" {
		return audit.WriteDocument(w.out, res.Audit)
	}
	path := filepath.Join(w.dir, filex.SafeName(res.Audit.Object.Name)+".json")
	return filex.WriteAtomic(path, func(out io.Writer) error {
		return audit.WriteDocument(out, res.Audit)
	})
}

// problemCollector gathers problem rows so the listing comes out in object
// name order whatever order the workers finish in.
type problemCollector struct {
	kind   audit.ProblemKind
	prefix string
	rows   map[string][]audit.ProblemRow
}

func newProblemCollector(kind audit.ProblemKind, prefix string) *problemCollector {
	return &problemCollector{kind: kind, prefix: prefix, rows: make(map[string][]audit.ProblemRow)}
}

func (c *problemCollector) visit(_ context.Context, res *auditor.ObjectResult) error {
	if rows := audit.ProblemRows(res.Audit, c.kind, c.prefix); len(rows) > 0 {
		c.rows[res.Audit.Object.Name] = rows
	}
	return nil
}

func (c *problemCollector) write(w io.Writer) error {
	names := make([]string, 0, len(c.rows))
	for name := range c.rows {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []audit.ProblemRow
	for _, name := range names {
		all = append(all, c.rows[name]...)
	}
	return audit.WriteProblemReport(w, c.kind, all)
}
