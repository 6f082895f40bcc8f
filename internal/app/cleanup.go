package app

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/preservaudit/internal/executor"
)

// Cleanup carries out the pending remediation actions.
func (app *App) Cleanup(ctx context.Context) error {
	store, err := app.store(ctx)
	if err != nil {
		return fmt.Errorf("storage init error: %w", err)
	}

	e := executor.New(app.db, app.repos, store, app.logger, app.metrics, executor.Options{
		BatchSize:  app.config.BatchSize,
		RetryLimit: app.config.RetryMaxElapsed,
		DryRun:     app.config.DryRun,
	})

	report, err := e.Run(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for kind, n := range report.Failed {
		failed += n
		app.logger.Warn(ctx, "actions left pending", "action", string(kind), "count", n)
	}
	app.logger.Info(ctx, "cleanup finished", "done", report.Done, "failed", report.Failed, "dry_run", report.DryRun)

	if failed > 0 {
		return fmt.Errorf("%d actions failed and remain pending", failed)
	}
	return nil
}
