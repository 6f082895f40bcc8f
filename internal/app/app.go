// Package app wires configuration, the fact store, the storage tiers and the
// metrics registry into the commands under cmd/.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/config"
	"github.com/dmitrijs2005/preservaudit/internal/logging"
	"github.com/dmitrijs2005/preservaudit/internal/metrics"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/preservaudit/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Store is everything the commands need from the storage tiers.
type Store interface {
	Walk(ctx context.Context, tier audit.Tier, fn func(storage.Object) error) error
	Metadata(ctx context.Context, tier audit.Tier, key string) (map[string]string, error)
	Exists(ctx context.Context, tier audit.Tier, key string) (bool, error)
	Copy(ctx context.Context, key string, from, to audit.Tier) error
	Delete(ctx context.Context, tier audit.Tier, key string) error
}

// seams for tests
var (
	openDB               = repomanager.OpenDB
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newStorage           = func(ctx context.Context, opts storage.Options) (Store, error) {
		return storage.New(ctx, opts)
	}
)

// logs go to stderr; stdout carries reports
var logOutput io.Writer = os.Stderr

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	out      io.Writer
}

// NewApp opens the fact store and brings its schema up to date.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(logOutput, c.LogLevel)

	db, err := openDB(ctx, c.DatabaseDSN, c.Workers)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := newRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return newApp(c, logger, db, repos), nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, repos repomanager.RepositoryManager) *App {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    repos,
		registry: registry,
		metrics:  metrics.New(registry),
		out:      os.Stdout,
	}
}

// Run calls command until it returns or the process is signalled. The
// metrics endpoint is served for the duration when configured. The database
// is closed on return.
func (app *App) Run(ctx context.Context, command func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)

	if app.config.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, app.config.MetricsAddr, app.registry, app.logger)
		})
	}

	g.Go(func() error {
		defer cancelFunc()
		return command(gctx)
	})

	return g.Wait()
}

func (app *App) close() {
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "closing database", "error", err)
	}
}

func (app *App) store(ctx context.Context) (Store, error) {
	return newStorage(ctx, storage.Options{
		Region:        app.config.S3Region,
		BaseEndpoint:  app.config.S3BaseEndpoint,
		AccessKey:     app.config.S3AccessKey,
		SecretKey:     app.config.S3SecretKey,
		PrimaryBucket: app.config.PrimaryBucket,
		ColdBucket:    app.config.ColdBucket,
	})
}
