package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/engagement-ledger/internal/bootstrap"
	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
)

type migrator interface {
	Migrate(ctx context.Context) error
	Pending(ctx context.Context) ([]string, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, req *model.ReconcileRequest) (*model.ReconcileResult, error)
}

type refundLister interface {
	ListRefundCandidates(ctx context.Context, actor auth.Actor, limit, offset int) ([]model.Payment, error)
}

type jobStatsReader interface {
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
}

type reaperPass interface {
	RunOnce(ctx context.Context) error
}

// runtime is the set of handles a command can use. Only the fields requested
// through connectOptions are populated.
type runtime struct {
	Migrations migrator
	Settlement reconciler
	Refunds    refundLister
	Jobs       jobStatsReader
	Reaper     reaperPass

	closers []func() error
}

// Close releases every handle in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type dbMigrator struct {
	db  *sql.DB
	app *adminApp
}

func (m dbMigrator) Migrate(ctx context.Context) error {
	return bootstrap.RunMigrations(ctx, m.db, m.app.logger)
}

func (m dbMigrator) Pending(ctx context.Context) ([]string, error) {
	return bootstrap.PendingMigrations(ctx, m.db)
}

// connectRuntime opens Postgres and, when asked, the ledger services. The admin
// CLI never needs Redis: the callback replay guard only protects the HTTP route.
func connectRuntime(ctx context.Context, app *adminApp, opts connectOptions) (*runtime, error) {
	cfg := app.cfg
	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: app.logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	rt := &runtime{
		Migrations: dbMigrator{db: db, app: app},
		closers:    []func() error{db.Close},
	}
	if !opts.Services {
		return rt, nil
	}

	// Admin commands never serve HTTP, so skip building an authenticator.
	cfg.Services = ""
	svc, err := bootstrap.NewServices(&bootstrap.ServiceDeps{Config: &cfg, DB: db, Logger: app.logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build services: %w", err), rt.Close())
	}
	rt.closers = append(rt.closers, func() error {
		svc.Jobs.StopAllListeners()
		svc.Observability.Close(app.logger)
		return nil
	})

	reaper, err := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
		DB:       db,
		Repo:     svc.JobRepo,
		Payments: svc.Settlement,
		Logger:   app.logger,
		Config:   cfg.Reaper,
		Metrics:  svc.Observability.MetricsSink,
	})
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	rt.Settlement = svc.Settlement
	rt.Refunds = svc.Settlement
	rt.Jobs = svc.Jobs
	rt.Reaper = reaper
	return rt, nil
}
