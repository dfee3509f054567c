// Package appbootstrap wires configuration, storage, services and the HTTP
// server into a running process.
package appbootstrap

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"incidentreg/api"
	"incidentreg/config"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

// Run serves until ctx is cancelled or a component fails.
func Run(ctx context.Context, cfg *config.AppConfig) error {
	logger := utils.NewLoggerWithOptions(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	rt, err := composeRuntime(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	srv := api.NewServer(cfg, rt.serverDeps, logger.With("component", "http"))

	for _, w := range rt.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}
	defer stopWorkers(cfg, rt.workers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}

func stopWorkers(cfg *config.AppConfig, workers []api.BackgroundWorker, logger *utils.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.StopWithContext(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Errorf("stop workers: %v", err)
	}
}
