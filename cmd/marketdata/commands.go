package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ndewijer/market-data-store/internal/api"
	"github.com/ndewijer/market-data-store/internal/database"
	"github.com/ndewijer/market-data-store/internal/indicator"
	"github.com/ndewijer/market-data-store/internal/scheduler"
	"github.com/ndewijer/market-data-store/internal/service"
	"github.com/ndewijer/market-data-store/internal/validation"
)

type command func(ctx context.Context, a *app, args []string) int

var commands = map[string]command{
	"update":             updateCmd,
	"serve":              serveCmd,
	"migrate":            migrateCmd,
	"import-assets":      importAssetsCmd,
	"sync-index":         syncIndexCmd,
	"rebuild-indicators": rebuildIndicatorsCmd,
	"export":             exportCmd,
}

// updateCmd runs the orchestrator once. The exit code is 0 whenever the run
// completed, was skipped, found another run in progress or partially failed
// within the failure tolerance, and 1 otherwise.
func updateCmd(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	updateType := fs.String("type", "daily", "update_type recorded in update_log")
	force := fs.Bool("force", false, "bypass the staleness gate")
	if err := fs.Parse(args); err != nil {
		return service.ExitFailed
	}

	return a.update.RunUpdate(ctx, *updateType, service.RunOptions{Force: *force})
}

// serveCmd serves the read-only API and triggers updates on UPDATE_CRON until
// SIGINT or SIGTERM.
func serveCmd(ctx context.Context, a *app, _ []string) int {
	sched := scheduler.New(ctx, a.update, a.logger)
	if _, err := sched.Register(a.cfg.Update.Cron); err != nil {
		a.logger.Error("scheduler setup failed", "error", err)
		return service.ExitFailed
	}
	sched.Start()
	defer sched.Stop()

	// Create HTTP server
	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      api.NewRouter(a.services(), a.cfg, a.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", a.cfg.Server.Addr, "update_cron", a.cfg.Update.Cron)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server failed", "error", err)
			return service.ExitFailed
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", "error", err)
		return service.ExitFailed
	}
	a.logger.Info("server exited")
	return service.ExitOK
}

// migrateCmd reports the schema version. newApp has already applied pending migrations.
func migrateCmd(ctx context.Context, a *app, _ []string) int {
	version, pending, err := database.SchemaStatus(ctx, a.db)
	if err != nil {
		a.logger.Error("migration status failed", "error", err)
		return service.ExitFailed
	}
	fmt.Printf("schema version %d (pending: %t)\n", version, pending)
	return service.ExitOK
}

func importAssetsCmd(ctx context.Context, a *app, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: marketdata import-assets FILE")
		return service.ExitFailed
	}
	f, err := os.Open(args[0])
	if err != nil {
		a.logger.Error("failed to open asset file", "error", err)
		return service.ExitFailed
	}
	defer f.Close()

	assets, err := a.catalog.ImportAssets(ctx, f)
	if err != nil {
		a.logger.Error("asset import failed", "file", args[0], "error", err)
		return service.ExitFailed
	}
	a.logger.Info("assets imported", "file", args[0], "count", len(assets))
	return service.ExitOK
}

// syncIndexCmd replaces the stored constituents of one index with the list in FILE.
func syncIndexCmd(ctx context.Context, a *app, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: marketdata sync-index FILE")
		return service.ExitFailed
	}
	f, err := os.Open(args[0])
	if err != nil {
		a.logger.Error("failed to open constituent file", "error", err)
		return service.ExitFailed
	}
	defer f.Close()

	result, err := a.catalog.SyncIndexFile(ctx, f)
	if err != nil {
		a.logger.Error("index sync failed", "file", args[0], "error", err)
		return service.ExitFailed
	}
	a.logger.Info("index synced",
		"index", result.IndexName,
		"added", len(result.Added),
		"removed", len(result.Removed),
		"unchanged", result.Unchanged,
		"assets_created", len(result.AssetsCreated),
		"assets_deactivated", len(result.Deactivated),
	)
	return service.ExitOK
}

// rebuildIndicatorsCmd recomputes the full history of one version, for one symbol
// or every catalog asset. Rows of other versions are left alone.
func rebuildIndicatorsCmd(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("rebuild-indicators", flag.ContinueOnError)
	version := fs.String("version", a.cfg.Indicator.Versions[0], "calculation version")
	symbol := fs.String("symbol", "", "rebuild only this symbol")
	if err := fs.Parse(args); err != nil {
		return service.ExitFailed
	}
	if _, err := indicator.Lookup(*version); err != nil {
		a.logger.Error("cannot rebuild", "error", err, "known", indicator.Versions())
		return service.ExitFailed
	}

	symbols, err := targetSymbols(ctx, a, *symbol)
	if err != nil {
		a.logger.Error("cannot rebuild", "error", err)
		return service.ExitFailed
	}

	total := 0
	for _, s := range symbols {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("rebuild interrupted", "error", err)
			return service.ExitFailed
		}
		n, err := a.indicator.Rebuild(ctx, s, *version)
		if err != nil {
			a.logger.Error("rebuild failed", "symbol", s, "version", *version, "error", err)
			return service.ExitFailed
		}
		a.logger.Info("indicators rebuilt", "symbol", s, "version", *version, "rows", n)
		total += n
	}
	a.logger.Info("rebuild finished", "version", *version, "symbols", len(symbols), "rows", total)
	return service.ExitOK
}

func exportCmd(ctx context.Context, a *app, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "export only this symbol")
	if err := fs.Parse(args); err != nil {
		return service.ExitFailed
	}

	exp := a.exporter()
	if *symbol != "" {
		s := validation.NormalizeSymbol(*symbol)
		if _, err := exp.ExportSymbol(ctx, s); err != nil {
			a.logger.Error("export failed", "symbol", s, "error", err)
			return service.ExitFailed
		}
		return service.ExitOK
	}

	counts, err := exp.ExportAll(ctx)
	if err != nil {
		a.logger.Error("export failed", "error", err)
		return service.ExitFailed
	}
	a.logger.Info("export finished", "dir", a.cfg.Export.Dir, "symbols", len(counts))
	return service.ExitOK
}

// targetSymbols returns symbol when set, otherwise every catalog symbol.
func targetSymbols(ctx context.Context, a *app, symbol string) ([]string, error) {
	if symbol != "" {
		s := validation.NormalizeSymbol(symbol)
		if _, err := a.catalog.GetAsset(ctx, s); err != nil {
			return nil, fmt.Errorf("%s: %w", s, err)
		}
		return []string{s}, nil
	}
	assets, err := a.catalog.GetAssets(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(assets))
	for i, asset := range assets {
		symbols[i] = asset.Symbol
	}
	return symbols, nil
}
