// Command marketdata maintains the local OHLCV store: scheduled incremental
// updates, indicator rebuilds, catalog seeding, Parquet export and a read-only
// status API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndewijer/market-data-store/internal/config"
	"github.com/ndewijer/market-data-store/internal/logging"
	"github.com/ndewijer/market-data-store/internal/service"
)

const usage = `usage: marketdata <command> [flags]

commands:
  update              run one incremental update (--type T, --force)
  serve               serve the status API and run scheduled updates
  migrate             apply pending schema migrations
  import-assets FILE  create or update catalog rows from a YAML file
  sync-index FILE     replace the constituents of one index from a YAML file
  rebuild-indicators  recompute cached indicators (--version V, --symbol S)
  export              write Parquet snapshots (--symbol S)
  version             print the application version

update exits 0 when the run completed, was skipped by the staleness gate, found
another run in progress, or partially failed within FAILURE_TOLERANCE (see
update_log.status). It exits 1 when the run failed.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return service.ExitFailed
	}
	if args[0] == "version" {
		fmt.Println(service.Version)
		return service.ExitOK
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return service.ExitFailed
	}
	logger := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return service.ExitFailed
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return service.ExitFailed
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	return cmd(ctx, a, args[1:])
}
