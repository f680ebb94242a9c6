package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/pocketsync/reconcile/internal/archive"
	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/remoteclient"
	"github.com/pocketsync/reconcile/internal/rlog"
	"github.com/pocketsync/reconcile/internal/sync"
	"github.com/pocketsync/reconcile/internal/synerrors"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// Register wires every command into c, grouped the way spec.md §6 lists
// them: the reconciliation workflows, then classification and transfer
// detection.
func Register(c *subcommands.Commander) {
	c.Register(&cloneCmd{}, "reconcile")
	c.Register(&pullCmd{}, "reconcile")
	c.Register(&pushCmd{}, "reconcile")
	c.Register(&diffCmd{}, "reconcile")
	c.Register(&ruleCmd{}, "classify")
	c.Register(&detectTransfersCmd{}, "classify")
}

// Global flags shared by every command, following the teacher's
// package-level flag.Var convention (cmd/app.go's securitiesPath).
var (
	archivePath = flag.String("archive", "", "Path to the local ledger archive (file or directory). Defaults to POCKETSYNC_OUTPUT_DIR or the current directory.")
	apiBaseURL  = flag.String("base-url", "", "Override the remote API base URL.")
	quiet       = flag.Bool("quiet", false, "Suppress all but warnings and errors.")
	verbose     = flag.Bool("verbose", false, "Enable debug logging.")
	dryRun      = flag.Bool("dry-run", false, "Print intended changes without writing to the archive or changelog.")
	concurrency = flag.Int("concurrency", 0, "Bound on parallel remote requests. 0 uses the default.")
)

func newLogger() zerolog.Logger { return rlog.New(*quiet, *verbose) }

// openStore resolves the local archive from -archive or the
// POCKETSYNC_OUTPUT_DIR environment override (spec.md §6).
func openStore(env config.Env) (archive.Store, error) {
	return archive.Locate(*archivePath, env.OutputDir)
}

// openChangelog opens the archive's sibling changelog for reading and
// appending, also under -dry-run. It always returns the real
// FileSink — Pull needs its Entries() to compute the true incremental
// watermark even under -dry-run — and relies on Orchestrator.commit's
// own DryRun guard to suppress writes.
func openChangelog(store archive.Store) (changelog.Sink, error) {
	sink, err := changelog.OpenFileSink(store.ChangelogPath())
	if err != nil {
		return nil, &synerrors.LocalError{Msg: "opening changelog", Err: err}
	}
	return sink, nil
}

// newOrchestrator assembles a sync.Orchestrator from the process
// environment and global flags. Every reconciliation command shares
// this construction path.
func newOrchestrator() (*sync.Orchestrator, error) {
	env := config.LoadEnv()
	apiKey, err := env.RequireAPIKey()
	if err != nil {
		return nil, err
	}

	base := *apiBaseURL
	if base == "" {
		base = env.BaseURL
	}
	var opts []remoteclient.Option
	if base != "" {
		opts = append(opts, remoteclient.WithBaseURL(base))
	}
	client := remoteclient.NewHTTPClient(apiKey, opts...)

	store, err := openStore(env)
	if err != nil {
		return nil, err
	}
	sink, err := openChangelog(store)
	if err != nil {
		return nil, err
	}

	return &sync.Orchestrator{
		Remote:      client,
		Store:       store,
		Changelog:   sink,
		Concurrency: *concurrency,
		DryRun:      *dryRun,
		Printf: func(format string, args ...any) {
			fmt.Fprintf(os.Stdout, format+"\n", args...)
		},
	}, nil
}

// closeChangelog closes a changelog sink opened by newOrchestrator,
// logging (not failing) on error since the workflow it served has
// already returned its own result.
func closeChangelog(logger zerolog.Logger, sink changelog.Sink) {
	if err := sink.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing changelog")
	}
}

// exitStatus maps a workflow error to the process exit code spec.md §7
// assigns it, logging it first unless it is nil.
func exitStatus(logger zerolog.Logger, err error) subcommands.ExitStatus {
	if err == nil {
		return subcommands.ExitSuccess
	}
	logger.Error().Err(err).Msg("command failed")
	return subcommands.ExitStatus(synerrors.ExitCode(err))
}

// windowFlags is embedded by every command that accepts the date-window
// group plus an optional single-id override (spec.md §6).
type windowFlags struct {
	from, to                                 string
	thisMonth, lastMonth, thisYear, lastYear bool
	id                                       int64
}

func (w *windowFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.from, "from", "", "Start date (YYYY-MM-DD), inclusive.")
	f.StringVar(&w.to, "to", "", "End date (YYYY-MM-DD), inclusive.")
	f.BoolVar(&w.thisMonth, "this-month", false, "Use the current calendar month as the window.")
	f.BoolVar(&w.lastMonth, "last-month", false, "Use the previous calendar month as the window.")
	f.BoolVar(&w.thisYear, "this-year", false, "Use the current calendar year as the window.")
	f.BoolVar(&w.lastYear, "last-year", false, "Use the previous calendar year as the window.")
	f.Int64Var(&w.id, "id", 0, "Target a single transaction id instead of a date window.")
}

// resolve validates the window/id flags and returns a scope usable by
// every workflow. An explicit id and a date window are mutually
// exclusive: config.ResolveWindow rejects flag conflicts within the
// window group itself, and a non-zero id makes the resolved window
// advisory only (workflows ignore it once id is set).
func (w *windowFlags) resolve() (config.DateWindow, *model.TxnID, error) {
	window, err := config.ResolveWindow(w.from, w.to, config.ConvenienceFlags{
		ThisMonth: w.thisMonth,
		LastMonth: w.lastMonth,
		ThisYear:  w.thisYear,
		LastYear:  w.lastYear,
	}, caldate.Today())
	if err != nil {
		return config.DateWindow{}, nil, err
	}
	var id *model.TxnID
	if w.id != 0 {
		v := model.TxnID(w.id)
		id = &v
	}
	return window, id, nil
}

func indexAccountsByID(accounts []model.Account) map[int64]model.Account {
	m := make(map[int64]model.Account, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}
	return m
}
