package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/pocketsync/reconcile/internal/sync"
)

type pullCmd struct{ windowFlags }

func (*pullCmd) Name() string     { return "pull" }
func (*pullCmd) Synopsis() string { return "reconcile remote changes into the local archive" }
func (*pullCmd) Usage() string {
	return `pull [-from <date> -to <date> | -this-month | ... | -id <n>] [-archive <path>] [-dry-run]

  Fetches remote transactions updated since the last pull watermark
  and inside the given window, if any (or the one transaction named by
  -id), resolves each against the matching local
  transaction, and applies accepted mutations to the local archive and
  the remote ledger.
`
}

func (c *pullCmd) SetFlags(f *flag.FlagSet) { c.windowFlags.SetFlags(f) }

func (c *pullCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	window, id, err := c.resolve()
	if err != nil {
		return exitStatus(logger, err)
	}

	orch, err := newOrchestrator()
	if err != nil {
		return exitStatus(logger, err)
	}
	defer closeChangelog(logger, orch.Changelog)

	scope := sync.PullScope{DateWindow: window, ID: id}
	return exitStatus(logger, orch.Pull(ctx, scope))
}
