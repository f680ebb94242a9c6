package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/pocketsync/reconcile/internal/sync"
)

type pushCmd struct{ windowFlags }

func (*pushCmd) Name() string     { return "push" }
func (*pushCmd) Synopsis() string { return "reconcile local changes onto the remote ledger" }
func (*pushCmd) Usage() string {
	return `push [-from <date> -to <date> | -this-month | ... | -id <n>] [-archive <path>] [-dry-run]

  Resolves every local transaction in the working set against its
  current remote counterpart with push-direction strategies and writes
  accepted mutations only to the remote; the local archive is never
  written by push.
`
}

func (c *pushCmd) SetFlags(f *flag.FlagSet) { c.windowFlags.SetFlags(f) }

func (c *pushCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	return exitStatus(logger, orch.Push(ctx, scope))
}
