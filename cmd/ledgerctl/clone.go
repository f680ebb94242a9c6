package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
)

type cloneCmd struct{ windowFlags }

func (*cloneCmd) Name() string     { return "clone" }
func (*cloneCmd) Synopsis() string { return "materialize a fresh local archive from the remote ledger" }
func (*cloneCmd) Usage() string {
	return `clone [-from <date> -to <date> | -this-month | -last-month | -this-year | -last-year] [-archive <path>]

  Fetches every account, category, and transaction in the window and
  writes a brand-new local archive, deriving each account's opening
  date from its earliest transaction in the window.
`
}

func (c *cloneCmd) SetFlags(f *flag.FlagSet) { c.windowFlags.SetFlags(f) }

func (c *cloneCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	window, _, err := c.resolve()
	if err != nil {
		return exitStatus(logger, err)
	}

	orch, err := newOrchestrator()
	if err != nil {
		return exitStatus(logger, err)
	}
	defer closeChangelog(logger, orch.Changelog)

	return exitStatus(logger, orch.Clone(ctx, window))
}
