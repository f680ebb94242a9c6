package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/pocketsync/reconcile/internal/resolve"
	"github.com/pocketsync/reconcile/internal/sync"
	"github.com/pocketsync/reconcile/internal/synerrors"
)

type diffCmd struct {
	windowFlags
	direction string
	mode      string
}

func (*diffCmd) Name() string     { return "diff" }
func (*diffCmd) Synopsis() string { return "preview reconciliation without writing anything" }
func (*diffCmd) Usage() string {
	return `diff [-direction pull|push] [-mode summary|ids|changelog|diff] [window flags] [-archive <path>]

  Runs the same fetch-compare-resolve pipeline as pull/push but never
  applies a mutation; prints the result in the requested mode.
`
}

func (c *diffCmd) SetFlags(f *flag.FlagSet) {
	c.windowFlags.SetFlags(f)
	f.StringVar(&c.direction, "direction", "pull", "Resolution direction to preview: pull or push.")
	f.StringVar(&c.mode, "mode", "summary", "Output mode: summary, ids, changelog, or diff.")
}

func (c *diffCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	window, id, err := c.resolve()
	if err != nil {
		return exitStatus(logger, err)
	}

	var dir resolve.Direction
	switch c.direction {
	case "pull":
		dir = resolve.Pull
	case "push":
		dir = resolve.Push
	default:
		return exitStatus(logger, &synerrors.UserInputError{Msg: fmt.Sprintf("unknown -direction %q, want pull or push", c.direction)})
	}

	orch, err := newOrchestrator()
	if err != nil {
		return exitStatus(logger, err)
	}
	defer closeChangelog(logger, orch.Changelog)

	report, err := orch.Diff(ctx, sync.PullScope{DateWindow: window, ID: id}, dir)
	if err != nil {
		return exitStatus(logger, err)
	}

	out, err := report.Render(sync.PresentationMode(c.mode))
	if err != nil {
		return exitStatus(logger, &synerrors.UserInputError{Msg: err.Error()})
	}
	fmt.Println(out)
	return subcommands.ExitSuccess
}
