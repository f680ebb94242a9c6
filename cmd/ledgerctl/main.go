// Command ledgerctl reconciles a local plain-text ledger archive against
// the remote ledger service: clone, pull, push, diff, rule management,
// and transfer detection (spec.md's CLI surface, §6).
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(subcommands.HelpCommand(), "")
	commander.Register(subcommands.FlagsCommand(), "")
	commander.Register(subcommands.CommandsCommand(), "")
	Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
