package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/synerrors"
	"github.com/pocketsync/reconcile/internal/transfer"
)

type detectTransfersCmd struct {
	apply              bool
	transferCategoryID int64
	patternThreshold   int
}

func (*detectTransfersCmd) Name() string { return "detect-transfers" }
func (*detectTransfersCmd) Synopsis() string {
	return "find and optionally annotate internal transfer pairs"
}
func (*detectTransfersCmd) Usage() string {
	return `detect-transfers [-apply -transfer-category-id <n>] [-pattern-threshold <n>] [-archive <path>]

  Scans the local archive for two-sided internal money movements. With
  -apply, confirmed pairs are annotated is_transfer/paired_id/category
  and suspected pairs get paired_id/suspect_reason, written to the
  local archive and changelog only (spec.md §4.4).
`
}

func (c *detectTransfersCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.apply, "apply", false, "Write detected pairs back to the local archive instead of only reporting them.")
	f.Int64Var(&c.transferCategoryID, "transfer-category-id", 0, "Category id to assign to confirmed transfer pairs. Required with -apply.")
	f.IntVar(&c.patternThreshold, "pattern-threshold", 1, "Minimum occurrence count for a suspected-pair reason to be reported as a pattern.")
}

func (c *detectTransfersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := newLogger()
	env := config.LoadEnv()

	store, err := openStore(env)
	if err != nil {
		return exitStatus(logger, err)
	}
	snap, err := store.Load()
	if err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "loading local archive", Err: err})
	}

	accounts := indexAccountsByID(snap.Accounts)
	result := transfer.Detect(snap.Transactions, accounts, transfer.DefaultConfig())

	var confirmed, suspected int
	for _, p := range result.Pairs {
		if p.Kind == transfer.Confirmed {
			confirmed++
		} else {
			suspected++
		}
	}
	for reason, n := range result.Patterns(c.patternThreshold) {
		logger.Warn().Str("reason", reason).Int("count", n).Msg("suspected-transfer pattern")
	}
	fmt.Printf("confirmed=%d suspected=%d degenerate-buckets=%d\n", confirmed, suspected, len(result.Degenerate))

	if !c.apply {
		return subcommands.ExitSuccess
	}
	if c.transferCategoryID == 0 {
		return exitStatus(logger, &synerrors.UserInputError{Msg: "-apply requires -transfer-category-id"})
	}

	applier := transfer.Applier{TransferCategoryID: c.transferCategoryID}
	touched := applier.Apply(snap.Transactions, result)
	if len(touched) == 0 {
		return subcommands.ExitSuccess
	}

	byID := make(map[model.TxnID]*model.Transaction, len(snap.Transactions))
	for i := range snap.Transactions {
		byID[snap.Transactions[i].ID] = &snap.Transactions[i]
	}

	if *dryRun {
		for _, id := range touched {
			fmt.Printf("[dry-run] would annotate transaction %d\n", int64(id))
		}
		return subcommands.ExitSuccess
	}

	if err := store.Save(snap); err != nil {
		return exitStatus(logger, &synerrors.LocalError{Msg: "saving local archive", Err: err})
	}
	sink, err := openChangelog(store)
	if err != nil {
		return exitStatus(logger, err)
	}
	defer closeChangelog(logger, sink)

	for _, id := range touched {
		t := byID[id]
		field := "is_transfer"
		value := "true"
		if t.SuspectReason != nil && !t.IsTransfer {
			field, value = "suspect_reason", *t.SuspectReason
		}
		if err := sink.Append(changelog.KindApply, changelog.FormatApply(id, 0, field, "", value)); err != nil {
			return exitStatus(logger, &synerrors.LocalError{Msg: "appending changelog", Err: err})
		}
	}
	return subcommands.ExitSuccess
}
