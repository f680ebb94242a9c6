package sync

import (
	"context"
	"time"

	"github.com/pocketsync/reconcile/internal/archive"
	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
)

// Clone reads the remote in window, materializes an archive from
// scratch, and derives each account's opening date from the earliest
// observed transaction (spec.md §4.5, "Clone").
func (o *Orchestrator) Clone(ctx context.Context, window config.DateWindow) error {
	accounts, categories, err := o.fetchAccountsAndCategories(ctx)
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	txns, err := o.Remote.ListTransactions(ctx, remoteclientListOptions(window, nil, time.Time{}))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	earliest := earliestDateByAccount(txns)
	for i := range accounts {
		accounts[i].OpeningDate = accounts[i].ReconcileOpeningDate(earliest[accounts[i].ID])
	}

	snap := &archive.Snapshot{
		Accounts:     accounts,
		Categories:   categories,
		Transactions: sortByID(txns),
	}

	if err := o.saveStore(snap); err != nil {
		return err
	}

	header := pendingEntry{kind: changelog.KindClone, body: changelog.FormatClone(window.From, window.To)}
	return o.commit(header, nil, false)
}
