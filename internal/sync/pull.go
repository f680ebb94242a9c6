package sync

import (
	"context"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/compare"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/resolve"
	"github.com/pocketsync/reconcile/internal/synerrors"
)

// PullScope bundles the resolved date window with an optional
// single-transaction scope (--id targets one transaction on pull/push/
// diff, spec.md §6).
type PullScope struct {
	config.DateWindow
	ID *model.TxnID
}

// Pull fetches remote transactions changed since the last CLONE/PULL
// watermark, resolves each pair with pull-direction strategies, applies
// local mutations to the store, writes back local-wins-writeback fields
// to the remote, and advances the watermark only once every mutation has
// succeeded (spec.md §4.5, "Pull").
func (o *Orchestrator) Pull(ctx context.Context, scope PullScope) error {
	entries, err := o.Changelog.Entries()
	if err != nil {
		return &synerrors.LocalError{Msg: "reading changelog for watermark", Err: err}
	}
	watermark, _ := changelog.Watermark(entries)

	snap, err := o.loadStore()
	if err != nil {
		return err
	}

	remotes, err := o.Remote.ListTransactions(ctx, remoteclientListOptions(scope.DateWindow, scope.ID, watermark))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	localByID := indexTransactions(snap.Transactions)
	remoteByID := indexTransactions(remotes)
	results, _ := compare.Compare(snap.Transactions, remotes, resolve.Pull)

	var staged []pendingEntry
	var created []model.Transaction
	interrupted := false

	for _, p := range results {
		if err := checkCancelled(ctx); err != nil {
			interrupted = true
			break
		}
		switch p.Classification {
		case compare.OnlyRemote:
			materialized, createdEntries := materializeOnlyRemote(*remoteByID[p.ID])
			created = append(created, materialized)
			staged = append(staged, createdEntries...)

		case compare.Differs:
			local := localByID[p.ID]
			remote := *remoteByID[p.ID]
			staged = append(staged, applyLocalMutations(local, p.LocalMutations)...)
			remoteEntries, err := o.applyRemoteMutations(ctx, remote, p.RemoteMutations)
			if err != nil {
				return err
			}
			staged = append(staged, remoteEntries...)
		}
	}

	snap.Transactions = sortByID(append(snap.Transactions, created...))
	if err := o.saveStore(snap); err != nil {
		return err
	}

	header := pendingEntry{
		kind: changelog.KindPull,
		body: changelog.FormatPull(watermark, scope.From, scope.To),
	}
	return o.commit(header, staged, interrupted)
}
