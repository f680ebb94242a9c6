package sync

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/compare"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/remoteclient"
	"github.com/pocketsync/reconcile/internal/resolve"
)

// Push determines the local working set (an explicit id, or every local
// transaction in the window — this reconciler has no separate dirty bit,
// so an unmodified transaction simply resolves as identical and is
// skipped), fetches each one's current remote state, resolves with
// push-direction strategies, and writes accepted mutations only to the
// remote (spec.md §4.5, "Push").
func (o *Orchestrator) Push(ctx context.Context, scope PullScope) error {
	snap, err := o.loadStore()
	if err != nil {
		return err
	}

	locals := workingSet(snap.Transactions, scope)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	remotes, err := o.fetchRemoteByID(ctx, locals)
	if err != nil {
		return err
	}

	results, _ := compare.Compare(locals, remotes, resolve.Push)
	remoteByID := indexTransactions(remotes)

	var staged []pendingEntry
	interrupted := false

	for _, p := range results {
		if err := checkCancelled(ctx); err != nil {
			interrupted = true
			break
		}
		if p.Classification != compare.Differs {
			continue
		}
		remote := *remoteByID[p.ID]
		entries, err := o.applyRemoteMutations(ctx, remote, p.RemoteMutations)
		if err != nil {
			return err
		}
		staged = append(staged, entries...)
	}

	header := pendingEntry{kind: changelog.KindPush, body: changelog.FormatPush(scope.From, scope.To)}
	return o.commit(header, staged, interrupted)
}

// workingSet selects the local transactions push should consider: a
// single id if scoped, otherwise every local transaction whose date
// falls within [from, to] inclusive (spec.md §8, "Date window ... is
// inclusive on both ends").
func workingSet(all []model.Transaction, scope PullScope) []model.Transaction {
	if scope.ID != nil {
		for _, t := range all {
			if t.ID == *scope.ID {
				return []model.Transaction{t}
			}
		}
		return nil
	}
	var out []model.Transaction
	for _, t := range all {
		if withinWindow(t, scope) {
			out = append(out, t)
		}
	}
	return out
}

func withinWindow(t model.Transaction, scope PullScope) bool {
	if !scope.From.IsZero() && t.Date.Before(scope.From) {
		return false
	}
	if !scope.To.IsZero() && t.Date.After(scope.To) {
		return false
	}
	return true
}

// fetchRemoteByID fetches the current remote state of every local
// transaction, bounded by the orchestrator's concurrency ceiling
// (spec.md §5, "optional parallel PATCH dispatch during push" — the
// same ceiling governs this pre-fetch).
func (o *Orchestrator) fetchRemoteByID(ctx context.Context, locals []model.Transaction) ([]model.Transaction, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())

	slots := make([]*model.Transaction, len(locals))
	for i, t := range locals {
		i, id := i, t.ID
		g.Go(func() error {
			found, err := o.Remote.ListTransactions(gctx, remoteclient.ListOptions{ID: &id})
			if err != nil {
				return err
			}
			if len(found) > 0 {
				slots[i] = &found[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Transaction, 0, len(locals))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}
