// Package sync drives the clone/pull/push/diff workflows: it sequences
// remote fetch, local load, comparison, resolution, and mutation
// application, and owns the ordering and logging guarantees spec.md §4.5
// and §5 assign to the orchestrator (as opposed to the pure resolver and
// comparator it calls into).
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pocketsync/reconcile/internal/archive"
	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/remoteclient"
	"github.com/pocketsync/reconcile/internal/synerrors"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

// defaultConcurrency is the parallel-fetch/patch ceiling spec.md §5
// assigns a default of 4.
const defaultConcurrency = 4

// Orchestrator wires the remote client, local store, and changelog sink
// together and runs the four top-level workflows. It holds no state
// across calls; every field is a dependency, not a cache.
type Orchestrator struct {
	Remote      remoteclient.Client
	Store       archive.Store
	Changelog   changelog.Sink
	Concurrency int
	DryRun      bool

	// Printf receives the human-readable lines a dry-run or diff workflow
	// would otherwise only imply through store/changelog writes. Nil
	// discards them.
	Printf func(format string, args ...any)
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency <= 0 {
		return defaultConcurrency
	}
	return o.Concurrency
}

func (o *Orchestrator) printf(format string, args ...any) {
	if o.Printf != nil {
		o.Printf(format, args...)
	}
}

// pendingEntry is a changelog line staged in memory until the workflow
// knows whether it may commit — the header must precede its UPDATE/APPLY
// entries (spec.md §5, "Ordering guarantees") but the PULL/PUSH header
// itself is only written once every staged mutation has succeeded
// (spec.md §4.5).
type pendingEntry struct {
	kind changelog.Kind
	body string
}

// commit writes header followed by entries to the sink, in that order,
// unless the orchestrator is in dry-run mode or there is nothing to
// commit under the interrupted-with-no-mutations rule (spec.md §5,
// "Cancellation").
func (o *Orchestrator) commit(header pendingEntry, entries []pendingEntry, interrupted bool) error {
	if o.DryRun {
		o.printf("[dry-run] %s %s", header.kind, header.body)
		for _, e := range entries {
			o.printf("[dry-run] %s %s", e.kind, e.body)
		}
		return nil
	}
	if interrupted && len(entries) == 0 {
		return nil
	}
	if err := o.Changelog.Append(header.kind, header.body); err != nil {
		return &synerrors.LocalError{Msg: "appending changelog header", Err: err}
	}
	for _, e := range entries {
		if err := o.Changelog.Append(e.kind, e.body); err != nil {
			return &synerrors.LocalError{Msg: "appending changelog entry", Err: err}
		}
	}
	return nil
}

// fetchAccountsAndCategories concurrently fetches accounts and categories,
// bounded by the orchestrator's concurrency ceiling (spec.md §5,
// "Scheduling model").
func (o *Orchestrator) fetchAccountsAndCategories(ctx context.Context) ([]model.Account, []model.Category, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())

	var accounts []model.Account
	var categories []model.Category
	g.Go(func() error {
		a, err := o.Remote.ListAccounts(gctx)
		if err != nil {
			return err
		}
		accounts = a
		return nil
	})
	g.Go(func() error {
		c, err := o.Remote.ListCategories(gctx)
		if err != nil {
			return err
		}
		categories = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return accounts, categories, nil
}

// loadStore wraps Store.Load with the LocalError kind spec.md §7 assigns
// archive parse failures.
func (o *Orchestrator) loadStore() (*archive.Snapshot, error) {
	snap, err := o.Store.Load()
	if err != nil {
		return nil, &synerrors.LocalError{Msg: "loading local archive", Err: err}
	}
	return snap, nil
}

// saveStore wraps Store.Save the same way, and is a no-op under dry-run.
func (o *Orchestrator) saveStore(snap *archive.Snapshot) error {
	if o.DryRun {
		return nil
	}
	if err := o.Store.Save(snap); err != nil {
		return &synerrors.LocalError{Msg: "saving local archive", Err: err}
	}
	return nil
}

func indexTransactions(txns []model.Transaction) map[model.TxnID]*model.Transaction {
	m := make(map[model.TxnID]*model.Transaction, len(txns))
	for i := range txns {
		m[txns[i].ID] = &txns[i]
	}
	return m
}

// earliestDateByAccount finds, for every account_id appearing in txns,
// the earliest transaction date observed — the input to
// Account.ReconcileOpeningDate (spec.md §3, §4.5 "Clone").
func earliestDateByAccount(txns []model.Transaction) map[int64]caldate.Date {
	out := map[int64]caldate.Date{}
	for _, t := range txns {
		cur, ok := out[t.AccountID]
		if !ok || t.Date.Before(cur) {
			out[t.AccountID] = t.Date
		}
	}
	return out
}

// sortByID returns a copy of txns ordered ascending by id, the
// processing order spec.md §4.5 mandates.
func sortByID(txns []model.Transaction) []model.Transaction {
	out := append([]model.Transaction(nil), txns...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// remoteclientListOptions builds a ListOptions from a date window and
// optional id/since constraints. An explicit id takes precedence over the
// date window (spec.md §6, "--id <N> targets a single transaction").
func remoteclientListOptions(window config.DateWindow, id *model.TxnID, since time.Time) remoteclient.ListOptions {
	opts := remoteclient.ListOptions{From: window.From, To: window.To, UpdatedSince: since}
	if id != nil {
		opts.ID = id
	}
	return opts
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &synerrors.InterruptError{Msg: fmt.Sprintf("cancelled: %v", err)}
	}
	return nil
}
