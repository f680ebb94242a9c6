package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketsync/reconcile/internal/archive"
	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/remoteclient"
)

// fakeClient is an in-memory stand-in for the remote ledger service,
// used the way the archive tests stand in a Snapshot: enough behavior to
// exercise the orchestrator without a network.
type fakeClient struct {
	accounts     []model.Account
	categories   []model.Category
	transactions []model.Transaction
	patched      map[model.TxnID]remoteclient.Patch
}

func (f *fakeClient) ListAccounts(context.Context) ([]model.Account, error)     { return f.accounts, nil }
func (f *fakeClient) ListCategories(context.Context) ([]model.Category, error) { return f.categories, nil }

func (f *fakeClient) ListTransactions(_ context.Context, opts remoteclient.ListOptions) ([]model.Transaction, error) {
	if opts.ID != nil {
		for _, t := range f.transactions {
			if t.ID == *opts.ID {
				return []model.Transaction{t}, nil
			}
		}
		return nil, nil
	}
	var out []model.Transaction
	for _, t := range f.transactions {
		if !opts.From.IsZero() && t.Date.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && t.Date.After(opts.To) {
			continue
		}
		if !opts.UpdatedSince.IsZero() && !t.UpdatedAt.After(opts.UpdatedSince) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeClient) PatchTransaction(_ context.Context, id model.TxnID, patch remoteclient.Patch) error {
	if f.patched == nil {
		f.patched = map[model.TxnID]remoteclient.Patch{}
	}
	f.patched[id] = patch
	for i := range f.transactions {
		if f.transactions[i].ID != id {
			continue
		}
		if v, ok := patch.Fields["note"].(string); ok {
			userText, tags := model.ParseNote(v)
			f.transactions[i].Narration = userText
			if pid, ok := model.PairedFromTag(tags); ok {
				f.transactions[i].PairedID = &pid
			}
			if sr, ok := tags["suspect_reason"]; ok {
				f.transactions[i].SuspectReason = &sr
			}
		}
		if v, ok := patch.Fields["category_id"]; ok {
			if cid, ok := v.(*int64); ok {
				f.transactions[i].CategoryID = cid
			}
		}
		return nil
	}
	return fmt.Errorf("fakeClient: no such transaction %d", int64(id))
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	snap *archive.Snapshot
}

func (f *fakeStore) Load() (*archive.Snapshot, error) {
	if f.snap == nil {
		return &archive.Snapshot{}, nil
	}
	c := *f.snap
	c.Transactions = append([]model.Transaction(nil), f.snap.Transactions...)
	return &c, nil
}

func (f *fakeStore) Save(snap *archive.Snapshot) error {
	f.snap = snap
	return nil
}

func (f *fakeStore) ChangelogPath() string { return "fake.log" }

// fakeSink is an in-memory changelog.Sink with a controllable clock.
type fakeSink struct {
	entries []changelog.Entry
	now     time.Time
}

func (f *fakeSink) Append(kind changelog.Kind, body string) error {
	f.entries = append(f.entries, changelog.Entry{Timestamp: f.now, Kind: kind, Body: body})
	f.now = f.now.Add(time.Second)
	return nil
}

func (f *fakeSink) Entries() ([]changelog.Entry, error) { return f.entries, nil }
func (f *fakeSink) Close() error                        { return nil }

func mustMoney(amount, currency string) model.Money {
	m, err := model.ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func mustLabels(raw ...string) model.LabelSet {
	s, err := model.NewLabelSet(raw...)
	if err != nil {
		panic(err)
	}
	return s
}
