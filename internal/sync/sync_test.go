package sync

import (
	"context"
	"testing"
	"time"

	"github.com/pocketsync/reconcile/internal/archive"
	"github.com/pocketsync/reconcile/internal/changelog"
	"github.com/pocketsync/reconcile/internal/config"
	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/resolve"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

func newSink() *fakeSink {
	return &fakeSink{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func TestCloneMaterializesArchiveAndLogsHeader(t *testing.T) {
	client := &fakeClient{
		accounts: []model.Account{{ID: 1, DisplayName: "Checking", Currency: "AUD"}},
		transactions: []model.Transaction{
			{ID: 1, Date: caldate.New(2024, 1, 5), AccountID: 1, Amount: mustMoney("-4.50", "AUD")},
		},
	}
	store := &fakeStore{}
	sink := newSink()
	o := &Orchestrator{Remote: client, Store: store, Changelog: sink}

	window := config.DateWindow{From: caldate.New(2024, 1, 1), To: caldate.New(2024, 1, 31)}
	if err := o.Clone(context.Background(), window); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if store.snap == nil || len(store.snap.Transactions) != 1 {
		t.Fatalf("expected one materialized transaction, got %+v", store.snap)
	}
	if store.snap.Accounts[0].OpeningDate != caldate.New(2024, 1, 5) {
		t.Fatalf("opening date not derived from earliest transaction: %+v", store.snap.Accounts[0])
	}
	if len(sink.entries) != 1 || sink.entries[0].Kind != changelog.KindClone {
		t.Fatalf("expected a single CLONE entry, got %+v", sink.entries)
	}
}

func TestPullLabelMergeAppliesLocalOnly(t *testing.T) {
	amt := mustMoney("-3.50", "AUD")
	local := model.Transaction{ID: 10, Date: caldate.New(2024, 1, 10), AccountID: 1, Amount: amt, Labels: mustLabels("coffee")}
	remote := model.Transaction{ID: 10, Date: caldate.New(2024, 1, 10), AccountID: 1, Amount: amt, Labels: mustLabels("coffee", "morning")}

	store := &fakeStore{snap: &archive.Snapshot{Transactions: []model.Transaction{local}}}
	client := &fakeClient{transactions: []model.Transaction{remote}}
	sink := newSink()
	o := &Orchestrator{Remote: client, Store: store, Changelog: sink}

	if err := o.Pull(context.Background(), PullScope{}); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	got := store.snap.Transactions[0]
	if !got.Labels.Equal(mustLabels("coffee", "morning")) {
		t.Fatalf("labels not merged: %+v", got.Labels.Sorted())
	}
	if len(client.patched) != 0 {
		t.Fatalf("expected no remote patch (remote already equals the union), got %+v", client.patched)
	}
	if len(sink.entries) != 2 || sink.entries[0].Kind != changelog.KindPull || sink.entries[1].Kind != changelog.KindUpdate {
		t.Fatalf("expected [PULL, UPDATE], got %+v", sink.entries)
	}
}

func TestPullDiscoversOnlyRemoteTransaction(t *testing.T) {
	remote := model.Transaction{ID: 99, Date: caldate.New(2024, 2, 1), AccountID: 1, Amount: mustMoney("-9.00", "AUD"), Payee: "Cafe"}
	store := &fakeStore{snap: &archive.Snapshot{}}
	client := &fakeClient{transactions: []model.Transaction{remote}}
	sink := newSink()
	o := &Orchestrator{Remote: client, Store: store, Changelog: sink}

	if err := o.Pull(context.Background(), PullScope{}); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	if len(store.snap.Transactions) != 1 || store.snap.Transactions[0].ID != 99 {
		t.Fatalf("expected the only-remote transaction to be materialized, got %+v", store.snap.Transactions)
	}
	if len(sink.entries) < 2 {
		t.Fatalf("expected a PULL header plus creation entries, got %+v", sink.entries)
	}
	for _, e := range sink.entries[1:] {
		if _, _, _, err := changelog.FieldFromBody(e.Body); err != nil {
			t.Fatalf("malformed creation entry %q: %v", e.Body, err)
		}
	}
}

func TestPushCategoryLocalWinsPatchesRemoteOnly(t *testing.T) {
	remoteCat := int64(2)
	localCat := int64(7)
	local := model.Transaction{ID: 5, Date: caldate.New(2024, 3, 1), AccountID: 1, Amount: mustMoney("-1.00", "AUD"), CategoryID: &localCat}
	remote := model.Transaction{ID: 5, Date: caldate.New(2024, 3, 1), AccountID: 1, Amount: mustMoney("-1.00", "AUD"), CategoryID: &remoteCat}

	store := &fakeStore{snap: &archive.Snapshot{Transactions: []model.Transaction{local}}}
	client := &fakeClient{transactions: []model.Transaction{remote}}
	sink := newSink()
	o := &Orchestrator{Remote: client, Store: store, Changelog: sink}

	if err := o.Push(context.Background(), PullScope{}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	patch, ok := client.patched[5]
	if !ok {
		t.Fatal("expected a category_id patch")
	}
	if got := patch.Fields["category_id"]; got != &localCat && *got.(*int64) != localCat {
		t.Fatalf("patch category_id = %v, want %d", got, localCat)
	}
	if store.snap.Transactions[0].CategoryID == nil || *store.snap.Transactions[0].CategoryID != localCat {
		t.Fatal("push must never mutate the local store")
	}
	if len(sink.entries) != 2 || sink.entries[0].Kind != changelog.KindPush {
		t.Fatalf("expected [PUSH, UPDATE], got %+v", sink.entries)
	}
}

func TestPullDryRunLeavesStoreAndChangelogUntouched(t *testing.T) {
	amt := mustMoney("-3.50", "AUD")
	local := model.Transaction{ID: 10, Date: caldate.New(2024, 1, 10), AccountID: 1, Amount: amt, Labels: mustLabels("coffee")}
	remote := model.Transaction{ID: 10, Date: caldate.New(2024, 1, 10), AccountID: 1, Amount: amt, Labels: mustLabels("coffee", "morning")}

	originalSnap := &archive.Snapshot{Transactions: []model.Transaction{local}}
	store := &fakeStore{snap: originalSnap}
	client := &fakeClient{transactions: []model.Transaction{remote}}
	sink := newSink()
	var printed []string
	o := &Orchestrator{
		Remote: client, Store: store, Changelog: sink, DryRun: true,
		Printf: func(format string, args ...any) { printed = append(printed, format) },
	}

	if err := o.Pull(context.Background(), PullScope{}); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	if !store.snap.Transactions[0].Labels.Equal(mustLabels("coffee")) {
		t.Fatal("dry-run must not persist mutations to the store")
	}
	if len(sink.entries) != 0 {
		t.Fatalf("dry-run must not write to the changelog, got %+v", sink.entries)
	}
	if len(printed) == 0 {
		t.Fatal("dry-run should print its intended operations")
	}
}

func TestDiffSummaryCounts(t *testing.T) {
	amt := mustMoney("-1.00", "AUD")
	store := &fakeStore{snap: &archive.Snapshot{Transactions: []model.Transaction{
		{ID: 1, Date: caldate.New(2024, 1, 1), AccountID: 1, Amount: amt},
		{ID: 2, Date: caldate.New(2024, 1, 2), AccountID: 1, Amount: amt},
	}}}
	client := &fakeClient{transactions: []model.Transaction{
		{ID: 1, Date: caldate.New(2024, 1, 1), AccountID: 1, Amount: amt},
		{ID: 3, Date: caldate.New(2024, 1, 3), AccountID: 1, Amount: amt},
	}}
	o := &Orchestrator{Remote: client, Store: store, Changelog: newSink()}

	report, err := o.Diff(context.Background(), PullScope{}, resolve.Pull)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if report.Summary.Identical != 1 || report.Summary.OnlyLocal != 1 || report.Summary.OnlyRemote != 1 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	if got := report.renderSummary(); got == "" {
		t.Fatal("expected a non-empty summary render")
	}
}
