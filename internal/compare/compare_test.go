package compare

import (
	"testing"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/internal/resolve"
)

func mustLabels(t *testing.T, raw ...string) model.LabelSet {
	t.Helper()
	s, err := model.NewLabelSet(raw...)
	if err != nil {
		t.Fatalf("NewLabelSet(%v): %v", raw, err)
	}
	return s
}

func mustMoney(t *testing.T, amount, currency string) model.Money {
	t.Helper()
	m, err := model.ParseMoney(amount, currency)
	if err != nil {
		t.Fatalf("ParseMoney(%q, %q): %v", amount, currency, err)
	}
	return m
}

func TestCompareOnlyLocalOnlyRemote(t *testing.T) {
	locals := []model.Transaction{{ID: 1, Amount: mustMoney(t, "-1.00", "AUD")}}
	remotes := []model.Transaction{{ID: 2, Amount: mustMoney(t, "-2.00", "AUD")}}

	results, summary := Compare(locals, remotes, resolve.Pull)
	if summary.OnlyLocal != 1 || summary.OnlyRemote != 1 {
		t.Fatalf("summary = %+v, want 1 only-local and 1 only-remote", summary)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != 1 || results[0].Classification != OnlyLocal {
		t.Fatalf("results[0] = %+v", results[0])
	}
	if results[1].ID != 2 || results[1].Classification != OnlyRemote {
		t.Fatalf("results[1] = %+v", results[1])
	}
}

// S1 — a label-only difference classifies as "differs" and yields a
// single local mutation.
func TestCompareLabelMergeDiffers(t *testing.T) {
	amt := mustMoney(t, "-3.50", "AUD")
	locals := []model.Transaction{{ID: 10, Amount: amt, Labels: mustLabels(t, "coffee")}}
	remotes := []model.Transaction{{ID: 10, Amount: amt, Labels: mustLabels(t, "coffee", "morning")}}

	results, summary := Compare(locals, remotes, resolve.Pull)
	if summary.Differs != 1 || summary.Identical != 0 {
		t.Fatalf("summary = %+v, want 1 differs", summary)
	}
	if len(results[0].LocalMutations) != 1 {
		t.Fatalf("expected exactly one local mutation, got %d", len(results[0].LocalMutations))
	}
}

// S2 — an immutable-field conflict still classifies the pair as
// "differs" even though no mutation is emitted (spec.md §8, invariant 7).
func TestCompareImmutableConflictStillDiffers(t *testing.T) {
	locals := []model.Transaction{{ID: 20, Amount: mustMoney(t, "-10.00", "AUD")}}
	remotes := []model.Transaction{{ID: 20, Amount: mustMoney(t, "-10.50", "AUD")}}

	results, summary := Compare(locals, remotes, resolve.Pull)
	if summary.Differs != 1 {
		t.Fatalf("summary = %+v, want 1 differs", summary)
	}
	if len(results[0].LocalMutations) != 0 || len(results[0].RemoteMutations) != 0 {
		t.Fatal("immutable conflict must not emit mutations")
	}
	found := false
	for _, d := range results[0].Diagnostics {
		if d.Kind == resolve.DiagConflictWarning {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a conflict-warning diagnostic")
	}
}

func TestCompareIdenticalTransactions(t *testing.T) {
	amt := mustMoney(t, "-5.00", "AUD")
	locals := []model.Transaction{{ID: 30, Amount: amt, Payee: "Cafe"}}
	remotes := []model.Transaction{{ID: 30, Amount: amt, Payee: "Cafe"}}

	_, summary := Compare(locals, remotes, resolve.Pull)
	if summary.Identical != 1 || summary.Differs != 0 {
		t.Fatalf("summary = %+v, want 1 identical", summary)
	}
}

func TestCompareAscendingIDOrder(t *testing.T) {
	locals := []model.Transaction{
		{ID: 30, Amount: mustMoney(t, "-1.00", "AUD")},
		{ID: 10, Amount: mustMoney(t, "-1.00", "AUD")},
		{ID: 20, Amount: mustMoney(t, "-1.00", "AUD")},
	}
	results, _ := Compare(locals, nil, resolve.Pull)
	var ids []int64
	for _, r := range results {
		ids = append(ids, int64(r.ID))
	}
	want := []int64{10, 20, 30}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("results out of order: %v, want %v", ids, want)
		}
	}
}
