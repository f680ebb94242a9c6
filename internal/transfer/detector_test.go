package transfer

import (
	"testing"

	"github.com/pocketsync/reconcile/internal/model"
	"github.com/pocketsync/reconcile/pkg/caldate"
)

func mustMoney(t *testing.T, amount, currency string) model.Money {
	t.Helper()
	m, err := model.ParseMoney(amount, currency)
	if err != nil {
		t.Fatalf("ParseMoney(%q, %q): %v", amount, currency, err)
	}
	return m
}

// S4 — confirmed transfer detection (spec.md §8, S4).
func TestDetectConfirmedPair(t *testing.T) {
	txns := []model.Transaction{
		{ID: 1001, AccountID: 1, Amount: mustMoney(t, "-500.00", "AUD"), Date: caldate.New(2024, 1, 15)},
		{ID: 1002, AccountID: 2, Amount: mustMoney(t, "500.00", "AUD"), Date: caldate.New(2024, 1, 16)},
	}

	result := Detect(txns, nil, DefaultConfig())
	if len(result.Pairs) != 1 {
		t.Fatalf("expected exactly one pair, got %d: %+v", len(result.Pairs), result.Pairs)
	}
	p := result.Pairs[0]
	if p.Kind != Confirmed {
		t.Fatalf("expected a confirmed pair, got %v", p.Kind)
	}
	// A pair joins two distinct transactions.
	if p.A == p.B {
		t.Fatal("a pair must be between two distinct transactions")
	}

	applier := Applier{TransferCategoryID: 99}
	touched := applier.Apply(txns, result)
	if len(touched) != 2 {
		t.Fatalf("expected 2 touched ids, got %v", touched)
	}
	if !txns[0].IsTransfer || !txns[1].IsTransfer {
		t.Fatal("both sides of a confirmed pair must be marked is_transfer")
	}
	if txns[0].PairedID == nil || *txns[0].PairedID != txns[1].ID {
		t.Fatal("paired_id must cross-link")
	}
	if txns[1].PairedID == nil || *txns[1].PairedID != txns[0].ID {
		t.Fatal("paired_id must be symmetric")
	}
	if *txns[0].CategoryID != 99 || *txns[1].CategoryID != 99 {
		t.Fatal("confirmed pairs must be assigned the transfer category")
	}

	// Re-run: idempotence (invariant 4) — no new annotations.
	result2 := Detect(txns, nil, DefaultConfig())
	if len(result2.Pairs) != 0 {
		t.Fatalf("re-run must produce no new pairs, got %+v", result2.Pairs)
	}
}

// S5 — suspected fx transfer detection (spec.md §8, S5).
func TestDetectSuspectedFXPair(t *testing.T) {
	accounts := map[int64]model.Account{
		1: {ID: 1, DisplayName: "Wise", FXEnabled: true},
		2: {ID: 2, DisplayName: "Checking"},
	}
	txns := []model.Transaction{
		{ID: 2001, AccountID: 1, Amount: mustMoney(t, "-100.00", "USD"), Date: caldate.New(2024, 1, 20)},
		{ID: 2002, AccountID: 2, Amount: mustMoney(t, "-97.50", "USD"), Date: caldate.New(2024, 1, 23)},
	}

	result := Detect(txns, accounts, DefaultConfig())
	if len(result.Pairs) != 1 {
		t.Fatalf("expected exactly one pair, got %d: %+v", len(result.Pairs), result.Pairs)
	}
	p := result.Pairs[0]
	if p.Kind != Suspected {
		t.Fatalf("expected a suspected pair, got %v", p.Kind)
	}
	wantReasons := map[string]bool{ReasonSameDirection: true, ReasonAmountMismatchFX: true, reasonDateDelay(3): true}
	if len(p.Reasons) != len(wantReasons) {
		t.Fatalf("reasons = %v, want %v", p.Reasons, wantReasons)
	}
	for _, r := range p.Reasons {
		if !wantReasons[r] {
			t.Fatalf("unexpected reason %q in %v", r, p.Reasons)
		}
	}

	applier := Applier{TransferCategoryID: 99}
	applier.Apply(txns, result)
	if txns[0].IsTransfer || txns[1].IsTransfer {
		t.Fatal("suspected pairs must leave is_transfer false")
	}
	if txns[0].CategoryID != nil || txns[1].CategoryID != nil {
		t.Fatal("suspected pairs must leave category untouched")
	}
	if txns[0].SuspectReason == nil || txns[1].SuspectReason == nil {
		t.Fatal("suspected pairs must record suspect_reason on both sides")
	}
}

func TestDetectNoMatchDifferentSignsFarApart(t *testing.T) {
	txns := []model.Transaction{
		{ID: 1, AccountID: 1, Amount: mustMoney(t, "-10.00", "AUD"), Date: caldate.New(2024, 1, 1)},
		{ID: 2, AccountID: 2, Amount: mustMoney(t, "10.00", "AUD"), Date: caldate.New(2024, 3, 1)},
	}
	result := Detect(txns, nil, DefaultConfig())
	if len(result.Pairs) != 0 {
		t.Fatalf("expected no pairs for transactions far outside the suspected window, got %+v", result.Pairs)
	}
}

func TestDetectSameAccountNeverPairs(t *testing.T) {
	txns := []model.Transaction{
		{ID: 1, AccountID: 1, Amount: mustMoney(t, "-10.00", "AUD"), Date: caldate.New(2024, 1, 1)},
		{ID: 2, AccountID: 1, Amount: mustMoney(t, "10.00", "AUD"), Date: caldate.New(2024, 1, 1)},
	}
	result := Detect(txns, nil, DefaultConfig())
	if len(result.Pairs) != 0 {
		t.Fatalf("same-account transactions must never pair, got %+v", result.Pairs)
	}
}

// Confirmed pairs must be resolved before suspected ones across the
// whole set, so a stronger exact match is never pre-empted by an
// earlier transaction settling for a weaker suspected one it happens
// to reach first in id order (spec.md §4.4).
func TestDetectConfirmedPassPreemptsWeakerSuspectedMatch(t *testing.T) {
	accounts := map[int64]model.Account{
		1: {ID: 1, DisplayName: "Wise", FXEnabled: true},
		2: {ID: 2, DisplayName: "Checking"},
		3: {ID: 3, DisplayName: "Savings", FXEnabled: true},
	}
	txns := []model.Transaction{
		// A: only ever a weaker FX-tolerance suspected match for X.
		{ID: 1, AccountID: 1, Amount: mustMoney(t, "-100.00", "AUD"), Date: caldate.New(2024, 1, 10)},
		// X: A's suspected candidate, but also Y's exact confirmed match.
		{ID: 2, AccountID: 2, Amount: mustMoney(t, "97.50", "AUD"), Date: caldate.New(2024, 1, 12)},
		// Y: X's confirmed partner (opposite sign, exact amount, 1 day apart).
		{ID: 3, AccountID: 3, Amount: mustMoney(t, "-97.50", "AUD"), Date: caldate.New(2024, 1, 13)},
	}

	result := Detect(txns, accounts, DefaultConfig())
	if len(result.Pairs) != 1 {
		t.Fatalf("expected exactly one pair, got %d: %+v", len(result.Pairs), result.Pairs)
	}
	p := result.Pairs[0]
	if p.Kind != Confirmed {
		t.Fatalf("the exact match must win over the earlier weaker suspected one, got %v pair %+v", p.Kind, p)
	}
	gotIDs := map[model.TxnID]bool{p.A: true, p.B: true}
	if !gotIDs[2] || !gotIDs[3] {
		t.Fatalf("expected the confirmed pair to be (2, 3), got %+v", p)
	}
	if gotIDs[1] {
		t.Fatalf("transaction 1 must not be consumed by a weaker suspected match once its candidate is claimed confirmed, got %+v", p)
	}
}

// A bare "transfer" mention must not be enough on its own — the payee
// also has to name the account holder (spec.md §4.4).
func TestSuggestsTransferRequiresNameMatch(t *testing.T) {
	cfg := DefaultConfig()

	if suggestsTransfer("Wire Transfer Fee", cfg) {
		t.Fatal(`"Wire Transfer Fee" mentions transfer but no name — must not match`)
	}
	if suggestsTransfer("Transfer to Savings", cfg) {
		t.Fatal(`"Transfer to Savings" mentions transfer but no name — must not match`)
	}
	if suggestsTransfer("Nelson Tam", cfg) {
		t.Fatal(`a bare name with no "transfer" mention must not match`)
	}
	if !suggestsTransfer("Transfer from N Tam", cfg) {
		t.Fatal(`"Transfer from N Tam" mentions both transfer and a name variation — must match`)
	}
	if !suggestsTransfer("INTERNAL TRANSFER - SS TAM", cfg) {
		t.Fatal(`case-insensitive initials variation must match`)
	}
}

func TestDetectSuspectedDescriptionBasedRequiresNameMatch(t *testing.T) {
	accounts := map[int64]model.Account{
		1: {ID: 1, DisplayName: "Everyday"},
		2: {ID: 2, DisplayName: "Savings"},
	}
	txns := []model.Transaction{
		{ID: 3001, AccountID: 1, Amount: mustMoney(t, "-40.00", "AUD"), Date: caldate.New(2024, 2, 1), Payee: "Wire Transfer Fee"},
		{ID: 3002, AccountID: 2, Amount: mustMoney(t, "40.00", "AUD"), Date: caldate.New(2024, 2, 4), Payee: "Deposit"},
	}

	result := Detect(txns, accounts, DefaultConfig())
	for _, p := range result.Pairs {
		for _, r := range p.Reasons {
			if r == ReasonDescriptionBased {
				t.Fatalf("a bare \"transfer\"-mentioning payee with no account-holder name match must not produce %q, got reasons %v", ReasonDescriptionBased, p.Reasons)
			}
		}
	}

	txns[0].Payee = "Transfer from N Tam"
	result = Detect(txns, accounts, DefaultConfig())
	found := false
	for _, p := range result.Pairs {
		for _, r := range p.Reasons {
			if r == ReasonDescriptionBased {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("a payee mentioning transfer and a name variation must produce description-based")
	}
}
